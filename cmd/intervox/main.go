// Command intervox runs a spoken mock interview against an interview
// backend. The interviewer's audio is played locally; answers are captured
// from the microphone or typed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervox/internal/backend"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/transport/ws"
)

var version = "dev"

// errQuit ends the client without waiting for the attempt to finish.
var errQuit = errors.New("quit")

func main() {
	os.Exit(run())
}

func run() int {
	// ---- CLI flags ----
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults and environment only when empty)")
	envFile := flag.String("env-file", ".env", "KEY=VALUE file loaded before the environment is read")
	userID := flag.String("user", "", "candidate user id (overrides client.user_id)")
	subjectID := flag.String("subject", "", "subject id to interview for (overrides client.subject_id)")
	typed := flag.Bool("typed", false, "type answers instead of speaking them")
	manual := flag.Bool("manual", false, "wait for /listen before each answer window")
	flag.Parse()

	// ---- configuration ----
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "intervox: %v\n", err)
		return 1
	}
	cfg, err := config.Resolve(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "intervox: %s\n", configErrorMessage(*configPath, err))
		return 1
	}
	applyFlags(cfg, *userID, *subjectID, *typed, *manual)
	if cfg.Client.UserID == "" {
		fmt.Fprintln(os.Stderr, "intervox: a user id is required (-user, client.user_id or INTERVOX_USER_ID)")
		return 2
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- telemetry ----
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "intervox", ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ---- collaborators ----
	reg := config.NewRegistry()
	registerSTTProviders(reg)

	recognizer, err := buildSTT(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	backendOpts := []backend.Option{backend.WithMetrics(metrics)}
	if cfg.Client.Token != "" {
		backendOpts = append(backendOpts, backend.WithHeader("Authorization", "Bearer "+cfg.Client.Token))
	}
	client, err := backend.New(cfg.Client.BackendURL, backendOpts...)
	if err != nil {
		slog.Error("invalid backend", "err", err)
		return 1
	}

	player, err := buildPlayer(cfg.Audio)
	if err != nil {
		slog.Error("failed to set up audio playback", "err", err)
		return 1
	}

	commands := make(chan string, 8)
	onCommand := func(cmd string) {
		select {
		case commands <- cmd:
		default:
			slog.Debug("dropping command, queue full", "cmd", cmd)
		}
	}
	cs, err := buildCapture(cfg, recognizer, os.Stdin, onCommand)
	if err != nil {
		slog.Error("failed to set up answer capture", "err", err)
		return 1
	}
	if cs.commands != nil {
		defer cs.commands.Close()
	}

	term := newTerminal(os.Stdout, cfg.Interview.ManualListen)
	coord, err := interview.New(
		interview.Config{SubjectID: cfg.Client.SubjectID, UserID: cfg.Client.UserID},
		interview.Deps{Backend: client, Dialer: ws.NewDialer(), Player: player, Capture: cs.engine},
		append(coordinatorOptions(cfg.Interview), interview.WithObserver(term), interview.WithMetrics(metrics))...,
	)
	if err != nil {
		slog.Error("failed to create coordinator", "err", err)
		return 1
	}

	printStartupSummary(os.Stdout, cfg, cs.mode)

	// ---- run ----
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return drive(gctx, coord, commands, os.Stdout)
	})
	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		g.Go(func() error { return observe.ServeMetrics(gctx, addr) })
	}

	err = g.Wait()
	switch {
	case err == nil, errors.Is(err, errQuit), errors.Is(err, context.Canceled):
	case errors.Is(err, interview.ErrCannotStart):
		slog.Error("could not start the interview", "err", err)
		return 1
	default:
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyFlags layers command-line overrides on top of cfg.
func applyFlags(cfg *config.Config, userID, subjectID string, typed, manual bool) {
	if userID != "" {
		cfg.Client.UserID = userID
	}
	if subjectID != "" {
		cfg.Client.SubjectID = subjectID
	}
	if typed {
		cfg.Capture.Mode = config.CaptureTyped
	}
	if manual {
		cfg.Interview.ManualListen = true
	}
}

// coordinatorOptions maps the interview timings onto coordinator options.
// A negative final-audio grace disables the wait.
func coordinatorOptions(c config.InterviewConfig) []interview.Option {
	grace := c.FinalAudioGrace
	if grace < 0 {
		grace = 0
	}
	return []interview.Option{
		interview.WithSettleDelay(c.SettleDelay),
		interview.WithFinalAudioGrace(grace),
		interview.WithManualListen(c.ManualListen),
	}
}

// controller is the part of the coordinator drive needs.
type controller interface {
	StartInterview(ctx context.Context) error
	EndInterview(ctx context.Context)
	RequestListen(ctx context.Context) error
	Wait(ctx context.Context) (interview.Result, error)
}

// drive starts one attempt, dispatches typed commands while it runs and
// returns once it has ended.
func drive(ctx context.Context, c controller, commands <-chan string, out io.Writer) error {
	if err := c.StartInterview(ctx); err != nil {
		return err
	}

	type waited struct {
		res interview.Result
		err error
	}
	done := make(chan waited, 1)
	go func() {
		res, err := c.Wait(ctx)
		done <- waited{res, err}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w := <-done:
			if w.err != nil {
				return w.err
			}
			slog.Info("interview finished", "session_id", w.res.Session.ID, "reason", w.res.Reason,
				"entries", len(w.res.Transcript))
			return nil
		case cmd := <-commands:
			switch cmd {
			case "end":
				c.EndInterview(ctx)
			case "listen":
				if err := c.RequestListen(ctx); errors.Is(err, interview.ErrNotArmed) {
					fmt.Fprintln(out, "  [nothing to listen for right now]")
				} else if err != nil {
					return err
				}
			case "quit":
				return errQuit
			default:
				printHelp(out)
			}
		}
	}
}

// ---- startup summary ----

func printStartupSummary(w io.Writer, cfg *config.Config, mode config.CaptureMode) {
	fmt.Fprintln(w, "intervox "+version)
	fmt.Fprintf(w, "  backend : %s\n", cfg.Client.BackendURL)
	fmt.Fprintf(w, "  user    : %s\n", cfg.Client.UserID)
	subject := cfg.Client.SubjectID
	if subject == "" {
		subject = "(backend default)"
	}
	fmt.Fprintf(w, "  subject : %s\n", subject)
	fmt.Fprintf(w, "  answers : %s\n", mode)
	fmt.Fprintf(w, "  audio   : %s\n", cfg.Audio.Player)
	fmt.Fprintln(w, "Type /help for commands.")
	fmt.Fprintln(w)
}

// ---- logger ----

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
