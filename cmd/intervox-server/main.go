// Command intervox-server is the rehearsal interview backend. It serves the
// session API and the duplex interview channel the intervox client talks
// to, with questions and feedback written by an LLM and spoken by a TTS
// provider.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/rehearsal"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ---- CLI flags ----
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults and environment only when empty)")
	envFile := flag.String("env-file", ".env", "KEY=VALUE file loaded before the environment is read")
	listenAddr := flag.String("listen", "", "listen address (overrides server.listen_addr)")
	flag.Parse()

	// ---- configuration ----
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "intervox-server: %v\n", err)
		return 1
	}
	cfg, err := config.Resolve(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "intervox-server: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "intervox-server: %v\n", err)
		}
		return 1
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.LogLevel))
	slog.SetDefault(newLogger(level))

	slog.Info("intervox-server starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- telemetry ----
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "intervox-server", ServiceVersion: version})
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

	// ---- providers ----
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	ps, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ---- rehearsal backend ----
	store := rehearsal.NewStore()
	iv := rehearsal.NewInterviewer(store, ps.llm, ps.tts, rehearsal.SettingsFromConfig(cfg),
		rehearsal.WithVoice(cfg.Providers.TTS.Voice),
		rehearsal.WithInterviewerMetrics(metrics),
	)
	srv := rehearsal.NewServer(store, iv,
		rehearsal.WithMetrics(metrics),
		rehearsal.WithMetricsHandler(observe.MetricsHandler()),
		rehearsal.WithHealthCheckers(
			health.BreakerCheck("llm", ps.llmGroup.States),
			health.BreakerCheck("tts", ps.ttsGroup.States),
		),
	)

	// ---- hot reload ----
	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, reloader(iv, level), config.WithEnvOverrides())
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
			go reloadOnHangup(ctx, w)
		}
	}

	printStartupSummary(os.Stdout, cfg)

	// ---- serve ----
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			slog.Info("listening", "addr", httpSrv.Addr, "tls", true)
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", httpSrv.Addr)
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		g.Go(func() error { return observe.ServeMetrics(gctx, addr) })
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// reloader applies hot-reloadable changes: subjects, interview limits and
// the log level. Everything else is reported as needing a restart.
func reloader(iv *rehearsal.Interviewer, level *slog.LevelVar) func(old, new *config.Config) {
	return func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.LimitsChanged || len(d.SubjectChanges) > 0 {
			iv.Update(rehearsal.SettingsFromConfig(new))
			for _, sc := range d.SubjectChanges {
				slog.Info("subject reloaded", "id", sc.ID, "added", sc.Added, "removed", sc.Removed, "edited", sc.Edited)
			}
			if d.LimitsChanged {
				slog.Info("interview limits reloaded",
					"max_questions", new.Server.MaxQuestions,
					"history_messages", new.Server.HistoryMessages)
			}
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config changes need a restart to apply", "fields", d.RestartRequired)
		}
	}
}

// reloadOnHangup forces a config reload on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			changed, err := w.Reload()
			if err != nil {
				slog.Warn("SIGHUP reload failed", "err", err)
				continue
			}
			slog.Info("SIGHUP reload", "changed", changed)
		}
	}
}

// ---- startup summary ----

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "intervox-server "+version)
	fmt.Fprintf(w, "  LLM           : %s\n", providerLabel(cfg.Providers.LLM, len(cfg.Providers.Fallbacks.LLM)))
	fmt.Fprintf(w, "  TTS           : %s\n", providerLabel(cfg.Providers.TTS, len(cfg.Providers.Fallbacks.TTS)))
	fmt.Fprintf(w, "  Subjects      : %d\n", len(cfg.Subjects))
	fmt.Fprintf(w, "  Max questions : %d\n", cfg.Server.MaxQuestions)
	fmt.Fprintf(w, "  Listen addr   : %s\n", cfg.Server.ListenAddr)
}

func providerLabel(e config.ProviderEntry, fallbacks int) string {
	if e.Name == "" {
		return "(not configured)"
	}
	label := e.Name
	if e.Model != "" {
		label += " / " + e.Model
	}
	if fallbacks > 0 {
		label += fmt.Sprintf(" (+%d fallback)", fallbacks)
	}
	return label
}

// ---- logger ----

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
