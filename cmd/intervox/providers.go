package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/audio/clipsink"
	"github.com/MrWong99/intervox/pkg/audio/ffmpeg"
	"github.com/MrWong99/intervox/pkg/audio/ffplay"
	"github.com/MrWong99/intervox/pkg/capture"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/stt/cloudspeech"
	"github.com/MrWong99/intervox/pkg/provider/stt/deepgram"
	"github.com/MrWong99/intervox/pkg/provider/stt/whisper"
)

// commandPrefix marks a typed line as a client command.
const commandPrefix = "/"

// registerSTTProviders wires the speech-to-text factories the client ships
// with into reg.
func registerSTTProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// cloudspeech reads the project from options and uses APIKey, when set,
	// as the service account JSON. Without it application default
	// credentials apply.
	reg.RegisterSTT("cloudspeech", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []cloudspeech.Option
		if entry.APIKey != "" {
			opts = append(opts, cloudspeech.WithCredentialsJSON(entry.APIKey))
		}
		if loc := optString(entry.Options, "location"); loc != "" {
			opts = append(opts, cloudspeech.WithLocation(loc))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, cloudspeech.WithLanguage(lang))
		}
		if entry.Model != "" {
			opts = append(opts, cloudspeech.WithModel(entry.Model))
		}
		return cloudspeech.New(optString(entry.Options, "project_id"), opts...)
	})

	for _, name := range reg.Names("stt") {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// buildSTT creates the configured recogniser and its fallbacks behind a
// resilience group. It returns nil when no STT provider is configured.
func buildSTT(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (stt.Provider, error) {
	primary := cfg.Providers.STT
	if primary.Name == "" {
		return nil, nil
	}
	p, err := reg.CreateSTT(primary)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", primary.Name, err)
	}
	g := resilience.NewGroup("stt", primary.Name, p, resilience.WithMetrics(m))
	for _, fb := range cfg.Providers.Fallbacks.STT {
		fp, err := reg.CreateSTT(fb)
		if err != nil {
			slog.Warn("skipping stt fallback", "name", fb.Name, "err", err)
			continue
		}
		g.WithFallback(fb.Name, fp)
	}
	slog.Info("provider created", "kind", "stt", "chain", g.Names())
	return resilience.NewSTT(g), nil
}

// buildPlayer returns the configured playback backend.
func buildPlayer(c config.AudioConfig) (audio.Player, error) {
	switch c.Player {
	case config.PlayerClips:
		return clipsink.New(c.ClipDir, "mp3")
	default:
		return ffplay.New(ffplay.WithBinary(c.FFplayPath), ffplay.WithVolume(c.Volume)), nil
	}
}

// captureSetup is what buildCapture decided on.
type captureSetup struct {
	engine capture.Engine

	// commands reads stdin for commands while engine listens to the
	// microphone. Nil when engine itself reads stdin.
	commands *capture.LineEngine

	mode config.CaptureMode
}

// buildCapture picks voice or typed input. In auto mode a missing
// microphone or recogniser degrades to typed answers.
func buildCapture(cfg *config.Config, recognizer stt.Provider, stdin io.Reader, onCommand func(string)) (captureSetup, error) {
	typed := func() captureSetup {
		return captureSetup{
			engine: capture.NewLine(stdin, capture.WithCommands(commandPrefix, onCommand)),
			mode:   config.CaptureTyped,
		}
	}
	if cfg.Capture.Mode == config.CaptureTyped {
		return typed(), nil
	}

	eng, err := newVoiceEngine(cfg.Capture, recognizer)
	if err != nil {
		if cfg.Capture.Mode == config.CaptureAuto && capture.IsUnavailable(err) {
			slog.Warn("voice capture unavailable, answers will be typed", "err", err)
			return typed(), nil
		}
		return captureSetup{}, err
	}
	return captureSetup{
		engine:   eng,
		commands: capture.NewLine(stdin, capture.WithCommands(commandPrefix, onCommand)),
		mode:     config.CaptureVoice,
	}, nil
}

func newVoiceEngine(c config.CaptureConfig, recognizer stt.Provider) (*capture.STTEngine, error) {
	if recognizer == nil {
		return nil, fmt.Errorf("%w: no speech-to-text provider configured", capture.ErrUnavailable)
	}
	micOpts := []ffmpeg.Option{
		ffmpeg.WithBinary(c.FFmpegPath),
		ffmpeg.WithSampleRate(c.SampleRate),
	}
	if c.Device != "" {
		micOpts = append(micOpts, ffmpeg.WithDevice(c.Device))
	}
	if c.InputFormat != "" {
		device := c.Device
		if device == "" {
			device = "default"
		}
		micOpts = append(micOpts, ffmpeg.WithInputArgs("-f", c.InputFormat, "-i", device))
	}
	mic, err := ffmpeg.New(micOpts...)
	if err != nil {
		return nil, err
	}

	opts := []capture.STTOption{
		capture.WithEndSilence(c.EndSilence),
		capture.WithMaxWindow(c.MaxWindow),
	}
	if c.Language != "" {
		opts = append(opts, capture.WithLanguage(c.Language))
	}
	if len(c.Keywords) > 0 {
		opts = append(opts, capture.WithKeywords(c.Keywords))
	}
	return capture.NewSTT(mic, recognizer, opts...)
}

// configErrorMessage turns a load failure into a one-line hint.
func configErrorMessage(path string, err error) string {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Sprintf("config file %q not found; copy configs/example.yaml to get started", path)
	}
	return err.Error()
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
