package main

import (
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/intervox/pkg/provider/llm/openai"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	"github.com/MrWong99/intervox/pkg/provider/tts/coqui"
	"github.com/MrWong99/intervox/pkg/provider/tts/elevenlabs"
	ttsopenai "github.com/MrWong99/intervox/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires the language and speech factories the
// server ships with into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ---- LLM ----

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other any-llm vendor takes an optional key and base URL. ollama
	// is a local server and only needs the address. "openai" stays on the
	// native SDK above.
	for _, name := range anyllm.Names() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && name != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ---- TTS ----

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, ttsopenai.WithVoice(entry.Voice))
		}
		if s := optString(entry.Options, "instructions"); s != "" {
			opts = append(opts, ttsopenai.WithInstructions(s))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, elevenlabs.WithVoice(entry.Voice))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if entry.Voice != "" {
			opts = append(opts, coqui.WithVoice(entry.Voice))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for _, kind := range []string{"llm", "tts"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// providers is what the interviewer runs on.
type providers struct {
	llm *resilience.LLM
	tts *resilience.TTS

	llmGroup *resilience.Group[llm.Provider]
	ttsGroup *resilience.Group[tts.Provider]
}

// buildProviders instantiates the configured LLM and TTS providers with
// their fallbacks. Both kinds are required by the server.
func buildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*providers, error) {
	llmGroup, err := buildGroup("llm", cfg.Providers.LLM, cfg.Providers.Fallbacks.LLM, reg.CreateLLM, m)
	if err != nil {
		return nil, err
	}
	ttsGroup, err := buildGroup("tts", cfg.Providers.TTS, cfg.Providers.Fallbacks.TTS, reg.CreateTTS, m,
		resilience.WithPermanentErrors(tts.ErrEmptyText))
	if err != nil {
		return nil, err
	}
	return &providers{
		llm:      resilience.NewLLM(llmGroup, m),
		tts:      resilience.NewTTS(ttsGroup, m),
		llmGroup: llmGroup,
		ttsGroup: ttsGroup,
	}, nil
}

// buildGroup creates the primary and every fallback for one kind. A
// fallback that cannot be created is logged and skipped.
func buildGroup[T any](
	kind string,
	primary config.ProviderEntry,
	fallbacks []config.ProviderEntry,
	create func(config.ProviderEntry) (T, error),
	m *observe.Metrics,
	extra ...resilience.GroupOption,
) (*resilience.Group[T], error) {
	if primary.Name == "" {
		return nil, fmt.Errorf("providers.%s is required", kind)
	}
	p, err := create(primary)
	if err != nil {
		return nil, fmt.Errorf("create %s provider %q: %w", kind, primary.Name, err)
	}
	opts := append([]resilience.GroupOption{resilience.WithMetrics(m)}, extra...)
	g := resilience.NewGroup(kind, primary.Name, p, opts...)
	for _, fb := range fallbacks {
		fp, err := create(fb)
		if err != nil {
			slog.Warn("skipping fallback provider", "kind", kind, "name", fb.Name, "err", err)
			continue
		}
		g.WithFallback(fb.Name, fp)
	}
	slog.Info("provider created", "kind", kind, "chain", g.Names())
	return g, nil
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
