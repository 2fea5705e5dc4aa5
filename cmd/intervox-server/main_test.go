package main

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/rehearsal"
	llmmock "github.com/MrWong99/intervox/pkg/provider/llm/mock"
	ttsmock "github.com/MrWong99/intervox/pkg/provider/tts/mock"
)

func TestBuildGroup(t *testing.T) {
	t.Parallel()
	create := func(e config.ProviderEntry) (string, error) {
		if e.Name == "broken" {
			return "", errors.New("bad key")
		}
		return e.Name, nil
	}

	g, err := buildGroup("llm", config.ProviderEntry{Name: "openai"},
		[]config.ProviderEntry{{Name: "broken"}, {Name: "ollama"}}, create, nil)
	if err != nil {
		t.Fatalf("buildGroup: %v", err)
	}
	if got := strings.Join(g.Names(), ","); got != "openai,ollama" {
		t.Errorf("names = %s, want the broken fallback skipped", got)
	}

	if _, err := buildGroup("tts", config.ProviderEntry{}, nil, create, nil); err == nil {
		t.Error("missing primary: want error")
	}
	if _, err := buildGroup("tts", config.ProviderEntry{Name: "broken"}, nil, create, nil); err == nil {
		t.Error("failing primary: want error")
	}
}

func TestBuildProviders_UnregisteredName(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.LLM = config.ProviderEntry{Name: "nope"}
	cfg.Providers.TTS = config.ProviderEntry{Name: "openai"}

	_, err := buildProviders(cfg, config.NewRegistry(), nil)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestReloader(t *testing.T) {
	t.Parallel()
	old := config.Default()
	iv := rehearsal.NewInterviewer(rehearsal.NewStore(), &llmmock.Provider{}, &ttsmock.Provider{}, rehearsal.SettingsFromConfig(old))
	level := new(slog.LevelVar)

	next := config.Default()
	next.LogLevel = config.LogDebug
	next.Server.MaxQuestions = 9
	next.Subjects["platform"] = config.SubjectConfig{JobDescription: "Platform engineer"}

	reloader(iv, level)(old, next)

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	s := iv.Settings()
	if s.MaxQuestions != 9 {
		t.Errorf("MaxQuestions = %d, want 9", s.MaxQuestions)
	}
	if _, ok := s.Subjects["platform"]; !ok {
		t.Error("new subject not applied")
	}
}

func TestProviderLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		entry     config.ProviderEntry
		fallbacks int
		want      string
	}{
		{config.ProviderEntry{}, 0, "(not configured)"},
		{config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"}, 0, "openai / gpt-4o-mini"},
		{config.ProviderEntry{Name: "coqui"}, 1, "coqui (+1 fallback)"},
	}
	for _, tt := range tests {
		if got := providerLabel(tt.entry, tt.fallbacks); got != tt.want {
			t.Errorf("providerLabel(%+v, %d) = %q, want %q", tt.entry, tt.fallbacks, got, tt.want)
		}
	}
}
