package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper", "cloudspeech"},
	"tts": {"openai", "elevenlabs", "coqui"},
}

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "INTERVOX_"

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected. An empty document yields
// the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve is the entry point for the binaries. It loads path (or starts from
// the defaults when path is empty), then applies environment overrides and
// validates again.
func Resolve(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// that are already set win. Missing files are skipped; with no arguments
// ".env" is tried.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Default returns a config holding only defaults.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Client.BackendURL == "" {
		cfg.Client.BackendURL = "http://localhost:8000"
	}
	if cfg.Interview.SettleDelay == 0 {
		cfg.Interview.SettleDelay = 1200 * time.Millisecond
	}
	if cfg.Interview.FinalAudioGrace == 0 {
		cfg.Interview.FinalAudioGrace = 10 * time.Second
	}
	if cfg.Capture.Mode == "" {
		cfg.Capture.Mode = CaptureAuto
	}
	if cfg.Capture.FFmpegPath == "" {
		cfg.Capture.FFmpegPath = "ffmpeg"
	}
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture.SampleRate = 16000
	}
	if cfg.Capture.EndSilence == 0 {
		cfg.Capture.EndSilence = 1500 * time.Millisecond
	}
	if cfg.Audio.Player == "" {
		cfg.Audio.Player = PlayerFFplay
	}
	if cfg.Audio.FFplayPath == "" {
		cfg.Audio.FFplayPath = "ffplay"
	}
	if cfg.Audio.Volume == 0 {
		cfg.Audio.Volume = 100
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8000"
	}
	if cfg.Server.MaxQuestions == 0 {
		cfg.Server.MaxQuestions = 4
	}
	if cfg.Server.HistoryMessages == 0 {
		cfg.Server.HistoryMessages = 6
	}
	if cfg.Subjects == nil {
		cfg.Subjects = make(map[string]SubjectConfig)
	}
	if _, ok := cfg.Subjects[DefaultSubject]; !ok {
		cfg.Subjects[DefaultSubject] = SubjectConfig{
			Title:          "General software engineering",
			JobDescription: "Software engineer. Designs, builds and operates backend services; collaborates across teams; owns features end to end.",
			ResumeText:     "Experienced software engineer with a background in backend development, testing and delivery.",
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Client
	if cfg.Client.BackendURL != "" {
		u, err := url.Parse(cfg.Client.BackendURL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("client.backend_url: %w", err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("client.backend_url %q must use http or https", cfg.Client.BackendURL))
		case u.Host == "":
			errs = append(errs, fmt.Errorf("client.backend_url %q has no host", cfg.Client.BackendURL))
		}
	}

	// Interview
	if cfg.Interview.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("interview.settle_delay %s must not be negative", cfg.Interview.SettleDelay))
	}

	// Capture
	if cfg.Capture.Mode != "" && !cfg.Capture.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("capture.mode %q is invalid; valid values: auto, voice, typed", cfg.Capture.Mode))
	}
	if cfg.Capture.Mode == CaptureVoice && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("capture.mode voice requires providers.stt"))
	}
	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", cfg.Capture.SampleRate))
	}
	if cfg.Capture.EndSilence < 0 {
		errs = append(errs, fmt.Errorf("capture.end_silence %s must not be negative", cfg.Capture.EndSilence))
	}
	if cfg.Capture.MaxWindow < 0 {
		errs = append(errs, fmt.Errorf("capture.max_window %s must not be negative", cfg.Capture.MaxWindow))
	}

	// Audio
	if cfg.Audio.Player != "" && !cfg.Audio.Player.IsValid() {
		errs = append(errs, fmt.Errorf("audio.player %q is invalid; valid values: ffplay, clips", cfg.Audio.Player))
	}
	if cfg.Audio.Player == PlayerClips && cfg.Audio.ClipDir == "" {
		errs = append(errs, errors.New("audio.clip_dir is required for player clips"))
	}
	if cfg.Audio.Volume < 0 || cfg.Audio.Volume > 100 {
		errs = append(errs, fmt.Errorf("audio.volume %d is out of range [0, 100]", cfg.Audio.Volume))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for kind, list := range map[string][]ProviderEntry{
		"stt": cfg.Providers.Fallbacks.STT,
		"llm": cfg.Providers.Fallbacks.LLM,
		"tts": cfg.Providers.Fallbacks.TTS,
	} {
		for i, e := range list {
			if e.Name == "" {
				errs = append(errs, fmt.Errorf("providers.fallbacks.%s[%d]: name is required", kind, i))
				continue
			}
			validateProviderName(kind, e.Name)
		}
	}

	// Server
	if cfg.Server.MaxQuestions < 0 {
		errs = append(errs, fmt.Errorf("server.max_questions %d must not be negative", cfg.Server.MaxQuestions))
	}
	if cfg.Server.HistoryMessages < 0 {
		errs = append(errs, fmt.Errorf("server.history_messages %d must not be negative", cfg.Server.HistoryMessages))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Subjects
	for id, s := range cfg.Subjects {
		if id == "" {
			errs = append(errs, errors.New("subjects: empty subject id"))
			continue
		}
		if s.JobDescription == "" && s.ResumeText == "" {
			errs = append(errs, fmt.Errorf("subjects[%q]: job_description or resume_text is required", id))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not in the
// known list for kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if !slices.Contains(known, name) {
		slog.Warn("unknown provider name; it may be registered at runtime",
			"kind", kind,
			"name", name,
			"known", known,
		)
	}
}

// ---- environment overrides ----

// envOverrides holds INTERVOX_* variables. Nil means unset.
type envOverrides struct {
	LogLevel        *string        `env:"LOG_LEVEL"`
	BackendURL      *string        `env:"BACKEND_URL"`
	UserID          *string        `env:"USER_ID"`
	SubjectID       *string        `env:"SUBJECT_ID"`
	Token           *string        `env:"TOKEN"`
	SettleDelay     *time.Duration `env:"SETTLE_DELAY"`
	FinalAudioGrace *time.Duration `env:"FINAL_AUDIO_GRACE"`
	ManualListen    *bool          `env:"MANUAL_LISTEN"`
	CaptureMode     *string        `env:"CAPTURE_MODE"`
	Device          *string        `env:"DEVICE"`
	Language        *string        `env:"LANGUAGE"`
	Keywords        []string       `env:"KEYWORDS" envSeparator:","`
	ListenAddr      *string        `env:"LISTEN_ADDR"`
	MetricsAddr     *string        `env:"METRICS_ADDR"`
	STTAPIKey       *string        `env:"STT_API_KEY"`
	LLMAPIKey       *string        `env:"LLM_API_KEY"`
	TTSAPIKey       *string        `env:"TTS_API_KEY"`
}

// vendorKeys are the vendors' conventional variables, used only when the
// matching provider has no key yet.
type vendorKeys struct {
	OpenAI     string `env:"OPENAI_API_KEY"`
	Deepgram   string `env:"DEEPGRAM_API_KEY"`
	ElevenLabs string `env:"ELEVENLABS_API_KEY"`
}

// ApplyEnv overlays INTERVOX_* environment variables onto cfg. Provider API
// keys that are still empty afterwards fall back to OPENAI_API_KEY,
// DEEPGRAM_API_KEY or ELEVENLABS_API_KEY depending on the provider name.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	var v vendorKeys
	if err := env.Parse(&v); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	if o.LogLevel != nil {
		cfg.LogLevel = LogLevel(*o.LogLevel)
	}
	setString(&cfg.Client.BackendURL, o.BackendURL)
	setString(&cfg.Client.UserID, o.UserID)
	setString(&cfg.Client.SubjectID, o.SubjectID)
	setString(&cfg.Client.Token, o.Token)
	if o.SettleDelay != nil {
		cfg.Interview.SettleDelay = *o.SettleDelay
	}
	if o.FinalAudioGrace != nil {
		cfg.Interview.FinalAudioGrace = *o.FinalAudioGrace
	}
	if o.ManualListen != nil {
		cfg.Interview.ManualListen = *o.ManualListen
	}
	if o.CaptureMode != nil {
		cfg.Capture.Mode = CaptureMode(*o.CaptureMode)
	}
	setString(&cfg.Capture.Device, o.Device)
	setString(&cfg.Capture.Language, o.Language)
	if len(o.Keywords) > 0 {
		cfg.Capture.Keywords = o.Keywords
	}
	setString(&cfg.Server.ListenAddr, o.ListenAddr)
	setString(&cfg.Telemetry.MetricsAddr, o.MetricsAddr)
	setString(&cfg.Providers.STT.APIKey, o.STTAPIKey)
	setString(&cfg.Providers.LLM.APIKey, o.LLMAPIKey)
	setString(&cfg.Providers.TTS.APIKey, o.TTSAPIKey)

	fallback := map[string]string{
		"openai":     v.OpenAI,
		"deepgram":   v.Deepgram,
		"elevenlabs": v.ElevenLabs,
	}
	for _, p := range []*ProviderEntry{&cfg.Providers.STT, &cfg.Providers.LLM, &cfg.Providers.TTS} {
		if p.APIKey == "" {
			p.APIKey = fallback[p.Name]
		}
	}
	return nil
}
