// Package config provides the configuration schema and loader for intervox.
//
// One YAML file serves both binaries. The client reads the client, interview,
// capture, audio and providers.stt sections; the rehearsal server reads
// server, subjects and providers.llm/tts. Any subset may be omitted:
// [ApplyDefaults] fills every zero value before validation.
//
// Secrets and deployment-specific values can be supplied through INTERVOX_*
// environment variables (optionally from a .env file). See [ApplyEnv].
package config

import "time"

// LogLevel controls the verbosity of structured logging output.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CaptureMode selects how candidate answers are captured.
type CaptureMode string

const (
	// CaptureAuto uses voice capture when an STT provider is configured and
	// falls back to typed answers otherwise.
	CaptureAuto CaptureMode = "auto"

	// CaptureVoice requires microphone capture and an STT provider.
	CaptureVoice CaptureMode = "voice"

	// CaptureTyped reads answers as lines from stdin.
	CaptureTyped CaptureMode = "typed"
)

// IsValid reports whether m is a recognised capture mode.
func (m CaptureMode) IsValid() bool {
	switch m {
	case CaptureAuto, CaptureVoice, CaptureTyped:
		return true
	}
	return false
}

// PlayerKind selects the audio playback backend.
type PlayerKind string

const (
	// PlayerFFplay decodes and plays clips through an ffplay subprocess.
	PlayerFFplay PlayerKind = "ffplay"

	// PlayerClips writes each clip to a directory instead of playing it.
	PlayerClips PlayerKind = "clips"
)

// IsValid reports whether k is a recognised player kind.
func (k PlayerKind) IsValid() bool {
	switch k {
	case PlayerFFplay, PlayerClips:
		return true
	}
	return false
}

// DefaultSubject is the subject id the rehearsal server falls back to when a
// session names a subject it does not know.
const DefaultSubject = "default"

// Config is the root configuration structure.
type Config struct {
	// LogLevel sets the minimum log level for both binaries.
	LogLevel LogLevel `yaml:"log_level"`

	Client    ClientConfig             `yaml:"client"`
	Interview InterviewConfig          `yaml:"interview"`
	Capture   CaptureConfig            `yaml:"capture"`
	Audio     AudioConfig              `yaml:"audio"`
	Providers ProvidersConfig          `yaml:"providers"`
	Server    ServerConfig             `yaml:"server"`
	Subjects  map[string]SubjectConfig `yaml:"subjects"`
	Telemetry TelemetryConfig          `yaml:"telemetry"`
}

// ClientConfig identifies the backend and the candidate.
type ClientConfig struct {
	// BackendURL is the base http(s) URL of the interview backend. The
	// channel URL is derived from it.
	BackendURL string `yaml:"backend_url"`

	// UserID identifies the candidate. Required by the client.
	UserID string `yaml:"user_id"`

	// SubjectID names the résumé analysis the interview is based on.
	SubjectID string `yaml:"subject_id"`

	// Token, when set, is sent as a Bearer Authorization header on session
	// creation.
	Token string `yaml:"token"`
}

// InterviewConfig holds turn-taking timings.
type InterviewConfig struct {
	// SettleDelay is the pause between the end of interviewer audio and the
	// opening of the listen window.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// FinalAudioGrace bounds how long the client waits for the closing
	// remark after the interview ended. A negative value disables it.
	FinalAudioGrace time.Duration `yaml:"final_audio_grace"`

	// ManualListen makes each listen window wait for an explicit request.
	ManualListen bool `yaml:"manual_listen"`
}

// CaptureConfig configures microphone capture and transcription.
type CaptureConfig struct {
	Mode CaptureMode `yaml:"mode"`

	// FFmpegPath is the ffmpeg binary used for microphone capture.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// InputFormat and Device are passed to ffmpeg as -f and -i
	// (e.g. "pulse" and "default").
	InputFormat string `yaml:"input_format"`
	Device      string `yaml:"device"`

	SampleRate int `yaml:"sample_rate"`

	// EndSilence is how long the recogniser waits after the last final
	// segment before it treats the answer as complete.
	EndSilence time.Duration `yaml:"end_silence"`

	// MaxWindow caps a single listen window. Zero means unlimited.
	MaxWindow time.Duration `yaml:"max_window"`

	// Language is the BCP-47 recognition language (e.g. "en-US").
	Language string `yaml:"language"`

	// Keywords are vocabulary hints for the recogniser.
	Keywords []string `yaml:"keywords"`
}

// AudioConfig configures interviewer audio playback.
type AudioConfig struct {
	Player PlayerKind `yaml:"player"`

	FFplayPath string `yaml:"ffplay_path"`

	// Volume is the ffplay volume in [0, 100].
	Volume int `yaml:"volume"`

	// ClipDir is where the clips player writes audio. Required for
	// player "clips".
	ClipDir string `yaml:"clip_dir"`
}

// ProvidersConfig selects the speech and language backends.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`

	// Fallbacks are tried in order when the primary of the same kind fails
	// or its circuit breaker is open.
	Fallbacks FallbacksConfig `yaml:"fallbacks"`
}

// FallbacksConfig lists secondary providers per kind.
type FallbacksConfig struct {
	STT []ProviderEntry `yaml:"stt"`
	LLM []ProviderEntry `yaml:"llm"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block for any pluggable provider.
type ProviderEntry struct {
	// Name is the registered provider identifier (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication credential for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model variant.
	Model string `yaml:"model"`

	// Voice selects the synthesis voice. TTS only.
	Voice string `yaml:"voice"`

	// Options holds provider-specific configuration not covered by the
	// standard fields.
	Options map[string]any `yaml:"options"`
}

// ServerConfig configures the rehearsal backend.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// MaxQuestions is the number of questions asked before the interview
	// ends.
	MaxQuestions int `yaml:"max_questions"`

	// HistoryMessages is how many recent transcript entries are included
	// when generating the next question.
	HistoryMessages int `yaml:"history_messages"`

	// TLS, when set, makes the server listen with TLS.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds paths to the TLS certificate and private key files.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SubjectConfig is the interview context for one subject id.
type SubjectConfig struct {
	// Title is a human-readable label used in logs.
	Title string `yaml:"title"`

	// JobDescription is the role the candidate is interviewing for.
	JobDescription string `yaml:"job_description"`

	// ResumeText is the candidate's résumé as plain text.
	ResumeText string `yaml:"resume_text"`
}

// TelemetryConfig configures the metrics endpoint.
type TelemetryConfig struct {
	// MetricsAddr, when set, serves Prometheus metrics at /metrics on this
	// address. The server also mounts /metrics on its own router.
	MetricsAddr string `yaml:"metrics_addr"`
}
