// Package ffmpeg captures microphone audio by running the ffmpeg binary and
// reading raw PCM from its stdout.
package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
)

const (
	defaultBinary     = "ffmpeg"
	defaultSampleRate = 16000
)

// Option configures a Mic.
type Option func(*Mic)

// WithBinary overrides the ffmpeg executable.
func WithBinary(name string) Option {
	return func(m *Mic) { m.binary = name }
}

// WithDevice selects the input device. The meaning is platform specific:
// a PulseAudio source on linux, an avfoundation index like ":0" on darwin.
func WithDevice(device string) Option {
	return func(m *Mic) { m.device = device }
}

// WithSampleRate sets the output sample rate.
func WithSampleRate(hz int) Option {
	return func(m *Mic) { m.sampleRate = hz }
}

// WithInputArgs replaces the platform input arguments (everything before
// the output format flags). Useful for ALSA or a test file source.
func WithInputArgs(args ...string) Option {
	return func(m *Mic) { m.inputArgs = args }
}

// Mic opens ffmpeg-backed microphone streams. It implements
// audio.SourceOpener.
type Mic struct {
	binary     string
	path       string
	device     string
	sampleRate int
	inputArgs  []string
}

var _ audio.SourceOpener = (*Mic)(nil)

// New resolves the ffmpeg binary and the platform input. It returns
// audio.ErrUnavailable when ffmpeg is missing or the platform has no known
// capture backend.
func New(opts ...Option) (*Mic, error) {
	m := &Mic{binary: defaultBinary, sampleRate: defaultSampleRate}
	for _, o := range opts {
		o(m)
	}
	path, err := exec.LookPath(m.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH", audio.ErrUnavailable, m.binary)
	}
	m.path = path
	if m.inputArgs == nil {
		in, err := inputArgs(runtime.GOOS, m.device)
		if err != nil {
			return nil, err
		}
		m.inputArgs = in
	}
	return m, nil
}

// inputArgs returns the ffmpeg input flags for goos.
func inputArgs(goos, device string) ([]string, error) {
	switch goos {
	case "darwin":
		if device == "" {
			device = ":0"
		}
		return []string{"-f", "avfoundation", "-i", device}, nil
	case "linux":
		if device == "" {
			device = "default"
		}
		return []string{"-f", "pulse", "-i", device}, nil
	default:
		return nil, fmt.Errorf("%w: microphone capture is not implemented for %s", audio.ErrUnavailable, goos)
	}
}

// args returns the full argument vector.
func (m *Mic) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, m.inputArgs...)
	return append(args,
		"-ac", "1",
		"-ar", strconv.Itoa(m.sampleRate),
		"-f", "s16le", "-",
	)
}

// Open starts a new ffmpeg process. The stream runs until Close or until
// ctx is cancelled.
func (m *Mic) Open(ctx context.Context) (audio.Source, error) {
	cmd := exec.CommandContext(ctx, m.path, m.args()...)
	cmd.Stderr = io.Discard
	cmd.WaitDelay = time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start mic capture: %w", err)
	}
	return &stream{cmd: cmd, stdout: stdout, sampleRate: m.sampleRate}, nil
}

type stream struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	sampleRate int
	once       sync.Once
}

func (s *stream) Read(p []byte) (int, error) { return s.stdout.Read(p) }

func (s *stream) SampleRate() int { return s.sampleRate }

func (s *stream) Channels() int { return 1 }

// Close kills ffmpeg and reaps it. Safe to call more than once.
func (s *stream) Close() error {
	s.once.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
	})
	return nil
}
