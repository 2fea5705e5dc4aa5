// Package ffplay plays synthesized speech through the ffplay binary that
// ships with FFmpeg.
//
// Each payload is piped to a fresh ffplay process started with -autoexit,
// so the process exit is the completion signal. ffplay detects the container
// itself, so mp3, wav and ogg payloads all work.
package ffplay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
)

const defaultBinary = "ffplay"

// waitDelay bounds how long Play waits for pipes after the process was
// killed.
const waitDelay = 500 * time.Millisecond

// maxStderr bounds how much ffplay diagnostic output is kept per clip.
const maxStderr = 4 << 10

// Option is a functional option for configuring a Player.
type Option func(*Player)

// WithBinary overrides the ffplay executable name or path.
func WithBinary(name string) Option {
	return func(p *Player) { p.binary = name }
}

// WithArgs replaces the argument vector passed to the binary. The payload
// is always delivered on stdin.
func WithArgs(args ...string) Option {
	return func(p *Player) { p.args = args }
}

// WithVolume sets the ffplay startup volume (0–100).
func WithVolume(v int) Option {
	return func(p *Player) { p.volume = v }
}

// Player implements audio.Player with ffplay.
type Player struct {
	binary string
	args   []string
	volume int

	// The output context is resolved on first use.
	initOnce sync.Once
	path     string
	initErr  error

	mu     sync.Mutex // serialises Play
	closed bool
}

var _ audio.Player = (*Player)(nil)

// New returns a Player. No process is started and the binary is not looked
// up until the first Play or Ready.
func New(opts ...Option) *Player {
	p := &Player{binary: defaultBinary, volume: 100}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Ready resolves the output context and reports whether playback is
// possible on this machine.
func (p *Player) Ready() error {
	p.initOnce.Do(p.init)
	return p.initErr
}

func (p *Player) init() {
	path, err := exec.LookPath(p.binary)
	if err != nil {
		p.initErr = fmt.Errorf("%w: %s not found in PATH: %v", audio.ErrUnavailable, p.binary, err)
		return
	}
	p.path = path
	if p.args == nil {
		p.args = []string{
			"-nodisp", "-autoexit",
			"-loglevel", "error",
			"-volume", fmt.Sprint(p.volume),
			"-i", "pipe:0",
		}
	}
}

// Play pipes payload into a new ffplay process and waits for it to exit.
// A non-zero exit that was not caused by ctx is reported as audio.ErrDecode.
func (p *Player) Play(ctx context.Context, payload []byte) error {
	if err := p.Ready(); err != nil {
		return err
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", audio.ErrDecode)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("ffplay: player closed")
	}

	cmd := exec.CommandContext(ctx, p.path, p.args...)
	cmd.Stdin = bytes.NewReader(payload)
	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%w: ffplay: %s", audio.ErrDecode, msg)
	}
	return nil
}

// Close prevents further playback. An in-flight Play is not interrupted;
// cancel its context for that.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(data []byte) (int, error) {
	if room := b.max - b.Len(); room > 0 {
		if len(data) > room {
			b.Buffer.Write(data[:room])
		} else {
			b.Buffer.Write(data)
		}
	}
	return len(data), nil
}
