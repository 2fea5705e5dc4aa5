// Package clipsink is a headless audio.Player that writes every payload to
// a directory instead of a speaker. Playback completes as soon as the file
// is written.
package clipsink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrWong99/intervox/pkg/audio"
)

// Player stores clips as dir/0001.mp3, dir/0002.mp3, ...
type Player struct {
	dir string
	ext string

	mu  sync.Mutex
	seq int
}

var _ audio.Player = (*Player)(nil)

// New creates dir if needed. ext is the file extension without the dot;
// empty means "mp3".
func New(dir, ext string) (*Player, error) {
	if ext == "" {
		ext = "mp3"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("clipsink: create %q: %w", dir, err)
	}
	return &Player{dir: dir, ext: ext}, nil
}

// Play writes payload to the next numbered file.
func (p *Player) Play(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", audio.ErrDecode)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	name := filepath.Join(p.dir, fmt.Sprintf("%04d.%s", p.seq, p.ext))
	if err := os.WriteFile(name, payload, 0o644); err != nil {
		return fmt.Errorf("clipsink: write %q: %w", name, err)
	}
	return nil
}

// Close is a no-op.
func (p *Player) Close() error { return nil }
