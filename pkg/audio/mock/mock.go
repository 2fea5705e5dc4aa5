// Package mock provides test doubles for the audio package interfaces.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
)

// Player is a mock audio.Player. Each Play call is recorded, waits Delay
// (or until Release is signalled when Gate is set) and returns Err.
type Player struct {
	mu sync.Mutex

	// Delay is how long each Play blocks.
	Delay time.Duration

	// Gate, if non-nil, makes Play block until a value is received from it.
	Gate chan struct{}

	// Err, if non-nil, is returned by every Play call.
	Err error

	// ErrFor, if set, picks the error per payload. Takes precedence over Err.
	ErrFor func(payload []byte) error

	payloads [][]byte
	active   int
	maxSeen  int
	closes   int

	// Started receives each payload as Play begins, if non-nil. Sends are
	// non-blocking.
	Started chan []byte
}

var _ audio.Player = (*Player)(nil)

// Play records payload and blocks per Delay or Gate.
func (p *Player) Play(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	p.payloads = append(p.payloads, append([]byte(nil), payload...))
	p.active++
	if p.active > p.maxSeen {
		p.maxSeen = p.active
	}
	delay, gate, started := p.Delay, p.Gate, p.Started
	err := p.Err
	if p.ErrFor != nil {
		err = p.ErrFor(payload)
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if started != nil {
		select {
		case started <- payload:
		default:
		}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Close records the call.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

// Payloads returns copies of every played payload in order.
func (p *Player) Payloads() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.payloads...)
}

// MaxConcurrent returns the highest number of overlapping Play calls seen.
func (p *Player) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxSeen
}

// Playing reports whether a Play call is in flight.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active > 0
}
