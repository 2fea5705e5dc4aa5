// Package transport defines the duplex channel between the interview client
// and the interview backend.
//
// A [Channel] carries two kinds of inbound frames: binary frames holding
// synthesized speech, and text frames holding JSON control messages (see
// [ParseControl]). Outbound traffic is text only.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send after the channel has been closed.
var ErrClosed = errors.New("transport: channel closed")

// FrameKind distinguishes binary audio frames from textual control frames.
type FrameKind int

const (
	// FrameText is a JSON control frame.
	FrameText FrameKind = iota
	// FrameBinary is an opaque synthesized audio payload.
	FrameBinary
)

// String returns the lowercase name of k.
func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Frame is a single inbound message.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Channel is an open duplex session with the backend.
//
// Implementations must be safe for concurrent use: Frames is consumed by one
// goroutine while Send and Close may be called from another.
type Channel interface {
	// Frames returns the inbound frame stream in arrival order. The channel
	// is closed when the connection ends for any reason, local or remote.
	Frames() <-chan Frame

	// Send writes one text frame.
	Send(ctx context.Context, data []byte) error

	// Close closes the connection. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Dialer opens channels.
type Dialer interface {
	// Dial opens a channel to url. The returned channel is already reading.
	Dial(ctx context.Context, url string) (Channel, error)
}

// DialerFunc adapts a function to the [Dialer] interface.
type DialerFunc func(ctx context.Context, url string) (Channel, error)

// Dial calls f(ctx, url).
func (f DialerFunc) Dial(ctx context.Context, url string) (Channel, error) {
	return f(ctx, url)
}
