// Package mock provides test doubles for the transport package interfaces.
//
// Channel lets a test play the backend: push frames with Push or
// PushControl, inspect what the client sent, and simulate a remote drop with
// Drop.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MrWong99/intervox/pkg/transport"
)

// Channel is a mock implementation of transport.Channel.
type Channel struct {
	mu     sync.Mutex
	once   sync.Once
	frames chan transport.Frame
	sent   [][]byte
	closes int
	closed chan struct{}

	// SendErr, if non-nil, is returned by every Send call.
	SendErr error

	// OnSend, if set, is called with every sent frame after it is recorded.
	OnSend func(data []byte)
}

// NewChannel returns an open mock channel.
func NewChannel() *Channel {
	return &Channel{
		frames: make(chan transport.Frame, 64),
		closed: make(chan struct{}),
	}
}

var _ transport.Channel = (*Channel)(nil)

// Frames returns the inbound stream fed by Push.
func (c *Channel) Frames() <-chan transport.Frame { return c.frames }

// Send records data.
func (c *Channel) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return transport.ErrClosed
	default:
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	err := c.SendErr
	hook := c.OnSend
	c.mu.Unlock()
	if hook != nil {
		hook(data)
	}
	return err
}

// Close records the call and ends the frame stream. Safe to call more than
// once.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.shutdown()
	return nil
}

// Drop ends the frame stream without a local Close call, as if the backend
// went away.
func (c *Channel) Drop() {
	c.shutdown()
}

func (c *Channel) shutdown() {
	c.once.Do(func() {
		c.mu.Lock()
		close(c.closed)
		close(c.frames)
		c.mu.Unlock()
	})
}

// Push delivers an inbound frame. It is a no-op once the channel is closed.
func (c *Channel) Push(f transport.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return
	default:
	}
	c.frames <- f
}

// PushControl JSON-encodes v and delivers it as a text frame.
func (c *Channel) PushControl(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic("mock: marshal control frame: " + err.Error())
	}
	c.Push(transport.Frame{Kind: transport.FrameText, Data: b})
}

// PushText delivers raw text.
func (c *Channel) PushText(s string) {
	c.Push(transport.Frame{Kind: transport.FrameText, Data: []byte(s)})
}

// PushAudio delivers a binary frame.
func (c *Channel) PushAudio(b []byte) {
	c.Push(transport.Frame{Kind: transport.FrameBinary, Data: b})
}

// Sent returns copies of every frame passed to Send.
func (c *Channel) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// CloseCalls returns the number of Close calls.
func (c *Channel) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Closed is closed once the channel has been closed or dropped.
func (c *Channel) Closed() <-chan struct{} { return c.closed }

// Dialer is a mock implementation of transport.Dialer.
type Dialer struct {
	mu sync.Mutex

	// Channel is returned by Dial. When nil a new Channel is created.
	Channel *Channel

	// Err, if non-nil, is returned by Dial.
	Err error

	// URLs records every dialled URL.
	URLs []string
}

var _ transport.Dialer = (*Dialer)(nil)

// Dial records url and returns Channel or Err.
func (d *Dialer) Dial(_ context.Context, url string) (transport.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.URLs = append(d.URLs, url)
	if d.Err != nil {
		return nil, d.Err
	}
	if d.Channel == nil {
		d.Channel = NewChannel()
	}
	return d.Channel, nil
}

// Dialed returns the recorded URLs.
func (d *Dialer) Dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.URLs...)
}
