// Package ws implements transport.Channel on top of a WebSocket connection
// using github.com/coder/websocket.
//
// Binary WebSocket messages become transport.FrameBinary frames and text
// messages become transport.FrameText frames.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/intervox/pkg/transport"
)

// defaultReadLimit bounds a single inbound message. Synthesized answers are
// a few hundred KB of mp3; the library default of 32 KiB is far too small.
const defaultReadLimit = 8 << 20

// Option is a functional option for configuring a Dialer.
type Option func(*Dialer)

// WithHeader adds an HTTP header to the upgrade request (e.g. an identity
// token).
func WithHeader(key, value string) Option {
	return func(d *Dialer) {
		d.header.Add(key, value)
	}
}

// WithReadLimit sets the maximum size of one inbound message in bytes.
func WithReadLimit(n int64) Option {
	return func(d *Dialer) {
		d.readLimit = n
	}
}

// WithHTTPClient sets the HTTP client used for the upgrade request.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dialer) {
		d.httpClient = c
	}
}

// Dialer opens WebSocket channels. It implements transport.Dialer.
type Dialer struct {
	header     http.Header
	readLimit  int64
	httpClient *http.Client
}

// NewDialer returns a Dialer configured by opts.
func NewDialer(opts ...Option) *Dialer {
	d := &Dialer{
		header:    http.Header{},
		readLimit: defaultReadLimit,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

var _ transport.Dialer = (*Dialer)(nil)

// Dial connects to url (ws:// or wss://) and starts the read loop.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Channel, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: d.header.Clone(),
		HTTPClient: d.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("ws: dial: %w", err)
	}
	return Wrap(conn, d.readLimit), nil
}

// Channel is a transport.Channel over one WebSocket connection.
type Channel struct {
	conn   *websocket.Conn
	frames chan transport.Frame

	// ctx scopes the read loop; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
}

// Wrap adopts an established connection. Server-side handlers use it after
// websocket.Accept. readLimit <= 0 keeps the library default.
func Wrap(conn *websocket.Conn, readLimit int64) *Channel {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		conn:   conn,
		frames: make(chan transport.Frame, 16),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

var _ transport.Channel = (*Channel)(nil)

// Frames returns the inbound frame stream.
func (c *Channel) Frames() <-chan transport.Frame { return c.frames }

// Send writes data as one text message.
func (c *Channel) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("ws: send: %w", err)
	}
	return nil
}

// SendBinary writes data as one binary message. Only the backend side sends
// binary frames.
func (c *Channel) SendBinary(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	if err := c.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return fmt.Errorf("ws: send binary: %w", err)
	}
	return nil
}

// Close performs the closing handshake. Safe to call more than once.
func (c *Channel) Close() error {
	return c.CloseWith(websocket.StatusNormalClosure, "")
}

// CloseWith closes with an explicit status code and reason. Only the first
// call has any effect.
func (c *Channel) CloseWith(code websocket.StatusCode, reason string) error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close(code, reason)
		c.cancel()
		// Closing an already-closed connection is not a failure here.
		if errors.Is(err, net.ErrClosed) || websocket.CloseStatus(err) != -1 {
			err = nil
		}
	})
	return err
}

// Done is closed once Close has been called.
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) readLoop() {
	defer close(c.frames)
	defer c.cancel()

	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway:
				slog.Debug("ws: closed by peer", "status", status)
			case errors.Is(err, context.Canceled):
			default:
				slog.Debug("ws: read ended", "err", err)
			}
			return
		}
		f := transport.Frame{Kind: transport.FrameText, Data: data}
		if typ == websocket.MessageBinary {
			f.Kind = transport.FrameBinary
		}
		select {
		case c.frames <- f:
		case <-c.ctx.Done():
			return
		}
	}
}
