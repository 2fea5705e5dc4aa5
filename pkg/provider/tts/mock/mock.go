// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Audio: []byte("ID3")}
//	clip, _ := p.Synthesize(ctx, tts.Request{Text: "Hello"})
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned for every call. When nil, the clip holds the request
	// text prefixed with "audio:", which lets tests tell clips apart.
	Audio []byte

	// Format is the reported container. Defaults to "mp3".
	Format string

	// Err, if non-nil, is returned by every call.
	Err error

	// Calls records every request in order.
	Calls []tts.Request
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records the request and returns the configured clip.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (*tts.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}
	format := p.Format
	if format == "" {
		format = "mp3"
	}
	audio := p.Audio
	if audio == nil {
		audio = []byte("audio:" + req.Text)
	}
	return &tts.Clip{Audio: append([]byte(nil), audio...), Format: format}, nil
}

// Texts returns the synthesised texts in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}
