// Package mock provides a test double for the llm.Provider interface.
//
// Responses are served in order from Responses; once exhausted the last one
// repeats. Set Err to fail every call, or ErrAt to fail a specific call.
//
// Example:
//
//	p := &mock.Provider{Responses: []string{"Tell me about yourself."}}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned as Content one per call.
	Responses []string

	// Err, if non-nil, is returned by every call.
	Err error

	// ErrAt maps a zero-based call index to an error for that call only.
	ErrAt map[int]error

	// Calls records every invocation of Complete in order.
	Calls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.Calls)
	p.Calls = append(p.Calls, CompleteCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if err := p.ErrAt[idx]; err != nil {
		return nil, err
	}
	if len(p.Responses) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	i := min(idx, len(p.Responses)-1)
	return &llm.CompletionResponse{Content: p.Responses[i]}, nil
}

// Requests returns a copy of the recorded requests.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Req
	}
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
