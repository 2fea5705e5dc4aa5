package resilience

import (
	"context"
	"strings"
	"time"

	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// ---- LLM ----

// LLM is an [llm.Provider] backed by a [Group] of language models.
type LLM struct {
	group   *Group[llm.Provider]
	metrics *observe.Metrics
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM wraps g. When m is non-nil every successful completion records its
// latency on intervox.llm.duration.
func NewLLM(g *Group[llm.Provider], m *observe.Metrics) *LLM {
	return &LLM{group: g, metrics: m}
}

// Complete sends req to the first healthy member.
func (l *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := Call(ctx, l.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	if err == nil && l.metrics != nil {
		l.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	return resp, err
}

// ---- TTS ----

// TTS is a [tts.Provider] backed by a [Group] of synthesis backends. Empty
// text is rejected without touching any backend.
type TTS struct {
	group   *Group[tts.Provider]
	metrics *observe.Metrics
}

var _ tts.Provider = (*TTS)(nil)

// NewTTS wraps g. When m is non-nil every successful synthesis records its
// latency on intervox.tts.duration.
func NewTTS(g *Group[tts.Provider], m *observe.Metrics) *TTS {
	return &TTS{group: g, metrics: m}
}

// Synthesize renders req with the first healthy member.
func (t *TTS) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}
	start := time.Now()
	clip, err := Call(ctx, t.group, func(ctx context.Context, p tts.Provider) (*tts.Clip, error) {
		return p.Synthesize(ctx, req)
	})
	if err == nil && t.metrics != nil {
		t.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	return clip, err
}

// ---- STT ----

// STT is an [stt.Provider] backed by a [Group]. Failover happens only when a
// stream is opened; an open session stays with its backend.
type STT struct {
	group *Group[stt.Provider]
}

var _ stt.Provider = (*STT)(nil)

// NewSTT wraps g.
func NewSTT(g *Group[stt.Provider]) *STT {
	return &STT{group: g}
}

// StartStream opens a session on the first healthy member.
func (s *STT) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return Call(ctx, s.group, func(ctx context.Context, p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
