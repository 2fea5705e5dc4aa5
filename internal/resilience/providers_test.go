package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/intervox/pkg/provider/llm"
	llmmock "github.com/MrWong99/intervox/pkg/provider/llm/mock"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	sttmock "github.com/MrWong99/intervox/pkg/provider/stt/mock"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	ttsmock "github.com/MrWong99/intervox/pkg/provider/tts/mock"
)

func TestLLM_FallsBackToSecondary(t *testing.T) {
	primary := &llmmock.Provider{Err: errTest}
	secondary := &llmmock.Provider{Responses: []string{"What is a goroutine?"}}
	m, _ := newTestMetrics(t)

	p := NewLLM(NewGroup[llm.Provider]("llm", "primary", primary).WithFallback("secondary", secondary), m)
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "next"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "What is a goroutine?" {
		t.Fatalf("Content = %q", resp.Content)
	}
	if len(primary.Calls) != 1 || len(secondary.Calls) != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", len(primary.Calls), len(secondary.Calls))
	}
}

func TestTTS_EmptyTextSkipsBackends(t *testing.T) {
	backend := &ttsmock.Provider{}
	p := NewTTS(NewGroup[tts.Provider]("tts", "mock", backend), nil)

	_, err := p.Synthesize(context.Background(), tts.Request{Text: "  "})
	if !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if len(backend.Calls) != 0 {
		t.Fatalf("backend called %d times", len(backend.Calls))
	}
}

func TestTTS_FallsBack(t *testing.T) {
	primary := &ttsmock.Provider{Err: errTest}
	secondary := &ttsmock.Provider{}
	p := NewTTS(NewGroup[tts.Provider]("tts", "a", primary).WithFallback("b", secondary), nil)

	clip, err := p.Synthesize(context.Background(), tts.Request{Text: "Hello"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Audio) != "audio:Hello" {
		t.Fatalf("Audio = %q", clip.Audio)
	}
}

func TestSTT_FallsBackOnStart(t *testing.T) {
	primary := &sttmock.Provider{StartStreamErr: errTest}
	sess := sttmock.NewSession()
	secondary := &sttmock.Provider{Session: sess}
	p := NewSTT(NewGroup[stt.Provider]("stt", "a", primary).WithFallback("b", secondary))

	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if h != stt.SessionHandle(sess) {
		t.Fatal("expected the secondary's session")
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 1 {
		t.Fatal("expected one call on each provider")
	}
}
