package resilience

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/intervox/internal/observe"
)

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// requestCount returns the intervox.provider.requests value for the given
// provider and status.
func requestCount(t *testing.T, reader *sdkmetric.ManualReader, provider, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "intervox.provider.requests" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				p, _ := dp.Attributes.Value(attribute.Key("provider"))
				s, _ := dp.Attributes.Value(attribute.Key("status"))
				if p.AsString() == provider && s.AsString() == status {
					return dp.Value
				}
			}
		}
	}
	return 0
}

func TestGroup_PrimarySuccess(t *testing.T) {
	g := NewGroup("llm", "primary", "primary").WithFallback("secondary", "secondary")

	var called []string
	err := g.Do(context.Background(), func(_ context.Context, v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 1 || called[0] != "primary" {
		t.Fatalf("called = %v, want [primary]", called)
	}
}

func TestGroup_FailsOverInOrder(t *testing.T) {
	g := NewGroup("tts", "a", "a").WithFallback("b", "b").WithFallback("c", "c")

	got, err := Call(context.Background(), g, func(_ context.Context, v string) (string, error) {
		if v != "c" {
			return "", errTest
		}
		return "clip from " + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "clip from c" {
		t.Fatalf("got %q", got)
	}
}

func TestGroup_AllFailJoinsErrors(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	g := NewGroup("llm", "a", errA).WithFallback("b", errB)

	err := g.Do(context.Background(), func(_ context.Context, e error) error { return e })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("err = %v, want both member errors", err)
	}
}

func TestGroup_SkipsOpenBreaker(t *testing.T) {
	g := NewGroup("llm", "primary", "primary",
		WithBreaker(BreakerConfig{MaxFailures: 1}),
	).WithFallback("secondary", "secondary")
	ctx := context.Background()

	// Trip the primary.
	_ = g.Do(ctx, func(_ context.Context, v string) error {
		if v == "primary" {
			return errTest
		}
		return nil
	})
	if s := g.States()["primary"]; s != StateOpen {
		t.Fatalf("primary state = %v, want open", s)
	}

	var called []string
	if err := g.Do(ctx, func(_ context.Context, v string) error {
		called = append(called, v)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 1 || called[0] != "secondary" {
		t.Fatalf("called = %v, want [secondary]", called)
	}
}

func TestGroup_PermanentErrorStops(t *testing.T) {
	errBad := errors.New("bad request")
	g := NewGroup("tts", "a", "a",
		WithPermanentErrors(errBad),
		WithBreaker(BreakerConfig{MaxFailures: 1}),
	).WithFallback("b", "b")

	var called []string
	err := g.Do(context.Background(), func(_ context.Context, v string) error {
		called = append(called, v)
		return errBad
	})
	if !errors.Is(err, errBad) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want bare errBad", err)
	}
	if len(called) != 1 {
		t.Fatalf("called = %v, want only the primary", called)
	}
	if s := g.States()["a"]; s != StateClosed {
		t.Fatalf("primary state = %v, want closed", s)
	}
}

func TestGroup_ContextCancelStops(t *testing.T) {
	g := NewGroup("llm", "a", "a").WithFallback("b", "b")
	ctx, cancel := context.WithCancel(context.Background())

	var called []string
	err := g.Do(ctx, func(ctx context.Context, v string) error {
		called = append(called, v)
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(called) != 1 {
		t.Fatalf("called = %v, want one attempt", called)
	}
}

func TestGroup_RecordsMetrics(t *testing.T) {
	m, reader := newTestMetrics(t)
	g := NewGroup("llm", "openai", "openai", WithMetrics(m)).WithFallback("ollama", "ollama")

	err := g.Do(context.Background(), func(_ context.Context, v string) error {
		if v == "openai" {
			return errTest
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := requestCount(t, reader, "openai", StatusError); n != 1 {
		t.Errorf("openai error requests = %d, want 1", n)
	}
	if n := requestCount(t, reader, "ollama", StatusOK); n != 1 {
		t.Errorf("ollama ok requests = %d, want 1", n)
	}
}

func TestGroup_Names(t *testing.T) {
	g := NewGroup("stt", "deepgram", 1).WithFallback("whisper", 2)
	names := g.Names()
	if len(names) != 2 || names[0] != "deepgram" || names[1] != "whisper" {
		t.Fatalf("Names = %v", names)
	}
	if g.Kind() != "stt" {
		t.Fatalf("Kind = %q", g.Kind())
	}
}
