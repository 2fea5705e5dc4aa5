package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/intervox/internal/observe"
)

// ErrAllFailed is returned when every member of a [Group] failed or was
// skipped by its breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// Request status labels recorded on intervox.provider.requests.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// GroupOption configures a [Group].
type GroupOption func(*groupOptions)

type groupOptions struct {
	breaker   BreakerConfig
	metrics   *observe.Metrics
	permanent []error
}

// WithBreaker sets the breaker configuration used for every member. The
// Name field is overwritten with the member's name.
func WithBreaker(cfg BreakerConfig) GroupOption {
	return func(o *groupOptions) { o.breaker = cfg }
}

// WithMetrics records one provider request per attempt and one provider
// error per failure on m.
func WithMetrics(m *observe.Metrics) GroupOption {
	return func(o *groupOptions) { o.metrics = m }
}

// WithPermanentErrors lists errors that describe a bad request rather than
// a bad backend. They are returned at once, without failing over and without
// counting against the breaker.
func WithPermanentErrors(errs ...error) GroupOption {
	return func(o *groupOptions) { o.permanent = append(o.permanent, errs...) }
}

// Group is an ordered list of providers of one kind. Calls go to the first
// member whose breaker admits them and move down the list on failure.
//
// Members are fixed after construction.
type Group[T any] struct {
	kind    string
	members []member[T]
	opts    groupOptions
}

// NewGroup creates a group for kind ("llm", "tts", "stt") with primary as its
// first member.
func NewGroup[T any](kind, primaryName string, primary T, opts ...GroupOption) *Group[T] {
	var o groupOptions
	for _, opt := range opts {
		opt(&o)
	}
	g := &Group[T]{kind: kind, opts: o}
	g.add(primaryName, primary)
	return g
}

// WithFallback appends a member and returns g for chaining. It must not be
// called once the group is in use.
func (g *Group[T]) WithFallback(name string, v T) *Group[T] {
	g.add(name, v)
	return g
}

func (g *Group[T]) add(name string, v T) {
	cfg := g.opts.breaker
	cfg.Name = g.kind + "/" + name
	g.members = append(g.members, member[T]{name: name, value: v, breaker: NewCircuitBreaker(cfg)})
}

// Kind returns the provider kind label.
func (g *Group[T]) Kind() string { return g.kind }

// Names returns member names in call order.
func (g *Group[T]) Names() []string {
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.name
	}
	return names
}

// States returns each member's breaker state keyed by member name.
func (g *Group[T]) States() map[string]State {
	out := make(map[string]State, len(g.members))
	for _, m := range g.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

func (g *Group[T]) isPermanent(err error) bool {
	for _, p := range g.opts.permanent {
		if errors.Is(err, p) {
			return true
		}
	}
	return false
}

func (g *Group[T]) recordRequest(ctx context.Context, name, status string) {
	if g.opts.metrics == nil {
		return
	}
	g.opts.metrics.RecordProviderRequest(ctx, name, g.kind, status)
	if status == StatusError {
		g.opts.metrics.RecordProviderError(ctx, name, g.kind)
	}
}

// Call runs fn against the members of g in order until one succeeds and
// returns its result. It stops early when ctx ends or fn returns a permanent
// error. Otherwise the returned error wraps [ErrAllFailed] and every member's
// failure.
func Call[T, R any](ctx context.Context, g *Group[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range g.members {
		m := &g.members[i]
		var (
			out     R
			stopErr error
		)
		err := m.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, m.value)
			if err != nil && g.isPermanent(err) {
				stopErr = err
				return nil
			}
			return err
		})
		switch {
		case stopErr != nil:
			g.recordRequest(ctx, m.name, StatusError)
			return zero, stopErr
		case err == nil:
			g.recordRequest(ctx, m.name, StatusOK)
			return out, nil
		case errors.Is(err, ErrCircuitOpen):
			g.recordRequest(ctx, m.name, StatusSkipped)
			slog.Debug("resilience: skipping provider", "kind", g.kind, "provider", m.name)
		default:
			g.recordRequest(ctx, m.name, StatusError)
			if ctx.Err() != nil {
				return zero, err
			}
			slog.Warn("resilience: provider failed", "kind", g.kind, "provider", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return zero, fmt.Errorf("%w: %s: %w", ErrAllFailed, g.kind, errors.Join(errs...))
}

// Do is [Call] for functions without a result.
func (g *Group[T]) Do(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := Call(ctx, g, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}
