package interview

import (
	"time"

	"github.com/MrWong99/intervox/internal/observe"
)

const (
	// DefaultSettleDelay is the pause between the end of interviewer audio
	// and the opening of a listen window. It keeps playback echo out of
	// the capture.
	DefaultSettleDelay = 1200 * time.Millisecond

	// DefaultFinalAudioGrace is how long the coordinator waits for the
	// closing remark after ENDED before it terminates without it.
	DefaultFinalAudioGrace = 10 * time.Second

	// sendTimeout bounds one outbound answer write.
	sendTimeout = 5 * time.Second
)

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithSettleDelay overrides [DefaultSettleDelay].
func WithSettleDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.settleDelay = d }
}

// WithFinalAudioGrace overrides [DefaultFinalAudioGrace]. Zero disables the
// grace timer; the attempt then waits for the closing audio or the channel
// to close.
func WithFinalAudioGrace(d time.Duration) Option {
	return func(c *Coordinator) { c.finalGrace = d }
}

// WithManualListen makes listen windows wait for [Coordinator.RequestListen]
// after the settle delay instead of opening on their own.
func WithManualListen(manual bool) Option {
	return func(c *Coordinator) { c.manual = manual }
}

// WithObserver registers o for presentation callbacks.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithMetrics records into m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}
