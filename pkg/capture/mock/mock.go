// Package mock provides a scripted capture.Engine for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervox/pkg/capture"
)

// Engine is a mock capture.Engine. Tests drive it with Final and Interim.
type Engine struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// AnswerOnStart, when set, is emitted as the final for each new window
	// before Start returns, the way a fast recogniser can.
	AnswerOnStart string

	gate    chan struct{}
	window  capture.Window
	open    bool
	starts  int
	stops   int
	closes  int
	out     chan capture.Utterance
	started chan capture.Window
	once    sync.Once
}

// NewEngine returns a ready Engine.
func NewEngine() *Engine {
	return &Engine{
		out:     make(chan capture.Utterance, 16),
		started: make(chan capture.Window, 16),
	}
}

var _ capture.Engine = (*Engine)(nil)

// HoldStarts makes later Start calls block until gate yields or is closed.
// A nil gate releases them again.
func (e *Engine) HoldStarts(gate chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = gate
}

// Start opens a new window and announces it on Started.
func (e *Engine) Start(ctx context.Context) (capture.Window, error) {
	e.mu.Lock()
	gate := e.gate
	e.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	if e.StartErr != nil {
		return 0, e.StartErr
	}
	e.window++
	e.open = true
	if e.AnswerOnStart != "" {
		e.open = false
		e.out <- capture.Utterance{Window: e.window, Text: e.AnswerOnStart, Final: true}
	}
	select {
	case e.started <- e.window:
	default:
	}
	return e.window, nil
}

// Stop closes the window.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	e.open = false
}

// Utterances returns the scripted stream.
func (e *Engine) Utterances() <-chan capture.Utterance { return e.out }

// Close closes Utterances.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closes++
	e.mu.Unlock()
	e.once.Do(func() { close(e.out) })
	return nil
}

// Started receives the id of every window as it opens.
func (e *Engine) Started() <-chan capture.Window { return e.started }

// Final emits a final utterance for the most recent window, whether or not
// it is still open.
func (e *Engine) Final(text string) capture.Window {
	e.mu.Lock()
	w := e.window
	e.open = false
	e.mu.Unlock()
	e.out <- capture.Utterance{Window: w, Text: text, Final: true}
	return w
}

// Interim emits an interim utterance for the most recent window.
func (e *Engine) Interim(text string) {
	e.mu.Lock()
	w := e.window
	e.mu.Unlock()
	e.out <- capture.Utterance{Window: w, Text: text}
}

// Emit delivers u verbatim.
func (e *Engine) Emit(u capture.Utterance) { e.out <- u }

// Open reports whether a window is open.
func (e *Engine) Open() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// Starts returns the number of Start calls.
func (e *Engine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

// Stops returns the number of Stop calls.
func (e *Engine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}
