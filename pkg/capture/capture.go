// Package capture implements one-shot speech capture windows.
//
// An [Engine] opens a window with Start, emits zero or more interim
// utterances followed by at most one final utterance for that window, and
// closes the window by itself after the final. Stop aborts a window early.
// Every utterance carries the [Window] it belongs to so consumers can drop
// results from windows they already abandoned.
package capture

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by constructors when speech capture cannot run
// in this environment. Callers degrade instead of failing.
var ErrUnavailable = errors.New("capture: speech capture unavailable")

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("capture: engine closed")

// Window identifies one capture window. Zero is never a valid window.
type Window uint64

// Utterance is a recognition result within a window.
type Utterance struct {
	Window Window
	Text   string

	// Final is set on the single completed result of a window. Interim
	// results have Final == false and must not be treated as an answer.
	Final bool
}

// Engine is a speech capture facility.
type Engine interface {
	// Start opens a new window, aborting any window still open.
	Start(ctx context.Context) (Window, error)

	// Stop aborts the open window, if any. Safe to call when idle.
	Stop()

	// Utterances delivers results for all windows. It is closed by Close.
	Utterances() <-chan Utterance

	// Close aborts any window and releases resources.
	Close() error
}
