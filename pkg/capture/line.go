package capture

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// LineOption configures a LineEngine.
type LineOption func(*LineEngine)

// WithCommands routes lines starting with prefix to handle instead of
// treating them as answers. Commands are accepted whether or not a window
// is open.
func WithCommands(prefix string, handle func(cmd string)) LineOption {
	return func(e *LineEngine) {
		e.cmdPrefix = prefix
		e.onCommand = handle
	}
}

// LineEngine takes typed answers, one per line. It stands in for voice
// input when no microphone or STT provider is available. A line typed while
// no window is open is dropped.
type LineEngine struct {
	cmdPrefix string
	onCommand func(string)

	out       chan Utterance
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	window Window
	open   bool
}

var _ Engine = (*LineEngine)(nil)

// NewLine starts reading r. Reading stops at EOF or Close; r is not closed.
func NewLine(r io.Reader, opts ...LineOption) *LineEngine {
	e := &LineEngine{
		out:    make(chan Utterance, 4),
		closed: make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	go e.readLoop(r)
	return e
}

// Utterances returns the result stream.
func (e *LineEngine) Utterances() <-chan Utterance { return e.out }

// Start opens a window for the next answer line.
func (e *LineEngine) Start(context.Context) (Window, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.closed:
		return 0, ErrClosed
	default:
	}
	e.window++
	e.open = true
	return e.window, nil
}

// Stop closes the open window.
func (e *LineEngine) Stop() {
	e.mu.Lock()
	e.open = false
	e.mu.Unlock()
}

// Close stops delivering utterances. A blocked read on r is abandoned.
func (e *LineEngine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		close(e.closed)
		e.open = false
		e.mu.Unlock()
	})
	return nil
}

func (e *LineEngine) readLoop(r io.Reader) {
	defer func() {
		// Wait for Close before closing out so emit never races a close.
		<-e.closed
		close(e.out)
	}()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if e.onCommand != nil && e.cmdPrefix != "" && strings.HasPrefix(line, e.cmdPrefix) {
			e.onCommand(strings.TrimPrefix(line, e.cmdPrefix))
			continue
		}

		e.mu.Lock()
		w, open := e.window, e.open
		e.open = false
		e.mu.Unlock()
		if !open {
			slog.Debug("capture: dropping typed line outside a listen window")
			continue
		}
		select {
		case e.out <- Utterance{Window: w, Text: line, Final: true}:
		case <-e.closed:
			return
		}
	}
}
