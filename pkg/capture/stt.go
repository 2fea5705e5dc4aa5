package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
)

const (
	defaultEndSilence = 1500 * time.Millisecond
	readChunkBytes    = 3200 // 100ms at 16 kHz mono
)

// STTOption configures an STTEngine.
type STTOption func(*STTEngine)

// WithEndSilence sets how long the engine waits after the last final
// segment before it considers the answer complete.
func WithEndSilence(d time.Duration) STTOption {
	return func(e *STTEngine) { e.endSilence = d }
}

// WithMaxWindow caps the length of one window. When it elapses whatever has
// been recognised so far becomes the final utterance. Zero means no cap.
func WithMaxWindow(d time.Duration) STTOption {
	return func(e *STTEngine) { e.maxWindow = d }
}

// WithLanguage sets the recognition language.
func WithLanguage(lang string) STTOption {
	return func(e *STTEngine) { e.streamCfg.Language = lang }
}

// WithKeywords sets recognition hints.
func WithKeywords(words []string) STTOption {
	return func(e *STTEngine) { e.streamCfg.Keywords = stt.Boosts(words, 2) }
}

// STTEngine captures microphone audio and recognises it with an STT
// provider. Providers finalise short segments; the engine stitches the
// segments of one answer together and emits them as a single final once
// the candidate has been quiet for the end-silence duration.
type STTEngine struct {
	mic        audio.SourceOpener
	provider   stt.Provider
	streamCfg  stt.StreamConfig
	endSilence time.Duration
	maxWindow  time.Duration

	out       chan Utterance
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	window Window
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Engine = (*STTEngine)(nil)

// NewSTT returns an engine over mic and provider. Either being nil yields
// [ErrUnavailable].
func NewSTT(mic audio.SourceOpener, provider stt.Provider, opts ...STTOption) (*STTEngine, error) {
	if mic == nil {
		return nil, fmt.Errorf("%w: no microphone", ErrUnavailable)
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: no speech-to-text provider", ErrUnavailable)
	}
	e := &STTEngine{
		mic:        mic,
		provider:   provider,
		endSilence: defaultEndSilence,
		out:        make(chan Utterance, 32),
		closed:     make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Utterances returns the result stream.
func (e *STTEngine) Utterances() <-chan Utterance { return e.out }

// Start opens the microphone and an STT stream for a new window. The lock
// is not held while the provider dials, so Stop can abort a pending start;
// Start then returns an error wrapping [context.Canceled].
func (e *STTEngine) Start(ctx context.Context) (Window, error) {
	e.mu.Lock()
	select {
	case <-e.closed:
		e.mu.Unlock()
		return 0, ErrClosed
	default:
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.window++
	w := e.window
	wctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	src, err := e.mic.Open(wctx)
	if err != nil {
		cancel()
		return 0, fmt.Errorf("capture: open microphone: %w", err)
	}
	cfg := e.streamCfg
	cfg.SampleRate = src.SampleRate()
	cfg.Channels = src.Channels()
	sess, err := e.provider.StartStream(wctx, cfg)
	if err != nil {
		cancel()
		_ = src.Close()
		return 0, fmt.Errorf("capture: start stt stream: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if wctx.Err() != nil || e.window != w {
		cancel()
		_ = sess.Close()
		_ = src.Close()
		return 0, fmt.Errorf("capture: window %d stopped while starting: %w", w, context.Canceled)
	}
	e.wg.Add(2)
	go e.pump(wctx, src, sess)
	go e.collect(wctx, cancel, w, src, sess)
	slog.Debug("capture: window opened", "window", w)
	return w, nil
}

// Stop aborts the open or starting window.
func (e *STTEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Close aborts any window, waits for its goroutines and closes Utterances.
func (e *STTEngine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		close(e.closed)
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.mu.Unlock()
		e.wg.Wait()
		close(e.out)
	})
	return nil
}

// pump copies microphone PCM into the STT session until either side ends.
func (e *STTEngine) pump(ctx context.Context, src audio.Source, sess stt.SessionHandle) {
	defer e.wg.Done()
	buf := make([]byte, readChunkBytes)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if serr := sess.SendAudio(chunk); serr != nil {
				return
			}
		}
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("capture: microphone stream ended", "err", err)
			}
			return
		}
	}
}

// collect turns the session's transcripts into utterances for window w.
func (e *STTEngine) collect(ctx context.Context, cancel context.CancelFunc, w Window, src audio.Source, sess stt.SessionHandle) {
	defer e.wg.Done()
	defer func() {
		cancel()
		_ = src.Close()
		_ = sess.Close()
		// Unblock a provider still trying to deliver partials.
		go audio.Drain(sess.Partials())
		go audio.Drain(sess.Finals())
		e.release(w)
	}()

	var segments []string
	silence := time.NewTimer(time.Hour)
	silence.Stop()
	defer silence.Stop()

	var capC <-chan time.Time
	if e.maxWindow > 0 {
		capTimer := time.NewTimer(e.maxWindow)
		defer capTimer.Stop()
		capC = capTimer.C
	}

	finish := func() {
		if text := strings.Join(segments, " "); text != "" {
			e.emit(Utterance{Window: w, Text: text, Final: true})
		}
	}

	partials, finals := sess.Partials(), sess.Finals()
	for {
		select {
		case <-ctx.Done():
			return

		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			text := t.Clean()
			if text == "" {
				continue
			}
			// Speech is still going on.
			if len(segments) > 0 {
				silence.Reset(e.endSilence)
			}
			e.emitInterim(Utterance{Window: w, Text: strings.TrimSpace(strings.Join(append(segments, text), " "))})

		case t, ok := <-finals:
			if !ok {
				finish()
				return
			}
			text := t.Clean()
			if text == "" {
				continue
			}
			segments = append(segments, text)
			silence.Reset(e.endSilence)

		case <-silence.C:
			finish()
			return

		case <-capC:
			finish()
			return
		}
	}
}

// release forgets the cancel func if w is still the current window.
func (e *STTEngine) release(w Window) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.window == w {
		e.cancel = nil
	}
}

func (e *STTEngine) emit(u Utterance) {
	select {
	case e.out <- u:
	case <-e.closed:
	}
}

// emitInterim never blocks; interim results are disposable.
func (e *STTEngine) emitInterim(u Utterance) {
	select {
	case e.out <- u:
	default:
	}
}

// IsUnavailable reports whether err means capture cannot run here.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, audio.ErrUnavailable)
}
