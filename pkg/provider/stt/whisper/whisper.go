// Package whisper provides an STT provider backed by a local whisper.cpp
// server (POST /inference).
//
// whisper.cpp is a batch engine, so the session buffers incoming PCM, uses an
// energy threshold to find the end of each spoken segment, and submits every
// completed segment as one inference request. Each committed segment is
// emitted once on Partials and once on Finals with the same text.
//
//	p, _ := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	handle, _ := p.StartStream(ctx, cfg)
//	handle.SendAudio(chunk)
//	t := <-handle.Finals()
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/audio/pcm"
	"github.com/MrWong99/intervox/pkg/provider/stt"
)

const (
	// defaultRMSThreshold is the energy (16-bit sample units) below which a
	// chunk counts as silence.
	defaultRMSThreshold = 300.0

	defaultLanguage          = "en"
	defaultSampleRate        = 16000
	defaultSilenceThreshold  = 700 * time.Millisecond
	defaultMaxBufferDuration = 20 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server. Empty uses
// whichever model the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the default sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceThreshold sets how much trailing silence ends a segment.
func WithSilenceThreshold(d time.Duration) Option {
	return func(p *Provider) { p.silenceThreshold = d }
}

// WithMaxBufferDuration caps how much speech accumulates before a flush is
// forced regardless of silence.
func WithMaxBufferDuration(d time.Duration) Option {
	return func(p *Provider) { p.maxBufferDuration = d }
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL         string
	model             string
	language          string
	sampleRate        int
	silenceThreshold  time.Duration
	maxBufferDuration time.Duration
	httpClient        *http.Client
}

// New creates a Provider for the whisper.cpp server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:         strings.TrimRight(serverURL, "/"),
		language:          defaultLanguage,
		sampleRate:        defaultSampleRate,
		silenceThreshold:  defaultSilenceThreshold,
		maxBufferDuration: defaultMaxBufferDuration,
		httpClient:        &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a new transcription session. No network connection is
// made until the first segment is flushed.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}

	f := pcm.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = p.sampleRate
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	// whisper.cpp biases decoding towards words in the initial prompt.
	words := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		words = append(words, kw.Keyword)
	}

	s := &session{
		p:        p,
		format:   f,
		language: lang,
		prompt:   strings.Join(words, ", "),
		audioCh:  make(chan []byte, 256),
		partials: make(chan stt.Transcript, 16),
		finals:   make(chan stt.Transcript, 16),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)
	return s, nil
}

// ---- session ----

// session buffers speech for one stream. All buffer state is confined to
// processLoop.
type session struct {
	p        *Provider
	format   pcm.Format
	language string
	prompt   string

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close flushes pending speech, closes both channels and waits for the
// processing goroutine. Safe to call more than once.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silence   time.Duration
		started   = time.Now()
		segStart  time.Duration
	)
	maxBytes := int(s.p.maxBufferDuration.Seconds() * float64(s.format.BytesPerSecond()))

	flush := func(fctx context.Context) {
		if len(buffer) == 0 || !hadSpeech {
			buffer, hadSpeech, silence = nil, false, 0
			return
		}
		seg := buffer
		buffer, hadSpeech, silence = nil, false, 0

		text, err := s.infer(fctx, seg)
		if err != nil || text == "" {
			return
		}
		t := stt.Transcript{Text: text, Timestamp: segStart, Duration: s.format.Duration(len(seg))}
		select {
		case s.partials <- t:
		default:
		}
		t.IsFinal = true
		select {
		case s.finals <- t:
		default:
		}
	}
	finalFlush := func() {
		fc, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		flush(fc)
	}

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return
		case <-s.done:
			finalFlush()
			return
		case chunk := <-s.audioCh:
			if pcm.RMS(chunk) < defaultRMSThreshold {
				// Leading silence is dropped.
				if !hadSpeech {
					continue
				}
				silence += s.format.Duration(len(chunk))
				buffer = append(buffer, chunk...)
				if silence >= s.p.silenceThreshold {
					flush(ctx)
				}
				continue
			}
			if !hadSpeech {
				segStart = time.Since(started)
			}
			hadSpeech = true
			silence = 0
			buffer = append(buffer, chunk...)
			if maxBytes > 0 && len(buffer) >= maxBytes {
				flush(ctx)
			}
		}
	}
}

// infer posts one WAV-encoded segment to /inference and returns the text.
func (s *session) infer(ctx context.Context, seg []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "segment.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(pcm.EncodeWAV(seg, s.format)); err != nil {
		return "", fmt.Errorf("whisper: write wav: %w", err)
	}
	fields := map[string]string{
		"language":        s.language,
		"model":           s.p.model,
		"prompt":          s.prompt,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}
