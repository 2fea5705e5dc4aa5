// Package cloudspeech provides an STT provider backed by the Google Cloud
// Speech-to-Text v2 StreamingRecognize API.
package cloudspeech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

const (
	endpointPort       = 443
	defaultLocation    = "global"
	defaultLanguage    = "en-US"
	defaultModel       = "long"
	defaultSampleRate  = 16000
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithCredentialsJSON sets a service account JSON document. When empty the
// application default credentials are used.
func WithCredentialsJSON(js string) Option {
	return func(p *Provider) { p.credentialsJSON = js }
}

// WithLocation selects the recognizer location (e.g., "global", "us",
// "europe-west4"). Non-global locations use the regional endpoint.
func WithLocation(loc string) Option {
	return func(p *Provider) { p.location = strings.TrimSpace(loc) }
}

// WithLanguage sets the default recognition language.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithModel sets the recognition model (e.g., "long", "chirp_2").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = strings.TrimSpace(model) }
}

// Provider implements stt.Provider on Cloud Speech v2.
type Provider struct {
	projectID       string
	credentialsJSON string
	location        string
	language        string
	model           string
}

// New creates a Provider for the given Google Cloud project.
func New(projectID string, opts ...Option) (*Provider, error) {
	if projectID == "" {
		return nil, errors.New("cloudspeech: projectID must not be empty")
	}
	p := &Provider{
		projectID: projectID,
		location:  defaultLocation,
		language:  defaultLanguage,
		model:     defaultModel,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// clientOptions resolves credentials and the endpoint for p.location.
func (p *Provider) clientOptions() ([]option.ClientOption, error) {
	detect := &credentials.DetectOptions{Scopes: []string{cloudPlatformScope}}
	if p.credentialsJSON != "" {
		detect.CredentialsJSON = []byte(p.credentialsJSON)
	}
	creds, err := credentials.DetectDefault(detect)
	if err != nil {
		return nil, fmt.Errorf("cloudspeech: detect credentials: %w", err)
	}
	opts := []option.ClientOption{option.WithAuthCredentials(creds)}
	if p.location != defaultLocation {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", p.location, endpointPort)))
	}
	return opts, nil
}

// StartStream opens a StreamingRecognize call and sends the recognition
// config as the first request.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	opts, err := p.clientOptions()
	if err != nil {
		return nil, err
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudspeech: new client: %w", err)
	}
	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cloudspeech: open stream: %w", err)
	}
	if err := stream.Send(p.configRequest(cfg)); err != nil {
		_ = stream.CloseSend()
		_ = client.Close()
		return nil, fmt.Errorf("cloudspeech: send config: %w", err)
	}
	slog.Debug("cloudspeech: stream initialised", "location", p.location, "model", p.model)

	s := &session{
		stream:   stream,
		client:   client,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.recvLoop()
	return s, nil
}

// configRequest builds the initial streaming request for cfg.
func (p *Provider) configRequest(cfg stt.StreamConfig) *speechpb.StreamingRecognizeRequest {
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	rc := &speechpb.RecognitionConfig{
		Model:         p.model,
		LanguageCodes: []string{lang},
		DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
			ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
				Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
				SampleRateHertz:   int32(sr),
				AudioChannelCount: int32(ch),
			},
		},
		Features: &speechpb.RecognitionFeatures{EnableAutomaticPunctuation: true},
	}
	if len(cfg.Keywords) > 0 {
		phrases := make([]*speechpb.PhraseSet_Phrase, 0, len(cfg.Keywords))
		for _, kw := range cfg.Keywords {
			phrases = append(phrases, &speechpb.PhraseSet_Phrase{Value: kw.Keyword, Boost: float32(kw.Boost)})
		}
		rc.Adaptation = &speechpb.SpeechAdaptation{
			PhraseSets: []*speechpb.SpeechAdaptation_AdaptationPhraseSet{{
				Value: &speechpb.SpeechAdaptation_AdaptationPhraseSet_InlinePhraseSet{
					InlinePhraseSet: &speechpb.PhraseSet{Phrases: phrases},
				},
			}},
		}
	}

	return &speechpb.StreamingRecognizeRequest{
		Recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", p.projectID, p.location),
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:            rc,
				StreamingFeatures: &speechpb.StreamingRecognitionFeatures{InterimResults: true},
			},
		},
	}
}

// ---- session ----

type session struct {
	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
	client *speech.Client

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
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: chunk},
	})
	if err != nil {
		return fmt.Errorf("cloudspeech: send audio: %w", err)
	}
	return nil
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close half-closes the stream, waits for the receive loop to drain the
// remaining results and closes the client.
func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		_ = s.stream.CloseSend()
		s.mu.Unlock()
		s.wg.Wait()
		err = s.client.Close()
	})
	return err
}

func (s *session) recvLoop() {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if !isCleanStreamEnd(err) {
				slog.Warn("cloudspeech: receive failed", "err", err)
			}
			return
		}
		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			t := stt.Transcript{
				Text:       strings.TrimSpace(alts[0].GetTranscript()),
				IsFinal:    result.GetIsFinal(),
				Confidence: float64(alts[0].GetConfidence()),
			}
			out := s.partials
			if t.IsFinal {
				out = s.finals
			}
			select {
			case out <- t:
			default:
				slog.Debug("cloudspeech: dropping transcript, consumer too slow", "final", t.IsFinal)
			}
		}
	}
}

// isCleanStreamEnd reports whether err just marks the end of the stream:
// EOF, cancellation, or the server-side duration abort.
func isCleanStreamEnd(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Canceled:
		return true
	case codes.Aborted:
		msg := strings.ToLower(st.Message())
		return strings.Contains(msg, "max duration") ||
			strings.Contains(msg, "stream timed out after receiving no more client requests")
	}
	return false
}
