// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/intervox/pkg/provider/tts"
)

const (
	defaultModel = "gpt-4o-mini-tts"
	defaultVoice = "coral"
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel overrides the speech model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithVoice overrides the default voice.
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithInstructions sets default delivery instructions. Request.Instructions
// takes precedence.
func WithInstructions(s string) Option {
	return func(p *Provider) { p.instructions = s }
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.reqOpts = append(p.reqOpts, option.WithBaseURL(url)) }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.reqOpts = append(p.reqOpts, option.WithHTTPClient(hc)) }
}

// Provider implements tts.Provider with MP3 output.
type Provider struct {
	client       oai.Client
	model        string
	voice        string
	instructions string
	reqOpts      []option.RequestOption
}

var _ tts.Provider = (*Provider)(nil)

// New constructs a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	p := &Provider{model: defaultModel, voice: defaultVoice}
	for _, o := range opts {
		o(p)
	}
	p.client = oai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, p.reqOpts...)...)
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Clip, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}
	params := oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if req.Voice != "" {
		params.Voice = oai.AudioSpeechNewParamsVoice(req.Voice)
	}
	instructions := p.instructions
	if req.Instructions != "" {
		instructions = req.Instructions
	}
	if instructions != "" {
		params.Instructions = param.NewOpt(instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("openai: empty speech response")
	}
	return &tts.Clip{Audio: audio, Format: "mp3"}, nil
}
