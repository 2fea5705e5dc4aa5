// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a streaming transcription service (Deepgram, Google
// Cloud Speech, or a local Whisper server) behind one session type. Once
// opened, a session accepts raw 16-bit PCM and emits two streams of
// [Transcript] values: interim partials for live captions and finals that
// the provider has committed to.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by SendAudio after the session has been closed.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition hints for a new
// STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Microphone capture runs at
	// 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider pick its default.
	Language string

	// Keywords are vocabulary hints (technologies, company names) that make
	// recognition of interview jargon more likely.
	Keywords []KeywordBoost
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM bytes matching the StreamConfig.
	// Calling SendAudio after Close returns [ErrSessionClosed].
	SendAudio(chunk []byte) error

	// Partials emits interim hypotheses. They must never be treated as the
	// candidate's answer. The channel is closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed recognition results. The channel is closed when
	// the session ends.
	Finals() <-chan Transcript

	// Close terminates the session and releases its resources. After Close
	// returns both channels are closed. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// handle is ready to accept audio immediately.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
