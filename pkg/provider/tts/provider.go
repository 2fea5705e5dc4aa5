// Package tts defines the Provider interface for Text-to-Speech backends.
//
// The rehearsal server voices every interviewer line as one clip: the clip
// is sent to the client as a single binary frame and played whole. Providers
// therefore return a complete encoded file (MP3 or WAV) rather than a PCM
// stream.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when Synthesize is called with no text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Request describes one clip.
type Request struct {
	// Text is the line to speak.
	Text string

	// Voice overrides the provider's configured voice. Empty keeps it.
	Voice string

	// Instructions are optional delivery hints ("calm, professional").
	// Providers that do not support them ignore the field.
	Instructions string
}

// Clip is a complete encoded audio file.
type Clip struct {
	// Audio is the encoded file content.
	Audio []byte

	// Format is the container, e.g. "mp3" or "wav".
	Format string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text to a single clip. It returns
	// [ErrEmptyText] for blank text and an error if ctx is cancelled first.
	Synthesize(ctx context.Context, req Request) (*Clip, error)
}
