// Package audio defines the playback and capture seams used by the
// interview client.
//
// A [Player] turns one opaque synthesized payload (mp3 from the backend)
// into sound and reports when it has finished. A [Source] yields raw
// 16-bit PCM from a microphone for speech recognition. Concrete engines live
// in subpackages: ffplay and clipsink for playback, ffmpeg for capture.
package audio

import (
	"context"
	"errors"
	"io"
)

// ErrDecode is returned by Play when the payload could not be decoded.
var ErrDecode = errors.New("audio: decode failed")

// ErrUnavailable is returned by engine constructors when the runtime lacks
// the required facility (e.g. the ffplay binary).
var ErrUnavailable = errors.New("audio: facility unavailable")

// Player plays synthesized speech payloads.
//
// Play blocks until audible playback of payload has finished, ctx is
// cancelled, or decoding fails. Callers must not call Play concurrently.
// Implementations serialise calls anyway, but ordering is the caller's.
type Player interface {
	Play(ctx context.Context, payload []byte) error
	Close() error
}

// Source is an open PCM stream. Read returns 16-bit little-endian samples
// at SampleRate and Channels. Close stops the underlying device.
type Source interface {
	io.ReadCloser
	SampleRate() int
	Channels() int
}

// SourceOpener opens a fresh microphone stream per capture window.
type SourceOpener interface {
	Open(ctx context.Context) (Source, error)
}
