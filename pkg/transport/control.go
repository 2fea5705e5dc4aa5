package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned by [ParseControl] for text frames that are
// not JSON objects with a recognised state.
var ErrMalformedFrame = errors.New("transport: malformed control frame")

// RemoteState is the value of a control frame's "state" field.
type RemoteState string

const (
	RemoteSpeaking   RemoteState = "SPEAKING"
	RemoteProcessing RemoteState = "PROCESSING"
	RemoteEnded      RemoteState = "ENDED"

	// RemoteListening is sent by some backends after the audio frame. It is
	// only a hint; the client schedules its own listen window.
	RemoteListening RemoteState = "LISTENING"
)

// IsValid reports whether s is a recognised state.
func (s RemoteState) IsValid() bool {
	switch s {
	case RemoteSpeaking, RemoteProcessing, RemoteEnded, RemoteListening:
		return true
	}
	return false
}

// Control is a decoded control frame.
type Control struct {
	State RemoteState `json:"state"`

	// Text is the interviewer's utterance. Set when State is SPEAKING.
	Text string `json:"text,omitempty"`

	// Feedback is the opaque evaluation record. Set when State is ENDED.
	Feedback json.RawMessage `json:"feedback,omitempty"`
}

// ParseControl decodes a text frame. It returns [ErrMalformedFrame] when data
// is not a JSON object or its state is missing or unknown.
func ParseControl(data []byte) (Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return Control{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if !c.State.IsValid() {
		return Control{}, fmt.Errorf("%w: state %q", ErrMalformedFrame, c.State)
	}
	// "feedback": null carries nothing.
	if bytes.Equal(bytes.TrimSpace(c.Feedback), []byte("null")) {
		c.Feedback = nil
	}
	return c, nil
}

// EncodeControl encodes c as a text frame. Used by the backend side.
func EncodeControl(c Control) ([]byte, error) {
	return json.Marshal(c)
}

// AnswerType is the "type" of the candidate's outbound answer frame.
const AnswerType = "user_answer"

// Answer is the client-to-backend frame carrying one candidate answer.
type Answer struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// EncodeAnswer encodes text as a user_answer frame.
func EncodeAnswer(text string) ([]byte, error) {
	return json.Marshal(Answer{Type: AnswerType, Text: text})
}

// ParseAnswer decodes an inbound answer frame on the backend side. ok is
// false for anything that is not a user_answer.
func ParseAnswer(data []byte) (text string, ok bool) {
	var a Answer
	if err := json.Unmarshal(data, &a); err != nil || a.Type != AnswerType {
		return "", false
	}
	return a.Text, true
}
