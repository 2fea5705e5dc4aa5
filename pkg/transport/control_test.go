package transport_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/intervox/pkg/transport"
)

func TestParseControl(t *testing.T) {
	tests := []struct {
		name         string
		in           string
		wantErr      bool
		wantState    transport.RemoteState
		wantText     string
		wantFeedback string
	}{
		{name: "speaking", in: `{"state":"SPEAKING","text":"Tell me about yourself."}`, wantState: transport.RemoteSpeaking, wantText: "Tell me about yourself."},
		{name: "processing", in: `{"state":"PROCESSING"}`, wantState: transport.RemoteProcessing},
		{name: "listening hint", in: `{"state":"LISTENING"}`, wantState: transport.RemoteListening},
		{name: "ended", in: `{"state":"ENDED","feedback":{"overall_score":4}}`, wantState: transport.RemoteEnded, wantFeedback: `{"overall_score":4}`},
		{name: "ended null feedback", in: `{"state":"ENDED","feedback":null}`, wantState: transport.RemoteEnded},
		{name: "missing state", in: `{"text":"hi"}`, wantErr: true},
		{name: "unknown state", in: `{"state":"DANCING"}`, wantErr: true},
		{name: "lowercase state", in: `{"state":"speaking"}`, wantErr: true},
		{name: "not json", in: `hello`, wantErr: true},
		{name: "array", in: `[1,2]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := transport.ParseControl([]byte(tt.in))
			if tt.wantErr {
				if !errors.Is(err, transport.ErrMalformedFrame) {
					t.Fatalf("err = %v, want ErrMalformedFrame", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.State != tt.wantState {
				t.Errorf("State = %q, want %q", c.State, tt.wantState)
			}
			if c.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", c.Text, tt.wantText)
			}
			if string(c.Feedback) != tt.wantFeedback {
				t.Errorf("Feedback = %s, want %s", c.Feedback, tt.wantFeedback)
			}
		})
	}
}

func TestEncodeAnswer(t *testing.T) {
	b, err := transport.EncodeAnswer(`I led a team of "five".`)
	if err != nil {
		t.Fatalf("EncodeAnswer: %v", err)
	}
	want := `{"type":"user_answer","text":"I led a team of \"five\"."}`
	if string(b) != want {
		t.Errorf("EncodeAnswer = %s, want %s", b, want)
	}

	text, ok := transport.ParseAnswer(b)
	if !ok || text != `I led a team of "five".` {
		t.Errorf("ParseAnswer = %q, %v", text, ok)
	}
	if _, ok := transport.ParseAnswer([]byte(`{"type":"ping"}`)); ok {
		t.Error("ParseAnswer accepted a non-answer frame")
	}
}
