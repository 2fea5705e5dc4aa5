package coqui

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// buildWAV returns a minimal mono 16-bit WAV with n zero samples.
func buildWAV(n int) []byte {
	data := make([]byte, n*2)
	buf := make([]byte, 0, 44+len(data))
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+len(data)))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1)     // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 1)     // mono
	buf = binary.LittleEndian.AppendUint32(buf, 22050) // rate
	buf = binary.LittleEndian.AppendUint32(buf, 44100)
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

func TestSynthesize_Standard(t *testing.T) {
	wav := buildWAV(100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != apiTTSEndpoint {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("text") != "Hello there." || q.Get("speaker_id") != "p225" || q.Get("language_id") != "en" {
			t.Errorf("unexpected query %v", q)
		}
		w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL+"/", WithVoice("p225"))
	if err != nil {
		t.Fatal(err)
	}
	clip, err := p.Synthesize(context.Background(), tts.Request{Text: "Hello there."})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Format != "wav" || len(clip.Audio) != len(wav) {
		t.Errorf("clip: format %q, %d bytes", clip.Format, len(clip.Audio))
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ttsEndpoint {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body xttsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Text != "Hi." || body.SpeakerWav != "override" || body.Language != "de" {
			t.Errorf("unexpected body %+v", body)
		}
		w.Write(buildWAV(10))
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS), WithLanguage("de"), WithVoice("default"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi.", Voice: "override"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload []byte
	}{
		{"server error", http.StatusInternalServerError, nil},
		{"not wav", http.StatusOK, []byte("hello")},
		{"no data chunk", http.StatusOK, buildWAV(0)[:36]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write(tt.payload)
			}))
			defer srv.Close()
			p, _ := New(srv.URL)
			if _, err := p.Synthesize(context.Background(), tts.Request{Text: "x"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, _ := New("http://localhost:1")
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "  "}); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty server URL")
	}
	if _, err := New("http://x", WithAPIMode("bogus")); err == nil {
		t.Error("expected error for unknown api mode")
	}
}
