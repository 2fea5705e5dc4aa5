package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	assertEqual(t, "endpointing", "500", q.Get("endpointing"))
}

func TestBuildURL_LanguageOverriddenByCfg(t *testing.T) {
	p, err := New("key", WithLanguage("en"), WithEndpointing(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "fr-FR"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "fr-FR", u.Query().Get("language"))
	assertEqual(t, "endpointing", "1000", u.Query().Get("endpointing"))
}

func TestBuildURL_Keywords(t *testing.T) {
	kw := []stt.KeywordBoost{{Keyword: "Kubernetes", Boost: 5}, {Keyword: "gRPC", Boost: 3.5}}

	nova3, _ := New("key")
	rawURL, _ := nova3.buildURL(stt.StreamConfig{Keywords: kw})
	u, _ := url.Parse(rawURL)
	if got := u.Query()["keyterm"]; len(got) != 2 {
		t.Errorf("keyterm = %v, want 2 entries", got)
	}

	legacy, _ := New("key", WithModel("nova-2"))
	rawURL, _ = legacy.buildURL(stt.StreamConfig{Keywords: kw})
	u, _ = url.Parse(rawURL)
	got := u.Query()["keywords"]
	if len(got) != 2 || got[0] != "Kubernetes:5" || got[1] != "gRPC:3.5" {
		t.Errorf("keywords = %v, want [Kubernetes:5 gRPC:3.5]", got)
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantFinal bool
		wantText  string
	}{
		{
			name:      "final",
			raw:       `{"type":"Results","is_final":true,"start":1.5,"channel":{"alternatives":[{"transcript":"I led a team","confidence":0.95,"words":[{"word":"I","start":0.1,"end":0.2}]}]}}`,
			wantOK:    true,
			wantFinal: true,
			wantText:  "I led a team",
		},
		{
			name:     "partial",
			raw:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"I led"}]}}`,
			wantOK:   true,
			wantText: "I led",
		},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "no alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ok := parseDeepgramResponse([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if tr.IsFinal != tt.wantFinal {
				t.Errorf("IsFinal = %v, want %v", tr.IsFinal, tt.wantFinal)
			}
			assertEqual(t, "text", tt.wantText, tr.Text)
		})
	}
}

// ---- live session against a local websocket ----

func TestStartStream_ForwardsAudioAndTranscripts(t *testing.T) {
	gotAudio := make(chan []byte, 1)
	gotAuth := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		typ, data, err := conn.Read(ctx)
		if err != nil || typ != websocket.MessageBinary {
			return
		}
		gotAudio <- data
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`))
		// Wait for CloseStream.
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := sess.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	assertEqual(t, "auth", "Token secret", <-gotAuth)
	if a := <-gotAudio; len(a) != 4 {
		t.Errorf("audio len = %d, want 4", len(a))
	}

	select {
	case p := <-sess.Partials():
		assertEqual(t, "partial", "hel", p.Text)
	case <-ctx.Done():
		t.Fatal("timed out waiting for partial")
	}
	select {
	case f := <-sess.Finals():
		assertEqual(t, "final", "hello", f.Text)
	case <-ctx.Done():
		t.Fatal("timed out waiting for final")
	}

	if err := sess.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := sess.SendAudio([]byte{1}); err != stt.ErrSessionClosed {
		t.Errorf("SendAudio after Close = %v, want ErrSessionClosed", err)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
