package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// record is what the fake server saw on one socket.
type record struct {
	path string
	msgs []map[string]any
}

// fakeServer accepts one stream-input socket, records the text messages and
// replies with the given responses.
func fakeServer(t *testing.T, replies []audioResponse) (*httptest.Server, <-chan record) {
	t.Helper()
	seen := make(chan record, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := record{path: r.URL.String()}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		for range 3 {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				t.Errorf("server read: %v", err)
				return
			}
			var m map[string]any
			json.Unmarshal(data, &m)
			rec.msgs = append(rec.msgs, m)
		}
		seen <- rec
		for _, rep := range replies {
			data, _ := json.Marshal(rep)
			if err := conn.Write(r.Context(), websocket.MessageText, data); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	return srv, seen
}

func wsURL(s *httptest.Server) string { return "ws" + strings.TrimPrefix(s.URL, "http") }

func TestSynthesize_ConcatenatesChunks(t *testing.T) {
	srv, seen := fakeServer(t, []audioResponse{
		{Audio: base64.StdEncoding.EncodeToString([]byte("ID3-part1"))},
		{Audio: base64.StdEncoding.EncodeToString([]byte("-part2"))},
		{IsFinal: true},
	})
	defer srv.Close()

	p, err := New("el-key", WithBaseURL(wsURL(srv)), WithVoice("v1"))
	if err != nil {
		t.Fatal(err)
	}
	clip, err := p.Synthesize(context.Background(), tts.Request{Text: "Tell me about a conflict."})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Audio) != "ID3-part1-part2" || clip.Format != "mp3" {
		t.Errorf("clip: %q %q", clip.Audio, clip.Format)
	}
	rec := <-seen
	path, got := rec.path, rec.msgs
	if !strings.HasPrefix(path, "/v1/text-to-speech/v1/stream-input?") || !strings.Contains(path, "output_format=mp3_44100_128") {
		t.Errorf("path: %q", path)
	}
	if len(got) != 3 {
		t.Fatalf("messages: got %d", len(got))
	}
	if got[0]["xi_api_key"] != "el-key" || got[0]["text"] != " " {
		t.Errorf("boi: %v", got[0])
	}
	if got[1]["text"] != "Tell me about a conflict. " {
		t.Errorf("text: %v", got[1])
	}
	if got[2]["text"] != "" {
		t.Errorf("flush: %v", got[2])
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv, _ := fakeServer(t, []audioResponse{{Error: "quota_exceeded", Message: "no credits"}})
	defer srv.Close()

	p, _ := New("k", WithBaseURL(wsURL(srv)))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	srv, _ := fakeServer(t, []audioResponse{{IsFinal: true}})
	defer srv.Close()

	p, _ := New("k", WithBaseURL(wsURL(srv)), WithOutputFormat("pcm_16000"))
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "x"}); err == nil {
		t.Fatal("expected error when no audio arrives")
	}
	if p.format() != "pcm" {
		t.Errorf("format: got %q", p.format())
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, _ := New("k")
	if _, err := p.Synthesize(context.Background(), tts.Request{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestStreamURL_EscapesVoice(t *testing.T) {
	p, _ := New("k", WithModel("m1"))
	u := p.streamURL("a/b")
	if !strings.Contains(u, "/v1/text-to-speech/a%2Fb/stream-input?") || !strings.Contains(u, "model_id=m1") {
		t.Errorf("url: %q", u)
	}
}
