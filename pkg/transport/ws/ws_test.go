package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/intervox/pkg/transport"
	"github.com/MrWong99/intervox/pkg/transport/ws"
)

// echoServer sends one text and one binary frame, then echoes the first text
// message it receives back as text and closes normally.
func echoServer(t *testing.T, gotHeader chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotHeader != nil {
			gotHeader <- r.Header.Get("X-User")
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"state":"SPEAKING","text":"hi"}`))
		_ = conn.Write(ctx, websocket.MessageBinary, make([]byte, 100_000))

		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		_ = conn.Write(ctx, typ, data)
		conn.Close(websocket.StatusNormalClosure, "done")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDial_FramesAndSend(t *testing.T) {
	hdr := make(chan string, 1)
	srv := echoServer(t, hdr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := ws.NewDialer(ws.WithHeader("X-User", "u1")).Dial(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	if got := <-hdr; got != "u1" {
		t.Errorf("X-User = %q, want u1", got)
	}

	f := <-ch.Frames()
	if f.Kind != transport.FrameText || !strings.Contains(string(f.Data), "SPEAKING") {
		t.Errorf("first frame = %v %q, want text SPEAKING", f.Kind, f.Data)
	}
	// Larger than the library's 32 KiB default read limit.
	f = <-ch.Frames()
	if f.Kind != transport.FrameBinary || len(f.Data) != 100_000 {
		t.Errorf("second frame = %v len %d, want binary len 100000", f.Kind, len(f.Data))
	}

	if err := ch.Send(ctx, []byte(`{"type":"user_answer","text":"x"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	f = <-ch.Frames()
	if f.Kind != transport.FrameText || string(f.Data) != `{"type":"user_answer","text":"x"}` {
		t.Errorf("echo = %v %q", f.Kind, f.Data)
	}

	// Remote close ends the stream.
	select {
	case _, ok := <-ch.Frames():
		if ok {
			t.Error("expected frame stream to close after remote close")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for remote close")
	}
}

func TestClose_Idempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		_, _, _ = conn.Read(r.Context())
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := ws.NewDialer().Dial(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	_ = ch.Close()
	if err := ch.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := ch.Send(ctx, []byte("x")); err != transport.ErrClosed {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	for range ch.Frames() {
	}
}

func TestDial_Refused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := ws.NewDialer().Dial(ctx, wsURL(srv)); err == nil {
		t.Fatal("expected dial error for non-websocket endpoint")
	}
}
