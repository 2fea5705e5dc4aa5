package rehearsal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/intervox/internal/backend"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/observe"
	audiomock "github.com/MrWong99/intervox/pkg/audio/mock"
	capturemock "github.com/MrWong99/intervox/pkg/capture/mock"
	llmmock "github.com/MrWong99/intervox/pkg/provider/llm/mock"
	ttsmock "github.com/MrWong99/intervox/pkg/provider/tts/mock"
	"github.com/MrWong99/intervox/pkg/transport"
	"github.com/MrWong99/intervox/pkg/transport/ws"
)

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

type testServer struct {
	*httptest.Server
	store *Store
	llm   *llmmock.Provider
	tts   *ttsmock.Provider
}

func newTestServer(t *testing.T, maxQuestions int, responses ...string) *testServer {
	t.Helper()
	store := NewStore()
	lm := &llmmock.Provider{Responses: responses}
	speech := &ttsmock.Provider{}
	m := newTestMetrics(t)
	iv := NewInterviewer(store, lm, speech, testSettings(maxQuestions), WithInterviewerMetrics(m))
	srv := NewServer(store, iv,
		WithMetrics(m),
		WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		})),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: store, llm: lm, tts: speech}
}

func (ts *testServer) create(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/interview/session", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST session: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer_CreateSession(t *testing.T) {
	ts := newTestServer(t, 2)

	resp := ts.create(t, `{"ats_analysis_id":"sre","user_id":"u1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	sess, ok := ts.store.Get(body.SessionID)
	if !ok {
		t.Fatalf("session %q not stored", body.SessionID)
	}
	if sess.UserID != "u1" || sess.SubjectID != "sre" {
		t.Errorf("session = %+v", sess)
	}
}

func TestServer_CreateSessionRejects(t *testing.T) {
	ts := newTestServer(t, 2)
	tests := []struct {
		name string
		body string
	}{
		{"missing user", `{"ats_analysis_id":"sre"}`},
		{"not json", `hello`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := ts.create(t, tt.body); resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestServer_FeedbackNotFound(t *testing.T) {
	ts := newTestServer(t, 2)
	sess := ts.store.Create("", "u1")

	resp, err := http.Get(ts.URL + "/api/v1/interview/session/" + sess.ID + "/feedback")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_HealthRoutes(t *testing.T) {
	ts := newTestServer(t, 2)
	for _, path := range []string{"/health", "/healthz", "/readyz", "/metrics", "/ping"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func wsURL(ts *testServer, id, user string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/interview/session/" + id + "?user_id=" + user
}

func TestServer_ChannelPolicyViolations(t *testing.T) {
	ts := newTestServer(t, 2)
	sess := ts.store.Create("", "u1")

	tests := []struct {
		name string
		url  string
	}{
		{"unknown session", wsURL(ts, "missing", "u1")},
		{"user mismatch", wsURL(ts, sess.ID, "intruder")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			c, _, err := websocket.Dial(ctx, tt.url, nil)
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			defer c.CloseNow()
			_, _, err = c.Read(ctx)
			if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
				t.Fatalf("close status = %v (err %v), want policy violation", got, err)
			}
		})
	}
}

func TestServer_ChannelFrameOrder(t *testing.T) {
	ts := newTestServer(t, 1, `{"overall_score": 7}`)
	sess := ts.store.Create("", "u1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := ws.NewDialer().Dial(ctx, wsURL(ts, sess.ID, "u1"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	var got []string
	record := func(f transport.Frame) {
		if f.Kind == transport.FrameBinary {
			got = append(got, "audio")
			return
		}
		c, err := transport.ParseControl(f.Data)
		if err != nil {
			t.Fatalf("ParseControl(%s): %v", f.Data, err)
		}
		got = append(got, string(c.State))
		if c.State == transport.RemoteListening {
			answer, _ := transport.EncodeAnswer("I build services.")
			if err := ch.Send(ctx, answer); err != nil {
				t.Fatalf("Send: %v", err)
			}
		}
	}
	for f := range ch.Frames() {
		record(f)
	}

	want := "SPEAKING,audio,LISTENING,PROCESSING,SPEAKING,ENDED,audio"
	if s := strings.Join(got, ","); s != want {
		t.Fatalf("frames = %s\nwant     %s", s, want)
	}

	resp, err := http.Get(ts.URL + "/api/v1/interview/session/" + sess.ID + "/feedback")
	if err != nil {
		t.Fatalf("GET feedback: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(buf.String(), `"overall_score":7`) {
		t.Errorf("feedback = %d %s", resp.StatusCode, buf.String())
	}
}

// TestEndToEnd_ClientAgainstRehearsal runs the real coordinator, backend
// client and websocket transport against the rehearsal server.
func TestEndToEnd_ClientAgainstRehearsal(t *testing.T) {
	ts := newTestServer(t, 2, "What is your favourite Go feature?", `{"overall_score": 9, "strengths": ["Concise"]}`)

	client, err := backend.New(ts.URL)
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	player := &audiomock.Player{}
	capture := capturemock.NewEngine()
	coord, err := interview.New(
		interview.Config{SubjectID: "sre", UserID: "u1"},
		interview.Deps{Backend: client, Dialer: ws.NewDialer(), Player: player, Capture: capture},
		interview.WithSettleDelay(10*time.Millisecond),
		interview.WithMetrics(newTestMetrics(t)),
	)
	if err != nil {
		t.Fatalf("interview.New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() { _ = coord.Run(ctx) }()

	if err := coord.StartInterview(ctx); err != nil {
		t.Fatalf("StartInterview: %v", err)
	}

	answers := []string{"I write Go every day.", "Channels."}
	for _, a := range answers {
		select {
		case <-capture.Started():
			capture.Final(a)
		case <-ctx.Done():
			t.Fatal("timed out waiting for a listen window")
		}
	}

	res, err := coord.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Reason != interview.ReasonRemote {
		t.Errorf("Reason = %q, want remote", res.Reason)
	}
	if res.Feedback == nil || res.Feedback.OverallScore != 9 {
		t.Errorf("Feedback = %+v", res.Feedback)
	}

	var roles []string
	for _, e := range res.Transcript {
		roles = append(roles, string(e.Role))
	}
	want := "interviewer,candidate,interviewer,candidate,interviewer"
	if got := strings.Join(roles, ","); got != want {
		t.Errorf("transcript roles = %s, want %s", got, want)
	}
	if n := len(player.Payloads()); n != 3 {
		t.Errorf("played %d clips, want 3", n)
	}
	if capture.Starts() != len(answers) {
		t.Errorf("capture starts = %d, want %d", capture.Starts(), len(answers))
	}
}
