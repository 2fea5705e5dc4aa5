package rehearsal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/config"
	llmmock "github.com/MrWong99/intervox/pkg/provider/llm/mock"
	ttsmock "github.com/MrWong99/intervox/pkg/provider/tts/mock"
	"github.com/MrWong99/intervox/pkg/transport"
)

// sent is one frame written by the interviewer.
type sent struct {
	control *transport.Control
	audio   []byte
}

func (s sent) String() string {
	if s.control != nil {
		return "control " + string(s.control.State)
	}
	return "audio " + string(s.audio)
}

// fakeConn scripts the candidate side of a channel.
type fakeConn struct {
	in  chan []byte
	out chan sent
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 8), out: make(chan sent, 64)}
}

var _ Conn = (*fakeConn)(nil)

func (f *fakeConn) ReadText(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case b, ok := <-f.in:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	}
}

func (f *fakeConn) WriteControl(_ context.Context, c transport.Control) error {
	f.out <- sent{control: &c}
	return nil
}

func (f *fakeConn) WriteAudio(_ context.Context, audio []byte) error {
	f.out <- sent{audio: append([]byte(nil), audio...)}
	return nil
}

func (f *fakeConn) answer(t *testing.T, text string) {
	t.Helper()
	b, err := transport.EncodeAnswer(text)
	if err != nil {
		t.Fatalf("EncodeAnswer: %v", err)
	}
	f.in <- b
}

func (f *fakeConn) next(t *testing.T) sent {
	t.Helper()
	select {
	case s := <-f.out:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return sent{}
	}
}

func (f *fakeConn) expectControl(t *testing.T, state transport.RemoteState) transport.Control {
	t.Helper()
	s := f.next(t)
	if s.control == nil || s.control.State != state {
		t.Fatalf("got %v, want control %s", s, state)
	}
	return *s.control
}

func (f *fakeConn) expectAudio(t *testing.T, want string) {
	t.Helper()
	s := f.next(t)
	if s.control != nil || string(s.audio) != want {
		t.Fatalf("got %v, want audio %q", s, want)
	}
}

func testSettings(maxQuestions int) Settings {
	return Settings{
		MaxQuestions:    maxQuestions,
		HistoryMessages: 6,
		Subjects: map[string]config.SubjectConfig{
			config.DefaultSubject: {JobDescription: "Backend engineer, Go", ResumeText: "Five years of Go."},
			"sre":                 {JobDescription: "Site reliability engineer", ResumeText: "Runs Kubernetes."},
		},
	}
}

func conduct(t *testing.T, iv *Interviewer, sess Session, conn Conn) <-chan error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- iv.Conduct(ctx, sess, conn) }()
	return done
}

func TestInterviewer_FullInterview(t *testing.T) {
	store := NewStore()
	sess := store.Create("sre", "u1")
	lm := &llmmock.Provider{Responses: []string{
		"Tell me about an outage you handled.",
		"```json\n{\"overall_score\": 8, \"strengths\": \"Clear answers\"}\n```",
	}}
	speech := &ttsmock.Provider{}
	iv := NewInterviewer(store, lm, speech, testSettings(2), WithVoice("coral"))
	conn := newFakeConn()
	done := conduct(t, iv, sess, conn)

	if c := conn.expectControl(t, transport.RemoteSpeaking); c.Text != Greeting {
		t.Fatalf("greeting = %q", c.Text)
	}
	conn.expectAudio(t, "audio:"+Greeting)
	conn.expectControl(t, transport.RemoteListening)

	conn.answer(t, "I am a platform engineer.")
	conn.expectControl(t, transport.RemoteProcessing)
	if c := conn.expectControl(t, transport.RemoteSpeaking); c.Text != "Tell me about an outage you handled." {
		t.Fatalf("question = %q", c.Text)
	}
	conn.expectAudio(t, "audio:Tell me about an outage you handled.")
	conn.expectControl(t, transport.RemoteListening)

	conn.answer(t, "The database ran out of disk.")
	conn.expectControl(t, transport.RemoteProcessing)
	if c := conn.expectControl(t, transport.RemoteSpeaking); c.Text != ClosingLine {
		t.Fatalf("closing = %q", c.Text)
	}
	ended := conn.expectControl(t, transport.RemoteEnded)
	conn.expectAudio(t, "audio:"+ClosingLine)

	if err := <-done; err != nil {
		t.Fatalf("Conduct: %v", err)
	}

	var fb map[string]any
	if err := json.Unmarshal(ended.Feedback, &fb); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if fb["overall_score"] != float64(8) || fb["strengths"] != "Clear answers" {
		t.Errorf("feedback = %v", fb)
	}
	if _, ok := store.Feedback(sess.ID); !ok {
		t.Error("feedback not stored")
	}

	msgs := store.Messages(sess.ID, 0)
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = string(m.Role)
	}
	if got := strings.Join(roles, ","); got != "assistant,user,assistant,user,assistant" {
		t.Errorf("roles = %s", got)
	}
	for _, req := range speech.Calls {
		if req.Voice != "coral" || req.Instructions != defaultSpeechInstructions {
			t.Errorf("tts request = %+v", req)
		}
	}
}

func TestInterviewer_QuestionPromptCarriesContext(t *testing.T) {
	store := NewStore()
	sess := store.Create("sre", "u1")
	lm := &llmmock.Provider{Responses: []string{"Next?"}}
	iv := NewInterviewer(store, lm, &ttsmock.Provider{}, testSettings(3))
	conn := newFakeConn()
	conduct(t, iv, sess, conn)

	for range 3 {
		conn.next(t)
	}
	conn.answer(t, "I like pagers.")
	conn.expectControl(t, transport.RemoteProcessing)
	conn.expectControl(t, transport.RemoteSpeaking)

	reqs := lm.Requests()
	if len(reqs) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if !strings.Contains(req.SystemPrompt, "Ask ONE clear interview question") {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	human := req.Messages[0].Content
	for _, want := range []string{
		"Resume:\nRuns Kubernetes.",
		"Job Description:\nSite reliability engineer",
		"Conversation so far:\nassistant: " + Greeting,
		"Candidate response:\nI like pagers.",
	} {
		if !strings.Contains(human, want) {
			t.Errorf("prompt missing %q:\n%s", want, human)
		}
	}
}

func TestInterviewer_IgnoresOtherFrames(t *testing.T) {
	store := NewStore()
	sess := store.Create("", "u1")
	iv := NewInterviewer(store, &llmmock.Provider{Responses: []string{"{}"}}, &ttsmock.Provider{}, testSettings(1))
	conn := newFakeConn()
	done := conduct(t, iv, sess, conn)

	for range 3 {
		conn.next(t)
	}
	conn.in <- []byte("not json")
	conn.in <- []byte(`{"type":"ping"}`)
	conn.answer(t, "Done.")

	conn.expectControl(t, transport.RemoteProcessing)
	conn.expectControl(t, transport.RemoteSpeaking)
	conn.expectControl(t, transport.RemoteEnded)
	conn.next(t)
	if err := <-done; err != nil {
		t.Fatalf("Conduct: %v", err)
	}
	if n := len(store.Messages(sess.ID, 0)); n != 3 {
		t.Errorf("messages = %d, want 3", n)
	}
}

func TestInterviewer_ModelEndsEarly(t *testing.T) {
	store := NewStore()
	sess := store.Create("", "u1")
	lm := &llmmock.Provider{Responses: []string{"Thanks. The interview is now complete.", `{"overall_score": 5}`}}
	iv := NewInterviewer(store, lm, &ttsmock.Provider{}, testSettings(4))
	conn := newFakeConn()
	done := conduct(t, iv, sess, conn)

	for range 3 {
		conn.next(t)
	}
	conn.answer(t, "Hi.")
	conn.expectControl(t, transport.RemoteProcessing)
	if c := conn.expectControl(t, transport.RemoteSpeaking); c.Text != ClosingLine {
		t.Fatalf("text = %q, want closing line", c.Text)
	}
	conn.expectControl(t, transport.RemoteEnded)
	conn.next(t)
	if err := <-done; err != nil {
		t.Fatalf("Conduct: %v", err)
	}
}

func TestInterviewer_FeedbackFailureFallsBack(t *testing.T) {
	store := NewStore()
	sess := store.Create("", "u1")
	lm := &llmmock.Provider{Err: errors.New("quota exceeded")}
	iv := NewInterviewer(store, lm, &ttsmock.Provider{}, testSettings(1))
	conn := newFakeConn()
	done := conduct(t, iv, sess, conn)

	for range 3 {
		conn.next(t)
	}
	conn.answer(t, "Hi.")
	conn.expectControl(t, transport.RemoteProcessing)
	conn.expectControl(t, transport.RemoteSpeaking)
	ended := conn.expectControl(t, transport.RemoteEnded)
	conn.next(t)
	if err := <-done; err != nil {
		t.Fatalf("Conduct: %v", err)
	}
	if !strings.Contains(string(ended.Feedback), "Feedback formatting error") {
		t.Errorf("feedback = %s, want fallback", ended.Feedback)
	}
}

func TestInterviewer_SynthesisFailureAborts(t *testing.T) {
	store := NewStore()
	sess := store.Create("", "u1")
	iv := NewInterviewer(store, &llmmock.Provider{}, &ttsmock.Provider{Err: errors.New("tts down")}, testSettings(2))
	conn := newFakeConn()
	done := conduct(t, iv, sess, conn)

	conn.expectControl(t, transport.RemoteSpeaking)
	err := <-done
	if err == nil || !strings.Contains(err.Error(), "tts down") {
		t.Fatalf("err = %v, want synthesis failure", err)
	}
}

func TestInterviewer_ReadErrorReturned(t *testing.T) {
	store := NewStore()
	sess := store.Create("", "u1")
	iv := NewInterviewer(store, &llmmock.Provider{}, &ttsmock.Provider{}, testSettings(2))
	conn := newFakeConn()
	done := conduct(t, iv, sess, conn)

	for range 3 {
		conn.next(t)
	}
	close(conn.in)
	if err := <-done; !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestInterviewer_UpdateAppliesToNewSessions(t *testing.T) {
	iv := NewInterviewer(NewStore(), &llmmock.Provider{}, &ttsmock.Provider{}, testSettings(4))
	iv.Update(Settings{MaxQuestions: 0, HistoryMessages: 2})

	got := iv.Settings()
	if got.MaxQuestions != 1 {
		t.Errorf("MaxQuestions = %d, want clamped to 1", got.MaxQuestions)
	}
	if got.HistoryMessages != 2 {
		t.Errorf("HistoryMessages = %d, want 2", got.HistoryMessages)
	}
}

func TestSettings_UnknownSubjectFallsBack(t *testing.T) {
	s := testSettings(1)
	sc, id := s.subject("nope")
	if id != config.DefaultSubject || sc.JobDescription != "Backend engineer, Go" {
		t.Errorf("subject = %q %+v", id, sc)
	}
}
