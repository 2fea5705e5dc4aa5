// Package rehearsal is a self-contained interview backend. It speaks the same
// session and channel protocol the intervox client expects: it greets the
// candidate, asks generated follow-up questions, closes the interview and
// sends an LLM-written assessment.
//
// The server is meant for local practice and for end-to-end tests of the
// client. State lives in memory.
package rehearsal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	"github.com/MrWong99/intervox/pkg/transport"
)

// defaultSpeechInstructions steers the synthesis style of every line.
const defaultSpeechInstructions = "Speak clearly and naturally"

// Conn is the server side of one interview channel.
type Conn interface {
	// ReadText blocks for the next text frame. Binary frames are skipped.
	ReadText(ctx context.Context) ([]byte, error)

	// WriteControl sends one JSON control frame.
	WriteControl(ctx context.Context, c transport.Control) error

	// WriteAudio sends one binary audio frame.
	WriteAudio(ctx context.Context, audio []byte) error
}

// Settings are the interview limits and subject contexts. They can be
// swapped while the server runs; a session keeps the settings it started
// with.
type Settings struct {
	// MaxQuestions is how many interviewer questions, the greeting
	// included, are asked before the closing line.
	MaxQuestions int

	// HistoryMessages bounds the transcript excerpt used for the next
	// question.
	HistoryMessages int

	Subjects map[string]config.SubjectConfig
}

// SettingsFromConfig extracts the interviewer settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxQuestions:    cfg.Server.MaxQuestions,
		HistoryMessages: cfg.Server.HistoryMessages,
		Subjects:        cfg.Subjects,
	}
}

// subject returns the context for id, falling back to the default subject.
func (s *Settings) subject(id string) (config.SubjectConfig, string) {
	if sc, ok := s.Subjects[id]; ok {
		return sc, id
	}
	return s.Subjects[config.DefaultSubject], config.DefaultSubject
}

// InterviewerOption configures an [Interviewer].
type InterviewerOption func(*Interviewer)

// WithVoice selects the TTS voice for every line.
func WithVoice(voice string) InterviewerOption {
	return func(iv *Interviewer) { iv.voice = voice }
}

// WithSpeechInstructions overrides the synthesis style hint.
func WithSpeechInstructions(s string) InterviewerOption {
	return func(iv *Interviewer) { iv.instructions = s }
}

// WithInterviewerMetrics records active sessions and turns on m.
func WithInterviewerMetrics(m *observe.Metrics) InterviewerOption {
	return func(iv *Interviewer) { iv.metrics = m }
}

// Interviewer conducts interviews over a [Conn].
type Interviewer struct {
	store *Store
	llm   llm.Provider
	tts   tts.Provider

	voice        string
	instructions string
	metrics      *observe.Metrics

	settings atomic.Pointer[Settings]
}

// NewInterviewer returns an Interviewer that records transcripts in store.
func NewInterviewer(store *Store, lm llm.Provider, speech tts.Provider, s Settings, opts ...InterviewerOption) *Interviewer {
	iv := &Interviewer{
		store:        store,
		llm:          lm,
		tts:          speech,
		instructions: defaultSpeechInstructions,
	}
	for _, o := range opts {
		o(iv)
	}
	iv.Update(s)
	return iv
}

// Update replaces the settings used by sessions started from now on.
func (iv *Interviewer) Update(s Settings) {
	if s.MaxQuestions <= 0 {
		s.MaxQuestions = 1
	}
	iv.settings.Store(&s)
}

// Settings returns the current settings.
func (iv *Interviewer) Settings() Settings {
	return *iv.settings.Load()
}

// Conduct runs one interview to completion. It returns nil once the closing
// line and feedback have been sent; the caller then closes the channel
// normally. Any other return is a read failure or a provider failure.
func (iv *Interviewer) Conduct(ctx context.Context, sess Session, conn Conn) error {
	settings := iv.Settings()
	subject, subjectID := settings.subject(sess.SubjectID)
	ctx, span := observe.StartSpan(observe.WithSession(ctx, sess.ID), "rehearsal.Conduct")
	defer span.End()
	log := observe.Logger(ctx).With("subject", subjectID)

	if iv.metrics != nil {
		iv.metrics.ActiveSessions.Add(ctx, 1)
		defer iv.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}

	log.Info("rehearsal: interview started", "max_questions", settings.MaxQuestions)
	if err := iv.ask(ctx, conn, sess.ID, Greeting); err != nil {
		return err
	}
	asked := 1

	for {
		data, err := conn.ReadText(ctx)
		if err != nil {
			return fmt.Errorf("rehearsal: read answer: %w", err)
		}
		answer, ok := transport.ParseAnswer(data)
		if !ok {
			log.Debug("rehearsal: ignoring frame", "frame", string(data))
			continue
		}
		if err := iv.store.Append(sess.ID, RoleUser, answer); err != nil {
			return err
		}
		iv.recordTurn(ctx, RoleUser)
		if err := conn.WriteControl(ctx, transport.Control{State: transport.RemoteProcessing}); err != nil {
			return fmt.Errorf("rehearsal: send processing: %w", err)
		}

		if asked < settings.MaxQuestions {
			question, err := iv.nextQuestion(ctx, subject, sess.ID, settings.HistoryMessages)
			if err != nil {
				return err
			}
			if question != "" {
				if err := iv.ask(ctx, conn, sess.ID, question); err != nil {
					return err
				}
				asked++
				continue
			}
			log.Info("rehearsal: model closed the interview early", "asked", asked)
		}

		if err := iv.finish(ctx, conn, sess.ID, subject); err != nil {
			return err
		}
		log.Info("rehearsal: interview complete", "asked", asked)
		return nil
	}
}

// nextQuestion asks the model for a follow-up. It returns "" when the model
// declares the interview complete.
func (iv *Interviewer) nextQuestion(ctx context.Context, subject config.SubjectConfig, id string, history int) (string, error) {
	resp, err := iv.llm.Complete(ctx, questionRequest(subject, iv.store.Messages(id, history)))
	if err != nil {
		return "", fmt.Errorf("rehearsal: generate question: %w", err)
	}
	if resp.Truncated {
		observe.Logger(ctx).Warn("rehearsal: question hit the token limit", "tokens", resp.Usage.CompletionTokens)
	}
	q := strings.TrimSpace(resp.Content)
	if q == "" || strings.Contains(q, completeLine) {
		return "", nil
	}
	return q, nil
}

// ask records and speaks one interviewer line, then hints that the
// candidate may answer.
func (iv *Interviewer) ask(ctx context.Context, conn Conn, id, text string) error {
	if err := iv.say(ctx, conn, id, text); err != nil {
		return err
	}
	clip, err := iv.synthesize(ctx, text)
	if err != nil {
		return err
	}
	if err := conn.WriteAudio(ctx, clip.Audio); err != nil {
		return fmt.Errorf("rehearsal: send audio: %w", err)
	}
	if err := conn.WriteControl(ctx, transport.Control{State: transport.RemoteListening}); err != nil {
		return fmt.Errorf("rehearsal: send listening: %w", err)
	}
	return nil
}

// say records text and sends it as SPEAKING.
func (iv *Interviewer) say(ctx context.Context, conn Conn, id, text string) error {
	if err := iv.store.Append(id, RoleAssistant, text); err != nil {
		return err
	}
	iv.recordTurn(ctx, RoleAssistant)
	if err := conn.WriteControl(ctx, transport.Control{State: transport.RemoteSpeaking, Text: text}); err != nil {
		return fmt.Errorf("rehearsal: send speaking: %w", err)
	}
	return nil
}

// finish sends the closing line, the assessment and the closing audio, in
// that order. ENDED goes out before the audio so the client never opens a
// listen window after the closing remark.
func (iv *Interviewer) finish(ctx context.Context, conn Conn, id string, subject config.SubjectConfig) error {
	if err := iv.say(ctx, conn, id, ClosingLine); err != nil {
		return err
	}

	var (
		clip *tts.Clip
		fb   Feedback
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		clip, err = iv.synthesize(gctx, ClosingLine)
		return err
	})
	g.Go(func() error {
		fb = iv.assess(gctx, id, subject)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := iv.store.SetFeedback(id, fb); err != nil {
		return err
	}
	raw, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("rehearsal: encode feedback: %w", err)
	}
	if err := conn.WriteControl(ctx, transport.Control{State: transport.RemoteEnded, Feedback: raw}); err != nil {
		return fmt.Errorf("rehearsal: send ended: %w", err)
	}
	if err := conn.WriteAudio(ctx, clip.Audio); err != nil {
		return fmt.Errorf("rehearsal: send closing audio: %w", err)
	}
	return nil
}

// assess generates the feedback over the full transcript. A model failure
// yields the fallback record rather than an error.
func (iv *Interviewer) assess(ctx context.Context, id string, subject config.SubjectConfig) Feedback {
	resp, err := iv.llm.Complete(ctx, feedbackRequest(subject, iv.store.Messages(id, 0)))
	if err != nil {
		observe.Logger(ctx).Warn("rehearsal: feedback generation failed", "err", err)
		return FallbackFeedback()
	}
	if resp.Truncated {
		observe.Logger(ctx).Warn("rehearsal: feedback hit the token limit", "tokens", resp.Usage.CompletionTokens)
	}
	return ParseFeedback(resp.Content)
}

func (iv *Interviewer) synthesize(ctx context.Context, text string) (*tts.Clip, error) {
	clip, err := iv.tts.Synthesize(ctx, tts.Request{Text: text, Voice: iv.voice, Instructions: iv.instructions})
	if err != nil {
		return nil, fmt.Errorf("rehearsal: synthesize: %w", err)
	}
	return clip, nil
}

func (iv *Interviewer) recordTurn(ctx context.Context, role Role) {
	if iv.metrics == nil {
		return
	}
	label := "interviewer"
	if role == RoleUser {
		label = "candidate"
	}
	iv.metrics.RecordTurn(ctx, label)
}
