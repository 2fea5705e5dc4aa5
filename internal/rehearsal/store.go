package rehearsal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownSession is returned for operations on a session id the store
// has never issued.
var ErrUnknownSession = errors.New("rehearsal: unknown session")

// ErrSessionBusy is returned by [Store.Acquire] while another channel is
// conducting the session.
var ErrSessionBusy = errors.New("rehearsal: session already has a live channel")

// Role labels a transcript message. The values match the roles used in the
// feedback transcript.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message is one stored transcript line.
type Message struct {
	Role    Role
	Content string
	At      time.Time
}

// Session is one interview attempt.
type Session struct {
	ID        string
	UserID    string
	SubjectID string
	CreatedAt time.Time
}

type record struct {
	session  Session
	messages []Message
	feedback Feedback
	live     bool
}

// Store keeps sessions, their transcripts and final feedback in memory.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record
	now      func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*record), now: time.Now}
}

// Create registers a new session and returns it with a fresh id.
func (s *Store) Create(subjectID, userID string) Session {
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		SubjectID: subjectID,
		CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = &record{session: sess}
	s.mu.Unlock()
	return sess
}

// Get returns the session with id.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return r.session, true
}

// Append adds a message to the session transcript.
func (s *Store) Append(id string, role Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	r.messages = append(r.messages, Message{Role: role, Content: content, At: s.now()})
	return nil
}

// Messages returns the newest limit messages of the session in
// chronological order. A limit of zero or less returns the whole transcript.
func (s *Store) Messages(id string, limit int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.sessions[id]
	if !ok {
		return nil
	}
	msgs := r.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message(nil), msgs...)
}

// SetFeedback stores the final assessment of the session.
func (s *Store) SetFeedback(id string, fb Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	r.feedback = fb
	return nil
}

// Feedback returns the stored assessment. ok is false until the interview
// has ended.
func (s *Store) Feedback(id string) (fb Feedback, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, found := s.sessions[id]
	if !found || r.feedback == nil {
		return nil, false
	}
	return r.feedback, true
}

// Acquire marks the session as having a live channel. Release must be
// called when the channel ends.
func (s *Store) Acquire(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[id]
	switch {
	case !ok:
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	case r.live:
		return fmt.Errorf("%w: %s", ErrSessionBusy, id)
	}
	r.live = true
	return nil
}

// Release clears the live flag set by [Store.Acquire].
func (s *Store) Release(id string) {
	s.mu.Lock()
	if r, ok := s.sessions[id]; ok {
		r.live = false
	}
	s.mu.Unlock()
}

// Len returns the number of sessions held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
