package interview

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleCandidate   Role = "candidate"
	RoleInterviewer Role = "interviewer"
)

// Entry is one turn of the conversation.
type Entry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session identifies one interview attempt on the backend.
type Session struct {
	ID        string `json:"session_id"`
	SubjectID string `json:"subject_id"`
	UserID    string `json:"user_id"`
}

// transcript is an append-only entry log. Readers only ever get copies.
type transcript struct {
	entries []Entry
}

func (t *transcript) append(e Entry) { t.entries = append(t.entries, e) }

func (t *transcript) reset() { t.entries = nil }

func (t *transcript) snapshot() []Entry {
	if len(t.entries) == 0 {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
