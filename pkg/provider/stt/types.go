package stt

import (
	"strings"
	"time"
)

// Transcript is a speech-to-text result. Partials and finals share the type.
type Transcript struct {
	// Text is the transcribed speech.
	Text string

	// IsFinal reports whether the provider has committed to this result.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Words holds per-word detail when available (Deepgram, Google).
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// Clean returns Text with surrounding whitespace removed. Providers pad
// segments differently; callers joining segments should use Clean.
func (t Transcript) Clean() string { return strings.TrimSpace(t.Text) }

// End returns the offset at which the utterance stopped.
func (t Transcript) End() time.Duration { return t.Timestamp + t.Duration }

// WordDetail holds per-word metadata from providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a recognition hint with a provider-specific boost value.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}

// Boosts turns plain words into hints sharing one boost value. Blank and
// duplicate words are skipped, case-insensitively.
func Boosts(words []string, boost float64) []KeywordBoost {
	out := make([]KeywordBoost, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		k := strings.ToLower(w)
		if w == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, KeywordBoost{Keyword: w, Boost: boost})
	}
	return out
}
