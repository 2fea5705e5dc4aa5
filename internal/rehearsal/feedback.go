package rehearsal

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

// Feedback is the generated assessment exactly as the model shaped it. The
// client treats the record as opaque, so its keys are not fixed here.
type Feedback map[string]any

var fenceRE = regexp.MustCompile("```json\\s?|```")

// FallbackFeedback is returned when the model output holds no usable JSON
// object.
func FallbackFeedback() Feedback {
	return Feedback{
		"overall_score": 0,
		"strengths":     []string{"Analysis completed"},
		"weaknesses":    []string{"Feedback formatting error"},
		"suggestions":   []string{"Try again or check logs"},
	}
}

// ParseFeedback extracts the JSON object from raw model output. Markdown
// fences and chatter around the object are discarded.
func ParseFeedback(raw string) Feedback {
	clean := strings.TrimSpace(fenceRE.ReplaceAllString(raw, ""))
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start == -1 || end < start {
		slog.Warn("rehearsal: feedback holds no JSON object", "raw", raw)
		return FallbackFeedback()
	}
	var fb Feedback
	if err := json.Unmarshal([]byte(clean[start:end+1]), &fb); err != nil {
		slog.Warn("rehearsal: feedback is not valid JSON", "err", err, "raw", raw)
		return FallbackFeedback()
	}
	return fb
}
