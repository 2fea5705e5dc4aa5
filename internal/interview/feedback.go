package interview

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
)

// Feedback is the interviewer's final assessment. Raw holds the record
// exactly as received; the other fields are a best-effort decoding of it.
type Feedback struct {
	Raw json.RawMessage `json:"raw,omitempty"`

	OverallScore    float64  `json:"overall_score"`
	Strengths       []string `json:"strengths,omitempty"`
	Weaknesses      []string `json:"weaknesses,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
	JDMatch         string   `json:"jd_match,omitempty"`
	Recommendation  string   `json:"recommendation,omitempty"`
	ImprovementTips []string `json:"improvement_tips,omitempty"`
}

// Clone returns a deep copy of f. Clone of nil is nil.
func (f *Feedback) Clone() *Feedback {
	if f == nil {
		return nil
	}
	c := *f
	c.Raw = slices.Clone(f.Raw)
	c.Strengths = slices.Clone(f.Strengths)
	c.Weaknesses = slices.Clone(f.Weaknesses)
	c.Suggestions = slices.Clone(f.Suggestions)
	c.ImprovementTips = slices.Clone(f.ImprovementTips)
	return &c
}

// wireFeedback mirrors the generated feedback shape. Model output is loose
// about types, so every field tolerates a string where a list is expected
// and vice versa.
type wireFeedback struct {
	OverallScore    lenientNumber `json:"overall_score"`
	Strengths       stringList    `json:"strengths"`
	Weaknesses      stringList    `json:"weaknesses"`
	Suggestions     stringList    `json:"suggestions"`
	JDMatch         stringList    `json:"jd_match"`
	Recommendation  stringList    `json:"recommendation"`
	ImprovementTips stringList    `json:"improvement_tips"`
}

// DecodeFeedback decodes raw leniently. A record that is not a JSON object
// still yields a Feedback carrying Raw.
func DecodeFeedback(raw json.RawMessage) Feedback {
	fb := Feedback{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fb
	}
	fb.Raw = append(json.RawMessage(nil), raw...)

	var w wireFeedback
	if err := json.Unmarshal(raw, &w); err != nil {
		return fb
	}
	fb.OverallScore = float64(w.OverallScore)
	fb.Strengths = w.Strengths
	fb.Weaknesses = w.Weaknesses
	fb.Suggestions = w.Suggestions
	fb.JDMatch = strings.Join(w.JDMatch, " ")
	fb.Recommendation = strings.Join(w.Recommendation, " ")
	fb.ImprovementTips = w.ImprovementTips
	return fb
}

// stringList accepts a string, a list of strings, or a list of scalars.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one = strings.TrimSpace(one); one != "" {
			*l = stringList{one}
		}
		return nil
	}
	var many []any
	if err := json.Unmarshal(b, &many); err != nil {
		// Objects and other shapes are left undecoded.
		return nil
	}
	for _, v := range many {
		switch v := v.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				*l = append(*l, s)
			}
		case nil:
		default:
			enc, _ := json.Marshal(v)
			*l = append(*l, string(enc))
		}
	}
	return nil
}

// lenientNumber accepts 7, 7.5, "7" and "7/10".
type lenientNumber float64

func (n *lenientNumber) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = lenientNumber(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	s, _, _ = strings.Cut(strings.TrimSpace(s), "/")
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &f); err == nil {
		*n = lenientNumber(f)
	}
	return nil
}
