package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MrWong99/intervox/internal/interview"
)

// terminal prints coordinator events as a plain-text conversation.
type terminal struct {
	mu      sync.Mutex
	out     io.Writer
	interim bool
	manual  bool
}

var _ interview.Observer = (*terminal)(nil)

func newTerminal(out io.Writer, manual bool) *terminal {
	return &terminal{out: out, manual: manual}
}

func (t *terminal) StateChanged(_, to interview.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if to == interview.Listening && !t.manual {
		t.clearInterim()
		fmt.Fprintln(t.out, "  [your turn]")
	}
}

func (t *terminal) EntryAppended(e interview.Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearInterim()
	label := "Interviewer"
	if e.Role == interview.RoleCandidate {
		label = "You"
	}
	fmt.Fprintf(t.out, "%s: %s\n", label, e.Text)
}

func (t *terminal) Interim(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if text == "" {
		t.clearInterim()
		return
	}
	fmt.Fprintf(t.out, "\r\033[K  … %s", text)
	t.interim = true
}

func (t *terminal) ListenArmed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearInterim()
	fmt.Fprintln(t.out, "  [type /listen when you are ready to answer]")
}

func (t *terminal) Ended(r interview.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearInterim()
	fmt.Fprintf(t.out, "\nInterview ended (%s).\n", r.Reason)
	writeFeedback(t.out, r.Feedback)
}

// clearInterim erases a pending interim caption. Callers hold mu.
func (t *terminal) clearInterim() {
	if t.interim {
		fmt.Fprint(t.out, "\r\033[K")
		t.interim = false
	}
}

func writeFeedback(w io.Writer, fb *interview.Feedback) {
	if fb == nil {
		fmt.Fprintln(w, "No feedback was received.")
		return
	}
	fmt.Fprintf(w, "\nOverall score: %g\n", fb.OverallScore)
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s:\n", title)
		for _, it := range items {
			fmt.Fprintf(w, "  - %s\n", it)
		}
	}
	section("Strengths", fb.Strengths)
	section("Weaknesses", fb.Weaknesses)
	section("Suggestions", fb.Suggestions)
	section("Improvement tips", fb.ImprovementTips)
	if fb.JDMatch != "" {
		fmt.Fprintf(w, "\nJob match: %s\n", fb.JDMatch)
	}
	if fb.Recommendation != "" {
		fmt.Fprintf(w, "Recommendation: %s\n", fb.Recommendation)
	}
}

const helpText = `Commands:
  /listen  open the answer window (manual mode)
  /end     end the interview now
  /quit    leave without waiting for feedback
  /help    show this list`

func printHelp(w io.Writer) {
	fmt.Fprintln(w, strings.TrimSpace(helpText))
}
