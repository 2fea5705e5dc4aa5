package rehearsal

import (
	"fmt"
	"strings"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/pkg/provider/llm"
)

// Fixed interviewer lines.
const (
	Greeting     = "Hello! Let's start the interview. Can you tell me about yourself?"
	ClosingLine  = "Thank you for completing the interview! We appreciate your time."
	completeLine = "The interview is now complete."
)

const interviewerSystemPrompt = `You are a professional AI interviewer.

Rules:
- Ask ONE clear interview question at a time
- Base questions on the job description and resume
- Ask follow-up questions based on previous answers
- Do NOT explain your reasoning
- When the interview is finished, say EXACTLY:
  "` + completeLine + `"
`

const feedbackSystemPrompt = `
You are an expert interviewer.
Return ONLY valid JSON:

{
 "overall_score": number,
 "strengths": "...",
 "weaknesses": "...",
 "jd_match": "...",
 "recommendation": "...",
 "improvement_tips": "..."
}
`

// formatTranscript renders messages as "role: content" lines.
func formatTranscript(msgs []Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", m.Role, m.Content)
	}
	return b.String()
}

// questionRequest builds the next-question prompt. The newest message is the
// candidate's answer; everything before it is the conversation so far.
func questionRequest(subject config.SubjectConfig, history []Message) llm.CompletionRequest {
	var answer string
	if n := len(history); n > 0 {
		answer = history[n-1].Content
		history = history[:n-1]
	}
	human := fmt.Sprintf("Resume:\n%s\n\nJob Description:\n%s\n\nConversation so far:\n%s\n\nCandidate response:\n%s\n",
		subject.ResumeText, subject.JobDescription, formatTranscript(history), answer)
	return llm.CompletionRequest{
		SystemPrompt: interviewerSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: human}},
	}
}

// feedbackRequest builds the assessment prompt over the whole transcript.
func feedbackRequest(subject config.SubjectConfig, transcript []Message) llm.CompletionRequest {
	human := fmt.Sprintf("\nJD:\n%s\n\nResume:\n%s\n\nTranscript:\n%s\n",
		subject.JobDescription, subject.ResumeText, formatTranscript(transcript))
	return llm.CompletionRequest{
		SystemPrompt: feedbackSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: human}},
	}
}
