package prompts

import (
	"fmt"
	"strings"
)

// ComposerInput carries the reply planner's structured decision into
// the message-composer prompt (spec.md §4.4 Stage 5).
type ComposerInput struct {
	Context         string
	SearchText      string
	Action          string
	Tone            string
	LengthGuidance  string
	KeyPoints       []string
	AvoidRepeating  []string
	IncludeGreeting bool
	SenderName      string
}

// ComposerPrompt builds the fixed-template prompt sent to the LLM to
// draft a reply. The closing directive instructs the model to emit
// only the message body, no meta commentary.
func ComposerPrompt(in ComposerInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Conversation so far:\n%s\n\n", in.Context)
	if in.SearchText != "" {
		fmt.Fprintf(&b, "Additional information found:\n%s\n\n", in.SearchText)
	}

	fmt.Fprintf(&b, "Plan:\n- action: %s\n- tone: %s\n- length: %s\n", in.Action, in.Tone, in.LengthGuidance)
	if in.SenderName != "" {
		fmt.Fprintf(&b, "- the sender's name is %s; address them by name if it reads naturally\n", in.SenderName)
	}
	if len(in.KeyPoints) > 0 {
		fmt.Fprintf(&b, "- key points to cover: %s\n", strings.Join(in.KeyPoints, "; "))
	}
	if len(in.AvoidRepeating) > 0 {
		fmt.Fprintf(&b, "- do not repeat decisions already made: %s\n", strings.Join(in.AvoidRepeating, "; "))
	}
	if in.IncludeGreeting {
		b.WriteString("- open with a brief greeting\n")
	}

	b.WriteString("\nWrite the reply message now. Output ONLY the message body - no preamble, no explanation, no quotation marks.")
	return b.String()
}
