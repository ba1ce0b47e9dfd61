package aipipeline

// Gating is the upstream decision that authorized the AI pipeline to
// run at all (spec.md §4.4: "invoked ... only if upstream gating says
// 'reply'"). NeedSearch additionally asks the composer to fold in
// external lookup results, when available.
type Gating struct {
	Reply      bool
	NeedSearch bool
}

// Plan is Stage 4's output: a pure function of the analysis, the
// gating decision, and the current message text (spec.md §4.4 Stage 4).
type Plan struct {
	Action          string
	KeyPoints       []string
	Tone            string
	LengthGuidance  string
	IncludeGreeting bool
	AvoidRepeating  []string
	SearchQuery     *string
}

const maxContextLinesForShortConversation = 2

// PlanReply derives a Plan from an Analysis using the fixed decision
// rules in spec.md §4.4 Stage 4.
func PlanReply(a Analysis, gating Gating, currentMessage string, messageCount int) Plan {
	p := Plan{
		Tone:           a.Tone,
		AvoidRepeating: a.DecisionsMade,
	}

	switch {
	case a.Intent == "greeting":
		p.Action = "greet"
		p.LengthGuidance = "concise"
		p.IncludeGreeting = true
	case a.Intent == "question":
		p.Action = "answer_question"
		if len(a.QuestionsAsked) > 0 {
			p.KeyPoints = append([]string{a.QuestionsAsked[len(a.QuestionsAsked)-1]}, p.KeyPoints...)
		}
	case len(a.UnresolvedItems) > 0:
		p.Action = "clarify_missing_info"
	case len(a.QuestionsAsked) > 0:
		p.Action = "answer_question"
	case len(a.DecisionsMade) > 0:
		p.Action = "propose_next_step"
	default:
		p.Action = "discuss"
	}

	if p.LengthGuidance == "" {
		p.LengthGuidance = "medium"
	}

	if messageCount <= maxContextLinesForShortConversation || a.Intent == "greeting" {
		p.IncludeGreeting = true
	}

	if gating.NeedSearch {
		q := currentMessage
		p.SearchQuery = &q
	}

	return p
}
