package prompts

import "fmt"

// analyzerSystemTemplate demands a strict JSON object matching the
// conversation-analyzer schema (spec.md §4.4 Stage 3). No prose, no
// fenced code block — callers still tolerate one defensively when
// parsing the response.
const analyzerSystemTemplate = `You analyze a chat conversation and respond with ONLY a JSON object, no other text.

Schema:
{
  "intent": "question" | "request" | "discussion" | "greeting" | "other",
  "tone": "formal" | "casual" | "mixed",
  "questionsAsked": string[],
  "decisionsMade": string[],
  "unresolvedItems": string[],
  "entities": {"people": string[], "dates": string[], "products": string[], "numbers": string[]},
  "summary": string,
  "confidence": number between 0 and 1
}

Conversation:
%s

Respond with the JSON object only.`

// AnalyzerPrompt returns the fully interpolated analyzer system prompt
// for a pre-rendered conversation context.
func AnalyzerPrompt(context string) string {
	return fmt.Sprintf(analyzerSystemTemplate, context)
}
