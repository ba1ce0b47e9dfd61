package aipipeline

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/mesbot/dispatch/internal/llm"
	"github.com/mesbot/dispatch/internal/prompts"
)

const (
	heuristicMessageCountCeiling = 3
	analyzerTemperature          = 0.3
	heuristicConfidence          = 0.5
)

// Entities holds the free-text extractions the analyzer pulls out of a
// conversation.
type Entities struct {
	People   []string `json:"people"`
	Dates    []string `json:"dates"`
	Products []string `json:"products"`
	Numbers  []string `json:"numbers"`
}

// Analysis is Stage 3's output (spec.md §4.4 Stage 3).
type Analysis struct {
	Intent          string   `json:"intent"`
	Tone            string   `json:"tone"`
	QuestionsAsked  []string `json:"questionsAsked"`
	DecisionsMade   []string `json:"decisionsMade"`
	UnresolvedItems []string `json:"unresolvedItems"`
	Entities        Entities `json:"entities"`
	Summary         string   `json:"summary"`
	Confidence      float64  `json:"confidence"`
}

var (
	questionMarker = regexp.MustCompile(`\?`)
	greetingMarker = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good (morning|afternoon|evening)|chào)\b`)
	formalMarker   = regexp.MustCompile(`(?i)\b(please|kindly|would you|could you|xin|vui lòng)\b`)
	casualMarker   = regexp.MustCompile(`(?i)\b(lol|yeah|gonna|wanna|haha|ừ|ok|okie)\b`)
	numberPattern  = regexp.MustCompile(`\d+[\d.,]*`)
)

// Analyzer produces a conversation Analysis, using the LLM when
// available and falling back to a regex heuristic for short contexts,
// when the LLM is disabled, or when the LLM call fails (spec.md §4.4
// Stage 3).
type Analyzer struct {
	Client llm.Client
	Model  string
}

// Analyze inspects the rendered context plus the current message.
// messageCount is the number of lines in context (used to decide
// whether the context is too short to bother calling the LLM).
func (a *Analyzer) Analyze(ctx context.Context, renderedContext string, messageCount int) Analysis {
	if a.Client == nil || messageCount <= heuristicMessageCountCeiling {
		return heuristicAnalyze(renderedContext)
	}

	resp, err := a.Client.Chat(ctx, a.Model,
		[]llm.Message{{Role: "user", Content: prompts.AnalyzerPrompt(renderedContext)}},
		llm.Options{Temperature: analyzerTemperature, JSONMode: true},
	)
	if err != nil {
		return heuristicAnalyze(renderedContext)
	}

	analysis, ok := parseAnalysis(resp.Message.Content)
	if !ok {
		return heuristicAnalyze(renderedContext)
	}
	return analysis
}

// parseAnalysis tolerates a response fenced in a ```json code block.
func parseAnalysis(raw string) (Analysis, bool) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var a Analysis
	if err := json.Unmarshal([]byte(trimmed), &a); err != nil {
		return Analysis{}, false
	}
	return a, true
}

func heuristicAnalyze(renderedContext string) Analysis {
	lines := strings.Split(renderedContext, "\n")
	var lastLine string
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			lastLine = lines[i]
			break
		}
	}

	text := lastLine
	if strings.HasPrefix(text, "[") {
		if i := strings.Index(text, "]: "); i >= 0 {
			text = text[i+3:]
		}
	}

	intent := "other"
	switch {
	case greetingMarker.MatchString(text):
		intent = "greeting"
	case questionMarker.MatchString(text):
		intent = "question"
	case formalMarker.MatchString(text), casualMarker.MatchString(text):
		intent = "discussion"
	}

	tone := "mixed"
	switch {
	case formalMarker.MatchString(renderedContext) && !casualMarker.MatchString(renderedContext):
		tone = "formal"
	case casualMarker.MatchString(renderedContext) && !formalMarker.MatchString(renderedContext):
		tone = "casual"
	}

	var questions []string
	for _, l := range lines {
		if questionMarker.MatchString(l) {
			questions = append(questions, strings.TrimSpace(l))
		}
	}

	return Analysis{
		Intent:         intent,
		Tone:           tone,
		QuestionsAsked: questions,
		Entities:       Entities{Numbers: numberPattern.FindAllString(renderedContext, -1)},
		Summary:        lastLine,
		Confidence:     heuristicConfidence,
	}
}
