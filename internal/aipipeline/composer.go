package aipipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/mesbot/dispatch/internal/llm"
	"github.com/mesbot/dispatch/internal/prompts"
)

// ErrUnavailable is returned when the composer is invoked without an
// LLM configured (spec.md §4.4 Stage 5).
var ErrUnavailable = errors.New("aipipeline: llm not configured")

const composerTemperature = 0.8

// Composer drafts the reply message from a Plan.
type Composer struct {
	Client llm.Client
	Model  string
}

// Compose calls the LLM with a fixed-template prompt built from plan
// and returns the trimmed reply body. senderName, when known, lets the
// composer address the user by name (spec.md §4 supplemented
// contact-name resolution feature); pass "" when unresolved.
func (c *Composer) Compose(ctx context.Context, renderedContext, searchText, senderName string, plan Plan) (string, error) {
	if c.Client == nil {
		return "", ErrUnavailable
	}

	prompt := prompts.ComposerPrompt(prompts.ComposerInput{
		Context:         renderedContext,
		SearchText:      searchText,
		Action:          plan.Action,
		Tone:            plan.Tone,
		LengthGuidance:  plan.LengthGuidance,
		KeyPoints:       plan.KeyPoints,
		AvoidRepeating:  plan.AvoidRepeating,
		IncludeGreeting: plan.IncludeGreeting,
		SenderName:      senderName,
	})

	resp, err := c.Client.Chat(ctx, c.Model,
		[]llm.Message{{Role: "user", Content: prompt}},
		llm.Options{Temperature: composerTemperature},
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}
