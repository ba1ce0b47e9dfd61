// Package aipipeline implements the six-stage AI reply pipeline: thread
// resolution, context loading, conversation analysis, reply planning,
// message composition, and a final safety gate (spec.md §4.4).
package aipipeline

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mesbot/dispatch/internal/dispatcher"
	"github.com/mesbot/dispatch/internal/llm"
	"github.com/mesbot/dispatch/internal/metrics"
	"github.com/mesbot/dispatch/internal/store"
)

// needSearchMarker is a light heuristic for whether the composer
// should fold in external lookup results: present when the message
// asks to find or look something up rather than just continuing the
// conversation. The spec leaves gating.needSearch's own source
// unspecified, so it is derived here from the same message text the
// rest of the pipeline already has in hand.
var needSearchMarker = regexp.MustCompile(`(?i)\b(search|look up|find out|google)\b`)

// Config wires the pipeline's dependencies.
type Config struct {
	Store         *store.Store
	Metrics       *metrics.Registry
	Client        llm.Client // nil disables the pipeline entirely
	AnalyzerModel string
	ComposerModel string
	ContextLimit  int
	Logger        *slog.Logger
}

// Pipeline runs the six stages end to end for a single inbound
// message.
type Pipeline struct {
	store   *store.Store
	metrics *metrics.Registry
	logger  *slog.Logger

	contextLoader *ContextLoader
	analyzer      *Analyzer
	composer      *Composer
	safetyGate    *SafetyGate
}

// New builds a Pipeline. Client may be nil, in which case Reply always
// returns ("", false, nil) without calling an LLM — the handler wiring this
// into the dispatch chain is responsible for treating a nil client as
// "LLM disabled" (spec.md §4.5).
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:         cfg.Store,
		metrics:       cfg.Metrics,
		logger:        logger,
		contextLoader: NewContextLoader(cfg.Store, cfg.ContextLimit, cfg.Metrics),
		analyzer:      &Analyzer{Client: cfg.Client, Model: cfg.AnalyzerModel},
		composer:      &Composer{Client: cfg.Client, Model: cfg.ComposerModel},
		safetyGate:    &SafetyGate{Metrics: cfg.Metrics},
	}
}

// Enabled reports whether an LLM client is configured.
func (p *Pipeline) Enabled() bool {
	return p.composer.Client != nil
}

// Reply runs the full pipeline for a message on threadID from
// senderID. It returns (reply, true, nil) when a message should be
// sent (a disambiguation prompt is sent this way too), (_, false, nil)
// when the pipeline decided not to reply (e.g. a composer failure or a
// safety block with no safe alternative), and a non-nil error only for
// unexpected failures (store errors).
// Matches the internal/llm.Client call-lifecycle-plus-fallback idiom
// used by the teacher's internal/agent/loop.go.
func (p *Pipeline) Reply(ctx context.Context, threadID, senderID store.ID, text string) (string, bool, error) {
	if !p.Enabled() {
		return "", false, nil
	}

	resolution, err := ResolveThread(p.store, threadID, text, time.Now().UnixMilli())
	if err != nil {
		return "", false, err
	}
	if resolution.Disambiguation != "" {
		return resolution.Disambiguation, true, nil
	}
	targetThread := resolution.ThreadID

	renderedContext, err := p.contextLoader.Load(targetThread, senderID, text)
	if err != nil {
		return "", false, err
	}
	messageCount := strings.Count(renderedContext, "\n") + 1

	analysis := p.analyzer.Analyze(ctx, renderedContext, messageCount)

	gating := Gating{Reply: true, NeedSearch: needSearchMarker.MatchString(text)}
	plan := PlanReply(analysis, gating, text, messageCount)

	var searchText string // external search is an out-of-scope collaborator; left blank until wired
	senderName, _ := dispatcher.SenderName(ctx)

	reply, err := p.composer.Compose(ctx, renderedContext, searchText, senderName, plan)
	if err != nil {
		p.logger.Warn("message composer failed", "thread", targetThread, "error", err)
		return "", false, nil
	}

	result := p.safetyGate.Check(reply)
	if result.Blocked {
		p.logger.Info("safety gate blocked reply", "thread", targetThread, "reason", result.Reason)
		if result.SafeAlternative == "" {
			return "", false, nil
		}
		return result.SafeAlternative, true, nil
	}

	return reply, true, nil
}
