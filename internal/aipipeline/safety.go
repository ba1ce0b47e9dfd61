package aipipeline

import (
	"regexp"

	"github.com/mesbot/dispatch/internal/metrics"
)

const maxReplyLength = 5000

// sensitivePatterns flag reply text that leaks data it should never
// contain: phone numbers, emails, card numbers, SSNs, and anything
// that looks like a credential being echoed back.
var sensitivePatterns = regexp.MustCompile(`(?i)(\+?\d[\d\-\s]{7,}\d|[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}|\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b|\b\d{3}-\d{2}-\d{4}\b|password\s*:|secret\s*:|api[-_]?key|token\s*:)`)

// blockedPatterns flag content the bot must never send regardless of
// what produced it.
var blockedPatterns = regexp.MustCompile(`(?i)(how to (make|build) a (bomb|weapon|gun)|step[- ]by[- ]step.*(hack|exploit)|how to (kill|harm) (myself|yourself)|suicide method)`)

const safeAlternative = "I'm not able to send that message. Let me know if I can help with something else."

// SafetyResult is Stage 6's verdict (spec.md §4.4 Stage 6).
type SafetyResult struct {
	Blocked         bool
	Reason          string
	SafeAlternative string
}

// SafetyGate synchronously scans a candidate reply before it is sent.
type SafetyGate struct {
	Metrics *metrics.Registry
}

// Check scans text and reports whether it must be blocked.
func (g *SafetyGate) Check(text string) SafetyResult {
	switch {
	case len(text) > maxReplyLength:
		return g.block("message exceeds maximum length")
	case blockedPatterns.MatchString(text):
		return g.block("message matches a blocked content pattern")
	case sensitivePatterns.MatchString(text):
		return g.block("message appears to contain sensitive data")
	default:
		return SafetyResult{}
	}
}

func (g *SafetyGate) block(reason string) SafetyResult {
	if g.Metrics != nil {
		g.Metrics.Inc("safety_blocks_count", 1)
	}
	return SafetyResult{Blocked: true, Reason: reason, SafeAlternative: safeAlternative}
}
