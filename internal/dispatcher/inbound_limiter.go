package dispatcher

import (
	"sync"
	"time"
)

// inboundRateWindow and inboundCleanupInterval mirror the teacher's
// signal bridge's rateWindow/cleanupInterval constants, generalized
// into an optional inbound guard distinct from the messenger adapter's
// mandatory outbound token bucket (spec.md §4.1 covers only sends).
const (
	inboundRateWindow      = time.Minute
	inboundCleanupInterval = 10 * time.Minute
)

// inboundLimiter throttles inbound messages per sender using a sliding
// window. Disabled (always allows) when limit <= 0, matching
// SPEC_FULL's "optional, default-off" framing.
type inboundLimiter struct {
	mu          sync.Mutex
	limit       int
	senderTimes map[string][]time.Time
	lastCleanup time.Time
}

func newInboundLimiter(limit int) *inboundLimiter {
	return &inboundLimiter{
		limit:       limit,
		senderTimes: make(map[string][]time.Time),
		lastCleanup: time.Now(),
	}
}

// allow reports whether sender may be processed now, recording the
// attempt if so.
func (l *inboundLimiter) allow(sender string) bool {
	if l.limit <= 0 {
		return true
	}

	now := time.Now()
	cutoff := now.Add(-inboundRateWindow)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeCleanupLocked(now)

	timestamps := l.senderTimes[sender]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= l.limit {
		l.senderTimes[sender] = valid
		return false
	}

	l.senderTimes[sender] = append(valid, now)
	return true
}

// maybeCleanupLocked evicts senders with no recent activity, bounding
// map growth under a long-running process with many distinct senders.
// Must be called with mu held.
func (l *inboundLimiter) maybeCleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < inboundCleanupInterval {
		return
	}
	l.lastCleanup = now

	cutoff := now.Add(-inboundRateWindow)
	for sender, timestamps := range l.senderTimes {
		valid := timestamps[:0]
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				valid = append(valid, ts)
			}
		}
		if len(valid) == 0 {
			delete(l.senderTimes, sender)
		} else {
			l.senderTimes[sender] = valid
		}
	}
}
