package aipipeline

import (
	"regexp"
	"strings"

	"github.com/mesbot/dispatch/internal/store"
)

// crossThreadReference matches phrases (English + Vietnamese) that
// indicate the sender wants the reply delivered to a different thread
// than the one the message arrived on (spec.md §4.4 Stage 1).
var crossThreadReference = regexp.MustCompile(`(?i)(reply there|send (it |that )?to that thread|post (it |that )?(there|over there)|trả lời trong đó|gửi (vào|sang) (đó|thread đó))`)

const (
	thisThreadConfidence = 1.0
	dropScoreThreshold   = 0.4
	confidentThreshold   = 0.75
	recentWithinHour     = 0.2
	recentWithinDay      = 0.1
	groupBonus           = 0.1
	wordOverlapBonus     = 0.3
	fullNameMatchBonus   = 0.4

	// maxResolverCandidates bounds how many threads Stage 1 scores when
	// looking for a cross-thread reference; large enough to cover any
	// realistic deployment without an unbounded scan.
	maxResolverCandidates = 500
)

// ThreadResolution is Stage 1's output: either a confident target
// thread, or a disambiguation prompt listing the top candidates.
type ThreadResolution struct {
	ThreadID       store.ID
	Confidence     float64
	Disambiguation string // non-empty when confidence is too low to proceed silently
}

// ResolveThread decides whether text references a thread other than
// currentThreadID, and if so scores known threads to find the best
// match. Disabled threads and the current thread itself are excluded
// from candidacy.
func ResolveThread(st *store.Store, currentThreadID store.ID, text string, nowMs int64) (ThreadResolution, error) {
	if !crossThreadReference.MatchString(text) {
		return ThreadResolution{ThreadID: currentThreadID, Confidence: thisThreadConfidence}, nil
	}

	threads, err := st.ListThreads(maxResolverCandidates, 0)
	if err != nil {
		return ThreadResolution{}, err
	}

	words := strings.Fields(strings.ToLower(text))

	var candidates []scoredThread
	for _, th := range threads {
		if th.ID == currentThreadID || !th.Enabled {
			continue
		}
		candidates = append(candidates, scoredThread{thread: th, score: scoreThread(th, words, nowMs)})
	}

	var kept []scoredThread
	for _, c := range candidates {
		if c.score > dropScoreThreshold {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return ThreadResolution{ThreadID: currentThreadID, Confidence: thisThreadConfidence}, nil
	}

	best := kept[0]
	for _, c := range kept[1:] {
		if c.score > best.score {
			best = c
		}
	}
	if best.score >= confidentThreshold {
		return ThreadResolution{ThreadID: best.thread.ID, Confidence: best.score}, nil
	}

	// Not confident enough: surface up to 3 candidates, highest score first.
	sortByScoreDesc(kept)
	top := kept
	if len(top) > 3 {
		top = top[:3]
	}
	var names []string
	for _, c := range top {
		name := string(c.thread.ID)
		if c.thread.Name != nil && *c.thread.Name != "" {
			name = *c.thread.Name
		}
		names = append(names, name)
	}
	return ThreadResolution{
		ThreadID:       currentThreadID,
		Confidence:     best.score,
		Disambiguation: "Which thread did you mean? " + strings.Join(names, ", "),
	}, nil
}

type scoredThread struct {
	thread store.Thread
	score  float64
}

func scoreThread(th store.Thread, queryWords []string, nowMs int64) float64 {
	score := 0.0

	if th.Name != nil && *th.Name != "" {
		name := strings.ToLower(*th.Name)
		fullText := strings.ToLower(strings.Join(queryWords, " "))
		if strings.Contains(fullText, name) {
			score += fullNameMatchBonus
		}
		for _, w := range queryWords {
			if w != "" && strings.Contains(name, w) {
				score += wordOverlapBonus
			}
		}
	}

	ageMs := nowMs - th.UpdatedAt*1000 // updated_at is stored in unix seconds
	switch {
	case ageMs < int64(60*60*1000):
		score += recentWithinHour
	case ageMs < int64(24*60*60*1000):
		score += recentWithinDay
	}

	if th.IsGroup {
		score += groupBonus
	}

	return score
}

func sortByScoreDesc(items []scoredThread) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].score > items[j-1].score; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
