package aipipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/mesbot/dispatch/internal/metrics"
	"github.com/mesbot/dispatch/internal/store"
)

const (
	defaultContextMessageLimit = 50
	contextCacheTTL            = 3 * time.Minute
	contextCacheCap            = 15
)

type contextCacheEntry struct {
	rendered string
	loadedAt time.Time
}

// ContextLoader loads and formats recent thread history for the
// conversation analyzer and message composer (spec.md §4.4 Stage 2). A
// per-thread cache avoids re-querying and re-rendering the store on
// every message; it is flushed wholesale under heap pressure via a
// registered metrics callback, mirroring how internal/mqtt's
// DailyTokens accumulator resets on a fixed schedule.
type ContextLoader struct {
	store        *store.Store
	messageLimit int

	mu    sync.Mutex
	cache map[store.ID]contextCacheEntry
}

// NewContextLoader builds a context loader and, if metrics is non-nil,
// registers a flush callback for heap-pressure events.
func NewContextLoader(st *store.Store, messageLimit int, metricsReg *metrics.Registry) *ContextLoader {
	if messageLimit <= 0 {
		messageLimit = defaultContextMessageLimit
	}
	cl := &ContextLoader{
		store:        st,
		messageLimit: messageLimit,
		cache:        make(map[store.ID]contextCacheEntry),
	}
	if metricsReg != nil {
		metricsReg.RegisterPressureCallback(cl.Flush)
	}
	return cl
}

// Flush discards the entire cache.
func (c *ContextLoader) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[store.ID]contextCacheEntry)
}

// Invalidate drops the cached entry for a single thread.
func (c *ContextLoader) Invalidate(threadID store.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, threadID)
}

// Load returns the pre-rendered "[senderId]: text" history for
// threadID, using the cache when fresh. The current message is
// appended to the cached string by concatenation rather than a
// re-render of the whole history.
func (c *ContextLoader) Load(threadID store.ID, currentSenderID store.ID, currentText string) (string, error) {
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.cache[threadID]
	c.mu.Unlock()

	if ok && now.Sub(entry.loadedAt) < contextCacheTTL {
		return appendCurrentMessage(entry.rendered, currentSenderID, currentText), nil
	}

	rendered, err := c.render(threadID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if len(c.cache) >= contextCacheCap {
		c.evictOldestLocked()
	}
	c.cache[threadID] = contextCacheEntry{rendered: rendered, loadedAt: now}
	c.mu.Unlock()

	return appendCurrentMessage(rendered, currentSenderID, currentText), nil
}

func (c *ContextLoader) render(threadID store.ID) (string, error) {
	messages, err := c.store.GetMessages(threadID, c.messageLimit)
	if err != nil {
		return "", err
	}

	// GetMessages returns newest-first; reverse into chronological order.
	var lines []string
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Text == nil || strings.TrimSpace(*m.Text) == "" {
			continue
		}
		lines = append(lines, "["+string(m.SenderID)+"]: "+*m.Text)
	}
	return strings.Join(lines, "\n"), nil
}

func (c *ContextLoader) evictOldestLocked() {
	var oldestID store.ID
	var oldestAt time.Time
	first := true
	for id, e := range c.cache {
		if first || e.loadedAt.Before(oldestAt) {
			oldestID, oldestAt, first = id, e.loadedAt, false
		}
	}
	if !first {
		delete(c.cache, oldestID)
	}
}

func appendCurrentMessage(rendered string, senderID store.ID, text string) string {
	line := "[" + string(senderID) + "]: " + text
	if rendered == "" {
		return line
	}
	return rendered + "\n" + line
}
