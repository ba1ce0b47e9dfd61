// Package metrics provides process-wide counters, gauges, and memory
// sampling for the control plane's /metrics and /api/overview endpoints.
// Counters are multi-writer and commutative (add-only); gauges are
// multi-writer with last-write-wins, matching spec.md §5's concurrency
// model for the shared metrics state.
package metrics

import (
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Registry holds all counters and gauges for the process. Safe for
// concurrent use from any goroutine. The zero value is not usable; call
// New.
type Registry struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
	start    time.Time
	logger   *slog.Logger

	pressureMu  sync.Mutex
	callbacks   []func()
	gcHook      func()
	lastSampled time.Time
	lastWarned  time.Time
}

// New creates an empty Registry. logger may be nil (slog.Default is used).
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		start:    time.Now(),
		logger:   logger.With("component", "metrics"),
	}
}

// Inc increments a counter by delta (use a negative delta to decrement a
// gauge-like counter is not supported; use Gauge for that).
func (r *Registry) Inc(name string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
}

// Counter returns the current value of a counter.
func (r *Registry) Counter(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// SetGauge assigns a gauge's value (last write wins).
func (r *Registry) SetGauge(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
}

// Gauge returns a gauge's current value.
func (r *Registry) Gauge(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[name]
}

// Uptime returns the duration since the registry (i.e. the process) started.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.start).Truncate(time.Second)
}

// MemoryStats is a point-in-time snapshot of process memory.
type MemoryStats struct {
	RSSBytes       uint64  `json:"rss_bytes"`
	HeapUsedBytes  uint64  `json:"heap_used_bytes"`
	HeapTotalBytes uint64  `json:"heap_total_bytes"`
	ExternalBytes  uint64  `json:"external_bytes"`
	HeapRatio      float64 `json:"heap_ratio"`
}

// SampleMemory reads runtime.MemStats and returns a snapshot. HeapUsed is
// HeapAlloc (live heap objects); HeapTotal is HeapSys (memory obtained
// from the OS for the heap); External approximates non-heap runtime
// memory (stack + off-heap allocator bookkeeping).
func SampleMemory() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := MemoryStats{
		RSSBytes:       m.Sys,
		HeapUsedBytes:  m.HeapAlloc,
		HeapTotalBytes: m.HeapSys,
		ExternalBytes:  m.StackSys + m.MSpanSys + m.MCacheSys,
	}
	if stats.HeapTotalBytes > 0 {
		stats.HeapRatio = float64(stats.HeapUsedBytes) / float64(stats.HeapTotalBytes)
	}
	return stats
}

// Snapshot is the full exposition payload for /metrics.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Counters      map[string]int64   `json:"counters"`
	Gauges        map[string]float64 `json:"gauges"`
	Memory        MemoryStats        `json:"memory"`
}

// Snapshot returns a copy of all counters, gauges, uptime, and memory
// stats, safe to serialize without holding the registry lock.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	counters := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}
	gauges := make(map[string]float64, len(r.gauges))
	for k, v := range r.gauges {
		gauges[k] = v
	}
	r.mu.Unlock()

	return Snapshot{
		UptimeSeconds: r.Uptime().Seconds(),
		Counters:      counters,
		Gauges:        gauges,
		Memory:        SampleMemory(),
	}
}

// RegisterPressureCallback adds a function invoked whenever heap
// pressure is detected (see CheckMemoryPressure). The context-loader
// cache registers one of these to flush itself under pressure.
func (r *Registry) RegisterPressureCallback(cb func()) {
	r.pressureMu.Lock()
	defer r.pressureMu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// SetGCHook configures a function to invoke a manual GC when pressure is
// detected (typically runtime.GC or debug.FreeOSMemory). Optional.
func (r *Registry) SetGCHook(hook func()) {
	r.pressureMu.Lock()
	defer r.pressureMu.Unlock()
	r.gcHook = hook
}

// pressureThreshold and pressureCooldown match spec.md §5's memory
// pressure policy: heapUsed/heapTotal > 0.85 triggers pressure handling,
// rate-limited to once per cooldown window.
const (
	pressureThreshold = 0.85
	pressureCooldown  = 15 * time.Second
)

// CheckMemoryPressure samples memory and, if the heap ratio exceeds
// pressureThreshold and the cooldown has elapsed, logs a warning,
// increments memory.pressure_events, and invokes every registered
// pressure callback followed by the GC hook (if set). Intended to be
// called from a 60-second ticker (spec.md §5).
func (r *Registry) CheckMemoryPressure() MemoryStats {
	stats := SampleMemory()
	r.SetGauge("memory.heap_ratio", stats.HeapRatio)
	r.SetGauge("memory.rss_bytes", float64(stats.RSSBytes))

	if stats.HeapRatio <= pressureThreshold {
		return stats
	}

	r.pressureMu.Lock()
	defer r.pressureMu.Unlock()

	now := time.Now()
	if now.Sub(r.lastWarned) < pressureCooldown {
		return stats
	}
	r.lastWarned = now

	r.logger.Warn("memory pressure detected",
		"heap_ratio", stats.HeapRatio,
		"heap_used", stats.HeapUsedBytes,
		"heap_total", stats.HeapTotalBytes,
	)
	r.Inc("memory.pressure_events", 1)

	for _, cb := range r.callbacks {
		cb()
	}
	if r.gcHook != nil {
		r.gcHook()
	}
	return stats
}

// RunSampler starts a background ticker that calls CheckMemoryPressure
// every interval until ctx-equivalent stop channel is closed. Mirrors the
// teacher's background-ticker-with-reconnect shape in
// internal/mqtt/instance.go, generalized to a plain sampling loop.
func (r *Registry) RunSampler(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.CheckMemoryPressure()
		}
	}
}
