package store

import (
	"context"
	"time"
)

const (
	maintenanceInterval = 30 * time.Minute
	messageRetention    = 7 * 24 * time.Hour
)

// RunMaintenance runs the periodic housekeeping loop described in
// spec.md §4.3: every 30 minutes, truncate the WAL file back into the
// main database and delete messages older than the 7-day retention
// window. Failures are logged and never fatal — a missed checkpoint or
// a failed prune just tries again next cycle.
func (s *Store) RunMaintenance(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runMaintenanceOnce()
		}
	}
}

func (s *Store) runMaintenanceOnce() {
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		s.logger.Warn("wal checkpoint failed", "error", err)
	}

	cutoffMs := time.Now().Add(-messageRetention).UnixMilli()
	res, err := s.db.Exec(`DELETE FROM messages WHERE timestamp < ?`, cutoffMs)
	if err != nil {
		s.logger.Warn("message retention prune failed", "error", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Info("pruned expired messages", "count", n)
	}
}
