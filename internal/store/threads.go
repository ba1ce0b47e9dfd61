package store

import "database/sql"

// EnsureThread upserts a thread, creating it with defaults (prefix "!",
// language "vi", enabled true) on first reference, and bumping
// updated_at on every call thereafter (spec.md §3 lifecycle). isGroup
// is only consulted on insert; it is not mutated afterward since a
// thread's group-ness never changes for its lifetime.
func (s *Store) EnsureThread(id ID, name *string, isGroup bool) error {
	var n any
	if name != nil {
		n = *name
	}
	_, err := s.stmts.ensureThread.Exec(string(id), n, isGroup)
	return err
}

// GetThread returns the thread, or (nil, nil) if it does not exist.
func (s *Store) GetThread(id ID) (*Thread, error) {
	row := s.stmts.getThread.QueryRow(string(id))
	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanThread(row *sql.Row) (*Thread, error) {
	var t Thread
	var id string
	var isGroup, enabled int
	if err := row.Scan(&id, &t.Name, &isGroup, &t.Prefix, &t.Language, &enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ID = ID(id)
	t.IsGroup = isGroup != 0
	t.Enabled = enabled != 0
	return &t, nil
}

// ListThreads returns threads ordered by updated_at descending.
func (s *Store) ListThreads(limit, offset int) ([]Thread, error) {
	rows, err := s.stmts.listThreads.Query(limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		var t Thread
		var id string
		var isGroup, enabled int
		if err := rows.Scan(&id, &t.Name, &isGroup, &t.Prefix, &t.Language, &enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.ID = ID(id)
		t.IsGroup = isGroup != 0
		t.Enabled = enabled != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetThreadPrefix updates a thread's command prefix.
func (s *Store) SetThreadPrefix(id ID, prefix string) error {
	_, err := s.stmts.setThreadPrefix.Exec(prefix, string(id))
	return err
}

// SetThreadEnabled toggles whether the bot responds in a thread.
func (s *Store) SetThreadEnabled(id ID, enabled bool) error {
	_, err := s.stmts.setThreadEnabled.Exec(enabled, string(id))
	return err
}

// TouchThread bumps updated_at without otherwise mutating the row.
func (s *Store) TouchThread(id ID) error {
	_, err := s.stmts.touchThread.Exec(string(id))
	return err
}
