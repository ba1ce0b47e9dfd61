package store

import "database/sql"

// GetSetting returns the value for key, or (nil, nil) if unset.
func (s *Store) GetSetting(key string) (*string, error) {
	var value string
	err := s.stmts.getSetting.QueryRow(key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// SetSetting upserts a key/value pair in the settings table, used both
// internally (schema_version) and by commands/control-plane features
// that need small pieces of persisted state.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.stmts.setSetting.Exec(key, value)
	return err
}

// Stats returns row counts for the control plane's overview endpoint
// (spec.md §4.3).
func (s *Store) Stats() (Stats, error) {
	var st Stats
	if err := s.stmts.statsMessages.QueryRow().Scan(&st.Messages); err != nil {
		return Stats{}, err
	}
	if err := s.stmts.statsThreads.QueryRow().Scan(&st.Threads); err != nil {
		return Stats{}, err
	}
	if err := s.stmts.statsUsers.QueryRow().Scan(&st.Users); err != nil {
		return Stats{}, err
	}
	return st, nil
}
