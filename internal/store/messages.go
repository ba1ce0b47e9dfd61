package store

// SaveMessage persists a message. Idempotent on id: a second insert of
// the same id is a silent no-op (ON CONFLICT DO NOTHING), since the
// dispatcher's dedup stage is the authoritative gate and a duplicate
// reaching the store should not be an error (spec.md §4.3 invariant 4:
// M.id appears at most once).
func (s *Store) SaveMessage(m Message) error {
	var text any
	if m.Text != nil {
		text = *m.Text
	}
	_, err := s.stmts.saveMessage.Exec(m.ID, string(m.ThreadID), string(m.SenderID), text, m.IsE2EE, m.TimestampMs)
	return err
}

// GetMessages returns up to limit messages for threadID, newest-first
// (spec.md §4.3).
func (s *Store) GetMessages(threadID ID, limit int) ([]Message, error) {
	rows, err := s.stmts.getMessages.Query(string(threadID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var threadID, senderID string
		var text *string
		if err := rows.Scan(&m.ID, &threadID, &senderID, &text, &m.IsE2EE, &m.TimestampMs); err != nil {
			return nil, err
		}
		m.ThreadID = ID(threadID)
		m.SenderID = ID(senderID)
		m.Text = text
		out = append(out, m)
	}
	return out, rows.Err()
}
