package store

import "database/sql"

// EnsureUser inserts a user row on first contact (spec.md §3). Existing
// rows are left untouched; callers that learn an updated display name
// should call SetProfile explicitly rather than relying on EnsureUser
// to overwrite it.
func (s *Store) EnsureUser(id ID, name *string) error {
	var n any
	if name != nil {
		n = *name
	}
	_, err := s.stmts.ensureUser.Exec(string(id), n)
	return err
}

// GetUser returns the user, or (nil, nil) if unknown.
func (s *Store) GetUser(id ID) (*User, error) {
	row := s.stmts.getUser.QueryRow(string(id))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var id string
	var isAdmin, isBlocked int
	if err := row.Scan(&id, &u.Name, &u.Username, &u.ProfilePicture, &isAdmin, &isBlocked, &u.FirstSeen, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.ID = ID(id)
	u.IsAdmin = isAdmin != 0
	u.IsBlocked = isBlocked != 0
	return &u, nil
}

// ListUsers returns users ordered by first_seen descending.
func (s *Store) ListUsers(limit, offset int) ([]User, error) {
	rows, err := s.stmts.listUsers.Query(limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var id string
		var isAdmin, isBlocked int
		if err := rows.Scan(&id, &u.Name, &u.Username, &u.ProfilePicture, &isAdmin, &isBlocked, &u.FirstSeen, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.ID = ID(id)
		u.IsAdmin = isAdmin != 0
		u.IsBlocked = isBlocked != 0
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetAdmin grants or revokes admin status, used by the control plane
// and by the admin-only command set (spec.md §4.4, permission gating).
func (s *Store) SetAdmin(id ID, admin bool) error {
	_, err := s.stmts.setAdmin.Exec(admin, string(id))
	return err
}

// SetBlocked marks a user as blocked; a blocked sender's messages are
// dropped before reaching the dispatcher's handler stage (spec.md §4.2).
func (s *Store) SetBlocked(id ID, blocked bool) error {
	_, err := s.stmts.setBlocked.Exec(blocked, string(id))
	return err
}

// IsBlocked reports whether id is currently blocked. An unknown user is
// never blocked.
func (s *Store) IsBlocked(id ID) (bool, error) {
	var blocked int
	err := s.stmts.isBlocked.QueryRow(string(id)).Scan(&blocked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return blocked != 0, nil
}

// SetProfile updates a user's display name, username, and profile
// picture URL as learned from platform metadata.
func (s *Store) SetProfile(id ID, name, username, profilePicture *string) error {
	_, err := s.stmts.setProfile.Exec(name, username, profilePicture, string(id))
	return err
}
