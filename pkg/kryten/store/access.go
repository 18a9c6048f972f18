package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Access statuses. Approved and denied are terminal.
const (
	AccessPending  = "pending"
	AccessApproved = "approved"
	AccessDenied   = "denied"
)

// AccessStatus returns a user's recorded access status, or "" when the
// user has never requested access.
func (s *Store) AccessStatus(userID int64) (string, error) {
	var status string
	err := s.db.QueryRow("SELECT status FROM access_control WHERE user_id = ?", userID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query access status for %d: %w", userID, err)
	}
	return status, nil
}

// RequestAccess records a pending access request. Returns true when a new
// request was created; false when one already exists, leaving any
// resolved status untouched.
func (s *Store) RequestAccess(userID int64, firstName, username string) (bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO access_control (user_id, first_name, username, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, firstName, username, AccessPending)
	if err != nil {
		return false, fmt.Errorf("request access for %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("request access for %d: %w", userID, err)
	}
	return n > 0, nil
}

// ApproveAccess marks a pending request approved.
func (s *Store) ApproveAccess(userID int64) error {
	return s.resolveAccess(userID, AccessApproved)
}

// DenyAccess marks a pending request denied.
func (s *Store) DenyAccess(userID int64) error {
	return s.resolveAccess(userID, AccessDenied)
}

func (s *Store) resolveAccess(userID int64, status string) error {
	_, err := s.db.Exec(`
		UPDATE access_control
		SET status = ?, resolved_at = datetime('now')
		WHERE user_id = ?
	`, status, userID)
	if err != nil {
		return fmt.Errorf("set access %s for %d: %w", status, userID, err)
	}
	return nil
}
