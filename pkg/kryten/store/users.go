package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrUserNotFound is returned when a name lookup matches nobody.
var ErrUserNotFound = errors.New("user not found")

// User is a known Telegram user.
type User struct {
	UserID    int64
	Username  string
	FirstName string
}

// UpsertUser records or refreshes a user. Existing non-empty fields are
// kept when the update carries empty values.
func (s *Store) UpsertUser(userID int64, username, firstName string) error {
	_, err := s.db.Exec(`
		INSERT INTO users (user_id, username, first_name)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = COALESCE(NULLIF(excluded.username, ''), users.username),
			first_name = COALESCE(NULLIF(excluded.first_name, ''), users.first_name)
	`, userID, username, firstName)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", userID, err)
	}
	return nil
}

// FindUserByName resolves a first name or username to a user,
// case-insensitively. Returns ErrUserNotFound when no user matches.
func (s *Store) FindUserByName(name string) (*User, error) {
	row := s.db.QueryRow(`
		SELECT user_id, COALESCE(username, ''), COALESCE(first_name, '')
		FROM users
		WHERE LOWER(first_name) = LOWER(?) OR LOWER(username) = LOWER(?)
		LIMIT 1
	`, name, name)

	var u User
	if err := row.Scan(&u.UserID, &u.Username, &u.FirstName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user %q: %w", name, err)
	}
	return &u, nil
}
