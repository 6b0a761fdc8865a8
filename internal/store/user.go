package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/quickchat/internal/model"
)

// CreateUser inserts the account and its profile in one transaction.
// A taken email returns model.ErrConflict.
func (db *DB) CreateUser(u *User, p model.Profile) error {
	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
			u.ID, u.Email, u.PasswordHash, toMillis(u.CreatedAt)); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("email %q: %w", u.Email, model.ErrConflict)
			}
			return fmt.Errorf("insert user: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO profiles (user_id, full_name, avatar_url, phone_number, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			u.ID, p.FullName, p.AvatarURL, p.PhoneNumber, toMillis(u.CreatedAt)); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	})
}

// GetUserByEmail returns nil when no account uses email.
func (db *DB) GetUserByEmail(email string) (*User, error) {
	var (
		u       User
		created int64
	)
	err := db.QueryRow(`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

// CreateSession stores a bearer token.
func (db *DB) CreateSession(s *Session) error {
	_, err := db.Exec(`
		INSERT INTO auth_sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		s.Token, s.UserID, toMillis(s.CreatedAt), toMillis(s.ExpiresAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionUser resolves a token to its user id. Unknown and expired tokens
// return an empty id.
func (db *DB) SessionUser(token string, now time.Time) (string, error) {
	var userID string
	err := db.QueryRow(`SELECT user_id FROM auth_sessions WHERE token = ? AND expires_at > ?`,
		token, toMillis(now)).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return userID, err
}

// DeleteSession revokes a token. Revoking an unknown token is not an error.
func (db *DB) DeleteSession(token string) error {
	_, err := db.Exec(`DELETE FROM auth_sessions WHERE token = ?`, token)
	return err
}

// PruneSessions deletes expired tokens and returns how many were removed.
func (db *DB) PruneSessions(now time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM auth_sessions WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
