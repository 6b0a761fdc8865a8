package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/quickchat/internal/model"
)

const profileColumns = `user_id, full_name, avatar_url, phone_number`

func scanProfile(row interface{ Scan(...any) error }) (model.Profile, error) {
	var p model.Profile
	err := row.Scan(&p.UserID, &p.FullName, &p.AvatarURL, &p.PhoneNumber)
	return p, err
}

// GetProfile returns nil when userID has no profile.
func (db *DB) GetProfile(userID string) (*model.Profile, error) {
	p, err := scanProfile(db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns every profile ordered by name.
func (db *DB) ListProfiles() ([]model.Profile, error) {
	rows, err := db.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY full_name COLLATE NOCASE, user_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProfile sets the editable fields of userID's profile.
func (db *DB) UpdateProfile(userID, fullName, avatarURL string) (*model.Profile, error) {
	res, err := db.Exec(`
		UPDATE profiles SET full_name = ?, avatar_url = ?, updated_at = ? WHERE user_id = ?`,
		fullName, avatarURL, time.Now().UnixMilli(), userID)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("profile %s: %w", userID, model.ErrNotFound)
	}
	return db.GetProfile(userID)
}
