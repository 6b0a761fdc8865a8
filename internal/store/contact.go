package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/matheus3301/quickchat/internal/model"
)

// ReplaceContacts swaps userID's uploaded address book for contacts in one transaction.
// Repeated (phone, name) pairs collapse into one row.
func (db *DB) ReplaceContacts(userID string, contacts []model.Contact) error {
	now := time.Now().UnixMilli()
	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM user_contacts WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("clear contacts: %w", err)
		}
		stmt, err := tx.Prepare(`
			INSERT INTO user_contacts (user_id, contact_name, contact_phone, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id, contact_phone, contact_name) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare contact insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, c := range contacts {
			if _, err := stmt.Exec(userID, c.DisplayName, c.Phone, now); err != nil {
				return fmt.Errorf("insert contact %q: %w", c.Phone, err)
			}
		}
		return nil
	})
}

// ContactCount returns how many address book rows userID has uploaded.
func (db *DB) ContactCount(userID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM user_contacts WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// MatchContacts joins userID's address book with registered profiles on the phone
// number. The caller's own profile is never part of the result.
func (db *DB) MatchContacts(userID string) ([]model.MatchedUser, error) {
	rows, err := db.Query(`
		SELECT DISTINCT p.user_id, p.full_name, p.avatar_url, c.contact_name, c.contact_phone
		FROM user_contacts c
		JOIN profiles p ON p.phone_number = c.contact_phone
		WHERE c.user_id = ? AND p.user_id != ? AND p.phone_number != ''
		ORDER BY p.full_name, c.contact_phone, c.contact_name`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.MatchedUser
	for rows.Next() {
		var u model.MatchedUser
		if err := rows.Scan(&u.UserID, &u.FullName, &u.AvatarURL, &u.ContactName, &u.PhoneNumber); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
