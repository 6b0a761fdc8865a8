package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/matheus3301/quickchat/internal/model"
)

const messageColumns = `id, sender_id, receiver_id, content, created_at, is_read`

func scanMessage(row interface{ Scan(...any) error }) (model.Message, error) {
	var (
		m       model.Message
		created int64
	)
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &created, &m.IsRead); err != nil {
		return m, err
	}
	m.CreatedAt = fromMillis(created)
	return m, nil
}

func collectMessages(rows *sql.Rows) ([]model.Message, error) {
	defer func() { _ = rows.Close() }()
	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertMessage stores a new message. An unknown sender or receiver returns
// model.ErrNotFound and a reused id returns model.ErrConflict.
func (db *DB) InsertMessage(m *model.Message) error {
	_, err := db.Exec(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SenderID, m.ReceiverID, m.Content, toMillis(m.CreatedAt), m.IsRead)
	switch {
	case err == nil:
		return nil
	case isForeignKeyViolation(err):
		return fmt.Errorf("insert message: participant %w", model.ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("insert message %s: %w", m.ID, model.ErrConflict)
	default:
		return fmt.Errorf("insert message: %w", err)
	}
}

// GetMessage returns nil when id does not exist.
func (db *DB) GetMessage(id string) (*model.Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessagesForUser returns every message userID sent or received, oldest first.
func (db *DB) ListMessagesForUser(userID string) ([]model.Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE sender_id = ? OR receiver_id = ?
		ORDER BY created_at, id`, userID, userID)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// MarkRead flags a message as read on behalf of its receiver and returns the row.
// Messages addressed to someone else are left alone and return model.ErrForbidden.
func (db *DB) MarkRead(id, receiverID string) (*model.Message, error) {
	var out *model.Message
	err := db.withTx(func(tx *sql.Tx) error {
		m, err := scanMessage(tx.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("message %s: %w", id, model.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if m.ReceiverID != receiverID {
			return fmt.Errorf("message %s: %w", id, model.ErrForbidden)
		}
		if _, err := tx.Exec(`UPDATE messages SET is_read = 1 WHERE id = ? AND receiver_id = ?`, id, receiverID); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		m.IsRead = true
		out = &m
		return nil
	})
	return out, err
}

// DeleteMessage removes a message on behalf of its sender and returns the removed row.
func (db *DB) DeleteMessage(id, senderID string) (*model.Message, error) {
	var out *model.Message
	err := db.withTx(func(tx *sql.Tx) error {
		m, err := scanMessage(tx.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("message %s: %w", id, model.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if m.SenderID != senderID {
			return fmt.Errorf("message %s: %w", id, model.ErrForbidden)
		}
		if _, err := tx.Exec(`DELETE FROM messages WHERE id = ? AND sender_id = ?`, id, senderID); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		out = &m
		return nil
	})
	return out, err
}

// SearchMessages returns userID's messages whose content contains query, newest first.
func (db *DB) SearchMessages(userID, query string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = ? OR receiver_id = ?) AND content LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, userID, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// MessageCount returns the total number of stored messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

func escapeLike(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			b = append(b, '\\')
		}
		b = append(b, s[i])
	}
	return string(b)
}
