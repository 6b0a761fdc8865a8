package model

import "time"

// Message is one direct message row. Only IsRead changes after creation.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// Involves reports whether userID is the sender or the receiver of m.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Counterpart returns the other participant of m as seen by self.
func (m *Message) Counterpart(self string) string {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// Contact is a device contact reduced to a display name and a normalized phone number.
type Contact struct {
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
}

// MatchedUser is a registered user whose phone number appears in the caller's contacts.
type MatchedUser struct {
	UserID      string `json:"user_id"`
	FullName    string `json:"full_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	ContactName string `json:"contact_name"`
	PhoneNumber string `json:"phone_number"`
}

// Profile is the public part of a registered user.
type Profile struct {
	UserID      string `json:"user_id"`
	FullName    string `json:"full_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// EventKind enumerates change feed event kinds.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// ChangeEvent is a row-level change on the messages table.
// New is set for insert and update, Old for delete.
type ChangeEvent struct {
	Kind EventKind `json:"kind"`
	New  *Message  `json:"new,omitempty"`
	Old  *Message  `json:"old,omitempty"`
}

// Row returns whichever message the event carries.
func (e ChangeEvent) Row() *Message {
	if e.New != nil {
		return e.New
	}
	return e.Old
}
