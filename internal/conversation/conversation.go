// Package conversation derives per-counterpart views from the message store.
// Every function here is a pure read over a snapshot; nothing is cached.
package conversation

import (
	"sort"
	"strings"

	"github.com/matheus3301/quickchat/internal/model"
)

// SelfPrefix is prepended to the roster preview when the signed-in user sent the last message.
const SelfPrefix = "You: "

// ChatMessages returns the messages exchanged between self and counterpart, keeping
// the order of msgs (the store hands them out sorted by CreatedAt).
func ChatMessages(msgs []model.Message, self, counterpart string) []model.Message {
	var out []model.Message
	for _, m := range msgs {
		if inChat(m, self, counterpart) {
			out = append(out, m)
		}
	}
	return out
}

// UnreadCount counts messages from counterpart to self that are not read yet.
func UnreadCount(msgs []model.Message, self, counterpart string) int {
	n := 0
	for _, m := range msgs {
		if m.SenderID == counterpart && m.ReceiverID == self && !m.IsRead {
			n++
		}
	}
	return n
}

// LastMessage returns the most recent message of the conversation, if any.
func LastMessage(msgs []model.Message, self, counterpart string) (model.Message, bool) {
	var (
		last  model.Message
		found bool
	)
	for _, m := range msgs {
		if !inChat(m, self, counterpart) {
			continue
		}
		if !found || !m.CreatedAt.Before(last.CreatedAt) {
			last, found = m, true
		}
	}
	return last, found
}

func inChat(m model.Message, self, counterpart string) bool {
	return (m.SenderID == self && m.ReceiverID == counterpart) ||
		(m.SenderID == counterpart && m.ReceiverID == self)
}

// Source is anything that can hand out the current messages of a user.
type Source interface {
	Snapshot() []model.Message
	Self() string
}

// ViewModel answers conversation queries against the live content of a Source.
type ViewModel struct {
	src Source
}

func NewViewModel(src Source) *ViewModel {
	return &ViewModel{src: src}
}

func (v *ViewModel) GetChatMessages(counterpart string) []model.Message {
	return ChatMessages(v.src.Snapshot(), v.src.Self(), counterpart)
}

func (v *ViewModel) GetUnreadCount(counterpart string) int {
	return UnreadCount(v.src.Snapshot(), v.src.Self(), counterpart)
}

func (v *ViewModel) GetLastMessage(counterpart string) (model.Message, bool) {
	return LastMessage(v.src.Snapshot(), v.src.Self(), counterpart)
}

// Roster builds the chat list for self.
func (v *ViewModel) Roster(profiles []model.Profile) []Row {
	return Roster(v.src.Snapshot(), v.src.Self(), profiles)
}

// Row is one entry of the chat list.
type Row struct {
	Profile model.Profile
	Last    *model.Message
	Unread  int
	Preview string
}

// Roster returns one row per profile other than self, most recent conversation first.
// Profiles without messages come last, ordered by name. Counterparts that appear in
// msgs but not in profiles get a row with only the user id filled in.
func Roster(msgs []model.Message, self string, profiles []model.Profile) []Row {
	known := make(map[string]model.Profile, len(profiles))
	for _, p := range profiles {
		if p.UserID != self {
			known[p.UserID] = p
		}
	}
	for _, m := range msgs {
		if c := m.Counterpart(self); c != "" && c != self {
			if _, ok := known[c]; !ok {
				known[c] = model.Profile{UserID: c}
			}
		}
	}

	rows := make([]Row, 0, len(known))
	for id, p := range known {
		row := Row{Profile: p, Unread: UnreadCount(msgs, self, id)}
		if last, ok := LastMessage(msgs, self, id); ok {
			row.Last = &last
			row.Preview = preview(last, self)
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.Last != nil && b.Last == nil:
			return true
		case a.Last == nil && b.Last != nil:
			return false
		case a.Last != nil && !a.Last.CreatedAt.Equal(b.Last.CreatedAt):
			return a.Last.CreatedAt.After(b.Last.CreatedAt)
		}
		an, bn := strings.ToLower(a.Profile.FullName), strings.ToLower(b.Profile.FullName)
		if an != bn {
			return an < bn
		}
		return a.Profile.UserID < b.Profile.UserID
	})
	return rows
}

func preview(m model.Message, self string) string {
	if m.SenderID == self {
		return SelfPrefix + m.Content
	}
	return m.Content
}
