// Package contacts turns raw device contact entries into normalized phone-keyed contacts.
package contacts

import (
	"strings"
	"unicode"

	"github.com/matheus3301/quickchat/internal/model"
)

// UnknownName is used for entries that carry no display name.
const UnknownName = "Unknown"

// RawContact is one entry of the device address book.
type RawContact struct {
	DisplayName string
	Phones      []string
}

// NormalizePhone strips whitespace, hyphens and parentheses from a phone number.
// No other canonicalization is applied: "+1 555" and "1555" stay different keys.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, phone)
}

// Normalize emits one Contact per (name, phone) pair. Entries without phones, and
// phones that are empty once stripped, produce nothing.
func Normalize(raw []RawContact) []model.Contact {
	var out []model.Contact
	for _, rc := range raw {
		name := strings.TrimSpace(rc.DisplayName)
		if name == "" {
			name = UnknownName
		}
		for _, p := range rc.Phones {
			phone := NormalizePhone(p)
			if phone == "" {
				continue
			}
			out = append(out, model.Contact{DisplayName: name, Phone: phone})
		}
	}
	return out
}
