// Package matcher intersects the user's address book with the registered users.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/matheus3301/quickchat/internal/contacts"
	"github.com/matheus3301/quickchat/internal/model"
	"go.uber.org/zap"
)

// Directory is the backend side of contact matching.
type Directory interface {
	// ReplaceContacts stores contacts as the caller's complete address book.
	ReplaceContacts(ctx context.Context, contacts []model.Contact) error
	// MatchContacts returns registered users whose phone appears in the stored address book.
	MatchContacts(ctx context.Context) ([]model.MatchedUser, error)
}

// Matcher runs contact sync and matching against a Directory.
type Matcher struct {
	dir    Directory
	logger *zap.Logger
}

func New(dir Directory, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{dir: dir, logger: logger.Named("matcher")}
}

// Sync normalizes raw, uploads the result and returns the fresh matches.
func (m *Matcher) Sync(ctx context.Context, raw []contacts.RawContact) ([]model.MatchedUser, error) {
	normalized := contacts.Normalize(raw)
	if err := m.dir.ReplaceContacts(ctx, normalized); err != nil {
		m.logger.Warn("replace contacts failed", zap.Error(err))
		return []model.MatchedUser{}, fmt.Errorf("sync contacts: %w", classify(err))
	}
	m.logger.Info("contacts uploaded", zap.Int("entries", len(normalized)))
	return m.Match(ctx)
}

// Match returns one entry per (phone, registered user) pair, sorted by name then phone.
// On failure the result is empty, never nil, and the error is recoverable.
func (m *Matcher) Match(ctx context.Context) ([]model.MatchedUser, error) {
	found, err := m.dir.MatchContacts(ctx)
	if err != nil {
		m.logger.Warn("match contacts failed", zap.Error(err))
		return []model.MatchedUser{}, fmt.Errorf("match contacts: %w", classify(err))
	}
	return Dedup(found), nil
}

// Dedup drops repeated (phone, user) pairs, keeping the first contact name seen.
func Dedup(found []model.MatchedUser) []model.MatchedUser {
	type key struct{ user, phone string }
	seen := make(map[key]struct{}, len(found))
	out := make([]model.MatchedUser, 0, len(found))
	for _, u := range found {
		k := key{u.UserID, u.PhoneNumber}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].PhoneNumber < out[j].PhoneNumber
	})
	return out
}

// classify keeps known failure classes and files everything else as unavailable.
func classify(err error) error {
	for _, known := range []error{
		model.ErrUnauthenticated, model.ErrPermissionDenied, model.ErrUnavailable,
		model.ErrInvalidArgument, model.ErrRateLimited,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", model.ErrUnavailable, err)
}
