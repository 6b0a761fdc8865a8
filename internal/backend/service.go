// Package backend implements chatd's operations on top of the relational store:
// accounts and tokens, profiles, messages, address book matching and the live
// change feed.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/matheus3301/quickchat/internal/contacts"
	"github.com/matheus3301/quickchat/internal/feed"
	"github.com/matheus3301/quickchat/internal/model"
	"github.com/matheus3301/quickchat/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLen = 6
	MaxContentLen  = 4096
	MaxContacts    = 10000
	MaxSearchLimit = 200
)

// Options tunes a Service. Zero values pick the defaults.
type Options struct {
	TokenTTL   time.Duration
	SendRate   float64
	SendBurst  int
	BcryptCost int
}

// AuthResult is returned by sign-up and sign-in.
type AuthResult struct {
	Token     string        `json:"token"`
	UserID    string        `json:"user_id"`
	ExpiresAt time.Time     `json:"expires_at"`
	Profile   model.Profile `json:"profile"`
}

// Service is the chatd application layer. Every method that acts for a user takes
// the user id resolved from the bearer token.
type Service struct {
	db      *store.DB
	broker  feed.Broker
	limiter *sendLimiter
	metrics *Metrics
	logger  *zap.Logger

	tokenTTL   time.Duration
	bcryptCost int
	now        func() time.Time
}

func NewService(db *store.DB, broker feed.Broker, metrics *Metrics, logger *zap.Logger, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 30 * 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         db,
		broker:     broker,
		limiter:    newSendLimiter(opts.SendRate, opts.SendBurst),
		metrics:    metrics,
		logger:     logger.Named("backend"),
		tokenTTL:   opts.TokenTTL,
		bcryptCost: opts.BcryptCost,
		now:        time.Now,
	}
}

// SignUp creates an account with its profile and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, fullName, phone string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)
	phone = contacts.NormalizePhone(phone)

	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("email %q: %w", email, model.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(password) < MinPasswordLen {
		return nil, fmt.Errorf("password shorter than %d characters: %w", MinPasswordLen, model.ErrInvalidArgument)
	}
	if fullName == "" {
		return nil, fmt.Errorf("full name is required: %w", model.ErrInvalidArgument)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &store.User{ID: uuid.NewString(), Email: email, PasswordHash: hash, CreatedAt: s.now()}
	profile := model.Profile{UserID: u.ID, FullName: fullName, PhoneNumber: phone}
	if err := s.db.CreateUser(u, profile); err != nil {
		return nil, err
	}
	s.logger.Info("user signed up", zap.String("user_id", u.ID))
	return s.issueToken(u.ID, profile)
}

// SignIn checks the password and issues a new token. Unknown emails and wrong
// passwords fail the same way.
func (s *Service) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.db.GetUserByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		s.metrics.AuthFailures.Inc()
		return nil, fmt.Errorf("invalid email or password: %w", model.ErrUnauthenticated)
	}
	p, err := s.db.GetProfile(u.ID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("profile %s: %w", u.ID, model.ErrNotFound)
	}
	return s.issueToken(u.ID, *p)
}

func (s *Service) issueToken(userID string, p model.Profile) (*AuthResult, error) {
	now := s.now()
	sess := &store.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	if err := s.db.CreateSession(sess); err != nil {
		return nil, err
	}
	s.metrics.SignIns.Inc()
	return &AuthResult{Token: sess.Token, UserID: userID, ExpiresAt: sess.ExpiresAt, Profile: p}, nil
}

// SignOut revokes token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.db.DeleteSession(token)
}

// Authenticate resolves a bearer token to its user id.
func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("missing token: %w", model.ErrUnauthenticated)
	}
	userID, err := s.db.SessionUser(token, s.now())
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	if userID == "" {
		s.metrics.AuthFailures.Inc()
		return "", fmt.Errorf("invalid or expired token: %w", model.ErrUnauthenticated)
	}
	return userID, nil
}

// PruneSessions removes expired tokens.
func (s *Service) PruneSessions(ctx context.Context) (int64, error) {
	return s.db.PruneSessions(s.now())
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.db.GetProfile(userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("profile %s: %w", userID, model.ErrNotFound)
	}
	return p, nil
}

func (s *Service) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	return s.db.ListProfiles()
}

// UpdateProfile changes the caller's display name and avatar. The name may not be blank.
func (s *Service) UpdateProfile(ctx context.Context, userID, fullName, avatarURL string) (*model.Profile, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, fmt.Errorf("full name is required: %w", model.ErrInvalidArgument)
	}
	return s.db.UpdateProfile(userID, fullName, strings.TrimSpace(avatarURL))
}

// ListMessages returns every message the user sent or received, oldest first.
func (s *Service) ListMessages(ctx context.Context, userID string) ([]model.Message, error) {
	msgs, err := s.db.ListMessagesForUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (s *Service) SearchMessages(ctx context.Context, userID, query string, limit int) ([]model.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query: %w", model.ErrInvalidArgument)
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return s.db.SearchMessages(userID, query, limit)
}

// SendMessage stores a message from userID to receiverID and publishes it.
func (s *Service) SendMessage(ctx context.Context, userID, receiverID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return nil, fmt.Errorf("empty message: %w", model.ErrInvalidArgument)
	case utf8.RuneCountInString(content) > MaxContentLen:
		return nil, fmt.Errorf("message longer than %d characters: %w", MaxContentLen, model.ErrInvalidArgument)
	case receiverID == "":
		return nil, fmt.Errorf("receiver is required: %w", model.ErrInvalidArgument)
	}

	now := s.now()
	if !s.limiter.allow(userID, now) {
		s.metrics.RateLimited.Inc()
		return nil, fmt.Errorf("send: %w", model.ErrRateLimited)
	}

	m := &model.Message{
		ID:         uuid.NewString(),
		SenderID:   userID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  now.UTC().Truncate(time.Millisecond),
	}
	if err := s.db.InsertMessage(m); err != nil {
		return nil, err
	}
	s.metrics.MessagesSent.Inc()
	s.publish(ctx, model.ChangeEvent{Kind: model.EventInsert, New: m})
	return m, nil
}

// MarkRead flags a message addressed to userID as read.
func (s *Service) MarkRead(ctx context.Context, userID, messageID string) (*model.Message, error) {
	before, err := s.db.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	m, err := s.db.MarkRead(messageID, userID)
	if err != nil {
		return nil, err
	}
	if before != nil && !before.IsRead {
		s.metrics.MessagesRead.Inc()
		s.publish(ctx, model.ChangeEvent{Kind: model.EventUpdate, New: m, Old: before})
	}
	return m, nil
}

// DeleteMessage removes a message userID sent.
func (s *Service) DeleteMessage(ctx context.Context, userID, messageID string) error {
	old, err := s.db.DeleteMessage(messageID, userID)
	if err != nil {
		return err
	}
	s.metrics.MessagesDeleted.Inc()
	s.publish(ctx, model.ChangeEvent{Kind: model.EventDelete, Old: old})
	return nil
}

// ReplaceContacts stores list as userID's address book. Entries are normalized again
// so the join key never depends on the client.
func (s *Service) ReplaceContacts(ctx context.Context, userID string, list []model.Contact) error {
	if len(list) > MaxContacts {
		return fmt.Errorf("more than %d contacts: %w", MaxContacts, model.ErrInvalidArgument)
	}
	clean := make([]model.Contact, 0, len(list))
	for _, c := range list {
		raw := contacts.RawContact{DisplayName: c.DisplayName, Phones: []string{c.Phone}}
		clean = append(clean, contacts.Normalize([]contacts.RawContact{raw})...)
	}
	if err := s.db.ReplaceContacts(userID, clean); err != nil {
		return err
	}
	s.metrics.ContactSyncs.Inc()
	s.logger.Debug("contacts replaced", zap.String("user_id", userID), zap.Int("count", len(clean)))
	return nil
}

// MatchContacts returns registered users found in userID's address book.
func (s *Service) MatchContacts(ctx context.Context, userID string) ([]model.MatchedUser, error) {
	return s.db.MatchContacts(userID)
}

// Subscribe opens userID's live change feed.
func (s *Service) Subscribe(ctx context.Context, userID string) (<-chan model.ChangeEvent, func(), error) {
	ch, stop, err := s.broker.Subscribe(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe: %w", errors.Join(model.ErrUnavailable, err))
	}
	s.metrics.FeedSubscribers.Inc()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			stop()
			s.metrics.FeedSubscribers.Dec()
		})
	}, nil
}

func (s *Service) publish(ctx context.Context, evt model.ChangeEvent) {
	// The row is already committed; a broker failure only costs live delivery.
	if err := s.broker.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Warn("publish change event failed", zap.String("kind", string(evt.Kind)), zap.Error(err))
	}
}
