// Package client ties the client-side pieces together for one signed-in user:
// the chatd connection, the message store, contact matching, the conversation
// view model, notifications and the session status.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/quickchat/internal/api"
	"github.com/matheus3301/quickchat/internal/bus"
	"github.com/matheus3301/quickchat/internal/contacts"
	"github.com/matheus3301/quickchat/internal/conversation"
	"github.com/matheus3301/quickchat/internal/matcher"
	"github.com/matheus3301/quickchat/internal/messages"
	"github.com/matheus3301/quickchat/internal/model"
	"github.com/matheus3301/quickchat/internal/notify"
	"github.com/matheus3301/quickchat/internal/status"
	"go.uber.org/zap"
)

// ErrNotSignedIn is returned by operations that need an open session.
var ErrNotSignedIn = errors.New("not signed in")

// Session is the client state of one user. Every failing operation also posts a
// destructive notice; nothing is retried automatically.
type Session struct {
	client  *api.Client
	bus     *bus.Bus
	machine *status.Machine
	notices *notify.Center
	matcher *matcher.Matcher
	logger  *zap.Logger

	newStore func(self string) *messages.Store
	stateMu  sync.Mutex

	mu      sync.Mutex
	self    string
	profile model.Profile
	store   *messages.Store
	view    *conversation.ViewModel
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(c *api.Client, b *bus.Bus, logger *zap.Logger) *Session {
	if b == nil {
		b = bus.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		client:  c,
		bus:     b,
		machine: status.NewMachine(b),
		notices: notify.NewCenter(b),
		matcher: matcher.New(c, logger),
		logger:  logger.Named("session"),
	}
	s.newStore = func(self string) *messages.Store {
		return messages.NewStore(self, c, c, b, s.logger)
	}
	return s
}

func (s *Session) Bus() *bus.Bus { return s.bus }
func (s *Session) Notices() *notify.Center { return s.notices }
func (s *Session) Status() status.State { return s.machine.Current() }
func (s *Session) Client() *api.Client { return s.client }

// Self returns the signed-in user id, or "" before sign-in.
func (s *Session) Self() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Profile returns the signed-in user's profile.
func (s *Session) Profile() model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

func (s *Session) fail(title string, err error) error {
	s.notices.Error(title, err)
	return err
}

// SignUp registers a new account and signs it in.
func (s *Session) SignUp(ctx context.Context, req api.SignUpRequest) (*api.AuthResponse, error) {
	res, err := s.client.SignUp(ctx, req)
	if err != nil {
		return nil, s.fail("Sign up failed", err)
	}
	s.setUser(res.UserID, res.Profile)
	return res, nil
}

// SignIn authenticates with email and password.
func (s *Session) SignIn(ctx context.Context, email, password string) (*api.AuthResponse, error) {
	res, err := s.client.SignIn(ctx, email, password)
	if err != nil {
		return nil, s.fail("Sign in failed", err)
	}
	s.setUser(res.UserID, res.Profile)
	return res, nil
}

// Resume reuses a stored token and checks it is still valid.
func (s *Session) Resume(ctx context.Context, token string) error {
	s.client.SetToken(token)
	me, err := s.client.WhoAmI(ctx)
	if err != nil {
		s.client.SetToken("")
		return s.fail("Session expired", err)
	}
	s.setUser(me.UserID, me.Profile)
	return nil
}

func (s *Session) setUser(id string, p model.Profile) {
	s.mu.Lock()
	s.self = id
	s.profile = p
	s.mu.Unlock()
	s.logger.Debug("signed in", zap.String("user_id", id))
}

// Open loads the user's messages and starts the live feed. A failed load leaves the
// session Degraded; Resync can be called to try again.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	self := s.self
	if self == "" {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	if s.store == nil {
		s.store = s.newStore(self)
		s.view = conversation.NewViewModel(s.store)
		watchCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.watchFeed(watchCtx, s.done)
	}
	s.mu.Unlock()
	return s.Resync(ctx)
}

// Resync reloads every message and resubscribes to the feed. A feed that ends
// while loading leaves the session Degraded.
func (s *Session) Resync(ctx context.Context) error {
	st, err := s.messageStore()
	if err != nil {
		return err
	}
	if err := s.machine.Transition(status.Loading); err != nil {
		return err
	}
	if err := st.Load(ctx); err != nil {
		_ = s.machine.Transition(status.Degraded)
		return s.fail("Could not load messages", err)
	}
	if err := s.machine.Transition(status.Live); err != nil {
		return err
	}
	if !st.Live() {
		s.degrade(st)
		return fmt.Errorf("change feed: %w", model.ErrUnavailable)
	}
	return nil
}

// degrade moves a Live session whose feed has ended to Degraded, once.
func (s *Session) degrade(st *messages.Store) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.machine.Current() != status.Live || st.Live() {
		return
	}
	_ = s.machine.Transition(status.Degraded)
	s.notices.Error("Live updates stopped", fmt.Errorf("change feed: %w", model.ErrUnavailable))
}

func (s *Session) watchFeed(ctx context.Context, done chan struct{}) {
	defer close(done)
	lost, unsub := s.bus.Subscribe(messages.KindFeedLost, 4)
	defer unsub()
	for {
		select {
		case _, ok := <-lost:
			if !ok {
				return
			}
			if st, err := s.messageStore(); err == nil {
				s.degrade(st)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) messageStore() (*messages.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil, ErrNotSignedIn
	}
	return s.store, nil
}

// View returns the conversation view model of the open session.
func (s *Session) View() (*conversation.ViewModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == nil {
		return nil, ErrNotSignedIn
	}
	return s.view, nil
}

// Messages returns the message store of the open session.
func (s *Session) Messages() (*messages.Store, error) {
	return s.messageStore()
}

func (s *Session) Send(ctx context.Context, receiverID, content string) (*model.Message, error) {
	st, err := s.messageStore()
	if err != nil {
		return nil, err
	}
	m, err := st.Send(ctx, receiverID, content)
	if err != nil {
		return nil, s.fail("Message not sent", err)
	}
	return m, nil
}

// MarkConversationRead marks everything received from counterpart as read.
func (s *Session) MarkConversationRead(ctx context.Context, counterpart string) (int, error) {
	st, err := s.messageStore()
	if err != nil {
		return 0, err
	}
	n, err := st.MarkConversationRead(ctx, counterpart)
	if err != nil {
		return n, s.fail("Could not mark as read", err)
	}
	return n, nil
}

func (s *Session) Delete(ctx context.Context, messageID string) error {
	st, err := s.messageStore()
	if err != nil {
		return err
	}
	if err := st.Delete(ctx, messageID); err != nil {
		return s.fail("Could not delete message", err)
	}
	return nil
}

// SyncContacts uploads the address book and returns the registered users in it.
func (s *Session) SyncContacts(ctx context.Context, raw []contacts.RawContact) ([]model.MatchedUser, error) {
	matches, err := s.matcher.Sync(ctx, raw)
	if err != nil {
		return matches, s.fail("Contact sync failed", err)
	}
	s.notices.Info("Contacts synced", fmt.Sprintf("%d of your contacts use QuickChat", len(matches)))
	return matches, nil
}

// Matches returns the registered users found in the uploaded address book.
func (s *Session) Matches(ctx context.Context) ([]model.MatchedUser, error) {
	matches, err := s.matcher.Match(ctx)
	if err != nil {
		return matches, s.fail("Could not load contacts", err)
	}
	return matches, nil
}

// Roster lists every other user with their conversation summary.
func (s *Session) Roster(ctx context.Context) ([]conversation.Row, error) {
	view, err := s.View()
	if err != nil {
		return nil, err
	}
	profiles, err := s.client.ListProfiles(ctx)
	if err != nil {
		return nil, s.fail("Could not load users", err)
	}
	return view.Roster(profiles), nil
}

// Thread returns the conversation with counterpart, oldest first.
func (s *Session) Thread(counterpart string) ([]model.Message, error) {
	view, err := s.View()
	if err != nil {
		return nil, err
	}
	return view.GetChatMessages(counterpart), nil
}

func (s *Session) UpdateName(ctx context.Context, fullName string) (*model.Profile, error) {
	p, err := s.client.UpdateProfile(ctx, fullName, s.Profile().AvatarURL)
	if err != nil {
		return nil, s.fail("Profile not saved", err)
	}
	s.mu.Lock()
	s.profile = *p
	s.mu.Unlock()
	return p, nil
}

// SignOut revokes the token and closes the session.
func (s *Session) SignOut(ctx context.Context) error {
	err := s.client.SignOut(ctx)
	s.Close()
	if err != nil {
		return s.fail("Sign out failed", err)
	}
	return nil
}

// Close stops the live feed and moves the session to Closed. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	st, cancel, done := s.store, s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if st != nil {
		st.Close()
	}
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
	if s.machine.Current() != status.Closed {
		_ = s.machine.Transition(status.Closed)
	}
}
