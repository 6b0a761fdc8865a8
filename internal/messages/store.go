// Package messages keeps the client-side copy of the signed-in user's messages in sync
// with the backend: one bulk fetch, then live insert/update/delete events.
package messages

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/quickchat/internal/bus"
	"github.com/matheus3301/quickchat/internal/model"
	"go.uber.org/zap"
)

// ErrClosed is returned by mutators once the store has been torn down.
var ErrClosed = errors.New("message store closed")

// KindFeedLost is published on the bus when the live feed ends unexpectedly.
const KindFeedLost = "store.feed_lost"

// Remote is the backend side of the messages table, scoped to the signed-in user.
type Remote interface {
	FetchMessages(ctx context.Context) ([]model.Message, error)
	SendMessage(ctx context.Context, receiverID, content string) (*model.Message, error)
	MarkRead(ctx context.Context, messageID string) (*model.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

// Feed opens the live change feed of rows where the user is sender or receiver.
// The returned function releases the subscription.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan model.ChangeEvent, func(), error)
}

// Store is an id-keyed set of messages kept sorted by CreatedAt ascending.
// Every mutation goes through Apply under mu; reads return copies.
type Store struct {
	self   string
	remote Remote
	feed   Feed
	bus    *bus.Bus
	logger *zap.Logger

	mu      sync.RWMutex
	msgs    []model.Message
	byID    map[string]model.Message
	deleted map[string]struct{}
	closed  bool

	live *liveSub
}

type liveSub struct {
	cancel context.CancelFunc
	unsub  func()
	done   chan struct{}
}

// NewStore creates an empty store for the given user. b and logger may be nil.
func NewStore(self string, remote Remote, feed Feed, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		self:    self,
		remote:  remote,
		feed:    feed,
		bus:     b,
		logger:  logger.Named("messages"),
		byID:    make(map[string]model.Message),
		deleted: make(map[string]struct{}),
	}
}

// Self returns the user the store belongs to.
func (s *Store) Self() string {
	return s.self
}

// Load subscribes to the live feed, fetches every message of the user, installs the
// result as the store content and then drains events that arrived meanwhile.
// Calling Load again replaces the content and the subscription (manual resync).
// On failure the current content is left untouched.
func (s *Store) Load(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.stopLive()

	liveCtx, cancel := context.WithCancel(context.Background())
	events, unsub, err := s.feed.Subscribe(liveCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe: %w", err)
	}

	snapshot, err := s.remote.FetchMessages(ctx)
	if err != nil {
		cancel()
		unsub()
		return fmt.Errorf("fetch messages: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		unsub()
		return ErrClosed
	}
	s.install(snapshot)
	live := &liveSub{cancel: cancel, unsub: unsub, done: make(chan struct{})}
	s.live = live
	s.mu.Unlock()

	s.logger.Info("messages loaded", zap.Int("count", len(snapshot)))
	s.announce(model.ChangeEvent{})

	go s.run(liveCtx, events, live.done)
	return nil
}

// install replaces the content with snapshot. Caller holds mu.
func (s *Store) install(snapshot []model.Message) {
	s.msgs = s.msgs[:0]
	clear(s.byID)
	for _, m := range snapshot {
		if _, gone := s.deleted[m.ID]; gone {
			continue
		}
		if _, dup := s.byID[m.ID]; dup {
			continue
		}
		s.byID[m.ID] = m
		s.msgs = append(s.msgs, m)
	}
	sort.Slice(s.msgs, func(i, j int) bool { return less(s.msgs[i], s.msgs[j]) })
}

func (s *Store) run(ctx context.Context, events <-chan model.ChangeEvent, done chan struct{}) {
	if s.follow(ctx, events, done) && s.bus != nil {
		s.bus.Publish(bus.Event{Kind: KindFeedLost, Timestamp: time.Now()})
	}
}

// follow applies events until the feed or ctx ends and reports whether the feed
// was lost. done is closed before it returns so Live observes the loss first.
func (s *Store) follow(ctx context.Context, events <-chan model.ChangeEvent, done chan struct{}) bool {
	defer close(done)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				if ctx.Err() == nil && !s.isClosed() {
					s.logger.Warn("live feed ended")
					return true
				}
				return false
			}
			s.Apply(evt)
		case <-ctx.Done():
			return false
		}
	}
}

// Live reports whether the feed installed by the last Load is still running.
func (s *Store) Live() bool {
	s.mu.RLock()
	live := s.live
	s.mu.RUnlock()
	if live == nil {
		return false
	}
	select {
	case <-live.done:
		return false
	default:
		return true
	}
}

func (s *Store) stopLive() {
	s.mu.Lock()
	live := s.live
	s.live = nil
	s.mu.Unlock()
	if live == nil {
		return
	}
	live.cancel()
	live.unsub()
	<-live.done
}

// Close releases the live subscription. Later events and late remote results are
// ignored and mutators return ErrClosed. Safe to call more than once.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.stopLive()
	s.logger.Debug("message store closed")
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Apply merges one change event. It reports whether the content changed.
// Replayed inserts, updates for unknown ids and deletes of absent ids are no-ops.
func (s *Store) Apply(evt model.ChangeEvent) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	var changed bool
	switch evt.Kind {
	case model.EventInsert:
		if evt.New != nil {
			changed = s.insert(*evt.New)
		}
	case model.EventUpdate:
		if evt.New != nil {
			changed = s.update(*evt.New)
		}
	case model.EventDelete:
		if row := evt.Row(); row != nil {
			changed = s.remove(row.ID)
		}
	default:
		s.logger.Warn("unknown change event", zap.String("kind", string(evt.Kind)))
	}
	s.mu.Unlock()

	if changed {
		s.announce(evt)
	}
	return changed
}

func (s *Store) insert(m model.Message) bool {
	if _, ok := s.byID[m.ID]; ok {
		return false
	}
	if _, gone := s.deleted[m.ID]; gone {
		return false
	}
	s.msgs = slices.Insert(s.msgs, s.position(m), m)
	s.byID[m.ID] = m
	return true
}

func (s *Store) update(m model.Message) bool {
	old, ok := s.byID[m.ID]
	if !ok || sameMessage(old, m) {
		return false
	}
	i := s.position(old)
	s.msgs = slices.Delete(s.msgs, i, i+1)
	s.msgs = slices.Insert(s.msgs, s.position(m), m)
	s.byID[m.ID] = m
	return true
}

func (s *Store) remove(id string) bool {
	s.deleted[id] = struct{}{}
	old, ok := s.byID[id]
	if !ok {
		return false
	}
	i := s.position(old)
	s.msgs = slices.Delete(s.msgs, i, i+1)
	delete(s.byID, id)
	return true
}

// position returns the index at which m keeps msgs sorted, which is also the index
// of m itself when it is present.
func (s *Store) position(m model.Message) int {
	return sort.Search(len(s.msgs), func(i int) bool { return !less(s.msgs[i], m) })
}

func (s *Store) announce(evt model.ChangeEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: bus.KindStoreChanged, Timestamp: time.Now(), Payload: evt})
}

// Snapshot returns a copy of the messages in display order.
func (s *Store) Snapshot() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.msgs)
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Get returns the message with the given id.
func (s *Store) Get(id string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	return m, ok
}

// Send submits a new message from the signed-in user. Nothing is stored locally on
// failure. On success the server's record is applied; the feed copy dedups against it.
func (s *Store) Send(ctx context.Context, receiverID, content string) (*model.Message, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	content = strings.TrimSpace(content)
	if content == "" || receiverID == "" {
		return nil, fmt.Errorf("send message: %w", model.ErrInvalidArgument)
	}
	msg, err := s.remote.SendMessage(ctx, receiverID, content)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if msg != nil {
		s.Apply(model.ChangeEvent{Kind: model.EventInsert, New: msg})
	}
	return msg, nil
}

// MarkRead marks a received message as read. Messages the user did not receive are
// rejected with model.ErrForbidden and leave the store unchanged.
func (s *Store) MarkRead(ctx context.Context, messageID string) error {
	s.mu.RLock()
	m, ok := s.byID[messageID]
	closed := s.closed
	s.mu.RUnlock()

	switch {
	case closed:
		return ErrClosed
	case !ok:
		return fmt.Errorf("mark read %s: %w", messageID, model.ErrNotFound)
	case m.ReceiverID != s.self:
		return fmt.Errorf("mark read %s: %w", messageID, model.ErrForbidden)
	case m.IsRead:
		return nil
	}

	updated, err := s.remote.MarkRead(ctx, messageID)
	if err != nil {
		return fmt.Errorf("mark read %s: %w", messageID, err)
	}
	if updated != nil {
		s.Apply(model.ChangeEvent{Kind: model.EventUpdate, New: updated})
	}
	return nil
}

// MarkConversationRead marks every unread message received from counterpart as read.
// It returns how many were marked and stops at the first failure.
func (s *Store) MarkConversationRead(ctx context.Context, counterpart string) (int, error) {
	var pending []string
	for _, m := range s.Snapshot() {
		if m.SenderID == counterpart && m.ReceiverID == s.self && !m.IsRead {
			pending = append(pending, m.ID)
		}
	}
	for i, id := range pending {
		if err := s.MarkRead(ctx, id); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}

// Delete removes one of the user's own sent messages.
func (s *Store) Delete(ctx context.Context, messageID string) error {
	s.mu.RLock()
	m, ok := s.byID[messageID]
	closed := s.closed
	s.mu.RUnlock()

	switch {
	case closed:
		return ErrClosed
	case !ok:
		return fmt.Errorf("delete %s: %w", messageID, model.ErrNotFound)
	case m.SenderID != s.self:
		return fmt.Errorf("delete %s: %w", messageID, model.ErrForbidden)
	}

	if err := s.remote.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("delete %s: %w", messageID, err)
	}
	s.Apply(model.ChangeEvent{Kind: model.EventDelete, Old: &m})
	return nil
}

func less(a, b model.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func sameMessage(a, b model.Message) bool {
	return a.ID == b.ID && a.SenderID == b.SenderID && a.ReceiverID == b.ReceiverID &&
		a.Content == b.Content && a.CreatedAt.Equal(b.CreatedAt) && a.IsRead == b.IsRead
}
