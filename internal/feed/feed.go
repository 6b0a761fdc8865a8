// Package feed fans committed message changes out to live subscribers. Each
// subscription only sees rows where its user is the sender or the receiver.
package feed

import (
	"context"
	"time"

	"github.com/matheus3301/quickchat/internal/bus"
	"github.com/matheus3301/quickchat/internal/model"
	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscription queue length. A subscriber that falls this
// far behind is disconnected and has to reload.
const DefaultBuffer = 256

// Broker publishes change events and hands out per-user subscriptions.
type Broker interface {
	Publish(ctx context.Context, evt model.ChangeEvent) error
	// Subscribe streams events visible to userID until ctx ends or the returned
	// function is called. The channel is closed when the subscription ends.
	Subscribe(ctx context.Context, userID string) (<-chan model.ChangeEvent, func(), error)
	Close() error
}

// Visible reports whether userID takes part in the row carried by evt.
func Visible(evt model.ChangeEvent, userID string) bool {
	row := evt.Row()
	return row != nil && row.Involves(userID)
}

// Local is a Broker for a single chatd process, backed by the in-process bus.
type Local struct {
	bus    *bus.Bus
	logger *zap.Logger
	buf    int
}

func NewLocal(b *bus.Bus, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{bus: b, logger: logger.Named("feed"), buf: DefaultBuffer}
}

// userNamespace scopes bus events to one participant.
func userNamespace(userID string) string {
	return bus.KindMessagesPrefix + userID + "."
}

// Publish delivers evt once to each participant's namespace.
func (l *Local) Publish(_ context.Context, evt model.ChangeEvent) error {
	row := evt.Row()
	if row == nil {
		return nil
	}
	participants := []string{row.SenderID}
	if row.ReceiverID != row.SenderID {
		participants = append(participants, row.ReceiverID)
	}
	for _, userID := range participants {
		if dropped := l.bus.Publish(bus.Event{
			Kind:      userNamespace(userID) + string(evt.Kind),
			Timestamp: time.Now(),
			Payload:   evt,
		}); dropped > 0 {
			l.logger.Warn("subscriber overflowed, feed closed", zap.String("user_id", userID), zap.Int("subscribers", dropped))
		}
	}
	return nil
}

// Subscribe relays userID's events. A subscription that falls behind, either in
// the bus queue or in the returned channel, is closed rather than skipping events.
func (l *Local) Subscribe(ctx context.Context, userID string) (<-chan model.ChangeEvent, func(), error) {
	src, unsub := l.bus.SubscribeStrict(userNamespace(userID), l.buf)
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan model.ChangeEvent, l.buf)

	go func() {
		defer close(out)
		defer unsub()
		for {
			select {
			case evt, ok := <-src:
				if !ok {
					return
				}
				ce, ok := evt.Payload.(model.ChangeEvent)
				if !ok || !Visible(ce, userID) {
					continue
				}
				if !offer(out, ce) {
					l.logger.Warn("subscriber too slow, closing feed", zap.String("user_id", userID))
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

func (l *Local) Close() error { return nil }

func offer(out chan<- model.ChangeEvent, evt model.ChangeEvent) bool {
	select {
	case out <- evt:
		return true
	default:
		return false
	}
}
