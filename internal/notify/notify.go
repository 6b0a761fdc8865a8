// Package notify holds transient user-visible notifications (toasts).
package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/quickchat/internal/bus"
	"github.com/matheus3301/quickchat/internal/model"
)

// Variant is the visual weight of a notice.
type Variant string

const (
	Info        Variant = "info"
	Destructive Variant = "destructive"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 5 * time.Second

// Notice is one transient notification.
type Notice struct {
	Title       string
	Description string
	Variant     Variant
	At          time.Time
	expires     time.Time
}

// Center collects notices and publishes each one on the bus.
type Center struct {
	mu      sync.RWMutex
	notices []Notice
	ttl     time.Duration
	bus     *bus.Bus
	now     func() time.Time
}

// NewCenter creates a notification center. b may be nil.
func NewCenter(b *bus.Bus) *Center {
	return &Center{ttl: DefaultTTL, bus: b, now: time.Now}
}

// Info records a non-error notice.
func (c *Center) Info(title, description string) {
	c.push(Notice{Title: title, Description: description, Variant: Info})
}

// Error records a destructive notice describing err.
func (c *Center) Error(title string, err error) {
	c.push(Notice{Title: title, Description: Describe(err), Variant: Destructive})
}

func (c *Center) push(n Notice) {
	now := c.now()
	n.At = now
	n.expires = now.Add(c.ttl)

	c.mu.Lock()
	kept := c.notices[:0]
	for _, old := range c.notices {
		if now.Before(old.expires) {
			kept = append(kept, old)
		}
	}
	c.notices = append(kept, n)
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(bus.Event{Kind: bus.KindNotice, Timestamp: now, Payload: n})
	}
}

// Active returns the notices that have not expired yet, oldest first.
func (c *Center) Active() []Notice {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Notice
	for _, n := range c.notices {
		if now.Before(n.expires) {
			out = append(out, n)
		}
	}
	return out
}

// Describe maps an error to the short description shown to the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrPermissionDenied):
		return "Permission was denied"
	case errors.Is(err, model.ErrUnavailable):
		return "Network error, please try again"
	case errors.Is(err, model.ErrUnauthenticated):
		return "Please sign in again"
	case errors.Is(err, model.ErrForbidden):
		return "You are not allowed to do that"
	case errors.Is(err, model.ErrRateLimited):
		return "Slow down and try again in a moment"
	default:
		return err.Error()
	}
}
