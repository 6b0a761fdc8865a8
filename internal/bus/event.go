package bus

import "time"

// Event kinds used across the module.
const (
	KindMessagesPrefix = "messages."
	KindStoreChanged   = "store.changed"
	KindNotice         = "notify.notice"
	KindSessionStatus  = "session.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
