package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/quickchat/internal/bus"
)

// State represents the lifecycle state of a signed-in client session.
type State string

const (
	SignedOut State = "SIGNED_OUT"
	Loading   State = "LOADING"
	Live      State = "LIVE"
	Degraded  State = "DEGRADED"
	Closed    State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	SignedOut: {Loading, Closed},
	Loading:   {Live, Degraded, Closed},
	Live:      {Degraded, Loading, Closed},
	Degraded:  {Loading, Closed},
	Closed:    {},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in SignedOut state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: SignedOut,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindSessionStatus,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
