package status

import (
	"testing"

	"github.com/matheus3301/quickchat/internal/bus"
)

// walkTo transitions the machine through the given states sequentially.
func walkTo(t *testing.T, m *Machine, states ...State) {
	t.Helper()
	for _, s := range states {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s failed: %v", s, err)
		}
	}
}

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != SignedOut {
		t.Errorf("initial state = %s, want SIGNED_OUT", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		path []State
		to   State
	}{
		{nil, Loading},
		{[]State{Loading}, Live},
		{[]State{Loading}, Degraded},
		{[]State{Loading, Live}, Degraded},
		{[]State{Loading, Live}, Loading},
		{[]State{Loading, Degraded}, Loading},
		{[]State{Loading, Live}, Closed},
	}
	for _, tt := range tests {
		t.Run(string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.path...)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(-> %s) error = %v", tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Live); err == nil {
		t.Error("Transition(SIGNED_OUT -> LIVE) should fail")
	}
}

// TestClosedIsTerminal verifies a torn-down session cannot be revived.
func TestClosedIsTerminal(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Loading, Live, Closed)
	for _, to := range []State{SignedOut, Loading, Live, Degraded} {
		if err := m.Transition(to); err == nil {
			t.Errorf("Transition(CLOSED -> %s) should fail", to)
		}
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Loading); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindSessionStatus {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindSessionStatus)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != SignedOut || change.To != Loading {
		t.Errorf("change = %v -> %v, want SIGNED_OUT -> LOADING", change.From, change.To)
	}
}
