package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindSessionStatus, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindSessionStatus {
			t.Errorf("got kind %q, want %s", evt.Kind, KindSessionStatus)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("messages.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStoreChanged})
	b.Publish(Event{Kind: "messages.insert"})

	select {
	case evt := <-ch:
		if evt.Kind != "messages.insert" {
			t.Errorf("got kind %q, want messages.insert", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()
	unsub()

	b.Publish(Event{Kind: KindSessionStatus})

	if _, ok := <-ch; ok {
		t.Error("received event after unsubscribe")
	}
	if n := b.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	if dropped := b.Publish(Event{Kind: "test.one"}); dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if dropped := b.Publish(Event{Kind: "test.two"}); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestStrictSubscriberEndsOnOverflow(t *testing.T) {
	b := New()
	ch, unsub := b.SubscribeStrict("test.", 1)
	defer unsub()
	other, unsubOther := b.Subscribe("test.", 1)
	defer unsubOther()

	b.Publish(Event{Kind: "test.one"})
	if dropped := b.Publish(Event{Kind: "test.two"}); dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}

	if evt, ok := <-ch; !ok || evt.Kind != "test.one" {
		t.Fatalf("first receive = %v, %v; want test.one", evt, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("strict channel still open after a dropped event")
	}
	if n := b.Subscribers(); n != 1 {
		t.Errorf("subscribers = %d, want only the lenient one", n)
	}

	// Lenient subscribers keep going after a drop.
	<-other
	b.Publish(Event{Kind: "test.three"})
	if evt := <-other; evt.Kind != "test.three" {
		t.Errorf("got %q, want test.three", evt.Kind)
	}
}
