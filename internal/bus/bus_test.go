package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(NamespaceConn, 10)
	defer unsub()

	b.Emit(KindStatusChanged, "test")

	select {
	case evt := <-ch:
		if evt.Kind != KindStatusChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindStatusChanged)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Emit did not stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(NamespaceChat, 10)
	defer unsub()

	b.Publish(Event{Kind: KindStatusChanged})
	b.Publish(Event{Kind: KindUnreadChanged, Payload: 2})

	select {
	case evt := <-ch:
		if evt.Kind != KindUnreadChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindUnreadChanged)
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

func TestEmptyNamespaceReceivesAll(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(NamespaceAll, 10)
	defer unsub()

	b.Emit(KindStatusChanged, nil)
	b.Emit(KindAlert, nil)

	for _, want := range []Kind{KindStatusChanged, KindAlert} {
		select {
		case evt := <-ch:
			if evt.Kind != want {
				t.Errorf("got %q, want %q", evt.Kind, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(NamespaceChat, 10)
	unsub()
	unsub()

	if n := b.Subscribers(); n != 0 {
		t.Fatalf("Subscribers() = %d after unsubscribe", n)
	}

	b.Emit(KindListChanged, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(NamespaceChat, 1)
	defer unsub()

	b.Emit(KindTypingChanged, true)
	// Buffer is full; this one is dropped.
	b.Emit(KindTypingChanged, false)

	evt := <-ch
	if evt.Payload != true {
		t.Errorf("got payload %v, want the first event", evt.Payload)
	}
}
