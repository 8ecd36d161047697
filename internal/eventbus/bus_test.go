package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: RunStarted, Data: 1})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != RunStarted || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TaskStarted})
	b.Publish(Event{Type: TaskFinished}) // dropped, must not block

	e := <-ch
	if e.Type != TaskStarted {
		t.Fatalf("got %s, want %s", e.Type, TaskStarted)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %s", e.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	// Publishing after unsubscribe is a no-op.
	b.Publish(Event{Type: RunFinished})
}
