package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestBrokerDeliversToSessionSubscribers(t *testing.T) {
	b := NewBroker()
	ch1, cancel1 := b.Subscribe(1)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(2)
	defer cancel2()

	_ = b.Publish(context.Background(), Event{Type: DivisionPaid, SessionID: 1})

	select {
	case e := <-ch1:
		if e.Type != DivisionPaid {
			t.Errorf("Type = %s, want %s", e.Type, DivisionPaid)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber of session 1 got nothing")
	}
	select {
	case e := <-ch2:
		t.Errorf("subscriber of session 2 got %+v", e)
	default:
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(7)
	if n := b.Subscribers(7); n != 1 {
		t.Fatalf("Subscribers = %d, want 1", n)
	}
	cancel()
	cancel()
	if n := b.Subscribers(7); n != 0 {
		t.Errorf("Subscribers after cancel = %d, want 0", n)
	}
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	if err := b.Publish(context.Background(), Event{SessionID: 7}); err != nil {
		t.Errorf("Publish without subscribers: %v", err)
	}
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(1)
	defer cancel()
	for i := 0; i < subscriberBuffer+5; i++ {
		_ = b.Publish(context.Background(), Event{SessionID: 1})
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
}

func TestMultiPublishesToAll(t *testing.T) {
	failing := &recorder{err: errors.New("down")}
	ok := &recorder{}
	m := Multi{failing, nil, ok}

	err := m.Publish(context.Background(), Event{Type: SessionClosed, SessionID: 3})
	if err == nil {
		t.Error("expected error from failing publisher")
	}
	if len(failing.got) != 1 || len(ok.got) != 1 {
		t.Errorf("deliveries = %d, %d; want 1, 1", len(failing.got), len(ok.got))
	}
}
