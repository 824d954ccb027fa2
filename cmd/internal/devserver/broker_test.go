package devserver

import (
	"testing"

	v1 "daycheck/shared/contracts/push/v1"
)

func TestBroker_PublishDoesNotBlockOnFullQueue(t *testing.T) {
	t.Parallel()
	b := NewBroker(quietLogger(), nil, 1)
	sub := b.Subscribe("u1")

	if got := b.Publish("u1", v1.Notification{ID: "1"}); got != 1 {
		t.Fatalf("first publish delivered=%d want=1", got)
	}
	if got := b.Publish("u1", v1.Notification{ID: "2"}); got != 0 {
		t.Fatalf("second publish delivered=%d want=0", got)
	}
	if n := <-sub.C(); n.ID != "1" {
		t.Fatalf("received=%q want=1", n.ID)
	}
	if got := b.Publish("u2", v1.Notification{ID: "3"}); got != 0 {
		t.Fatalf("publish to user without streams delivered=%d", got)
	}
}

func TestBroker_FanOutPerUser(t *testing.T) {
	t.Parallel()
	b := NewBroker(quietLogger(), nil, 4)
	a1, a2 := b.Subscribe("a"), b.Subscribe("a")
	other := b.Subscribe("b")

	if got := b.Publish("a", v1.Notification{ID: "7"}); got != 2 {
		t.Fatalf("delivered=%d want=2", got)
	}
	for _, s := range []*Subscription{a1, a2} {
		if n := <-s.C(); n.ID != "7" {
			t.Fatalf("received=%q want=7", n.ID)
		}
	}
	select {
	case n := <-other.C():
		t.Fatalf("other user received %+v", n)
	default:
	}
}

func TestBroker_Unsubscribe(t *testing.T) {
	t.Parallel()
	b := NewBroker(quietLogger(), nil, 4)
	sub := b.Subscribe("u1")

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	select {
	case <-sub.Done():
	default:
		t.Fatalf("Done not closed after Unsubscribe")
	}
	if got := b.Streams("u1"); got != 0 {
		t.Fatalf("streams=%d want=0", got)
	}
	if got := b.Publish("u1", v1.Notification{ID: "1"}); got != 0 {
		t.Fatalf("delivered=%d want=0", got)
	}
}

func TestBroker_Close(t *testing.T) {
	t.Parallel()
	b := NewBroker(quietLogger(), nil, 4)
	sub := b.Subscribe("u1")

	b.Close()

	select {
	case <-sub.Done():
	default:
		t.Fatalf("Done not closed after Close")
	}
	if s := b.Subscribe("u1"); s != nil {
		t.Fatalf("Subscribe after Close=%v want=nil", s)
	}
	b.Unsubscribe(sub)
}
