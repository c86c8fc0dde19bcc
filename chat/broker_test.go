package chat

import (
	"testing"
	"time"
)

func TestBrokerPublishNoSubscribers(t *testing.T) {
	b := NewBroker[string]()
	for i := 0; i < 100; i++ {
		b.Publish("event-" + string(rune('a'+(i%26))))
	}
}

func TestBrokerSingleSubscriber(t *testing.T) {
	b := NewBroker[string]()
	events, unsub := b.Subscribe()
	defer unsub()
	b.Publish("alpha")
	select {
	case got := <-events:
		if got != "alpha" {
			t.Fatalf("unexpected event: want %q got %q", "alpha", got)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("did not receive event")
	}
	select {
	case got := <-events:
		t.Fatalf("unexpected extra event: %q", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBrokerMultipleSubscribers(t *testing.T) {
	b := NewBroker[int]()
	a, unsubA := b.Subscribe()
	c, unsubC := b.Subscribe()
	defer unsubA()
	defer unsubC()

	values := []int{10, 20, 30}
	for _, v := range values {
		b.Publish(v)
	}
	for _, want := range values {
		for _, sub := range []<-chan int{a, c} {
			select {
			case got := <-sub:
				if got != want {
					t.Fatalf("subscriber mismatch: want %d got %d", want, got)
				}
			case <-time.After(200 * time.Millisecond):
				t.Fatal("subscriber timed out waiting for event")
			}
		}
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker[int]()
	events, unsub := b.Subscribe()
	unsub()
	if _, ok := <-events; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	unsub()
	b.Publish(1)
}

func TestBrokerSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroker[int]()
	_, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish(i)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
