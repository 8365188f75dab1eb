package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(WateringState, WateringStateEvent{From: "Idle", To: "Running", Interval: "1hr", Ts: 42})

	select {
	case ev := <-ch:
		if ev.Name != WateringState {
			t.Fatalf("got event %q, want %q", ev.Name, WateringState)
		}
		payload, err := DecodeAs[WateringStateEvent](ev)
		if err != nil {
			t.Fatalf("DecodeAs() error = %v", err)
		}
		if payload.To != "Running" || payload.Interval != "1hr" || payload.Ts != 42 {
			t.Fatalf("unexpected payload %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	for i := 0; i < 100; i++ {
		h.Publish(WateringState, WateringStateEvent{Ts: int64(i)})
	}

	if got := len(ch); got != cap(ch) {
		t.Fatalf("buffered %d events, want %d", got, cap(ch))
	}
}

func TestUnsubscribeAndClose(t *testing.T) {
	h := NewEventHub()
	a := h.Subscribe()
	b := h.Subscribe()
	if h.Subscribers() != 2 {
		t.Fatalf("Subscribers() = %d, want 2", h.Subscribers())
	}

	h.Unsubscribe(a)
	h.Unsubscribe(a) // second call is a no-op
	if _, ok := <-a; ok {
		t.Fatal("channel should be closed")
	}

	h.Close()
	if _, ok := <-b; ok {
		t.Fatal("channel should be closed after Close")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d, want 0", h.Subscribers())
	}
}

func TestPublishOnNilHub(t *testing.T) {
	var h *EventHub
	h.Publish(WateringState, nil)
}

func TestDecodeAsEmpty(t *testing.T) {
	v, err := DecodeAs[WateringStateEvent](Event{Name: WateringState})
	if err != nil {
		t.Fatalf("DecodeAs() error = %v", err)
	}
	if v != (WateringStateEvent{}) {
		t.Fatalf("expected zero value, got %+v", v)
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	h := NewEventHub()
	h.Close()

	ch := h.Subscribe()
	if _, ok := <-ch; ok {
		t.Fatal("subscription to a closed hub should be closed")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d, want 0", h.Subscribers())
	}

	h.Publish(WateringState, WateringStateEvent{})
	h.Unsubscribe(ch)
}
