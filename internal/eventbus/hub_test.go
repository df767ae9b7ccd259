package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Subscribe(ctx, 2)

	h.Publish(Event{Type: "points.awarded", Data: map[string]any{"points": 10}})
	select {
	case evt := <-ch:
		if evt.Type != "points.awarded" || evt.Timestamp == 0 {
			t.Fatalf("evt=%+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}

	// 缓冲满时丢弃而不是阻塞
	for i := 0; i < 5; i++ {
		h.Publish(Event{Type: "x"})
	}

	cancel()
	deadline := time.After(time.Second)
	for h.Subscribers() != 0 {
		select {
		case <-deadline:
			t.Fatalf("subscriber not removed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestNilHubPublishIsNoop(t *testing.T) {
	var h *Hub
	h.Publish(Event{Type: "x"})
	if h.Subscribers() != 0 {
		t.Fatalf("nil hub has subscribers")
	}
}
