package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNewEventEnvelope(t *testing.T) {
	ev, err := New(TypeStatusUpdate, "p1", StatusUpdate{Status: "analyzing", Progress: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ev.Type != TypeStatusUpdate || ev.ProjectID != "p1" {
		t.Errorf("envelope fields wrong: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}

	var payload StatusUpdate
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Status != "analyzing" || payload.Progress != 10 {
		t.Errorf("payload round trip: %+v", payload)
	}
}

func TestMemoryBroadcasterDelivers(t *testing.T) {
	b := NewMemoryBroadcaster()
	defer b.Close()

	ch, cancel := b.Subscribe("p1")
	defer cancel()

	ev, _ := New(TypeSlideCompleted, "p1", SlideCompleted{SlideNumber: 2, SlideTitle: "Breakdown"})
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.Type != TypeSlideCompleted {
			t.Errorf("type = %q, want slide_completed", got.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestMemoryBroadcasterProjectIsolation(t *testing.T) {
	b := NewMemoryBroadcaster()
	defer b.Close()

	ch, cancel := b.Subscribe("p2")
	defer cancel()

	ev, _ := New(TypeStatusUpdate, "p1", StatusUpdate{Status: "completed", Progress: 100})
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-ch:
		t.Fatalf("event for p1 delivered to p2 subscriber: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBroadcasterCancelStopsDelivery(t *testing.T) {
	b := NewMemoryBroadcaster()
	defer b.Close()

	ch, cancel := b.Subscribe("p1")
	cancel()

	// The channel closes on cancel.
	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	ev, _ := New(TypeStatusUpdate, "p1", nil)
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish after cancel: %v", err)
	}
}

func TestMemoryBroadcasterDropsWhenFull(t *testing.T) {
	b := NewMemoryBroadcaster()
	defer b.Close()

	ch, cancel := b.Subscribe("p1")
	defer cancel()

	// Fill past the buffer without draining; Publish must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			ev, _ := New(TypeStatusUpdate, "p1", StatusUpdate{Progress: i})
			b.Publish(context.Background(), ev)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	if len(ch) == 0 {
		t.Error("no events buffered")
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("abc"); got != "expertsure.projects.abc" {
		t.Errorf("Subject = %q", got)
	}
}

func TestFanOutReachesAllTargets(t *testing.T) {
	a := NewMemoryBroadcaster()
	b := NewMemoryBroadcaster()
	fan := NewFanOut(a, b)
	defer fan.Close()

	chA, cancelA := a.Subscribe("p1")
	defer cancelA()
	chB, cancelB := b.Subscribe("p1")
	defer cancelB()

	ev, err := New(TypeStatusUpdate, "p1", StatusUpdate{Status: "analyzing"})
	if err != nil {
		t.Fatal(err)
	}
	if err := fan.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for name, ch := range map[string]<-chan Event{"first": chA, "second": chB} {
		select {
		case got := <-ch:
			if got.Type != TypeStatusUpdate {
				t.Errorf("%s target got type %q", name, got.Type)
			}
		default:
			t.Errorf("%s target received nothing", name)
		}
	}
}
