package feed

import (
	"context"
	"testing"
	"time"
)

func TestPublishFanOut(t *testing.T) {
	s := New()
	ch1, cancel1 := s.Subscribe()
	ch2, cancel2 := s.Subscribe()
	defer cancel1()
	defer cancel2()

	s.Publish(Event{Event: "institution.published", InstitutionID: "inst-1"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Event != "institution.published" {
				t.Fatalf("subscriber %d got %q", i, ev.Event)
			}
			if ev.Timestamp.IsZero() {
				t.Fatalf("subscriber %d: timestamp not stamped", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	cancel()
	cancel() // double cancel must be safe

	if s.Subscribers() != 0 {
		t.Fatalf("subscriber count = %d after cancel", s.Subscribers())
	}
	if _, open := <-ch; open {
		t.Fatal("channel still open after cancel")
	}
	s.Publish(Event{Event: "x"}) // must not panic
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	s := New()
	_, cancel := s.Subscribe()
	defer cancel()

	// fill the buffer and overflow it; Publish must never block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(Event{Event: "burst"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
