package notify

import (
	"context"
	"testing"
	"time"

	"xentro.org/internal/feed"
	"xentro.org/internal/platform"
)

func TestNotifyAppendsAndPublishes(t *testing.T) {
	store := platform.NewInMemory()
	stream := feed.New()
	ch, cancel := stream.Subscribe()
	defer cancel()

	n := New(store.Notifications(), stream)
	n.Notify(context.Background(), "Founder@Example.org", "inst-1",
		"institution.published", "Institution published",
		map[string]string{"changed_by": "founder@example.org"})

	items, err := store.Notifications().ListByRecipient(context.Background(), "founder@example.org", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 stored notification, got %d", len(items))
	}
	if items[0].Recipient != "founder@example.org" {
		t.Fatalf("recipient not normalized: %q", items[0].Recipient)
	}
	if items[0].Event != "institution.published" || items[0].InstitutionID != "inst-1" {
		t.Fatalf("unexpected notification: %+v", items[0])
	}

	select {
	case ev := <-ch:
		if ev.Event != "institution.published" {
			t.Fatalf("stream got %q", ev.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("nothing published on the live feed")
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.Notify(context.Background(), "a@b.co", "", "x", "y", nil) // must not panic
}

func TestLogActivityRequiresEvent(t *testing.T) {
	if err := LogActivity(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
	ctx := WithRequestID(context.Background(), "req-1")
	if err := LogActivity(ctx, "thing.happened", map[string]any{"k": "v"}); err != nil {
		t.Fatal(err)
	}
}
