package platform

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestInstitutionPartialUpdate(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	inst := &Institution{
		ID:      "inst-1",
		Name:    "Impact Hub",
		Tagline: "original",
		City:    "Nairobi",
		Status:  InstitutionDraft,
		Metrics: Metrics{FundingCurrency: "USD"},
	}
	if err := store.Institutions().Create(ctx, inst); err != nil {
		t.Fatal(err)
	}

	tagline := "we fund builders"
	got, err := store.Institutions().Update(ctx, "inst-1", InstitutionUpdate{Tagline: &tagline})
	if err != nil {
		t.Fatal(err)
	}
	if got.Tagline != "we fund builders" {
		t.Fatalf("tagline not updated: %q", got.Tagline)
	}
	if got.Name != "Impact Hub" || got.City != "Nairobi" {
		t.Fatalf("nil fields were touched: %+v", got)
	}
	if got.Metrics.FundingCurrency != "USD" {
		t.Fatalf("metrics were touched: %+v", got.Metrics)
	}

	if _, err := store.Institutions().Update(ctx, "nope", InstitutionUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	if err := store.Institutions().Create(ctx, &Institution{ID: "inst-1", Name: "A"}); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Institutions().Find(ctx, "inst-1")
	got.Name = "mutated"

	again, _ := store.Institutions().Find(ctx, "inst-1")
	if again.Name != "A" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestUserEmailUnique(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	if err := store.Users().Create(ctx, &User{ID: "u1", Email: "a@b.co"}); err != nil {
		t.Fatal(err)
	}
	err := store.Users().Create(ctx, &User{ID: "u2", Email: "A@B.CO"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestMemberReactivationAfterDeactivate(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	m := &Member{ID: "m1", InstitutionID: "inst-1", Email: "v@x.co", Role: RoleViewer, IsActive: true}
	if err := store.Members().Create(ctx, m); err != nil {
		t.Fatal(err)
	}

	// a second active row for the same email conflicts
	err := store.Members().Create(ctx, &Member{ID: "m2", InstitutionID: "inst-1", Email: "V@x.co", Role: RoleAdmin, IsActive: true})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	// after deactivation a fresh invite is fine
	inactive := false
	if _, err := store.Members().Update(ctx, "m1", MemberUpdate{IsActive: &inactive}); err != nil {
		t.Fatal(err)
	}
	if err := store.Members().Create(ctx, &Member{ID: "m3", InstitutionID: "inst-1", Email: "v@x.co", Role: RoleAdmin, IsActive: true}); err != nil {
		t.Fatalf("re-invite after deactivation failed: %v", err)
	}

	if _, err := store.Members().FindActive(ctx, "inst-1", "v@x.co"); err != nil {
		t.Fatalf("active membership not found: %v", err)
	}
}

func TestNotificationsNewestFirstWithLimit(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := store.Notifications().Append(ctx, &Notification{
			ID:        fmt.Sprintf("n%d", i),
			Recipient: "a@b.co",
			Event:     fmt.Sprintf("event.%d", i),
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	items, err := store.Notifications().ListByRecipient(ctx, "A@B.CO", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("limit ignored: got %d", len(items))
	}
	if items[0].Event != "event.4" {
		t.Fatalf("not newest-first: %q", items[0].Event)
	}
}
