package authn

import (
	"context"
	"errors"
	"testing"
	"time"

	"xentro.org/internal/ids"
	"xentro.org/internal/platform"
	"xentro.org/internal/token"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("XENTRO_AUTH_SECRET", "resolver-test-secret")
	token.ResetSecretForTests()
	t.Cleanup(token.ResetSecretForTests)
}

// seedInstitution creates an approved application linked to an institution
// and returns both ids.
func seedInstitution(t *testing.T, store platform.Store, email string) (appID, instID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	inst := &platform.Institution{
		ID:        ids.New(),
		Name:      "Hub " + email,
		Email:     email,
		Status:    platform.InstitutionDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Institutions().Create(ctx, inst); err != nil {
		t.Fatal(err)
	}
	app := &platform.Application{
		ID:                ids.New(),
		Name:              inst.Name,
		Email:             email,
		Verified:          true,
		VerificationToken: ids.New(),
		Status:            platform.ApplicationApproved,
		InstitutionID:     inst.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := store.Applications().Create(ctx, app); err != nil {
		t.Fatal(err)
	}
	return app.ID, inst.ID
}

func issueInstitutionToken(t *testing.T, kind token.SubjectKind, subject, email string) string {
	t.Helper()
	signed, _, err := token.Issue(token.IssueInput{
		Type:    token.TypeInstitution,
		Kind:    kind,
		Subject: subject,
		Email:   email,
		TTL:     time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestResolveInstitutionToken(t *testing.T) {
	setSecret(t)
	store := platform.NewInMemory()
	appID, instID := seedInstitution(t, store, "owner@hub.org")
	r := NewResolver(store, NewSessionCache(time.Minute))

	raw := issueInstitutionToken(t, token.KindInstitution, instID, "owner@hub.org")
	p, err := r.Resolve(context.Background(), raw)
	if err != nil {
		t.Fatal(err)
	}
	if p.InstitutionID != instID || p.ApplicationID != appID {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if p.Role != platform.RoleOwner {
		t.Fatalf("applicant should default to owner, got %q", p.Role)
	}
}

func TestResolveApplicationToken(t *testing.T) {
	setSecret(t)
	store := platform.NewInMemory()
	appID, instID := seedInstitution(t, store, "owner@hub.org")
	r := NewResolver(store, nil)

	raw := issueInstitutionToken(t, token.KindApplication, appID, "owner@hub.org")
	p, err := r.Resolve(context.Background(), raw)
	if err != nil {
		t.Fatal(err)
	}
	if p.InstitutionID != instID {
		t.Fatalf("application token should resolve to the linked institution, got %+v", p)
	}
}

func TestResolveLegacyTokenWithoutKind(t *testing.T) {
	setSecret(t)
	store := platform.NewInMemory()
	appID, instID := seedInstitution(t, store, "owner@hub.org")
	r := NewResolver(store, nil)

	// old tokens carry either id in the subject with no kind tag
	for _, subject := range []string{instID, appID} {
		raw := issueInstitutionToken(t, "", subject, "owner@hub.org")
		p, err := r.Resolve(context.Background(), raw)
		if err != nil {
			t.Fatalf("subject %s: %v", subject, err)
		}
		if p.InstitutionID != instID {
			t.Fatalf("subject %s resolved to %q, want %q", subject, p.InstitutionID, instID)
		}
	}
}

func TestResolveCrossTenantRejected(t *testing.T) {
	setSecret(t)
	store := platform.NewInMemory()
	seedInstitution(t, store, "a@hub.org")
	_, instB := seedInstitution(t, store, "b@hub.org")
	r := NewResolver(store, nil)

	// a's email with b's institution in the subject
	raw := issueInstitutionToken(t, token.KindInstitution, instB, "a@hub.org")
	if _, err := r.Resolve(context.Background(), raw); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// same through the legacy path
	raw = issueInstitutionToken(t, "", instB, "a@hub.org")
	if _, err := r.Resolve(context.Background(), raw); !errors.Is(err, ErrForbidden) {
		t.Fatalf("legacy path: expected ErrForbidden, got %v", err)
	}
}

func TestResolveNoBackingApplication(t *testing.T) {
	setSecret(t)
	store := platform.NewInMemory()
	r := NewResolver(store, nil)

	raw := issueInstitutionToken(t, token.KindInstitution, "inst-x", "ghost@hub.org")
	if _, err := r.Resolve(context.Background(), raw); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestResolveTokenErrors(t *testing.T) {
	setSecret(t)
	store := platform.NewInMemory()
	r := NewResolver(store, nil)

	if _, err := r.Resolve(context.Background(), ""); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	// admin tokens never unlock the institution surface
	adminRaw, _, err := token.Issue(token.IssueInput{Type: token.TypeAdmin, Subject: "u1", Email: "root@x.co", TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(context.Background(), adminRaw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for admin token, got %v", err)
	}
}

func TestMemberRoleSupersedesOwner(t *testing.T) {
	setSecret(t)
	store := platform.NewInMemory()
	_, instID := seedInstitution(t, store, "owner@hub.org")
	now := time.Now().UTC()
	member := &platform.Member{
		ID:            ids.New(),
		InstitutionID: instID,
		Email:         "owner@hub.org",
		Role:          platform.RoleViewer,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.Members().Create(context.Background(), member); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(store, nil)

	raw := issueInstitutionToken(t, token.KindInstitution, instID, "owner@hub.org")
	p, err := r.Resolve(context.Background(), raw)
	if err != nil {
		t.Fatal(err)
	}
	if p.Role != platform.RoleViewer {
		t.Fatalf("active member row must supersede the owner default, got %q", p.Role)
	}
}

func TestResolveUsesCacheUntilInvalidated(t *testing.T) {
	setSecret(t)
	store := platform.NewInMemory()
	_, instID := seedInstitution(t, store, "owner@hub.org")
	cache := NewSessionCache(time.Hour)
	r := NewResolver(store, cache)
	ctx := context.Background()

	raw := issueInstitutionToken(t, token.KindInstitution, instID, "owner@hub.org")
	p, err := r.Resolve(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	if p.Role != platform.RoleOwner {
		t.Fatalf("expected owner, got %q", p.Role)
	}

	// demote via a member row. The cached resolution keeps answering owner
	// until it is invalidated.
	now := time.Now().UTC()
	if err := store.Members().Create(ctx, &platform.Member{
		ID:            ids.New(),
		InstitutionID: instID,
		Email:         "owner@hub.org",
		Role:          platform.RoleViewer,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		t.Fatal(err)
	}

	p, err = r.Resolve(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	if p.Role != platform.RoleOwner {
		t.Fatalf("expected stale cached owner, got %q", p.Role)
	}

	cache.InvalidateEmail("owner@hub.org")
	p, err = r.Resolve(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	if p.Role != platform.RoleViewer {
		t.Fatalf("expected viewer after invalidation, got %q", p.Role)
	}
}

func TestRequireRole(t *testing.T) {
	p := Principal{Role: platform.RoleManager}
	if err := RequireRole(p, platform.RoleOwner, platform.RoleManager); err != nil {
		t.Fatalf("manager should pass, got %v", err)
	}
	if err := RequireRole(p, platform.RoleOwner, platform.RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
