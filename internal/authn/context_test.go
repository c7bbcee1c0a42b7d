package authn

import (
	"context"
	"testing"
)

func TestPrincipalContextRoundtrip(t *testing.T) {
	p := Principal{
		InstitutionID: "inst-1",
		Email:         "owner@hub.example.org",
		Role:          "owner",
		UserID:        "user-1",
	}
	ctx := ContextWithPrincipal(context.Background(), p)

	got, ok := PrincipalFromContext(ctx)
	if !ok {
		t.Fatal("principal not found in context")
	}
	if got != p {
		t.Fatalf("principal changed in transit: %+v", got)
	}

	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("empty context must not yield a principal")
	}
}

func TestTokenContextRoundtrip(t *testing.T) {
	ctx := ContextWithToken(context.Background(), "raw.jwt.value")

	got, ok := TokenFromContext(ctx)
	if !ok || got != "raw.jwt.value" {
		t.Fatalf("token lost in transit: %q, ok=%v", got, ok)
	}

	if _, ok := TokenFromContext(context.Background()); ok {
		t.Fatal("empty context must not yield a token")
	}

	// an empty token is never attached
	ctx = ContextWithToken(context.Background(), "")
	if _, ok := TokenFromContext(ctx); ok {
		t.Fatal("empty token must not be stored")
	}
}
