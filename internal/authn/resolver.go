package authn

import (
	"context"
	"errors"
	"strings"
	"time"

	"xentro.org/internal/platform"
	"xentro.org/internal/token"
)

var (
	// ErrAuthRequired means no token was presented at all.
	ErrAuthRequired = errors.New("authentication required")
	// ErrInvalidToken means the token failed verification or carries no
	// usable institution linkage.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired means the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrNoSession means the token verified but no application record backs
	// its email, so it cannot be trusted.
	ErrNoSession = errors.New("invalid session")
	// ErrForbidden means the token is valid but does not authorize the
	// institution it names.
	ErrForbidden = errors.New("forbidden")
)

// Resolver turns a raw institution token into a Principal, reconciling
// legacy application-id tokens against canonical institution records.
type Resolver struct {
	store platform.Store
	cache *SessionCache
}

// NewResolver constructs a Resolver. A nil cache disables memoization.
func NewResolver(store platform.Store, cache *SessionCache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// Cache exposes the session cache so membership mutations can invalidate it.
func (r *Resolver) Cache() *SessionCache { return r.cache }

// Resolve verifies the token and derives the canonical institution, role and
// user for it. The claim's id is never trusted verbatim: it is re-derived
// from persisted records, which closes stale and cross-tenant token reuse.
func (r *Resolver) Resolve(ctx context.Context, rawToken string) (Principal, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Principal{}, ErrAuthRequired
	}

	claims, err := token.Verify(rawToken, token.TypeInstitution)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenExpired):
			return Principal{}, ErrTokenExpired
		default:
			return Principal{}, ErrInvalidToken
		}
	}
	if claims.Email == "" {
		return Principal{}, ErrInvalidToken
	}

	if r.cache != nil {
		if principal, ok := r.cache.Get(rawToken); ok {
			return principal, nil
		}
	}

	principal, err := r.reconcile(ctx, claims)
	if err != nil {
		return Principal{}, err
	}

	if r.cache != nil {
		var expiresAt time.Time
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		r.cache.Put(rawToken, principal, expiresAt)
	}
	return principal, nil
}

// reconcile implements the dual-lookup: the subject id names either an
// institution or an application, and in both cases ownership must line up
// with the application record backing the token's email.
func (r *Resolver) reconcile(ctx context.Context, claims *token.Claims) (Principal, error) {
	app, err := r.store.Applications().FindByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return Principal{}, ErrNoSession
		}
		return Principal{}, err
	}

	subject := claims.Subject
	var institutionID string

	switch claims.Kind {
	case token.KindInstitution:
		if err := r.checkInstitution(ctx, app, subject); err != nil {
			return Principal{}, err
		}
		institutionID = subject
	case token.KindApplication:
		if app.ID != subject {
			return Principal{}, ErrForbidden
		}
		institutionID = app.InstitutionID
	default:
		// Legacy tokens carry no kind tag; probe the institution table first
		// and fall back to treating the subject as an application id.
		_, ierr := r.store.Institutions().Find(ctx, subject)
		switch {
		case ierr == nil:
			if app.InstitutionID != subject {
				return Principal{}, ErrForbidden
			}
			institutionID = subject
		case errors.Is(ierr, platform.ErrNotFound):
			if app.ID != subject {
				return Principal{}, ErrForbidden
			}
			institutionID = app.InstitutionID
		default:
			return Principal{}, ierr
		}
	}

	role := r.resolveRole(ctx, institutionID, claims.Email)

	return Principal{
		InstitutionID: institutionID,
		ApplicationID: app.ID,
		Email:         claims.Email,
		Role:          role,
		UserID:        firstNonEmpty(claims.UserID, app.ApplicantUserID),
	}, nil
}

func (r *Resolver) checkInstitution(ctx context.Context, app *platform.Application, institutionID string) error {
	if _, err := r.store.Institutions().Find(ctx, institutionID); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	// a token for institution A must not unlock institution B even when both exist
	if app.InstitutionID != institutionID {
		return ErrForbidden
	}
	return nil
}

// resolveRole defaults to owner (the original applicant); an active member
// row for the institution/email supersedes the default.
func (r *Resolver) resolveRole(ctx context.Context, institutionID, email string) string {
	if institutionID == "" {
		return platform.RoleOwner
	}
	member, err := r.store.Members().FindActive(ctx, institutionID, email)
	if err != nil {
		return platform.RoleOwner
	}
	return member.Role
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// RequireRole gates an already resolved principal against an allowed-role
// set. Pure check, no I/O; returns ErrForbidden when the role is not listed.
func RequireRole(principal Principal, allowed ...string) error {
	for _, role := range allowed {
		if principal.Role == role {
			return nil
		}
	}
	return ErrForbidden
}
