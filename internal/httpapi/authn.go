package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"xentro.org/internal/authn"
	"xentro.org/internal/token"
)

const (
	authHeader    = "Authorization"
	bearer        = "Bearer "
	sessionCookie = "institution_token"
)

// institutionPrincipal authenticates the request as an institution context.
// The Authorization header takes precedence over the session cookie. On
// failure it writes the response and returns ok=false.
func (a *API) institutionPrincipal(w http.ResponseWriter, r *http.Request) (authn.Principal, bool) {
	raw, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		if c, cerr := r.Cookie(sessionCookie); cerr == nil && strings.TrimSpace(c.Value) != "" {
			raw = strings.TrimSpace(c.Value)
		} else {
			writeErrorCode(w, r, http.StatusUnauthorized, "auth_required", "authentication required")
			return authn.Principal{}, false
		}
	}

	principal, err := a.resolver.Resolve(r.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, authn.ErrAuthRequired):
			writeErrorCode(w, r, http.StatusUnauthorized, "auth_required", "authentication required")
		case errors.Is(err, authn.ErrTokenExpired):
			writeErrorCode(w, r, http.StatusUnauthorized, "token_expired", "token expired")
		case errors.Is(err, authn.ErrInvalidToken):
			writeErrorCode(w, r, http.StatusUnauthorized, "invalid_token", "invalid token")
		case errors.Is(err, authn.ErrNoSession):
			writeErrorCode(w, r, http.StatusForbidden, "no_session", "no active session for this token")
		case errors.Is(err, authn.ErrForbidden):
			writeErrorCode(w, r, http.StatusForbidden, "forbidden", "token does not match this institution")
		default:
			writeError(w, r, http.StatusInternalServerError, "authentication error")
		}
		return authn.Principal{}, false
	}

	// Downstream helpers (and the logout handler, which needs the raw
	// token back) read the session from the request context.
	ctx := authn.ContextWithPrincipal(r.Context(), principal)
	*r = *r.WithContext(authn.ContextWithToken(ctx, raw))
	return principal, true
}

// requireRole enforces role membership on an already resolved principal.
// Failures include the roles that would have been accepted so dashboard
// clients can explain the denial.
func (a *API) requireRole(w http.ResponseWriter, r *http.Request, principal authn.Principal, allowed ...string) bool {
	if err := authn.RequireRole(principal, allowed...); err != nil {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"message":        "insufficient role",
			"code":           "insufficient_role",
			"request_id":     RequestIDFromContext(r.Context()),
			"required_roles": allowed,
			"actual_role":    principal.Role,
		})
		return false
	}
	return true
}

// adminClaims authenticates the request as a platform administrator.
func (a *API) adminClaims(w http.ResponseWriter, r *http.Request) (*token.Claims, bool) {
	raw, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeErrorCode(w, r, http.StatusUnauthorized, "auth_required", err.Error())
		return nil, false
	}
	claims, err := token.Verify(raw, token.TypeAdmin)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenExpired):
			writeErrorCode(w, r, http.StatusUnauthorized, "token_expired", "token expired")
		case errors.Is(err, token.ErrWrongType):
			writeErrorCode(w, r, http.StatusForbidden, "forbidden", "admin token required")
		default:
			writeErrorCode(w, r, http.StatusUnauthorized, "invalid_token", "invalid token")
		}
		return nil, false
	}
	return claims, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	tok := strings.TrimSpace(header[len(bearer):])
	if tok == "" {
		return "", errors.New("missing bearer token")
	}
	return tok, nil
}
