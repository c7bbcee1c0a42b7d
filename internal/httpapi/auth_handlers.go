package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"xentro.org/internal/authn"
	"xentro.org/internal/notify"
	"xentro.org/internal/platform"
	"xentro.org/internal/token"
)

const (
	institutionTokenTTL = 24 * time.Hour
	adminTokenTTL       = 8 * time.Hour

	authRateLimit  = 10
	authRateWindow = time.Minute
)

type institutionTokenRequest struct {
	Email             string `json:"email"`
	VerificationToken string `json:"verification_token"`
}

type adminTokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleInstitutionToken exchanges a redeemed verification token for a
// context token. Requiring the verification token alongside the email means
// issuance proves inbox ownership, not just knowledge of an address.
func (a *API) handleInstitutionToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	key := "auth:" + clientIP(r)
	if limited, retryAfter := a.limiter.Check(key, authRateLimit, authRateWindow); limited {
		w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
		writeErrorCode(w, r, http.StatusTooManyRequests, "rate_limited", "too many token requests")
		return
	}

	var req institutionTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.VerificationToken = strings.TrimSpace(req.VerificationToken)
	if req.Email == "" || req.VerificationToken == "" {
		writeError(w, r, http.StatusBadRequest, "email and verification_token are required")
		return
	}

	app, err := a.store.Applications().FindByToken(r.Context(), req.VerificationToken)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			writeErrorCode(w, r, http.StatusUnauthorized, "invalid_credentials", "unknown verification token")
			return
		}
		handlePlatformError(w, r, err)
		return
	}
	if !strings.EqualFold(app.Email, req.Email) {
		writeErrorCode(w, r, http.StatusUnauthorized, "invalid_credentials", "verification token does not belong to this email")
		return
	}
	if !app.Verified {
		writeErrorCode(w, r, http.StatusForbidden, "not_verified", "verify your email before requesting a token")
		return
	}

	in := token.IssueInput{
		Type:   token.TypeInstitution,
		Email:  app.Email,
		Role:   platform.RoleOwner,
		UserID: app.ApplicantUserID,
		TTL:    institutionTokenTTL,
	}
	if app.InstitutionID != "" {
		in.Kind = token.KindInstitution
		in.Subject = app.InstitutionID
	} else {
		in.Kind = token.KindApplication
		in.Subject = app.ID
	}

	signed, expiresAt, err := token.Issue(in)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not issue token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    signed,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	_ = notify.LogActivity(r.Context(), "auth.institution_token.issued", map[string]any{
		"email":   app.Email,
		"subject": in.Subject,
		"kind":    string(in.Kind),
	})

	writeData(w, http.StatusOK, tokenResponse{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	})
}

func (a *API) handleAdminToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	key := "auth:" + clientIP(r)
	if limited, retryAfter := a.limiter.Check(key, authRateLimit, authRateWindow); limited {
		w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
		writeErrorCode(w, r, http.StatusTooManyRequests, "rate_limited", "too many token requests")
		return
	}

	var req adminTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := a.store.Users().FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			// same answer as a bad password, no account enumeration
			writeErrorCode(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		handlePlatformError(w, r, err)
		return
	}
	if user.AccountType != platform.AccountAdmin || !user.IsActive || user.PasswordHash == "" {
		writeErrorCode(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeErrorCode(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	signed, expiresAt, err := token.Issue(token.IssueInput{
		Type:    token.TypeAdmin,
		Subject: user.ID,
		Email:   user.Email,
		UserID:  user.ID,
		TTL:     adminTokenTTL,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not issue token")
		return
	}

	_ = notify.LogActivity(r.Context(), "auth.admin_token.issued", map[string]any{
		"email": user.Email,
	})

	writeData(w, http.StatusOK, tokenResponse{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	})
}

// handleLogout clears the session cookie and drops the cached resolution for
// the presented token. The token itself stays valid until it expires, so this
// is a browser convenience rather than a revocation.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.institutionPrincipal(w, r)
	if !ok {
		return
	}
	if raw, ok := authn.TokenFromContext(r.Context()); ok {
		a.resolver.Cache().Invalidate(raw)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	_ = notify.LogActivity(r.Context(), "auth.logout", map[string]any{
		"email": principal.Email,
	})
	w.WriteHeader(http.StatusNoContent)
}
