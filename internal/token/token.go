// Package token issues and verifies the signed context tokens used by the
// platform. Every token carries an explicit type discriminator so a token
// minted for one context (institution dashboard, admin console) can never be
// reinterpreted as another.
package token

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer            = "xentro"
	secretEnvVariable = "XENTRO_AUTH_SECRET"

	// DefaultTTL is the lifetime applied when callers pass a non-positive ttl.
	DefaultTTL = 12 * time.Hour
)

// Token types. Middleware verifies against the type it expects and rejects
// everything else.
const (
	TypeInstitution = "institution"
	TypeAdmin       = "admin"
)

// SubjectKind tags what the subject claim identifies. Legacy institution
// tokens were issued with the application id in the subject before the
// application was promoted to an institution record; the tag lets resolvers
// branch on an explicit discriminant instead of probing both tables.
type SubjectKind string

const (
	KindApplication SubjectKind = "application"
	KindInstitution SubjectKind = "institution"
)

var (
	// ErrInvalidToken indicates the token failed signature or claim validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrWrongType indicates a valid token presented to the wrong surface.
	ErrWrongType = errors.New("wrong token type")

	errMissingSecret = errors.New("auth secret is not configured")

	secretMu sync.Mutex
	secret   cachedSecret
)

type cachedSecret struct {
	value []byte
	err   error
	ready bool
}

// Claims is the verified claim set embedded in every context token.
type Claims struct {
	Type   string      `json:"typ"`
	Kind   SubjectKind `json:"kind,omitempty"`
	Email  string      `json:"email,omitempty"`
	Role   string      `json:"role,omitempty"`
	UserID string      `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// IssueInput describes a token to mint.
type IssueInput struct {
	Type    string
	Kind    SubjectKind
	Subject string
	Email   string
	Role    string
	UserID  string
	TTL     time.Duration
}

// Issue signs an HS256 token for the given context.
func Issue(in IssueInput) (string, time.Time, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	if in.Subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	if in.Type != TypeInstitution && in.Type != TypeAdmin {
		return "", time.Time{}, fmt.Errorf("unsupported token type %q", in.Type)
	}
	if in.TTL <= 0 {
		in.TTL = DefaultTTL
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return "", time.Time{}, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(in.TTL)
	claims := Claims{
		Type:   in.Type,
		Kind:   in.Kind,
		Email:  strings.TrimSpace(strings.ToLower(in.Email)),
		Role:   strings.TrimSpace(strings.ToLower(in.Role)),
		UserID: strings.TrimSpace(in.UserID),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   in.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secretBytes)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and claims and enforces the expected token type.
func Verify(raw, expectedType string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secretBytes, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != expectedType {
		return nil, ErrWrongType
	}
	return claims, nil
}

func validateClaims(claims *Claims) error {
	if claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := time.Now().UTC()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

func loadSecret() ([]byte, error) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if secret.ready {
		return secret.value, secret.err
	}
	raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
	if raw == "" {
		secret.err = errMissingSecret
		secret.ready = true
		return nil, secret.err
	}
	secret.value = []byte(raw)
	secret.err = nil
	secret.ready = true
	return secret.value, nil
}

// ResetSecretForTests clears the cached secret value. Only intended for test use.
func ResetSecretForTests() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = cachedSecret{}
}
