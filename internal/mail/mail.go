// Package mail defines the outbound email collaborator used by the
// application workflow. Delivery itself lives outside this service; the
// workflow only requires that sends never fail a request.
package mail

import (
	"context"

	"xentro.org/internal/obs"
)

// MagicLink is the payload for an institution verification email.
type MagicLink struct {
	To   string
	Name string
	Link string
}

// Mailer dispatches transactional email.
type Mailer interface {
	SendInstitutionMagicLink(ctx context.Context, msg MagicLink) error
}

// LogMailer writes the message to the structured log instead of sending it.
// Used in development and tests, and as the fallback when no provider is
// configured; the magic link is also returned in the submit response so the
// flow works without outbound email.
type LogMailer struct{}

func (LogMailer) SendInstitutionMagicLink(_ context.Context, msg MagicLink) error {
	obs.LogRequest(map[string]any{
		"type":  "mail",
		"event": "institution.magic_link",
		"to":    msg.To,
		"name":  msg.Name,
		"link":  msg.Link,
	})
	return nil
}
