package platform

import "context"

// Store describes persistence operations required by the platform core.
type Store interface {
	Users() UserStore
	Applications() ApplicationStore
	Institutions() InstitutionStore
	Members() MemberStore
	Notifications() NotificationStore
}

// UserStore manages platform identities.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// ApplicationStore manages institution applications.
type ApplicationStore interface {
	Create(ctx context.Context, app *Application) error
	Find(ctx context.Context, id string) (*Application, error)
	FindByEmail(ctx context.Context, email string) (*Application, error)
	FindByToken(ctx context.Context, verificationToken string) (*Application, error)
	List(ctx context.Context) ([]*Application, error)
	// MarkVerified flips verified to true and links the applicant user.
	// Calling it on an already verified application is a no-op.
	MarkVerified(ctx context.Context, id, applicantUserID string) error
	// Decide transitions status out of pending exactly once. The update is
	// conditional on the current status so two concurrent decisions cannot
	// both win; losing callers get ErrAlreadyDecided.
	Decide(ctx context.Context, id, status, remark, institutionID string) error
}

// InstitutionStore manages canonical institution records.
type InstitutionStore interface {
	Create(ctx context.Context, inst *Institution) error
	Find(ctx context.Context, id string) (*Institution, error)
	Update(ctx context.Context, id string, upd InstitutionUpdate) (*Institution, error)
	SetStatus(ctx context.Context, id, status string) error
}

// MemberStore manages institution memberships.
type MemberStore interface {
	Create(ctx context.Context, m *Member) error
	Find(ctx context.Context, id string) (*Member, error)
	// FindActive returns the active membership for the given institution and
	// email, or ErrNotFound when the email has no active row there.
	FindActive(ctx context.Context, institutionID, email string) (*Member, error)
	ListByInstitution(ctx context.Context, institutionID string) ([]*Member, error)
	Update(ctx context.Context, id string, upd MemberUpdate) (*Member, error)
}

// NotificationStore appends and reads activity records.
type NotificationStore interface {
	Append(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipient string, limit int) ([]*Notification, error)
}
