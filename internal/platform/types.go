// Package platform holds the XENTRO domain model: users, institution
// applications, institutions, institution members and the notification
// side-channel, together with the application lifecycle workflow.
package platform

import "time"

// Application statuses.
const (
	ApplicationPending  = "pending"
	ApplicationApproved = "approved"
	ApplicationRejected = "rejected"
)

// Institution statuses. Approval materializes institutions as drafts; a
// later editorial step publishes them, and archival replaces deletion.
const (
	InstitutionDraft     = "draft"
	InstitutionPublished = "published"
	InstitutionArchived  = "archived"
)

// Member roles within an institution.
const (
	RoleOwner      = "owner"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleViewer     = "viewer"
	RoleAmbassador = "ambassador"
)

// Account types a user identity may hold.
const (
	AccountInstitution = "institution"
	AccountAdmin       = "admin"
	AccountExplorer    = "explorer"
)

// ValidRole reports whether the given role name is a known member role.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleManager, RoleViewer, RoleAmbassador:
		return true
	}
	return false
}

// User is a platform identity. One logical person may unlock several role
// contexts over time; deactivation is a soft flag, never a delete.
type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	AccountType      string    `json:"account_type"`
	ActiveContext    string    `json:"active_context,omitempty"`
	UnlockedContexts []string  `json:"unlocked_contexts,omitempty"`
	PasswordHash     string    `json:"-"`
	EmailVerified    bool      `json:"email_verified"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Application is a pending or decided request to create an institution.
type Application struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Type              string    `json:"type,omitempty"`
	Tagline           string    `json:"tagline,omitempty"`
	City              string    `json:"city,omitempty"`
	Country           string    `json:"country,omitempty"`
	Website           string    `json:"website,omitempty"`
	Description       string    `json:"description,omitempty"`
	Verified          bool      `json:"verified"`
	VerificationToken string    `json:"-"`
	Status            string    `json:"status"`
	InstitutionID     string    `json:"institution_id,omitempty"`
	ApplicantUserID   string    `json:"applicant_user_id,omitempty"`
	Remark            string    `json:"remark,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Metrics are the headline numbers an institution reports on its profile.
type Metrics struct {
	StartupsSupported  int    `json:"startups_supported"`
	StudentsMentored   int    `json:"students_mentored"`
	FundingFacilitated int64  `json:"funding_facilitated"`
	FundingCurrency    string `json:"funding_currency"`
}

// Institution is the canonical entity behind an approved application.
// Verified here is the platform trust badge, unrelated to the email
// verification an application goes through.
type Institution struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Type        string            `json:"type,omitempty"`
	Tagline     string            `json:"tagline,omitempty"`
	City        string            `json:"city,omitempty"`
	Country     string            `json:"country,omitempty"`
	Website     string            `json:"website,omitempty"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	Verified    bool              `json:"verified"`
	Metrics     Metrics           `json:"metrics"`
	SDGFocus    []string          `json:"sdg_focus,omitempty"`
	SectorFocus []string          `json:"sector_focus,omitempty"`
	LogoURL     string            `json:"logo_url,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Member links a user (by email) to an institution with a role. The original
// applicant is implicitly owner and has no Member row.
type Member struct {
	ID              string    `json:"id"`
	InstitutionID   string    `json:"institution_id"`
	UserID          string    `json:"user_id,omitempty"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	IsActive        bool      `json:"is_active"`
	AdminApproved   bool      `json:"admin_approved"`
	ManagerApproved bool      `json:"manager_approved"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Notification is a fire-and-forget record of a workflow action, surfaced on
// the recipient's activity feed.
type Notification struct {
	ID            string            `json:"id"`
	Recipient     string            `json:"recipient"`
	InstitutionID string            `json:"institution_id,omitempty"`
	Event         string            `json:"event"`
	Message       string            `json:"message"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// InstitutionUpdate carries partial edits from the institution dashboard.
// Nil fields are left unchanged.
type InstitutionUpdate struct {
	Name        *string
	Tagline     *string
	City        *string
	Country     *string
	Website     *string
	Description *string
	Metrics     *Metrics
	SDGFocus    []string
	SectorFocus []string
	LogoURL     *string
	SocialLinks map[string]string
}

// MemberUpdate carries partial edits to a membership row.
type MemberUpdate struct {
	Role            *string
	IsActive        *bool
	AdminApproved   *bool
	ManagerApproved *bool
}
