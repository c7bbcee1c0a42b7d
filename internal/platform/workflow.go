package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"xentro.org/internal/ids"
	"xentro.org/internal/mail"
)

const (
	defaultBaseURL  = "http://localhost:8080"
	defaultNextPath = "/institution/dashboard"
)

// Notifier is the side-channel consumed by the workflow. Implementations must
// never fail the caller; see internal/notify.
type Notifier interface {
	Notify(ctx context.Context, recipient, institutionID, event, message string, meta map[string]string)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, string, string, string, map[string]string) {}

// Workflow drives the institution application lifecycle:
// pending(unverified) -> pending(verified) -> approved | rejected.
type Workflow struct {
	store    Store
	mailer   mail.Mailer
	notifier Notifier
	baseURL  string
	now      func() time.Time
}

// WorkflowOption configures Workflow behavior.
type WorkflowOption func(*Workflow)

// WithMailer sets the outbound email collaborator.
func WithMailer(m mail.Mailer) WorkflowOption {
	return func(w *Workflow) {
		if m != nil {
			w.mailer = m
		}
	}
}

// WithNotifier sets the activity/notification side-channel.
func WithNotifier(n Notifier) WorkflowOption {
	return func(w *Workflow) {
		if n != nil {
			w.notifier = n
		}
	}
}

// WithBaseURL overrides the public base URL embedded in magic links.
func WithBaseURL(base string) WorkflowOption {
	return func(w *Workflow) {
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if base != "" {
			w.baseURL = base
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) WorkflowOption {
	return func(w *Workflow) {
		if fn != nil {
			w.now = fn
		}
	}
}

// NewWorkflow constructs the application workflow service.
func NewWorkflow(store Store, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		store:    store,
		mailer:   mail.LogMailer{},
		notifier: noopNotifier{},
		baseURL:  defaultBaseURL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SubmitInput is a new institution application.
type SubmitInput struct {
	Name        string
	Email       string
	Type        string
	Tagline     string
	City        string
	Country     string
	Website     string
	Description string
	// Next is the path the verification link redirects to after success.
	Next string
}

// SubmitResult returns the created application and the constructed magic
// link. The link is returned directly so environments without outbound email
// (demos, tests) can complete the flow.
type SubmitResult struct {
	Application *Application
	MagicLink   string
}

// Submit validates and persists a new application and dispatches the
// verification email. Email failures are logged by the mailer path and never
// fail the submission.
func (w *Workflow) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Name == "" {
		return SubmitResult{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return SubmitResult{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}

	if existing, err := w.store.Applications().FindByEmail(ctx, in.Email); err == nil && existing != nil {
		if existing.Status != ApplicationRejected {
			return SubmitResult{}, fmt.Errorf("%w: an application for this email already exists", ErrAlreadyExists)
		}
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return SubmitResult{}, err
	}

	now := w.now().UTC()
	app := &Application{
		ID:                ids.New(),
		Name:              in.Name,
		Email:             in.Email,
		Type:              strings.TrimSpace(in.Type),
		Tagline:           strings.TrimSpace(in.Tagline),
		City:              strings.TrimSpace(in.City),
		Country:           strings.TrimSpace(in.Country),
		Website:           strings.TrimSpace(in.Website),
		Description:       strings.TrimSpace(in.Description),
		Verified:          false,
		VerificationToken: uuid.NewString(),
		Status:            ApplicationPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := w.store.Applications().Create(ctx, app); err != nil {
		return SubmitResult{}, err
	}

	link := w.magicLink(app.VerificationToken, in.Next)
	if err := w.mailer.SendInstitutionMagicLink(ctx, mail.MagicLink{
		To:   app.Email,
		Name: app.Name,
		Link: link,
	}); err != nil {
		// outbound email is best-effort; the link is in the response anyway
		w.notifier.Notify(ctx, app.Email, "", "institution.magic_link.failed", err.Error(), nil)
	}

	w.notifier.Notify(ctx, app.Email, "", "institution.application.submitted",
		fmt.Sprintf("Application %q received, verification email sent", app.Name),
		map[string]string{"application_id": app.ID})

	return SubmitResult{Application: app, MagicLink: link}, nil
}

func (w *Workflow) magicLink(verificationToken, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		next = defaultNextPath
	}
	return fmt.Sprintf("%s/institution-applications/verify?token=%s&next=%s",
		w.baseURL, url.QueryEscape(verificationToken), url.QueryEscape(next))
}

// VerifyResult is the outcome of redeeming a verification token.
type VerifyResult struct {
	Application     *Application
	ApplicantUserID string
}

// Verify redeems a magic-link token. Redeeming an already verified token is
// idempotent: users click email links twice.
func (w *Workflow) Verify(ctx context.Context, verificationToken string) (VerifyResult, error) {
	verificationToken = strings.TrimSpace(verificationToken)
	if verificationToken == "" {
		return VerifyResult{}, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	app, err := w.store.Applications().FindByToken(ctx, verificationToken)
	if err != nil {
		return VerifyResult{}, err
	}

	userID, err := w.ensureApplicantUser(ctx, app)
	if err != nil {
		return VerifyResult{}, err
	}

	if !app.Verified {
		if err := w.store.Applications().MarkVerified(ctx, app.ID, userID); err != nil {
			return VerifyResult{}, err
		}
		app.Verified = true
		app.ApplicantUserID = userID
		w.notifier.Notify(ctx, app.Email, "", "institution.application.verified",
			fmt.Sprintf("Email verified for application %q", app.Name),
			map[string]string{"application_id": app.ID})
	}
	if app.ApplicantUserID == "" {
		app.ApplicantUserID = userID
	}
	return VerifyResult{Application: app, ApplicantUserID: userID}, nil
}

// ensureApplicantUser finds or creates the identity behind the application's
// email. Users are unique by lower-cased email.
func (w *Workflow) ensureApplicantUser(ctx context.Context, app *Application) (string, error) {
	user, err := w.store.Users().FindByEmail(ctx, app.Email)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	now := w.now().UTC()
	user = &User{
		ID:               ids.New(),
		Name:             app.Name,
		Email:            app.Email,
		AccountType:      AccountInstitution,
		ActiveContext:    AccountInstitution,
		UnlockedContexts: []string{AccountInstitution},
		EmailVerified:    true,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := w.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// lost a create race; the row is there now
			if existing, ferr := w.store.Users().FindByEmail(ctx, app.Email); ferr == nil {
				return existing.ID, nil
			}
		}
		return "", err
	}
	return user.ID, nil
}

// ListAll returns every application for the approvals dashboard. Filtering
// and pagination are left to the caller.
func (w *Workflow) ListAll(ctx context.Context) ([]*Application, error) {
	return w.store.Applications().List(ctx)
}

// DecideResult is the outcome of an admin decision.
type DecideResult struct {
	Application   *Application
	InstitutionID string
}

// Decide records the admin decision on a pending application. Approval
// requires prior email verification and materializes a draft institution
// when none is linked yet. Terminal states are final: repeated decisions
// fail with ErrAlreadyDecided and change nothing.
func (w *Workflow) Decide(ctx context.Context, id, decision, remark string) (DecideResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return DecideResult{}, fmt.Errorf("%w: application id is required", ErrInvalidInput)
	}
	decision = strings.TrimSpace(strings.ToLower(decision))
	if decision != ApplicationApproved && decision != ApplicationRejected {
		return DecideResult{}, fmt.Errorf("%w: decision must be %q or %q", ErrInvalidInput, ApplicationApproved, ApplicationRejected)
	}

	app, err := w.store.Applications().Find(ctx, id)
	if err != nil {
		return DecideResult{}, err
	}
	if app.Status != ApplicationPending {
		return DecideResult{}, ErrAlreadyDecided
	}
	if decision == ApplicationApproved && !app.Verified {
		return DecideResult{}, ErrNotVerified
	}

	institutionID := app.InstitutionID
	if decision == ApplicationApproved && institutionID == "" {
		inst, err := w.materializeInstitution(ctx, app)
		if err != nil {
			return DecideResult{}, err
		}
		institutionID = inst.ID
	}

	if err := w.store.Applications().Decide(ctx, id, decision, remark, institutionID); err != nil {
		return DecideResult{}, err
	}

	app.Status = decision
	app.Remark = remark
	app.InstitutionID = institutionID
	app.UpdatedAt = w.now().UTC()

	event := "institution.application." + decision
	msg := fmt.Sprintf("Application %q %s", app.Name, decision)
	if remark != "" {
		msg += ": " + remark
	}
	w.notifier.Notify(ctx, app.Email, institutionID, event, msg,
		map[string]string{"application_id": app.ID})

	return DecideResult{Application: app, InstitutionID: institutionID}, nil
}

// materializeInstitution copies the application's descriptive fields into a
// fresh draft institution. Approval authorizes existence; publication is a
// separate editorial step.
func (w *Workflow) materializeInstitution(ctx context.Context, app *Application) (*Institution, error) {
	now := w.now().UTC()
	inst := &Institution{
		ID:          ids.New(),
		Name:        app.Name,
		Email:       app.Email,
		Type:        app.Type,
		Tagline:     app.Tagline,
		City:        app.City,
		Country:     app.Country,
		Website:     app.Website,
		Description: app.Description,
		Status:      InstitutionDraft,
		Verified:    false,
		Metrics:     Metrics{FundingCurrency: "USD"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.store.Institutions().Create(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}
