package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. It backs
// tests and secretless demo runs; production uses the Postgres store.
type InMemory struct {
	mu            sync.RWMutex
	users         map[string]*User
	applications  map[string]*Application
	institutions  map[string]*Institution
	members       map[string]*Member
	notifications []*Notification
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:        make(map[string]*User),
		applications: make(map[string]*Application),
		institutions: make(map[string]*Institution),
		members:      make(map[string]*Member),
	}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Users() UserStore                 { return (*memUsers)(s) }
func (s *InMemory) Applications() ApplicationStore   { return (*memApplications)(s) }
func (s *InMemory) Institutions() InstitutionStore   { return (*memInstitutions)(s) }
func (s *InMemory) Members() MemberStore             { return (*memMembers)(s) }
func (s *InMemory) Notifications() NotificationStore { return (*memNotifications)(s) }

// Users ---------------------------------------------------------------------

type memUsers InMemory

func (s *memUsers) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, existing := range s.users {
		if strings.ToLower(existing.Email) == email {
			return fmt.Errorf("%w: user email %s", ErrAlreadyExists, email)
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUsers) Find(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Applications --------------------------------------------------------------

type memApplications InMemory

func (s *memApplications) Create(_ context.Context, app *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *app
	s.applications[app.ID] = &cp
	return nil
}

func (s *memApplications) Find(_ context.Context, id string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (s *memApplications) FindByEmail(_ context.Context, email string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	var newest *Application
	for _, app := range s.applications {
		if strings.ToLower(app.Email) != email {
			continue
		}
		if newest == nil || app.CreatedAt.After(newest.CreatedAt) {
			newest = app
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (s *memApplications) FindByToken(_ context.Context, verificationToken string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, app := range s.applications {
		if app.VerificationToken == verificationToken {
			cp := *app
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memApplications) List(_ context.Context) ([]*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]*Application, 0, len(s.applications))
	for _, app := range s.applications {
		cp := *app
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *memApplications) MarkVerified(_ context.Context, id, applicantUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[id]
	if !ok {
		return ErrNotFound
	}
	if app.Verified {
		return nil
	}
	app.Verified = true
	app.ApplicantUserID = applicantUserID
	app.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memApplications) Decide(_ context.Context, id, status, remark, institutionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[id]
	if !ok {
		return ErrNotFound
	}
	// compare-and-swap on pending so concurrent decisions cannot both win
	if app.Status != ApplicationPending {
		return ErrAlreadyDecided
	}
	app.Status = status
	app.Remark = remark
	app.InstitutionID = institutionID
	app.UpdatedAt = time.Now().UTC()
	return nil
}

// Institutions --------------------------------------------------------------

type memInstitutions InMemory

func (s *memInstitutions) Create(_ context.Context, inst *Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inst
	s.institutions[inst.ID] = &cp
	return nil
}

func (s *memInstitutions) Find(_ context.Context, id string) (*Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.institutions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (s *memInstitutions) Update(_ context.Context, id string, upd InstitutionUpdate) (*Institution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.institutions[id]
	if !ok {
		return nil, ErrNotFound
	}
	applyInstitutionUpdate(inst, upd)
	inst.UpdatedAt = time.Now().UTC()
	cp := *inst
	return &cp, nil
}

func (s *memInstitutions) SetStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.institutions[id]
	if !ok {
		return ErrNotFound
	}
	inst.Status = status
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

func applyInstitutionUpdate(inst *Institution, upd InstitutionUpdate) {
	if upd.Name != nil {
		inst.Name = *upd.Name
	}
	if upd.Tagline != nil {
		inst.Tagline = *upd.Tagline
	}
	if upd.City != nil {
		inst.City = *upd.City
	}
	if upd.Country != nil {
		inst.Country = *upd.Country
	}
	if upd.Website != nil {
		inst.Website = *upd.Website
	}
	if upd.Description != nil {
		inst.Description = *upd.Description
	}
	if upd.Metrics != nil {
		inst.Metrics = *upd.Metrics
	}
	if upd.SDGFocus != nil {
		inst.SDGFocus = upd.SDGFocus
	}
	if upd.SectorFocus != nil {
		inst.SectorFocus = upd.SectorFocus
	}
	if upd.LogoURL != nil {
		inst.LogoURL = *upd.LogoURL
	}
	if upd.SocialLinks != nil {
		inst.SocialLinks = upd.SocialLinks
	}
}

// Members -------------------------------------------------------------------

type memMembers InMemory

func (s *memMembers) Create(_ context.Context, m *Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(m.Email)
	for _, existing := range s.members {
		if existing.InstitutionID == m.InstitutionID && strings.ToLower(existing.Email) == email && existing.IsActive {
			return fmt.Errorf("%w: member %s", ErrAlreadyExists, email)
		}
	}
	cp := *m
	s.members[m.ID] = &cp
	return nil
}

func (s *memMembers) Find(_ context.Context, id string) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memMembers) FindActive(_ context.Context, institutionID, email string) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, m := range s.members {
		if m.InstitutionID == institutionID && strings.ToLower(m.Email) == email && m.IsActive {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memMembers) ListByInstitution(_ context.Context, institutionID string) ([]*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*Member
	for _, m := range s.members {
		if m.InstitutionID == institutionID {
			cp := *m
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (s *memMembers) Update(_ context.Context, id string, upd MemberUpdate) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Role != nil {
		m.Role = *upd.Role
	}
	if upd.IsActive != nil {
		m.IsActive = *upd.IsActive
	}
	if upd.AdminApproved != nil {
		m.AdminApproved = *upd.AdminApproved
	}
	if upd.ManagerApproved != nil {
		m.ManagerApproved = *upd.ManagerApproved
	}
	m.UpdatedAt = time.Now().UTC()
	cp := *m
	return &cp, nil
}

// Notifications -------------------------------------------------------------

type memNotifications InMemory

func (s *memNotifications) Append(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifications = append(s.notifications, &cp)
	return nil
}

func (s *memNotifications) ListByRecipient(_ context.Context, recipient string, limit int) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recipient = strings.ToLower(recipient)
	var res []*Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if strings.ToLower(n.Recipient) != recipient {
			continue
		}
		cp := *n
		res = append(res, &cp)
		if limit > 0 && len(res) >= limit {
			break
		}
	}
	return res, nil
}
