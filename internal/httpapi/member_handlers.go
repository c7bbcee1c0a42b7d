package httpapi

import (
	"net/http"
	"strings"
	"time"

	"xentro.org/internal/ids"
	"xentro.org/internal/platform"
)

type createMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type updateMemberRequest struct {
	Role            *string `json:"role"`
	IsActive        *bool   `json:"is_active"`
	AdminApproved   *bool   `json:"admin_approved"`
	ManagerApproved *bool   `json:"manager_approved"`
}

func (a *API) handleMembersCollection(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.institutionPrincipal(w, r)
	if !ok {
		return
	}
	if _, ok := a.principalInstitution(w, r); !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		members, err := a.store.Members().ListByInstitution(r.Context(), principal.InstitutionID)
		if err != nil {
			handlePlatformError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, members)
	case http.MethodPost:
		if !a.requireRole(w, r, principal, platform.RoleOwner, platform.RoleAdmin) {
			return
		}
		a.createMember(w, r, principal.InstitutionID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleMemberResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/institutions/me/members/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "member not found")
		return
	}

	principal, ok := a.institutionPrincipal(w, r)
	if !ok {
		return
	}
	if !a.requireRole(w, r, principal, platform.RoleOwner, platform.RoleAdmin) {
		return
	}

	member, err := a.store.Members().Find(r.Context(), id)
	if err != nil {
		handlePlatformError(w, r, err)
		return
	}
	// a membership id from another institution is indistinguishable from a
	// missing one
	if member.InstitutionID != principal.InstitutionID {
		writeError(w, r, http.StatusNotFound, "member not found")
		return
	}

	switch r.Method {
	case http.MethodPatch:
		a.updateMember(w, r, principal.InstitutionID, member)
	case http.MethodDelete:
		a.deactivateMember(w, r, member)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) createMember(w http.ResponseWriter, r *http.Request, institutionID string) {
	var req createMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, r, http.StatusBadRequest, "valid email is required")
		return
	}
	if !platform.ValidRole(req.Role) {
		writeError(w, r, http.StatusBadRequest, "unknown role "+req.Role)
		return
	}

	now := time.Now().UTC()
	member := &platform.Member{
		ID:            ids.New(),
		InstitutionID: institutionID,
		Email:         req.Email,
		Role:          req.Role,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if user, err := a.store.Users().FindByEmail(r.Context(), req.Email); err == nil {
		member.UserID = user.ID
	}

	if err := a.store.Members().Create(r.Context(), member); err != nil {
		handlePlatformError(w, r, err)
		return
	}

	// a cached session for this email may carry a stale role
	a.resolver.Cache().InvalidateEmail(req.Email)

	a.notifier.Notify(r.Context(), req.Email, institutionID,
		"institution.member.added",
		"You were added as "+req.Role,
		map[string]string{"member_id": member.ID, "role": req.Role})

	w.Header().Set("Location", "/v1/institutions/me/members/"+member.ID)
	writeData(w, http.StatusCreated, member)
}

func (a *API) updateMember(w http.ResponseWriter, r *http.Request, institutionID string, member *platform.Member) {
	var req updateMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role != nil && !platform.ValidRole(*req.Role) {
		writeError(w, r, http.StatusBadRequest, "unknown role "+*req.Role)
		return
	}

	updated, err := a.store.Members().Update(r.Context(), member.ID, platform.MemberUpdate{
		Role:            req.Role,
		IsActive:        req.IsActive,
		AdminApproved:   req.AdminApproved,
		ManagerApproved: req.ManagerApproved,
	})
	if err != nil {
		handlePlatformError(w, r, err)
		return
	}

	a.resolver.Cache().InvalidateEmail(member.Email)

	a.notifier.Notify(r.Context(), member.Email, institutionID,
		"institution.member.updated", "Your membership was updated",
		map[string]string{"member_id": member.ID})

	writeData(w, http.StatusOK, updated)
}

// deactivateMember soft-deletes: the row stays for audit, the session dies.
func (a *API) deactivateMember(w http.ResponseWriter, r *http.Request, member *platform.Member) {
	inactive := false
	if _, err := a.store.Members().Update(r.Context(), member.ID, platform.MemberUpdate{
		IsActive: &inactive,
	}); err != nil {
		handlePlatformError(w, r, err)
		return
	}

	a.resolver.Cache().InvalidateEmail(member.Email)

	a.notifier.Notify(r.Context(), member.Email, member.InstitutionID,
		"institution.member.removed", "Your membership was deactivated",
		map[string]string{"member_id": member.ID})

	w.WriteHeader(http.StatusNoContent)
}
