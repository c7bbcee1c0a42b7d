package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"xentro.org/internal/authn"
	"xentro.org/internal/platform"
)

type institutionUpdateRequest struct {
	Name        *string           `json:"name"`
	Tagline     *string           `json:"tagline"`
	City        *string           `json:"city"`
	Country     *string           `json:"country"`
	Website     *string           `json:"website"`
	Description *string           `json:"description"`
	Metrics     *platform.Metrics `json:"metrics"`
	SDGFocus    []string          `json:"sdg_focus"`
	SectorFocus []string          `json:"sector_focus"`
	LogoURL     *string           `json:"logo_url"`
	SocialLinks map[string]string `json:"social_links"`
}

func (a *API) handleInstitutionMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.institutionPrincipal(w, r)
	if !ok {
		return
	}
	inst, ok := a.principalInstitution(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeData(w, http.StatusOK, inst)
	case http.MethodPatch:
		if !a.requireRole(w, r, principal, platform.RoleOwner, platform.RoleAdmin, platform.RoleManager) {
			return
		}
		a.updateInstitution(w, r, principal)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) updateInstitution(w http.ResponseWriter, r *http.Request, principal authn.Principal) {
	var req institutionUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	upd := platform.InstitutionUpdate{
		Name:        req.Name,
		Tagline:     req.Tagline,
		City:        req.City,
		Country:     req.Country,
		Website:     req.Website,
		Description: req.Description,
		Metrics:     req.Metrics,
		SDGFocus:    req.SDGFocus,
		SectorFocus: req.SectorFocus,
		LogoURL:     req.LogoURL,
		SocialLinks: req.SocialLinks,
	}
	inst, err := a.store.Institutions().Update(r.Context(), principal.InstitutionID, upd)
	if err != nil {
		handlePlatformError(w, r, err)
		return
	}

	a.notifier.Notify(r.Context(), principal.Email, inst.ID,
		"institution.profile.updated", "Institution profile updated",
		map[string]string{"updated_by": principal.Email})

	writeData(w, http.StatusOK, inst)
}

func (a *API) handleInstitutionPublish(w http.ResponseWriter, r *http.Request) {
	a.setInstitutionStatus(w, r, platform.InstitutionPublished, "institution.published", "Institution published")
}

func (a *API) handleInstitutionArchive(w http.ResponseWriter, r *http.Request) {
	a.setInstitutionStatus(w, r, platform.InstitutionArchived, "institution.archived", "Institution archived")
}

func (a *API) setInstitutionStatus(w http.ResponseWriter, r *http.Request, status, event, message string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := a.institutionPrincipal(w, r)
	if !ok {
		return
	}
	if _, ok := a.principalInstitution(w, r); !ok {
		return
	}
	if !a.requireRole(w, r, principal, platform.RoleOwner, platform.RoleAdmin) {
		return
	}

	if err := a.store.Institutions().SetStatus(r.Context(), principal.InstitutionID, status); err != nil {
		handlePlatformError(w, r, err)
		return
	}
	if status == platform.InstitutionArchived {
		// archived institutions may lose access rules later, start fresh
		a.resolver.Cache().InvalidateInstitution(principal.InstitutionID)
	}

	a.notifier.Notify(r.Context(), principal.Email, principal.InstitutionID,
		event, message, map[string]string{"changed_by": principal.Email})

	inst, err := a.store.Institutions().Find(r.Context(), principal.InstitutionID)
	if err != nil {
		handlePlatformError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, inst)
}

func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := a.institutionPrincipal(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	items, err := a.store.Notifications().ListByRecipient(r.Context(), principal.Email, limit)
	if err != nil {
		handlePlatformError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, items)
}

// handleActivityStream pushes live activity events over Server-Sent Events.
func (a *API) handleActivityStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.institutionPrincipal(w, r); !ok {
		return
	}
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := a.stream.Subscribe()
	defer cancel()

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// principalInstitution loads the institution behind the session attached to
// the request context, handling pre-approval sessions that are not linked to
// one yet.
func (a *API) principalInstitution(w http.ResponseWriter, r *http.Request) (*platform.Institution, bool) {
	principal, ok := authn.PrincipalFromContext(r.Context())
	if !ok || principal.InstitutionID == "" {
		writeErrorCode(w, r, http.StatusNotFound, "not_found", "no institution linked to this session yet")
		return nil, false
	}
	inst, err := a.store.Institutions().Find(r.Context(), principal.InstitutionID)
	if err != nil {
		handlePlatformError(w, r, err)
		return nil, false
	}
	return inst, true
}
