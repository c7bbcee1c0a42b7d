package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"xentro.org/internal/notify"
	"xentro.org/internal/platform"
)

const (
	submitRateLimit  = 3
	submitRateWindow = time.Minute
)

type submitApplicationRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Type        string `json:"type"`
	Tagline     string `json:"tagline"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Website     string `json:"website"`
	Description string `json:"description"`
	Next        string `json:"next"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Remark   string `json:"remark"`
}

func (a *API) handleApplications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.submitApplication(w, r)
	case http.MethodGet:
		a.listApplications(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleApplicationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/institution-applications/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/decision"); ok {
		id = strings.TrimSuffix(id, "/")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, r, http.StatusNotFound, "application not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.decideApplication(w, r, id)
		return
	}

	writeError(w, r, http.StatusNotFound, "resource not found")
}

func (a *API) submitApplication(w http.ResponseWriter, r *http.Request) {
	key := "submit:" + clientIP(r)
	if limited, retryAfter := a.limiter.Check(key, submitRateLimit, submitRateWindow); limited {
		w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
		writeErrorCode(w, r, http.StatusTooManyRequests, "rate_limited",
			"too many applications from this address, try again later")
		return
	}

	var req submitApplicationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.workflow.Submit(r.Context(), platform.SubmitInput{
		Name:        req.Name,
		Email:       req.Email,
		Type:        req.Type,
		Tagline:     req.Tagline,
		City:        req.City,
		Country:     req.Country,
		Website:     req.Website,
		Description: req.Description,
		Next:        req.Next,
	})
	if err != nil {
		handlePlatformError(w, r, err)
		return
	}

	_ = notify.LogActivity(r.Context(), "institution.application.submitted", map[string]any{
		"application_id": res.Application.ID,
		"name":           res.Application.Name,
	})

	w.Header().Set("Location", "/v1/institution-applications/"+res.Application.ID)
	writeData(w, http.StatusCreated, map[string]any{
		"application": res.Application,
		"magic_link":  res.MagicLink,
	})
}

// handleVerify redeems the emailed magic link. Success redirects the browser
// onwards; failures render JSON since there is no page to land on.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	res, err := a.workflow.Verify(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		handlePlatformError(w, r, err)
		return
	}

	next := sanitizeNext(r.URL.Query().Get("next"))
	if next != "" {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"application": res.Application,
		"verified":    true,
	})
}

func (a *API) listApplications(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.adminClaims(w, r); !ok {
		return
	}
	apps, err := a.workflow.ListAll(r.Context())
	if err != nil {
		handlePlatformError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, apps)
}

func (a *API) decideApplication(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := a.adminClaims(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.workflow.Decide(r.Context(), id, req.Decision, req.Remark)
	if err != nil {
		handlePlatformError(w, r, err)
		return
	}

	// sessions resolved before the decision carry no institution link yet
	a.resolver.Cache().InvalidateEmail(res.Application.Email)

	_ = notify.LogActivity(r.Context(), "institution.application.decided", map[string]any{
		"application_id": id,
		"decision":       res.Application.Status,
		"decided_by":     claims.Email,
	})

	writeData(w, http.StatusOK, map[string]any{
		"application":    res.Application,
		"institution_id": res.InstitutionID,
	})
}

// sanitizeNext keeps redirects on-site. Absolute URLs and scheme-relative
// paths are dropped rather than rejected so stale links still verify.
func sanitizeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	if u, err := url.Parse(next); err != nil || u.Host != "" || u.Scheme != "" {
		return ""
	}
	return next
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
