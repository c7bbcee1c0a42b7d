package httpapi

import (
	"net/http"

	"xentro.org/internal/authn"
	"xentro.org/internal/feed"
	"xentro.org/internal/notify"
	"xentro.org/internal/obs"
	"xentro.org/internal/platform"
	"xentro.org/internal/ratelimit"
)

const serviceName = "xentro-api"

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	store    platform.Store
	workflow *platform.Workflow
	resolver *authn.Resolver
	notifier *notify.Notifier
	stream   *feed.Stream
	limiter  *ratelimit.Limiter
}

// Config carries the collaborators the API serves.
type Config struct {
	ReadyProbe ReadyProbe
	Version    string
	Store      platform.Store
	Workflow   *platform.Workflow
	Resolver   *authn.Resolver
	Notifier   *notify.Notifier
	Stream     *feed.Stream
	Limiter    *ratelimit.Limiter
}

func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		store:      cfg.Store,
		workflow:   cfg.Workflow,
		resolver:   cfg.Resolver,
		notifier:   cfg.Notifier,
		stream:     cfg.Stream,
		limiter:    cfg.Limiter,
	}
	if a.limiter == nil {
		a.limiter = ratelimit.NewLimiter()
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// application workflow
	a.mux.HandleFunc("/v1/institution-applications", a.handleApplications)
	a.mux.HandleFunc("/v1/institution-applications/", a.handleApplicationResource)
	a.mux.HandleFunc("/institution-applications/verify", a.handleVerify)

	// token issuance
	a.mux.HandleFunc("/v1/auth/institution-token", a.handleInstitutionToken)
	a.mux.HandleFunc("/v1/auth/admin-token", a.handleAdminToken)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	// institution dashboard
	a.mux.HandleFunc("/v1/institutions/me", a.handleInstitutionMe)
	a.mux.HandleFunc("/v1/institutions/me/publish", a.handleInstitutionPublish)
	a.mux.HandleFunc("/v1/institutions/me/archive", a.handleInstitutionArchive)
	a.mux.HandleFunc("/v1/institutions/me/members", a.handleMembersCollection)
	a.mux.HandleFunc("/v1/institutions/me/members/", a.handleMemberResource)

	// activity side-channel
	a.mux.HandleFunc("/v1/notifications", a.handleNotifications)
	a.mux.HandleFunc("/v1/notifications/stream", a.handleActivityStream)

	// корень — 404
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 30, 10)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
