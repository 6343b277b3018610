package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"allot.org/internal/alloc"
	"allot.org/internal/auth"
	"allot.org/internal/events"
	"allot.org/internal/obs"
)

const serviceName = "allot-api"

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Options tunes the HTTP surface. Zero values select the defaults.
type Options struct {
	Version     string
	RateBurst   int
	RatePerSec  float64
	CORSOrigins []string
	Production  bool
}

// API is the HTTP layer over an alloc.Service.
type API struct {
	svc        alloc.Service
	signer     *auth.Signer
	bus        *events.Bus
	readiness  readinessChecker
	version    string
	rateBurst  int
	ratePerSec float64
	origins    []string
	production bool
}

// New wires the API. bus may be nil, which disables /v1/events.
func New(svc alloc.Service, signer *auth.Signer, bus *events.Bus, rp readinessChecker, opts Options) *API {
	a := &API{
		svc:        svc,
		signer:     signer,
		bus:        bus,
		readiness:  rp,
		version:    opts.Version,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSec,
		origins:    opts.CORSOrigins,
		production: opts.Production,
	}
	if a.readiness == nil {
		a.readiness = ReadyProbe{}
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}
	return a
}

// Handler builds the router with the full middleware chain.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(LoggingJSON)
	r.Use(SecurityHeaders)
	r.Use(CORS(a.origins, a.production))
	r.Use(func(next http.Handler) http.Handler {
		return RateLimit(next, a.rateBurst, a.ratePerSec)
	})
	r.Use(obs.Instrument)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", a.Info)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)
			r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, maxBodyBytes) })

			r.Route("/facilities", func(r chi.Router) {
				r.With(a.requirePermission(auth.PermCatalogWrite)).Post("/", a.createFacility)
				r.Get("/", a.listFacilities)
				r.Get("/{id}", a.getFacility)
				r.With(a.requirePermission(auth.PermCatalogWrite)).Delete("/{id}", a.deleteFacility)
			})
			r.Route("/resources/units", func(r chi.Router) {
				r.With(a.requirePermission(auth.PermCatalogWrite)).Post("/", a.createUnit)
				r.Get("/", a.listUnits)
				r.Get("/{id}", a.getUnit)
				r.With(a.requirePermission(auth.PermCatalogWrite)).Delete("/{id}", a.deleteUnit)
			})
			r.Route("/assignments", func(r chi.Router) {
				r.With(a.requirePermission(auth.PermAssignmentWrite)).Post("/", a.admit)
				r.Get("/", a.listAssignments)
				r.Get("/{id}", a.getAssignment)
				r.With(a.requirePermission(auth.PermAssignmentWrite)).Patch("/{id}", a.transition)
			})
			r.Route("/maintenance", func(r chi.Router) {
				r.With(a.requirePermission(auth.PermMaintenanceWrite)).Post("/", a.scheduleMaintenance)
				r.Get("/", a.listMaintenance)
				r.Get("/{id}", a.getMaintenance)
				r.With(a.requirePermission(auth.PermMaintenanceWrite)).Patch("/{id}", a.updateMaintenance)
			})
			r.Get("/events", a.Stream)
			r.With(RequireRole(auth.RoleAdmin)).Post("/admin/reconcile", a.reconcileUnits)
		})
	})

	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readiness.Check(r.Context()); err != nil {
		obs.SetReady(false)
		body := map[string]any{"status": "not_ready"}
		if !a.production {
			body["error"] = err.Error()
		}
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
