package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"voluntra.org/internal/auth"
	"voluntra.org/internal/events"
	"voluntra.org/internal/obs"
	"voluntra.org/internal/permission"
)

const serviceName = "voluntra-api"

// SubscriptionUpdater applies billing-processor state changes to an
// organization. Implemented by the Postgres store and the memory directory.
type SubscriptionUpdater interface {
	SetSubscription(ctx context.Context, orgID string, status auth.SubscriptionStatus) error
}

// ReadyProbe reports whether the service can reach its backing store.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the API's collaborators.
type Config struct {
	Pipeline      *auth.Pipeline
	Events        events.Service
	Permissions   *permission.Store
	Billing       SubscriptionUpdater
	ReadyProbe    ReadyProbe
	Version       string
	BillingSecret string
}

// API is the HTTP layer.
type API struct {
	mux           *http.ServeMux
	pipeline      *auth.Pipeline
	events        events.Service
	perms         *permission.Store
	billing       SubscriptionUpdater
	readyProbe    ReadyProbe
	version       string
	billingSecret string
}

// New builds the route table.
func New(cfg Config) (*API, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("httpapi: pipeline is required")
	}
	if cfg.Events == nil {
		return nil, errors.New("httpapi: event service is required")
	}
	if cfg.Permissions == nil {
		return nil, errors.New("httpapi: permission store is required")
	}
	a := &API{
		mux:           http.NewServeMux(),
		pipeline:      cfg.Pipeline,
		events:        cfg.Events,
		perms:         cfg.Permissions,
		billing:       cfg.Billing,
		readyProbe:    cfg.ReadyProbe,
		version:       cfg.Version,
		billingSecret: cfg.BillingSecret,
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/events", a.handleEventsCollection)
	a.mux.HandleFunc("/v1/events/", a.handleEventResource)

	a.mux.HandleFunc("/v1/permissions/templates", a.handleTemplates)
	a.mux.HandleFunc("/v1/permissions/overrides", a.handleOverridesCollection)
	a.mux.HandleFunc("/v1/permissions/overrides/", a.handleOverrideResource)

	a.mux.HandleFunc("/v1/billing/webhook", a.handleBillingWebhook)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeErrors(w, r, http.StatusNotFound, ErrorDetail{Code: CodeNotFound, Message: "resource not found"})
	})

	return a, nil
}

// Handler returns the fully wired middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.withAuth(a.mux)
	h = RateLimit(h, 50, 25)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeErrors(w, r, http.StatusServiceUnavailable, ErrorDetail{
			Code:    CodeUpstreamUnavailable,
			Message: "not ready: " + err.Error(),
		})
		return
	}
	writeResult(w, r, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeErrors(w, r, http.StatusMethodNotAllowed, ErrorDetail{
		Code:    CodeMethodNotAllowed,
		Message: "method not allowed",
	})
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeErrors(w, r, http.StatusBadRequest, ErrorDetail{Code: CodeValidation, Message: msg})
}
