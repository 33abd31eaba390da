package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/records-archive/internal/config"
	"github.com/kirillkom/records-archive/internal/core/ports"
)

// SourceResolver returns the snapshotter for a requested root. An empty root
// means the configured connected root.
type SourceResolver func(root string) (ports.Snapshotter, error)

type Dependencies struct {
	Syncer   ports.ArchiveSyncer
	Reader   ports.ArchiveReader
	Editor   ports.ArchiveEditor
	Policies ports.PolicyManager
	Audit    ports.AuditReader
	Chat     ports.ArchiveChat
	Relay    ports.MessageRelay
	Blobs    ports.ObjectStorage
	Sources  SourceResolver

	// Metrics wraps the handler with request metrics and serves /metrics.
	Metrics interface {
		Handler() http.Handler
		Middleware(service string, next http.Handler) http.Handler
	}

	// BaseContext bounds background syncs started by POST /v1/sync.
	BaseContext context.Context
}

type Router struct {
	cfg  config.Config
	deps Dependencies
	now  func() time.Time
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	return &Router{cfg: cfg, deps: deps, now: time.Now}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware)

	r.Get("/healthz", rt.healthz)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}
	r.Post("/v1/relay/webhook", rt.relayWebhook)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(rt.cfg.APIKey))

		r.Route("/v1/records", func(r chi.Router) {
			r.Get("/", rt.listRecords)
			r.Get("/{id}", rt.getRecord)
			r.Patch("/{id}/status", rt.updateRecordStatus)
			r.Put("/{id}/policy", rt.assignRecordPolicy)
			r.Get("/{id}/preview", rt.recordPreview)
		})
		r.Get("/v1/compliance/alerts", rt.complianceAlerts)
		r.Get("/v1/stats", rt.stats)

		r.Post("/v1/sync", rt.startSync)
		r.Get("/v1/sync/status", rt.syncStatus)
		r.Post("/v1/uploads", rt.upload)

		r.Get("/v1/audit", rt.listAudit)

		r.Route("/v1/policies", func(r chi.Router) {
			r.Get("/", rt.listPolicies)
			r.Post("/", rt.createPolicy)
			r.Put("/{id}", rt.updatePolicy)
			r.Delete("/{id}", rt.deletePolicy)
		})

		r.Post("/v1/chat", rt.chat)

		r.Get("/v1/relay/messages", rt.relayMessages)
		r.Post("/v1/relay/send", rt.relaySend)
	})

	var handler http.Handler = r
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware("api", handler)
	}
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
