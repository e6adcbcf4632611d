package web

import (
	"net/http"

	"ledger-core/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRequestBody = 1 << 20 // 1 MiB is generous for a journal entry

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc app.ApplicationService
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string) http.Handler {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))
	r.Use(RequestBodyLimit(maxRequestBody))

	r.Get("/api/health", h.health)
	r.Get("/api/health/ledger", h.ledgerHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/entries", func(r chi.Router) {
		r.Post("/", h.createEntry)
		r.Get("/{id}", h.getEntry)
		r.Delete("/{id}", h.deleteEntry)
	})

	r.Route("/api/transactions/{id}", func(r chi.Router) {
		r.Post("/reconcile", h.reconcile)
		r.Post("/unreconcile", h.unreconcile)
		r.Post("/process", h.processTransaction)
	})

	r.Post("/api/reconciliation/run", h.runBatch)

	r.Route("/api/audit", func(r chi.Router) {
		r.Get("/verify", h.verifyAuditChain)
		r.Get("/{entityType}/{entityID}", h.auditTrail)
	})

	return r
}

// health handles GET /api/health (liveness only).
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// ledgerHealth handles GET /api/health/ledger?tenant=X.
func (h *Handler) ledgerHealth(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		writeError(w, r, "tenant query parameter is required", "MISSING_TENANT", http.StatusBadRequest)
		return
	}
	report, err := h.svc.LedgerHealth(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}
