package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ledger-core/internal/app"

	"github.com/go-chi/chi/v5"
)

type reconcilePayload struct {
	EntryID int64  `json:"entry_id"`
	Actor   string `json:"actor"`
}

// reconcile handles POST /api/transactions/{id}/reconcile.
func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var payload reconcilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if payload.EntryID == 0 {
		writeError(w, r, "entry_id is required", "MISSING_ENTRY_ID", http.StatusBadRequest)
		return
	}
	if payload.Actor == "" {
		payload.Actor = "api"
	}

	err := h.svc.Reconcile(r.Context(), app.ReconcileRequest{
		TransactionID: id,
		EntryID:       payload.EntryID,
		Actor:         payload.Actor,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"transaction_id": id, "entry_id": payload.EntryID, "reconciled": true})
}

type unreconcilePayload struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// unreconcile handles POST /api/transactions/{id}/unreconcile.
func (h *Handler) unreconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var payload unreconcilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if payload.Reason == "" {
		writeError(w, r, "reason is required", "MISSING_REASON", http.StatusBadRequest)
		return
	}
	if payload.Actor == "" {
		payload.Actor = "api"
	}

	err := h.svc.Unreconcile(r.Context(), app.UnreconcileRequest{
		TransactionID: id,
		Actor:         payload.Actor,
		Reason:        payload.Reason,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"transaction_id": id, "reconciled": false})
}

// processTransaction handles POST /api/transactions/{id}/process. The
// response always carries the full step record, including failed runs.
func (h *Handler) processTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ProcessTransaction(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

type runBatchPayload struct {
	TenantID string `json:"tenant_id"`
	Limit    int    `json:"limit"`
}

// runBatch handles POST /api/reconciliation/run.
func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request) {
	var payload runBatchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if payload.TenantID == "" {
		writeError(w, r, "tenant_id is required", "MISSING_TENANT", http.StatusBadRequest)
		return
	}

	stats, err := h.svc.ProcessAllPending(r.Context(), payload.TenantID, payload.Limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, stats)
}

// auditTrail handles GET /api/audit/{entityType}/{entityID}?tenant=X&limit=N.
func (h *Handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		writeError(w, r, "tenant query parameter is required", "MISSING_TENANT", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.svc.AuditTrail(r.Context(), tenantID,
		chi.URLParam(r, "entityType"), chi.URLParam(r, "entityID"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"records": records, "count": len(records)})
}

// verifyAuditChain handles GET /api/audit/verify?tenant=X.
func (h *Handler) verifyAuditChain(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		writeError(w, r, "tenant query parameter is required", "MISSING_TENANT", http.StatusBadRequest)
		return
	}
	report, err := h.svc.VerifyAuditChain(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}
