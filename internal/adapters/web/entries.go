package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ledger-core/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type entryLinePayload struct {
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
}

type createEntryPayload struct {
	TenantID      string             `json:"tenant_id"`
	EntryDate     string             `json:"entry_date"` // YYYY-MM-DD
	Description   string             `json:"description"`
	EntryType     string             `json:"entry_type"`
	ReferenceType string             `json:"reference_type"`
	ReferenceID   string             `json:"reference_id"`
	InternalCode  string             `json:"internal_code"`
	Lines         []entryLinePayload `json:"lines"`
}

// createEntry handles POST /api/entries. A duplicate idempotency key answers
// 200 with the existing entry instead of 201.
func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var payload createEntryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if payload.TenantID == "" {
		writeError(w, r, "tenant_id is required", "MISSING_TENANT", http.StatusBadRequest)
		return
	}

	req := app.CreateEntryRequest{
		TenantID:      payload.TenantID,
		EntryDate:     payload.EntryDate,
		Description:   payload.Description,
		EntryType:     payload.EntryType,
		ReferenceType: payload.ReferenceType,
		ReferenceID:   payload.ReferenceID,
		InternalCode:  payload.InternalCode,
	}
	for _, l := range payload.Lines {
		req.Lines = append(req.Lines, app.EntryLineInput{
			AccountCode: l.AccountCode,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		})
	}

	result, err := h.svc.CreateEntry(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !result.Existing {
		w.WriteHeader(http.StatusCreated)
	}
	_ = json.NewEncoder(w).Encode(result)
}

// getEntry handles GET /api/entries/{id}.
func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.GetEntry(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, entry)
}

type deleteEntryPayload struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// deleteEntry handles DELETE /api/entries/{id}. The reason is mandatory; it
// goes into the audit chain.
func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var payload deleteEntryPayload
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

	err := h.svc.DeleteEntry(r.Context(), app.DeleteEntryRequest{
		EntryID: id,
		Actor:   payload.Actor,
		Reason:  payload.Reason,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} URL parameter, answering 400 on garbage.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, "invalid id", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
