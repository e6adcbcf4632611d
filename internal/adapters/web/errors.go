package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledger-core/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service-layer errors onto HTTP status codes.
// Validation violations carry their own machine-readable code.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if v, ok := core.AsViolation(err); ok {
		writeError(w, r, v.Error(), v.ViolationCode(), http.StatusUnprocessableEntity)
		return
	}
	switch {
	case errors.Is(err, core.ErrEntryNotFound),
		errors.Is(err, core.ErrTransactionNotFound),
		errors.Is(err, core.ErrAccountNotFound),
		errors.Is(err, core.ErrCounterpartyNotFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrAlreadyReconciled):
		writeError(w, r, err.Error(), "ALREADY_RECONCILED", http.StatusConflict)
	case errors.Is(err, core.ErrNotReconciled):
		writeError(w, r, err.Error(), "NOT_RECONCILED", http.StatusConflict)
	case errors.Is(err, core.ErrEntryLinked):
		writeError(w, r, err.Error(), "ENTRY_LINKED", http.StatusConflict)
	default:
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
