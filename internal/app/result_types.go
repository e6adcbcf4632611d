package app

import "github.com/shopspring/decimal"

// EntryResult is returned by CreateEntry. Existing is true when the draft's
// idempotency key was already on file and no new entry was posted.
type EntryResult struct {
	EntryID      int64           `json:"entry_id"`
	InternalCode string          `json:"internal_code"`
	Existing     bool            `json:"existing"`
	TotalDebit   decimal.Decimal `json:"total_debit"`
	TotalCredit  decimal.Decimal `json:"total_credit"`
}
