package app

import "github.com/shopspring/decimal"

// CreateEntryRequest is the input for posting a journal entry.
type CreateEntryRequest struct {
	TenantID      string
	EntryDate     string // YYYY-MM-DD; empty means today
	Description   string
	EntryType     string
	ReferenceType string
	ReferenceID   string
	InternalCode  string // empty means "generate one"
	Lines         []EntryLineInput
}

// EntryLineInput is a single line within a CreateEntryRequest. Exactly one
// of Debit and Credit must be positive.
type EntryLineInput struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// DeleteEntryRequest is the input for removing a posted entry.
type DeleteEntryRequest struct {
	EntryID int64
	Actor   string
	Reason  string
}

// ReconcileRequest is the input for manually linking a bank transaction to
// a journal entry.
type ReconcileRequest struct {
	TransactionID int64
	EntryID       int64
	Actor         string
}

// UnreconcileRequest is the input for removing a transaction's entry link.
type UnreconcileRequest struct {
	TransactionID int64
	Actor         string
	Reason        string
}
