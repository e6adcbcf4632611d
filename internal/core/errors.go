package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across services.
var (
	// ErrAlreadyReconciled is returned when reconcile() finds journal_entry_id
	// already set. It guards against double-linking under concurrent retries.
	ErrAlreadyReconciled = errors.New("transaction is already reconciled")

	// ErrNotReconciled is returned by unreconcile() on an unlinked transaction.
	ErrNotReconciled = errors.New("transaction is not reconciled")

	// ErrEntryLinked is returned by DeleteEntry when a bank transaction still
	// points at the entry. The link must be removed through the state manager
	// first so the unreconcile lands in the audit chain.
	ErrEntryLinked = errors.New("journal entry is linked to a reconciled transaction")

	ErrTransactionNotFound  = errors.New("bank transaction not found")
	ErrEntryNotFound        = errors.New("journal entry not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrCounterpartyNotFound = errors.New("counterparty not found")
)

// Violation is a validation failure produced by the entry validator. It is a
// decision, not a fault: nothing was written, and the caller gets enough
// context (line index, amounts, account code) to render a precise message.
type Violation interface {
	error
	ViolationCode() string
}

// MissingIdempotencyKey rejects a draft without an internal code after
// normalization. Every entry must be traceable to its originating fact.
type MissingIdempotencyKey struct{}

func (MissingIdempotencyKey) Error() string {
	return "entry is missing its idempotency key (internal code)"
}
func (MissingIdempotencyKey) ViolationCode() string { return "MISSING_IDEMPOTENCY_KEY" }

// InsufficientLines rejects a draft with fewer than two lines.
type InsufficientLines struct {
	Count int
}

func (v InsufficientLines) Error() string {
	return fmt.Sprintf("entry must have at least 2 lines, got %d", v.Count)
}
func (InsufficientLines) ViolationCode() string { return "INSUFFICIENT_LINES" }

// AmbiguousLineAmount rejects a line that is not exactly one of debit or
// credit. Line is 1-indexed for error messages.
type AmbiguousLineAmount struct {
	Line int
}

func (v AmbiguousLineAmount) Error() string {
	return fmt.Sprintf("line %d must have exactly one of debit or credit > 0", v.Line)
}
func (AmbiguousLineAmount) ViolationCode() string { return "AMBIGUOUS_LINE_AMOUNT" }

// PostingToSyntheticAccount rejects a line whose account is missing or is a
// roll-up account. Only analytical accounts receive postings.
type PostingToSyntheticAccount struct {
	Line        int
	AccountCode string
}

func (v PostingToSyntheticAccount) Error() string {
	return fmt.Sprintf("line %d posts to synthetic or unknown account %s", v.Line, v.AccountCode)
}
func (PostingToSyntheticAccount) ViolationCode() string { return "POSTING_TO_SYNTHETIC_ACCOUNT" }

// UnbalancedEntry rejects a draft whose debits and credits diverge beyond the
// posting epsilon.
type UnbalancedEntry struct {
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Delta       decimal.Decimal
}

func (v UnbalancedEntry) Error() string {
	return fmt.Sprintf("entry is unbalanced: debits %s != credits %s (delta %s)",
		v.TotalDebit.StringFixed(2), v.TotalCredit.StringFixed(2), v.Delta.StringFixed(2))
}
func (UnbalancedEntry) ViolationCode() string { return "UNBALANCED_ENTRY" }

// AsViolation unwraps err into a Violation when the failure was a validation
// decision rather than a backend fault.
func AsViolation(err error) (Violation, bool) {
	var v Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
