package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	Asset     AccountType = "asset"
	Liability AccountType = "liability"
	Equity    AccountType = "equity"
	Revenue   AccountType = "revenue"
	Expense   AccountType = "expense"
)

// AccountNature tells which side increases the account balance.
type AccountNature string

const (
	DebitNature  AccountNature = "debit"
	CreditNature AccountNature = "credit"
)

// Account is one node of the chart of accounts. Codes are dot-delimited and
// hierarchical (e.g. "1.1.2.01.0007"). Only analytical (leaf) accounts may
// receive journal lines; synthetic accounts exist solely to roll up balances.
type Account struct {
	ID           int64         `json:"id"`
	TenantID     string        `json:"tenant_id"`
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	Type         AccountType   `json:"type"`
	Nature       AccountNature `json:"nature"`
	IsAnalytical bool          `json:"is_analytical"`
	IsTransitory bool          `json:"is_transitory"`
	ParentCode   string        `json:"parent_code,omitempty"`
}

// EntryType classifies a journal entry by the business fact that produced it.
// Free-form by design; these are the values the reconciliation pipeline emits.
const (
	EntryTypeReceipt        = "receipt"
	EntryTypeExpensePayment = "expense-payment"
	EntryTypeManual         = "manual-adjustment"
)

type JournalEntry struct {
	ID            int64           `json:"id"`
	TenantID      string          `json:"tenant_id"`
	EntryDate     time.Time       `json:"entry_date"`
	Description   string          `json:"description"`
	EntryType     string          `json:"entry_type"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	InternalCode  string          `json:"internal_code"`
	TotalDebit    decimal.Decimal `json:"total_debit"`
	TotalCredit   decimal.Decimal `json:"total_credit"`
	CreatedAt     time.Time       `json:"created_at"`
	Lines         []JournalLine   `json:"lines,omitempty"`
}

// Balanced reports whether the stored totals agree within the posting epsilon.
func (e *JournalEntry) Balanced() bool {
	return e.TotalDebit.Sub(e.TotalCredit).Abs().LessThanOrEqual(balanceEpsilon)
}

type JournalLine struct {
	ID          int64           `json:"id"`
	EntryID     int64           `json:"entry_id"`
	AccountID   int64           `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// IdentificationMethod names the rule of the matching cascade that produced
// a counterparty suggestion.
type IdentificationMethod string

const (
	MethodPatternLearned IdentificationMethod = "pattern_learned"
	MethodHistoryMatch   IdentificationMethod = "history_match"
	MethodKeywordMatch   IdentificationMethod = "keyword_match"
	MethodNone           IdentificationMethod = "none"
)

// BankTransaction is one normalized statement line supplied by ingestion.
// JournalEntryID is the sole source of truth for reconciliation status; the
// suggestion fields and NeedsReview are advisory and may only be written by
// the reconciliation state manager.
type BankTransaction struct {
	ID                      int64                `json:"id"`
	TenantID                string               `json:"tenant_id"`
	BankAccountID           int64                `json:"bank_account_id"`
	TransactionDate         time.Time            `json:"transaction_date"`
	Amount                  decimal.Decimal      `json:"amount"` // signed; > 0 is an inflow
	Description             string               `json:"description"`
	JournalEntryID          *int64               `json:"journal_entry_id,omitempty"`
	SuggestedCounterpartyID *int64               `json:"suggested_counterparty_id,omitempty"`
	Confidence              int                  `json:"confidence"`
	IdentificationMethod    IdentificationMethod `json:"identification_method,omitempty"`
	NeedsReview             bool                 `json:"needs_review"`
}

// Reconciled derives the reconciliation status. No stored boolean exists.
func (t *BankTransaction) Reconciled() bool {
	return t.JournalEntryID != nil
}

// Counterparty is a client or supplier that bank movements settle against.
// AccountID links to the analytical receivable/payable account used when the
// pipeline posts automatically; nil means no automatic posting is possible.
type Counterparty struct {
	ID        int64    `json:"id"`
	TenantID  string   `json:"tenant_id"`
	Name      string   `json:"name"`
	Document  string   `json:"document,omitempty"` // tax id as printed on statements
	Keywords  []string `json:"keywords,omitempty"`
	AccountID *int64   `json:"account_id,omitempty"`
}

type ObligationStatus string

const (
	ObligationOpen    ObligationStatus = "open"
	ObligationOverdue ObligationStatus = "overdue"
	ObligationSettled ObligationStatus = "settled"
)

// Obligation is an open invoice or expense awaiting settlement.
type Obligation struct {
	ID             int64            `json:"id"`
	TenantID       string           `json:"tenant_id"`
	CounterpartyID int64            `json:"counterparty_id"`
	Amount         decimal.Decimal  `json:"amount"`
	DueDate        time.Time        `json:"due_date"`
	Status         ObligationStatus `json:"status"`
	SettledOn      *time.Time       `json:"settled_on,omitempty"`
}

// Open reports whether the obligation can still be matched against.
func (o *Obligation) Open() bool {
	return o.Status == ObligationOpen || o.Status == ObligationOverdue
}

// AuditAction enumerates the state-changing actions the audit log records.
type AuditAction string

const (
	AuditPost        AuditAction = "post"
	AuditReclassify  AuditAction = "reclassify"
	AuditDelete      AuditAction = "delete"
	AuditReconcile   AuditAction = "reconcile"
	AuditUnreconcile AuditAction = "unreconcile"
)

// AuditRecord is one link of the append-only audit chain. RecordHash covers
// the record's fields plus PreviousHash, so any rewrite of history breaks
// every later link.
type AuditRecord struct {
	ID           int64       `json:"id"`
	TenantID     string      `json:"tenant_id"`
	Sequence     int64       `json:"sequence"`
	Actor        string      `json:"actor"`
	Action       AuditAction `json:"action"`
	EntityType   string      `json:"entity_type"`
	EntityID     string      `json:"entity_id"`
	Before       string      `json:"before,omitempty"` // JSON snapshot
	After        string      `json:"after,omitempty"`  // JSON snapshot
	PreviousHash string      `json:"previous_hash"`
	RecordHash   string      `json:"record_hash"`
	CreatedAt    time.Time   `json:"created_at"`
}
