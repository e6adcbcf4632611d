package core

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// pipelineActor is the actor recorded on audit records written by automated
// reconciliation runs.
const pipelineActor = "auto-pipeline"

// Outcome is the terminal state of one pipeline run.
type Outcome string

const (
	OutcomeReconciled        Outcome = "reconciled"
	OutcomeNeedsReview       Outcome = "needs_review"
	OutcomeFailed            Outcome = "failed"
	OutcomeAlreadyReconciled Outcome = "already_reconciled"
)

// StepStatus is the tagged status of one pipeline step. Exactly one of a
// Step's payload fields (Data, Err, Reason) is set, according to the status.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step records one pipeline stage independently of the others: a later
// failure never rewrites the record of an earlier success.
type Step struct {
	Name     string         `json:"name"`
	Status   StepStatus     `json:"status"`
	Data     map[string]any `json:"data,omitempty"`   // set when completed
	Err      string         `json:"error,omitempty"`  // set when failed
	Reason   string         `json:"reason,omitempty"` // set when skipped
	Duration time.Duration  `json:"duration"`
	started  time.Time
}

func (s *Step) complete(data map[string]any) {
	s.Status = StepCompleted
	s.Data = data
	s.Duration = time.Since(s.started)
}

func (s *Step) fail(err error) {
	s.Status = StepFailed
	s.Err = err.Error()
	s.Duration = time.Since(s.started)
}

func (s *Step) skip(reason string) {
	s.Status = StepSkipped
	s.Reason = reason
	s.Duration = time.Since(s.started)
}

// PipelineResult is the full record of one transaction's trip through the
// pipeline.
type PipelineResult struct {
	TransactionID  int64                `json:"transaction_id"`
	FinalStatus    Outcome              `json:"final_status"`
	Steps          []*Step              `json:"steps"`
	EntryID        *int64               `json:"entry_id,omitempty"`
	ObligationID   *int64               `json:"obligation_id,omitempty"`
	CounterpartyID *int64               `json:"counterparty_id,omitempty"`
	Confidence     int                  `json:"confidence"`
	Method         IdentificationMethod `json:"method,omitempty"`
}

func (r *PipelineResult) step(name string) *Step {
	s := &Step{Name: name, Status: StepRunning, started: time.Now()}
	r.Steps = append(r.Steps, s)
	return s
}

// BatchStats accumulates outcomes over one ProcessAllPending run.
// Invariant: Reconciled + NeedsReview + Failed + AlreadyReconciled == Processed.
type BatchStats struct {
	Processed         int             `json:"processed"`
	Reconciled        int             `json:"reconciled"`
	NeedsReview       int             `json:"needs_review"`
	Failed            int             `json:"failed"`
	AlreadyReconciled int             `json:"already_reconciled"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        time.Time       `json:"finished_at"`
	Duration          time.Duration   `json:"duration"`
}

// Thresholds gate the pipeline's automation. Below Review nothing is
// persisted; between Review and Auto only a suggestion is stored; at or
// above Auto the pipeline posts and links.
type Thresholds struct {
	Auto   int
	Review int
}

// DefaultThresholds are the product's standing business constants.
func DefaultThresholds() Thresholds { return Thresholds{Auto: 90, Review: 70} }

// Identifier is the matching engine surface the orchestrator consumes.
type Identifier interface {
	Identify(ctx context.Context, tx *BankTransaction) (Match, error)
	ConfirmMatch(ctx context.Context, tenantID, description string, counterpartyID int64) error
}

// BankAccountSource resolves the ledger account behind a bank account.
type BankAccountSource interface {
	LedgerAccount(ctx context.Context, bankAccountID int64) (*Account, error)
}

// Orchestrator runs the end-to-end reconciliation pipeline. It is the only
// component that knows the full step sequence; every collaborator stays
// independently testable behind its interface.
type Orchestrator struct {
	transactions   TransactionSource
	bankAccounts   BankAccountSource
	counterparties CounterpartySource
	directory      AccountDirectory
	matcher        Identifier
	obligations    ObligationService
	ledger         LedgerService
	state          StateManager
	thresholds     Thresholds
}

func NewOrchestrator(
	transactions TransactionSource,
	bankAccounts BankAccountSource,
	counterparties CounterpartySource,
	directory AccountDirectory,
	matcher Identifier,
	obligations ObligationService,
	ledger LedgerService,
	state StateManager,
	thresholds Thresholds,
) *Orchestrator {
	if thresholds.Auto <= 0 {
		thresholds = DefaultThresholds()
	}
	return &Orchestrator{
		transactions:   transactions,
		bankAccounts:   bankAccounts,
		counterparties: counterparties,
		directory:      directory,
		matcher:        matcher,
		obligations:    obligations,
		ledger:         ledger,
		state:          state,
		thresholds:     thresholds,
	}
}

// ProcessTransaction runs the pipeline for one transaction. Failures are
// captured in the step record and the final status; the method itself never
// returns an error.
func (o *Orchestrator) ProcessTransaction(ctx context.Context, transactionID int64) *PipelineResult {
	result := &PipelineResult{TransactionID: transactionID, FinalStatus: OutcomeFailed}

	// fetch
	fetch := result.step("fetch_transaction")
	tx, err := o.transactions.Transaction(ctx, transactionID)
	if err != nil {
		fetch.fail(err)
		return result
	}
	fetch.complete(map[string]any{
		"amount":      tx.Amount.StringFixed(2),
		"description": truncate(tx.Description, 50),
	})

	// already reconciled?
	check := result.step("check_reconciled")
	if tx.Reconciled() {
		check.complete(map[string]any{"already_reconciled": true})
		result.FinalStatus = OutcomeAlreadyReconciled
		return result
	}
	check.complete(map[string]any{"already_reconciled": false})

	// identify counterparty
	identify := result.step("identify_counterparty")
	match := Match{
		CounterpartyID: tx.SuggestedCounterpartyID,
		Confidence:     tx.Confidence,
		Method:         tx.IdentificationMethod,
	}
	if match.CounterpartyID == nil {
		match, err = o.matcher.Identify(ctx, tx)
		if err != nil {
			identify.fail(err)
			return result
		}
	}
	result.CounterpartyID = match.CounterpartyID
	result.Confidence = match.Confidence
	result.Method = match.Method

	// decide: below review threshold nothing is persisted at all
	if match.CounterpartyID == nil || match.Confidence < o.thresholds.Review {
		identify.complete(map[string]any{"identified": false, "confidence": match.Confidence})
		result.FinalStatus = OutcomeNeedsReview
		return result
	}
	identify.complete(map[string]any{
		"counterparty_id": *match.CounterpartyID,
		"confidence":      match.Confidence,
		"method":          string(match.Method),
	})

	// below the auto threshold: persist the suggestion, post nothing.
	// This is a hard rule; obligation-match quality never overrides it.
	if match.Confidence < o.thresholds.Auto {
		return o.suggestForReview(ctx, result, tx, match)
	}

	// auto path requires a postable counterparty account
	cp, err := o.counterparties.CounterpartyByID(ctx, *match.CounterpartyID)
	if err != nil {
		identifyAcc := result.step("resolve_counterparty_account")
		identifyAcc.fail(err)
		return o.suggestForReview(ctx, result, tx, match)
	}
	account, reason := o.postableAccount(ctx, cp)
	if account == nil {
		downgrade := result.step("resolve_counterparty_account")
		downgrade.skip(reason)
		return o.suggestForReview(ctx, result, tx, match)
	}

	suggest := result.step("persist_identification")
	if err := o.state.RecordSuggestion(ctx, tx.ID, Suggestion{
		CounterpartyID: match.CounterpartyID,
		Confidence:     match.Confidence,
		Method:         match.Method,
		NeedsReview:    false,
	}); err != nil {
		suggest.fail(err)
		return result
	}
	suggest.complete(nil)

	// obligation lookup
	find := result.step("find_obligation")
	obligation, err := o.obligations.FindOpen(ctx, tx, cp.ID)
	if err != nil {
		find.fail(err)
		return result
	}
	if obligation != nil {
		result.ObligationID = &obligation.ID
		find.complete(map[string]any{"obligation_id": obligation.ID, "amount": obligation.Amount.StringFixed(2)})
	} else {
		find.complete(map[string]any{"obligation_id": nil})
	}

	// post the balanced entry
	post := result.step("post_entry")
	entryRes, err := o.postEntry(ctx, tx, cp, account)
	if err != nil {
		post.fail(err)
		return result
	}
	result.EntryID = &entryRes.EntryID
	post.complete(map[string]any{
		"entry_id":      entryRes.EntryID,
		"internal_code": entryRes.InternalCode,
		"existing":      entryRes.Existing,
	})

	// link transaction to entry
	link := result.step("link_transaction")
	if err := o.state.Reconcile(ctx, tx.ID, entryRes.EntryID, pipelineActor); err != nil {
		if err == ErrAlreadyReconciled {
			link.complete(map[string]any{"already_reconciled": true})
			result.FinalStatus = OutcomeAlreadyReconciled
			return result
		}
		link.fail(err)
		return result
	}
	link.complete(map[string]any{"journal_entry_id": entryRes.EntryID})

	// settle the matched obligation, if any
	if obligation != nil {
		settle := result.step("settle_obligation")
		if err := o.obligations.MarkSettled(ctx, obligation.ID, tx.TransactionDate); err != nil {
			// Entry is posted and linked; the settle failure stands on its
			// own and the obligation can be settled manually.
			settle.fail(err)
		} else {
			settle.complete(map[string]any{"obligation_id": obligation.ID})
		}
	}

	// learning feedback is best-effort
	confirm := result.step("confirm_pattern")
	if err := o.matcher.ConfirmMatch(ctx, tx.TenantID, tx.Description, cp.ID); err != nil {
		confirm.skip("pattern not recorded: " + err.Error())
	} else {
		confirm.complete(nil)
	}

	result.FinalStatus = OutcomeReconciled
	return result
}

// suggestForReview persists the suggestion fields, flags the transaction for
// review and finishes the run without posting.
func (o *Orchestrator) suggestForReview(ctx context.Context, result *PipelineResult, tx *BankTransaction, match Match) *PipelineResult {
	persist := result.step("persist_suggestion")
	err := o.state.RecordSuggestion(ctx, tx.ID, Suggestion{
		CounterpartyID: match.CounterpartyID,
		Confidence:     match.Confidence,
		Method:         match.Method,
		NeedsReview:    true,
	})
	if err != nil {
		persist.fail(err)
		return result
	}
	persist.complete(map[string]any{"needs_review": true})
	result.FinalStatus = OutcomeNeedsReview
	return result
}

// postableAccount returns the counterparty's analytical ledger account, or
// nil with the reason the auto path must downgrade to review.
func (o *Orchestrator) postableAccount(ctx context.Context, cp *Counterparty) (*Account, string) {
	if cp.AccountID == nil {
		return nil, fmt.Sprintf("counterparty %d has no ledger account", cp.ID)
	}
	account, err := o.directory.AccountByID(ctx, *cp.AccountID)
	if err != nil {
		return nil, err.Error()
	}
	if !account.IsAnalytical {
		return nil, fmt.Sprintf("account %s is synthetic", account.Code)
	}
	return account, ""
}

// postEntry builds and posts the balanced entry for an identified
// transaction: debit bank / credit counterparty for an inflow, the inverse
// for an outflow.
func (o *Orchestrator) postEntry(ctx context.Context, tx *BankTransaction, cp *Counterparty, cpAccount *Account) (*CreateEntryResult, error) {
	bankAccount, err := o.bankAccounts.LedgerAccount(ctx, tx.BankAccountID)
	if err != nil {
		return nil, err
	}

	amount := tx.Amount.Abs()
	entryType := EntryTypeReceipt
	bankLine := DraftLine{AccountCode: bankAccount.Code, Debit: amount}
	cpLine := DraftLine{AccountCode: cpAccount.Code, Credit: amount}
	if tx.Amount.IsNegative() {
		entryType = EntryTypeExpensePayment
		bankLine = DraftLine{AccountCode: bankAccount.Code, Credit: amount}
		cpLine = DraftLine{AccountCode: cpAccount.Code, Debit: amount}
	}

	draft := Draft{
		TenantID:      tx.TenantID,
		EntryDate:     tx.TransactionDate,
		Description:   "Automatic reconciliation - " + truncate(tx.Description, 100),
		EntryType:     entryType,
		ReferenceType: "bank_transaction",
		ReferenceID:   fmt.Sprintf("%d", tx.ID),
		InternalCode:  NewInternalCode(tx.TransactionDate),
		Lines:         []DraftLine{bankLine, cpLine},
	}
	return o.ledger.CreateEntry(ctx, draft)
}

// ProcessAllPending runs the pipeline over a tenant's unreconciled inflows
// in transaction-date order. One transaction's failure never stops the
// batch.
func (o *Orchestrator) ProcessAllPending(ctx context.Context, tenantID string, limit int) (*BatchStats, error) {
	stats := &BatchStats{StartedAt: time.Now(), TotalAmount: decimal.Zero}

	pending, err := o.transactions.PendingTransactions(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}

	for i := range pending {
		result := o.ProcessTransaction(ctx, pending[i].ID)
		stats.Processed++
		stats.TotalAmount = stats.TotalAmount.Add(pending[i].Amount)

		switch result.FinalStatus {
		case OutcomeReconciled:
			stats.Reconciled++
		case OutcomeNeedsReview:
			stats.NeedsReview++
		case OutcomeAlreadyReconciled:
			stats.AlreadyReconciled++
		default:
			stats.Failed++
		}
	}

	stats.FinishedAt = time.Now()
	stats.Duration = stats.FinishedAt.Sub(stats.StartedAt)
	return stats, nil
}

// truncate caps s at n bytes without splitting a multi-byte rune; the
// result is always valid UTF-8 when s is.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
