package app

import (
	"context"

	"ledger-core/internal/core"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
type ApplicationService interface {
	// CreateEntry validates and posts a journal entry draft. Re-submitting a
	// draft with an idempotency key already on file returns the existing
	// entry with Existing set; it never posts twice.
	CreateEntry(ctx context.Context, req CreateEntryRequest) (*EntryResult, error)

	// GetEntry returns one journal entry with its lines.
	GetEntry(ctx context.Context, id int64) (*core.JournalEntry, error)

	// DeleteEntry removes an entry and its lines, recording the deletion and
	// its reason in the audit chain.
	DeleteEntry(ctx context.Context, req DeleteEntryRequest) error

	// Reconcile links a bank transaction to a posted journal entry.
	// Fails with core.ErrAlreadyReconciled if a link already exists.
	Reconcile(ctx context.Context, req ReconcileRequest) error

	// Unreconcile removes a transaction's entry link. The journal entry
	// itself is left untouched.
	Unreconcile(ctx context.Context, req UnreconcileRequest) error

	// ProcessTransaction runs the reconciliation pipeline for one
	// transaction and returns the full step record.
	ProcessTransaction(ctx context.Context, transactionID int64) (*core.PipelineResult, error)

	// ProcessAllPending runs the pipeline over a tenant's unreconciled
	// inflows, oldest first, up to limit transactions.
	ProcessAllPending(ctx context.Context, tenantID string, limit int) (*core.BatchStats, error)

	// AuditTrail returns an entity's audit records, newest first.
	AuditTrail(ctx context.Context, tenantID, entityType, entityID string, limit int) ([]core.AuditRecord, error)

	// VerifyAuditChain walks a tenant's full audit chain and reports the
	// first broken link, if any.
	VerifyAuditChain(ctx context.Context, tenantID string) (*core.ChainReport, error)

	// LedgerHealth runs the read-only integrity checks over a tenant's
	// ledger.
	LedgerHealth(ctx context.Context, tenantID string) (*core.HealthReport, error)
}
