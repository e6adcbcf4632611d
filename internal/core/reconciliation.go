package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StateManager is the only component allowed to flip a transaction between
// reconciled and unreconciled, or to touch the suggestion fields. Status and
// ledger linkage can never diverge because both live in journal_entry_id and
// every change commits atomically with its audit record.
type StateManager interface {
	// Reconcile links a transaction to a journal entry. Fails with
	// ErrAlreadyReconciled when the link is already set.
	Reconcile(ctx context.Context, transactionID, entryID int64, actor string) error

	// Unreconcile clears the link. The journal entry itself is untouched;
	// reversal is a separate, explicit, audited operation.
	Unreconcile(ctx context.Context, transactionID int64, actor, reason string) error

	// RecordSuggestion persists the matcher's suggestion on a transaction
	// and flags it for review without posting anything.
	RecordSuggestion(ctx context.Context, transactionID int64, s Suggestion) error
}

// Suggestion is the advisory output persisted for a human reviewer.
type Suggestion struct {
	CounterpartyID *int64               `json:"counterparty_id,omitempty"`
	Confidence     int                  `json:"confidence"`
	Method         IdentificationMethod `json:"method"`
	NeedsReview    bool                 `json:"needs_review"`
}

type stateManager struct {
	pool  *pgxpool.Pool
	audit AuditLog
}

func NewStateManager(pool *pgxpool.Pool, audit AuditLog) StateManager {
	return &stateManager{pool: pool, audit: audit}
}

func (m *stateManager) Reconcile(ctx context.Context, transactionID, entryID int64, actor string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var tenantID string
	var current *int64
	err = tx.QueryRow(ctx, `
		SELECT tenant_id, journal_entry_id FROM bank_transactions
		WHERE id = $1 FOR UPDATE
	`, transactionID).Scan(&tenantID, &current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("transaction %d: %w", transactionID, ErrTransactionNotFound)
		}
		return fmt.Errorf("failed to lock transaction %d: %w", transactionID, err)
	}
	if current != nil {
		return ErrAlreadyReconciled
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bank_transactions SET journal_entry_id = $2, needs_review = false
		WHERE id = $1
	`, transactionID, entryID); err != nil {
		return fmt.Errorf("failed to link transaction %d: %w", transactionID, err)
	}

	err = m.audit.AppendTx(ctx, tx, AuditRecord{
		TenantID:   tenantID,
		Actor:      actor,
		Action:     AuditReconcile,
		EntityType: "bank_transaction",
		EntityID:   fmt.Sprintf("%d", transactionID),
		Before:     `{"journal_entry_id":null}`,
		After:      fmt.Sprintf(`{"journal_entry_id":%d}`, entryID),
	})
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reconciliation: %w", err)
	}
	return nil
}

func (m *stateManager) Unreconcile(ctx context.Context, transactionID int64, actor, reason string) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var tenantID string
	var current *int64
	err = tx.QueryRow(ctx, `
		SELECT tenant_id, journal_entry_id FROM bank_transactions
		WHERE id = $1 FOR UPDATE
	`, transactionID).Scan(&tenantID, &current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("transaction %d: %w", transactionID, ErrTransactionNotFound)
		}
		return fmt.Errorf("failed to lock transaction %d: %w", transactionID, err)
	}
	if current == nil {
		return ErrNotReconciled
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bank_transactions SET journal_entry_id = NULL WHERE id = $1
	`, transactionID); err != nil {
		return fmt.Errorf("failed to unlink transaction %d: %w", transactionID, err)
	}

	err = m.audit.AppendTx(ctx, tx, AuditRecord{
		TenantID:   tenantID,
		Actor:      actor,
		Action:     AuditUnreconcile,
		EntityType: "bank_transaction",
		EntityID:   fmt.Sprintf("%d", transactionID),
		Before:     fmt.Sprintf(`{"journal_entry_id":%d}`, *current),
		After:      fmt.Sprintf(`{"journal_entry_id":null,"reason":%q}`, reason),
	})
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit unreconciliation: %w", err)
	}
	return nil
}

func (m *stateManager) RecordSuggestion(ctx context.Context, transactionID int64, s Suggestion) error {
	tag, err := m.pool.Exec(ctx, `
		UPDATE bank_transactions
		SET suggested_counterparty_id = $2, confidence = $3, identification_method = $4, needs_review = $5
		WHERE id = $1 AND journal_entry_id IS NULL
	`, transactionID, s.CounterpartyID, s.Confidence, string(s.Method), s.NeedsReview)
	if err != nil {
		return fmt.Errorf("failed to record suggestion on transaction %d: %w", transactionID, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the transaction does not exist or it is already linked;
		// a linked transaction no longer takes suggestions.
		return fmt.Errorf("transaction %d not open for suggestions: %w", transactionID, ErrTransactionNotFound)
	}
	return nil
}
