package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CreateEntryResult is returned by every successful CreateEntry call,
// including idempotent re-submissions.
type CreateEntryResult struct {
	EntryID      int64  `json:"entry_id"`
	InternalCode string `json:"internal_code"`
	// Existing is true when the entry was already posted for the same
	// (reference_type, reference_id, entry_type) and nothing was written.
	Existing bool `json:"existing"`
}

// LedgerService persists journal entries. It is the only write path into the
// journal tables.
type LedgerService interface {
	// CreateEntry validates and posts a draft. Re-submitting the same
	// originating fact is a no-op returning the pre-existing entry id,
	// never an error. Validation failures return a typed Violation and
	// write nothing.
	CreateEntry(ctx context.Context, draft Draft) (*CreateEntryResult, error)

	// DeleteEntry removes header and lines atomically, capturing the full
	// before-image in an audit record. The only sanctioned deletion path.
	// Fails with ErrEntryLinked while a bank transaction points at the entry;
	// the link comes off through the state manager first.
	DeleteEntry(ctx context.Context, id int64, actor, reason string) error

	// GetEntry loads an entry with its lines.
	GetEntry(ctx context.Context, id int64) (*JournalEntry, error)
}

type Ledger struct {
	pool      *pgxpool.Pool
	directory AccountDirectory
	audit     AuditLog
}

func NewLedger(pool *pgxpool.Pool, directory AccountDirectory, audit AuditLog) *Ledger {
	return &Ledger{pool: pool, directory: directory, audit: audit}
}

func (l *Ledger) CreateEntry(ctx context.Context, draft Draft) (*CreateEntryResult, error) {
	draft.Normalize()

	// Idempotency pre-lookup: one posting per originating business fact.
	if existing, err := l.findByReference(ctx, draft); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	chart, err := l.directory.Snapshot(ctx, draft.TenantID)
	if err != nil {
		return nil, err
	}
	if err := draft.Validate(chart); err != nil {
		return nil, err
	}

	totalDebit, totalCredit := draft.Totals()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var entryID int64
	for attempt := 0; ; attempt++ {
		err = tx.QueryRow(ctx, `
			INSERT INTO journal_entries (tenant_id, entry_date, description, entry_type, reference_type, reference_id, internal_code, total_debit, total_credit, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			ON CONFLICT (tenant_id, reference_type, reference_id, entry_type) DO NOTHING
			RETURNING id
		`, draft.TenantID, draft.EntryDate, draft.Description, draft.EntryType,
			draft.ReferenceType, draft.ReferenceID, draft.InternalCode,
			totalDebit.StringFixed(2), totalCredit.StringFixed(2)).Scan(&entryID)
		if err == nil {
			break
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to insert journal entry: %w", err)
		}

		// Lost a race with a concurrent submission of the same fact. Same
		// answer as the pre-lookup: the earlier entry wins.
		existing, lookupErr := l.findByReference(ctx, draft)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			return existing, nil
		}

		// The conflicting entry was deleted between the conflict and the
		// lookup; one more attempt claims the freed slot.
		if attempt > 0 {
			return nil, fmt.Errorf("journal entry for %s %s/%s keeps conflicting with concurrent writes",
				draft.EntryType, draft.ReferenceType, draft.ReferenceID)
		}
	}

	for _, line := range draft.Lines {
		acc, _ := chart.ByCode(line.AccountCode)
		_, err = tx.Exec(ctx, `
			INSERT INTO journal_lines (entry_id, account_id, debit, credit, description)
			VALUES ($1, $2, $3, $4, $5)
		`, entryID, acc.ID, line.Debit.StringFixed(2), line.Credit.StringFixed(2), line.Description)
		if err != nil {
			return nil, fmt.Errorf("failed to insert journal line: %w", err)
		}
	}

	after, _ := json.Marshal(draft)
	err = l.audit.AppendTx(ctx, tx, AuditRecord{
		TenantID:   draft.TenantID,
		Actor:      "ledger",
		Action:     AuditPost,
		EntityType: "journal_entry",
		EntityID:   fmt.Sprintf("%d", entryID),
		After:      string(after),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append audit record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit entry: %w", err)
	}

	return &CreateEntryResult{EntryID: entryID, InternalCode: draft.InternalCode}, nil
}

// findByReference returns the pre-existing result for a draft's originating
// fact, or nil when no entry exists yet.
func (l *Ledger) findByReference(ctx context.Context, draft Draft) (*CreateEntryResult, error) {
	var id int64
	var internalCode string
	err := l.pool.QueryRow(ctx, `
		SELECT id, internal_code FROM journal_entries
		WHERE tenant_id = $1 AND reference_type = $2 AND reference_id = $3 AND entry_type = $4
	`, draft.TenantID, draft.ReferenceType, draft.ReferenceID, draft.EntryType).Scan(&id, &internalCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	return &CreateEntryResult{EntryID: id, InternalCode: internalCode, Existing: true}, nil
}

func (l *Ledger) DeleteEntry(ctx context.Context, id int64, actor, reason string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := l.getEntryTx(ctx, tx, id)
	if err != nil {
		return err
	}

	// Reconciled status is derived from the link; deleting the entry out from
	// under it would change that status with no audit record.
	var linkedTx int64
	err = tx.QueryRow(ctx, "SELECT id FROM bank_transactions WHERE journal_entry_id = $1 LIMIT 1", id).Scan(&linkedTx)
	if err == nil {
		return fmt.Errorf("entry %d settles bank transaction %d: %w", id, linkedTx, ErrEntryLinked)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to check reconciliation links for entry %d: %w", id, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM journal_lines WHERE entry_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete journal lines: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM journal_entries WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete journal entry: %w", err)
	}

	before, _ := json.Marshal(entry)
	err = l.audit.AppendTx(ctx, tx, AuditRecord{
		TenantID:   entry.TenantID,
		Actor:      actor,
		Action:     AuditDelete,
		EntityType: "journal_entry",
		EntityID:   fmt.Sprintf("%d", id),
		Before:     string(before),
		After:      fmt.Sprintf(`{"reason":%q}`, reason),
	})
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit deletion: %w", err)
	}
	return nil
}

func (l *Ledger) GetEntry(ctx context.Context, id int64) (*JournalEntry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	return l.getEntryTx(ctx, tx, id)
}

func (l *Ledger) getEntryTx(ctx context.Context, tx pgx.Tx, id int64) (*JournalEntry, error) {
	e := &JournalEntry{}
	err := tx.QueryRow(ctx, `
		SELECT id, tenant_id, entry_date, description, entry_type, reference_type, reference_id, internal_code, total_debit::numeric, total_credit::numeric, created_at
		FROM journal_entries WHERE id = $1
	`, id).Scan(&e.ID, &e.TenantID, &e.EntryDate, &e.Description, &e.EntryType,
		&e.ReferenceType, &e.ReferenceID, &e.InternalCode, &e.TotalDebit, &e.TotalCredit, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("entry %d: %w", id, ErrEntryNotFound)
		}
		return nil, fmt.Errorf("failed to fetch entry %d: %w", id, err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, entry_id, account_id, debit::numeric, credit::numeric, COALESCE(description, '')
		FROM journal_lines WHERE entry_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lines for entry %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.Description); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		e.Lines = append(e.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lines: %w", err)
	}
	return e, nil
}
