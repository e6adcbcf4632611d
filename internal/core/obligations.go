package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// obligationLookbackDays bounds how far back an obligation's due date may be
// from the settling transaction.
const obligationLookbackDays = 30

// amountMatchEpsilon is the tolerance for treating an obligation amount as an
// exact match for a transaction amount.
var amountMatchEpsilon = decimal.RequireFromString("0.02")

// CounterpartySource resolves counterparties for the pipeline.
type CounterpartySource interface {
	CounterpartyByID(ctx context.Context, id int64) (*Counterparty, error)
}

// ObligationService finds and settles the open invoices/expenses that bank
// movements pay off. Obligations are created elsewhere; the only mutation
// this core performs is marking one settled.
type ObligationService interface {
	// FindOpen returns the open obligation the transaction most likely
	// settles, or nil when the counterparty has none in the window.
	// Tie-break: exact amount first, then earliest due date.
	FindOpen(ctx context.Context, tx *BankTransaction, counterpartyID int64) (*Obligation, error)

	// MarkSettled flips an obligation to settled with the settlement date.
	MarkSettled(ctx context.Context, obligationID int64, settledOn time.Time) error
}

type obligationStore struct {
	pool *pgxpool.Pool
}

func NewObligationStore(pool *pgxpool.Pool) *obligationStore {
	return &obligationStore{pool: pool}
}

func (s *obligationStore) FindOpen(ctx context.Context, tx *BankTransaction, counterpartyID int64) (*Obligation, error) {
	windowStart := tx.TransactionDate.AddDate(0, 0, -obligationLookbackDays)

	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, counterparty_id, amount::numeric, due_date, status, settled_on
		FROM obligations
		WHERE tenant_id = $1 AND counterparty_id = $2
		  AND status IN ('open', 'overdue')
		  AND due_date >= $3 AND due_date <= $4
		ORDER BY due_date ASC, id ASC
	`, tx.TenantID, counterpartyID, windowStart, tx.TransactionDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query obligations: %w", err)
	}
	defer rows.Close()

	var candidates []Obligation
	for rows.Next() {
		var o Obligation
		if err := rows.Scan(&o.ID, &o.TenantID, &o.CounterpartyID, &o.Amount, &o.DueDate, &o.Status, &o.SettledOn); err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		candidates = append(candidates, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating obligations: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Exact amount beats due-date order.
	amount := tx.Amount.Abs()
	for i := range candidates {
		if candidates[i].Amount.Sub(amount).Abs().LessThanOrEqual(amountMatchEpsilon) {
			return &candidates[i], nil
		}
	}
	return &candidates[0], nil
}

func (s *obligationStore) MarkSettled(ctx context.Context, obligationID int64, settledOn time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE obligations SET status = 'settled', settled_on = $2
		WHERE id = $1 AND status IN ('open', 'overdue')
	`, obligationID, settledOn)
	if err != nil {
		return fmt.Errorf("failed to settle obligation %d: %w", obligationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("obligation %d is not open", obligationID)
	}
	return nil
}

// CounterpartyByID implements CounterpartySource.
func (s *obligationStore) CounterpartyByID(ctx context.Context, id int64) (*Counterparty, error) {
	cp := &Counterparty{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, COALESCE(document, ''), COALESCE(keywords, '{}'), account_id
		FROM counterparties WHERE id = $1
	`, id).Scan(&cp.ID, &cp.TenantID, &cp.Name, &cp.Document, &cp.Keywords, &cp.AccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("counterparty %d: %w", id, ErrCounterpartyNotFound)
		}
		return nil, fmt.Errorf("failed to fetch counterparty %d: %w", id, err)
	}
	return cp, nil
}
