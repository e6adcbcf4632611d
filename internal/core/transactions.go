package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionSource reads bank transactions for the pipeline. Ingestion
// writes them; nothing in this core creates or edits one except the
// reconciliation state manager.
type TransactionSource interface {
	// Transaction fetches one transaction by id.
	Transaction(ctx context.Context, id int64) (*BankTransaction, error)

	// PendingTransactions lists a tenant's unreconciled inflows in
	// transaction-date order, oldest first.
	PendingTransactions(ctx context.Context, tenantID string, limit int) ([]BankTransaction, error)
}

const transactionColumns = `id, tenant_id, bank_account_id, transaction_date, amount::numeric, description,
	journal_entry_id, suggested_counterparty_id, COALESCE(confidence, 0), COALESCE(identification_method, ''), needs_review`

func scanTransaction(row pgx.Row) (*BankTransaction, error) {
	t := &BankTransaction{}
	err := row.Scan(&t.ID, &t.TenantID, &t.BankAccountID, &t.TransactionDate, &t.Amount,
		&t.Description, &t.JournalEntryID, &t.SuggestedCounterpartyID,
		&t.Confidence, &t.IdentificationMethod, &t.NeedsReview)
	if err != nil {
		return nil, err
	}
	return t, nil
}

type transactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore returns a store satisfying both TransactionSource and
// BankAccountSource.
func NewTransactionStore(pool *pgxpool.Pool) *transactionStore {
	return &transactionStore{pool: pool}
}

func (s *transactionStore) Transaction(ctx context.Context, id int64) (*BankTransaction, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM bank_transactions WHERE id = $1", id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transaction %d: %w", id, ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("failed to fetch transaction %d: %w", id, err)
	}
	return t, nil
}

// LedgerAccount resolves the analytical ledger account a bank account posts
// through.
func (s *transactionStore) LedgerAccount(ctx context.Context, bankAccountID int64) (*Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT a.id, a.tenant_id, a.code, a.name, a.type, a.nature,
		       a.is_analytical, a.is_transitory, COALESCE(a.parent_code, '')
		FROM accounts a
		JOIN bank_accounts b ON b.account_id = a.id
		WHERE b.id = $1
	`, bankAccountID)
	acc := &Account{}
	err := row.Scan(&acc.ID, &acc.TenantID, &acc.Code, &acc.Name, &acc.Type,
		&acc.Nature, &acc.IsAnalytical, &acc.IsTransitory, &acc.ParentCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bank account %d has no ledger account: %w", bankAccountID, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to resolve bank account %d: %w", bankAccountID, err)
	}
	return acc, nil
}

func (s *transactionStore) PendingTransactions(ctx context.Context, tenantID string, limit int) ([]BankTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM bank_transactions
		WHERE tenant_id = $1 AND journal_entry_id IS NULL AND amount > 0
		ORDER BY transaction_date ASC, id ASC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending transactions: %w", err)
	}
	defer rows.Close()

	var out []BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return out, nil
}
