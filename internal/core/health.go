package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TransitoryBalance is a transitory (suspense) account holding a non-zero
// balance. A healthy close cycle drains every one of these to zero.
type TransitoryBalance struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Balance     decimal.Decimal `json:"balance"` // debit minus credit
}

// EntryDrift is a posted entry whose stored totals disagree with the sum of
// its lines, or whose sides do not balance. Either one means the entry was
// written outside the posting path.
type EntryDrift struct {
	EntryID      int64           `json:"entry_id"`
	InternalCode string          `json:"internal_code"`
	LineDebit    decimal.Decimal `json:"line_debit"`
	LineCredit   decimal.Decimal `json:"line_credit"`
	StoredDebit  decimal.Decimal `json:"stored_debit"`
	StoredCredit decimal.Decimal `json:"stored_credit"`
}

// HealthReport is the result of one integrity pass over a tenant's ledger.
type HealthReport struct {
	TenantID           string              `json:"tenant_id"`
	TotalDebit         decimal.Decimal     `json:"total_debit"`
	TotalCredit        decimal.Decimal     `json:"total_credit"`
	Balanced           bool                `json:"balanced"`
	TransitoryBalances []TransitoryBalance `json:"transitory_balances,omitempty"`
	DriftingEntries    []EntryDrift        `json:"drifting_entries,omitempty"`
	UnreconciledCount  int                 `json:"unreconciled_count"`
	NeedsReviewCount   int                 `json:"needs_review_count"`
	Healthy            bool                `json:"healthy"`
}

// HealthService runs read-only integrity checks over the ledger.
type HealthService interface {
	Check(ctx context.Context, tenantID string) (*HealthReport, error)
}

type healthService struct {
	pool *pgxpool.Pool
}

func NewHealthService(pool *pgxpool.Pool) HealthService {
	return &healthService{pool: pool}
}

func (s *healthService) Check(ctx context.Context, tenantID string) (*HealthReport, error) {
	report := &HealthReport{
		TenantID:    tenantID,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}

	// Global totals. In a correct double-entry ledger these agree within the
	// posting epsilon.
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(jl.debit), 0)::numeric, COALESCE(SUM(jl.credit), 0)::numeric
		FROM journal_lines jl
		JOIN journal_entries je ON je.id = jl.entry_id
		WHERE je.tenant_id = $1
	`, tenantID).Scan(&report.TotalDebit, &report.TotalCredit)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger totals: %w", err)
	}
	report.Balanced = report.TotalDebit.Sub(report.TotalCredit).Abs().LessThanOrEqual(balanceEpsilon)

	if report.TransitoryBalances, err = s.transitoryBalances(ctx, tenantID); err != nil {
		return nil, err
	}
	if report.DriftingEntries, err = s.driftingEntries(ctx, tenantID); err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE journal_entry_id IS NULL),
		       COUNT(*) FILTER (WHERE journal_entry_id IS NULL AND needs_review)
		FROM bank_transactions
		WHERE tenant_id = $1
	`, tenantID).Scan(&report.UnreconciledCount, &report.NeedsReviewCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count open transactions: %w", err)
	}

	report.Healthy = report.Balanced &&
		len(report.TransitoryBalances) == 0 &&
		len(report.DriftingEntries) == 0
	return report, nil
}

// transitoryBalances lists transitory accounts whose net balance is not zero.
func (s *healthService) transitoryBalances(ctx context.Context, tenantID string) ([]TransitoryBalance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.code, a.name,
		       COALESCE(t.total_debit, 0) - COALESCE(t.total_credit, 0) AS net_balance
		FROM accounts a
		LEFT JOIN (
		    SELECT jl.account_id,
		           SUM(jl.debit)  AS total_debit,
		           SUM(jl.credit) AS total_credit
		    FROM journal_lines jl
		    JOIN journal_entries je ON je.id = jl.entry_id
		    WHERE je.tenant_id = $1
		    GROUP BY jl.account_id
		) t ON t.account_id = a.id
		WHERE a.tenant_id = $1
		  AND a.is_transitory
		  AND COALESCE(t.total_debit, 0) - COALESCE(t.total_credit, 0) <> 0
		ORDER BY a.code
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitory balances: %w", err)
	}
	defer rows.Close()

	var out []TransitoryBalance
	for rows.Next() {
		var tb TransitoryBalance
		if err := rows.Scan(&tb.AccountCode, &tb.AccountName, &tb.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan transitory balance: %w", err)
		}
		out = append(out, tb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transitory balances: %w", err)
	}
	return out, nil
}

// driftingEntries lists entries whose stored totals, line sums or sides
// disagree beyond the posting epsilon.
func (s *healthService) driftingEntries(ctx context.Context, tenantID string) ([]EntryDrift, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT je.id, je.internal_code,
		       COALESCE(SUM(jl.debit), 0)::numeric  AS line_debit,
		       COALESCE(SUM(jl.credit), 0)::numeric AS line_credit,
		       je.total_debit::numeric, je.total_credit::numeric
		FROM journal_entries je
		LEFT JOIN journal_lines jl ON jl.entry_id = je.id
		WHERE je.tenant_id = $1
		GROUP BY je.id, je.internal_code, je.total_debit, je.total_credit
		HAVING ABS(COALESCE(SUM(jl.debit), 0) - je.total_debit) > 0.01
		    OR ABS(COALESCE(SUM(jl.credit), 0) - je.total_credit) > 0.01
		    OR ABS(COALESCE(SUM(jl.debit), 0) - COALESCE(SUM(jl.credit), 0)) > 0.01
		ORDER BY je.id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entry drift: %w", err)
	}
	defer rows.Close()

	var out []EntryDrift
	for rows.Next() {
		var d EntryDrift
		if err := rows.Scan(&d.EntryID, &d.InternalCode,
			&d.LineDebit, &d.LineCredit, &d.StoredDebit, &d.StoredCredit); err != nil {
			return nil, fmt.Errorf("failed to scan entry drift: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry drift: %w", err)
	}
	return out, nil
}
