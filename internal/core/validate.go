package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// balanceEpsilon is the tolerance for debit/credit equality. Statement feeds
// round to cents, so anything past one cent is a real imbalance.
var balanceEpsilon = decimal.RequireFromString("0.01")

// Draft is a proposed journal entry before it reaches the ledger store.
type Draft struct {
	TenantID      string      `json:"tenant_id"`
	EntryDate     time.Time   `json:"entry_date"`
	Description   string      `json:"description"`
	EntryType     string      `json:"entry_type"`
	ReferenceType string      `json:"reference_type"`
	ReferenceID   string      `json:"reference_id"`
	InternalCode  string      `json:"internal_code"`
	Lines         []DraftLine `json:"lines"`
}

// DraftLine is one proposed line. Exactly one of Debit/Credit must be > 0.
type DraftLine struct {
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// AccountSet is the read-only chart-of-accounts view the validator checks
// lines against. Implementations must not mutate on lookup.
type AccountSet interface {
	ByCode(code string) (*Account, bool)
}

// Normalize cleans up caller input before validation: trims code and
// description fields and defaults the entry date to today. It never fills
// the internal code; a missing idempotency key is the caller's problem and
// validation will say so.
func (d *Draft) Normalize() {
	d.EntryType = strings.TrimSpace(d.EntryType)
	d.ReferenceType = strings.TrimSpace(d.ReferenceType)
	d.ReferenceID = strings.TrimSpace(d.ReferenceID)
	d.InternalCode = strings.TrimSpace(d.InternalCode)
	d.Description = strings.TrimSpace(d.Description)

	if d.EntryDate.IsZero() {
		d.EntryDate = time.Now().UTC().Truncate(24 * time.Hour)
	}

	for i := range d.Lines {
		d.Lines[i].AccountCode = strings.TrimSpace(d.Lines[i].AccountCode)
		d.Lines[i].Description = strings.TrimSpace(d.Lines[i].Description)
	}
}

// Validate enforces the posting contract, first failure wins:
//
//  1. internal code present
//  2. at least 2 lines
//  3. per line (1-indexed): exactly one of debit/credit > 0, and the account
//     exists and is analytical
//  4. sum(debit) == sum(credit) within the posting epsilon
//
// Pure decision function: no side effects, returns nil or a typed Violation.
func (d *Draft) Validate(accounts AccountSet) error {
	if d.InternalCode == "" {
		return MissingIdempotencyKey{}
	}

	if len(d.Lines) < 2 {
		return InsufficientLines{Count: len(d.Lines)}
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero

	for i, line := range d.Lines {
		n := i + 1

		debitSet := line.Debit.IsPositive()
		creditSet := line.Credit.IsPositive()
		if debitSet == creditSet || line.Debit.IsNegative() || line.Credit.IsNegative() {
			return AmbiguousLineAmount{Line: n}
		}

		acc, ok := accounts.ByCode(line.AccountCode)
		if !ok || !acc.IsAnalytical {
			return PostingToSyntheticAccount{Line: n, AccountCode: line.AccountCode}
		}

		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}

	if delta := totalDebit.Sub(totalCredit); delta.Abs().GreaterThan(balanceEpsilon) {
		return UnbalancedEntry{TotalDebit: totalDebit, TotalCredit: totalCredit, Delta: delta}
	}

	return nil
}

// Totals returns the draft's debit and credit sums.
func (d *Draft) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range d.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// NewInternalCode builds a traceability code for entries whose originating
// module did not supply one.
func NewInternalCode(entryDate time.Time) string {
	return "LC-" + entryDate.Format("20060102") + "-" + uuid.NewString()[:8]
}
