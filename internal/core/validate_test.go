package core_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"ledger-core/internal/core"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testChart() core.AccountSet {
	return core.StaticAccountSet([]core.Account{
		{ID: 1, TenantID: "t1", Code: "1.1.1", Name: "Main Bank", Type: core.Asset, Nature: core.DebitNature, IsAnalytical: true},
		{ID: 2, TenantID: "t1", Code: "1.2.1", Name: "Receivables", Type: core.Asset, Nature: core.DebitNature, IsAnalytical: true},
		{ID: 3, TenantID: "t1", Code: "3.1.1", Name: "Service Revenue", Type: core.Revenue, Nature: core.CreditNature, IsAnalytical: true},
		{ID: 4, TenantID: "t1", Code: "1.1", Name: "Current Assets", Type: core.Asset, Nature: core.DebitNature, IsAnalytical: false},
	})
}

func validDraft() core.Draft {
	return core.Draft{
		TenantID:      "t1",
		EntryDate:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Description:   "Customer receipt",
		EntryType:     core.EntryTypeReceipt,
		ReferenceType: "bank_transaction",
		ReferenceID:   "42",
		InternalCode:  "LC-20260310-abc12345",
		Lines: []core.DraftLine{
			{AccountCode: "1.1.1", Debit: dec("150.00")},
			{AccountCode: "3.1.1", Credit: dec("150.00")},
		},
	}
}

func TestDraftValidate_Valid(t *testing.T) {
	d := validDraft()
	if err := d.Validate(testChart()); err != nil {
		t.Fatalf("expected valid draft, got %v", err)
	}
}

func TestDraftValidate_ThreeWaySplit(t *testing.T) {
	d := validDraft()
	d.Lines = []core.DraftLine{
		{AccountCode: "1.1.1", Debit: dec("1000.00")},
		{AccountCode: "3.1.1", Credit: dec("600.00")},
		{AccountCode: "1.2.1", Credit: dec("400.00")},
	}
	if err := d.Validate(testChart()); err != nil {
		t.Fatalf("expected split entry to validate, got %v", err)
	}
}

func TestDraftValidate_MissingInternalCode(t *testing.T) {
	d := validDraft()
	d.InternalCode = ""
	err := d.Validate(testChart())

	var v core.MissingIdempotencyKey
	if !errors.As(err, &v) {
		t.Fatalf("expected MissingIdempotencyKey, got %v", err)
	}
}

func TestDraftValidate_FirstFailureWins(t *testing.T) {
	// Missing internal code AND too few lines: the code check fires first.
	d := validDraft()
	d.InternalCode = ""
	d.Lines = d.Lines[:1]

	var v core.MissingIdempotencyKey
	if err := d.Validate(testChart()); !errors.As(err, &v) {
		t.Fatalf("expected MissingIdempotencyKey first, got %v", err)
	}
}

func TestDraftValidate_InsufficientLines(t *testing.T) {
	d := validDraft()
	d.Lines = d.Lines[:1]
	err := d.Validate(testChart())

	var v core.InsufficientLines
	if !errors.As(err, &v) {
		t.Fatalf("expected InsufficientLines, got %v", err)
	}
	if v.Count != 1 {
		t.Errorf("Count = %d, want 1", v.Count)
	}
}

func TestDraftValidate_AmbiguousLines(t *testing.T) {
	tests := []struct {
		name string
		line core.DraftLine
	}{
		{"both sides set", core.DraftLine{AccountCode: "1.1.1", Debit: dec("10.00"), Credit: dec("10.00")}},
		{"neither side set", core.DraftLine{AccountCode: "1.1.1"}},
		{"negative debit", core.DraftLine{AccountCode: "1.1.1", Debit: dec("-10.00")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			d.Lines[0] = tt.line
			err := d.Validate(testChart())

			var v core.AmbiguousLineAmount
			if !errors.As(err, &v) {
				t.Fatalf("expected AmbiguousLineAmount, got %v", err)
			}
			if v.Line != 1 {
				t.Errorf("Line = %d, want 1", v.Line)
			}
		})
	}
}

func TestDraftValidate_SyntheticAccount(t *testing.T) {
	d := validDraft()
	d.Lines[0].AccountCode = "1.1" // roll-up node
	err := d.Validate(testChart())

	var v core.PostingToSyntheticAccount
	if !errors.As(err, &v) {
		t.Fatalf("expected PostingToSyntheticAccount, got %v", err)
	}
	if v.AccountCode != "1.1" {
		t.Errorf("AccountCode = %s, want 1.1", v.AccountCode)
	}
}

func TestDraftValidate_UnknownAccount(t *testing.T) {
	d := validDraft()
	d.Lines[0].AccountCode = "9.9.9"
	err := d.Validate(testChart())

	var v core.PostingToSyntheticAccount
	if !errors.As(err, &v) {
		t.Fatalf("expected PostingToSyntheticAccount for unknown code, got %v", err)
	}
}

func TestDraftValidate_Unbalanced(t *testing.T) {
	d := validDraft()
	d.Lines = []core.DraftLine{
		{AccountCode: "1.1.1", Debit: dec("100.00")},
		{AccountCode: "3.1.1", Credit: dec("90.00")},
	}
	err := d.Validate(testChart())

	var v core.UnbalancedEntry
	if !errors.As(err, &v) {
		t.Fatalf("expected UnbalancedEntry, got %v", err)
	}
	if !v.Delta.Equal(dec("10.00")) {
		t.Errorf("Delta = %s, want 10.00", v.Delta)
	}
}

func TestDraftValidate_BalanceEpsilon(t *testing.T) {
	// One cent of rounding drift is tolerated; two cents is not.
	d := validDraft()
	d.Lines = []core.DraftLine{
		{AccountCode: "1.1.1", Debit: dec("100.00")},
		{AccountCode: "3.1.1", Credit: dec("99.99")},
	}
	if err := d.Validate(testChart()); err != nil {
		t.Fatalf("one cent drift should pass, got %v", err)
	}

	d.Lines[1].Credit = dec("99.98")
	var v core.UnbalancedEntry
	if err := d.Validate(testChart()); !errors.As(err, &v) {
		t.Fatalf("two cent drift should fail, got %v", err)
	}
}

func TestDraftNormalize(t *testing.T) {
	d := core.Draft{
		Description:  "  padded  ",
		EntryType:    " receipt ",
		InternalCode: "",
		Lines: []core.DraftLine{
			{AccountCode: " 1.1.1 ", Debit: dec("1.00")},
		},
	}
	d.Normalize()

	if d.Description != "padded" {
		t.Errorf("Description = %q", d.Description)
	}
	if d.EntryType != "receipt" {
		t.Errorf("EntryType = %q", d.EntryType)
	}
	if d.Lines[0].AccountCode != "1.1.1" {
		t.Errorf("AccountCode = %q", d.Lines[0].AccountCode)
	}
	if d.EntryDate.IsZero() {
		t.Error("EntryDate should default to today")
	}
	// Normalize never invents an idempotency key.
	if d.InternalCode != "" {
		t.Errorf("InternalCode = %q, want empty", d.InternalCode)
	}
}

func TestDraftTotals(t *testing.T) {
	d := validDraft()
	d.Lines = []core.DraftLine{
		{AccountCode: "1.1.1", Debit: dec("1000.00")},
		{AccountCode: "3.1.1", Credit: dec("600.00")},
		{AccountCode: "1.2.1", Credit: dec("400.00")},
	}
	debit, credit := d.Totals()
	if !debit.Equal(dec("1000.00")) || !credit.Equal(dec("1000.00")) {
		t.Errorf("Totals = %s / %s, want 1000.00 / 1000.00", debit, credit)
	}
}

func TestNewInternalCode(t *testing.T) {
	date := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)
	code := core.NewInternalCode(date)

	if !strings.HasPrefix(code, "LC-20260310-") {
		t.Fatalf("code = %q, want LC-20260310- prefix", code)
	}
	if len(code) != len("LC-20260310-")+8 {
		t.Errorf("code = %q, want 8-char suffix", code)
	}
	if code == core.NewInternalCode(date) {
		t.Error("consecutive codes should differ")
	}
}

func TestViolationCodes(t *testing.T) {
	chart := testChart()

	d := validDraft()
	d.InternalCode = ""
	v, ok := core.AsViolation(d.Validate(chart))
	if !ok || v.ViolationCode() != "MISSING_IDEMPOTENCY_KEY" {
		t.Errorf("got %v", v)
	}

	d = validDraft()
	d.Lines = nil
	v, ok = core.AsViolation(d.Validate(chart))
	if !ok || v.ViolationCode() != "INSUFFICIENT_LINES" {
		t.Errorf("got %v", v)
	}
}
