package core_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"ledger-core/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Clean and seed test DB
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE journal_lines, journal_entries, bank_transactions, learned_patterns,
			obligations, counterparties, bank_accounts, accounts,
			audit_records, audit_chain_heads RESTART IDENTITY CASCADE;

		INSERT INTO accounts (tenant_id, code, name, type, nature, is_analytical, is_transitory, parent_code) VALUES
		('t1', '1.1',   'Current Assets',     'asset',   'debit',  false, false, NULL),
		('t1', '1.1.1', 'Main Bank',          'asset',   'debit',  true,  false, '1.1'),
		('t1', '1.1.9', 'Suspense',           'asset',   'debit',  true,  true,  '1.1'),
		('t1', '1.2.1', 'Receivables - Acme', 'asset',   'debit',  true,  false, NULL),
		('t1', '3.1.1', 'Service Revenue',    'revenue', 'credit', true,  false, NULL);

		INSERT INTO bank_accounts (tenant_id, name, account_id)
		SELECT 't1', 'Checking', id FROM accounts WHERE tenant_id = 't1' AND code = '1.1.1';

		INSERT INTO counterparties (tenant_id, name, keywords, account_id)
		SELECT 't1', 'Acme Ltda', ARRAY['acme'], id FROM accounts WHERE tenant_id = 't1' AND code = '1.2.1';
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

func newTestLedger(pool *pgxpool.Pool) (*core.Ledger, core.AuditLog) {
	audit := core.NewAuditLog(pool)
	directory := core.NewAccountDirectory(pool, time.Minute)
	return core.NewLedger(pool, directory, audit), audit
}

func receiptDraft(internalCode string) core.Draft {
	return core.Draft{
		TenantID:      "t1",
		EntryDate:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Description:   "Payment received from Acme",
		EntryType:     core.EntryTypeReceipt,
		ReferenceType: "invoice",
		ReferenceID:   "inv-1001",
		InternalCode:  internalCode,
		Lines: []core.DraftLine{
			{AccountCode: "1.1.1", Debit: decimal.RequireFromString("350.00")},
			{AccountCode: "3.1.1", Credit: decimal.RequireFromString("350.00")},
		},
	}
}

func TestLedger_IdempotentResubmission(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger, _ := newTestLedger(pool)
	ctx := context.Background()

	draft := receiptDraft(core.NewInternalCode(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)))

	first, err := ledger.CreateEntry(ctx, draft)
	if err != nil {
		t.Fatalf("First submission failed: %v", err)
	}
	if first.Existing {
		t.Error("First submission must not report an existing entry")
	}

	// Same originating fact, different internal code: still the same entry.
	draft.InternalCode = core.NewInternalCode(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	second, err := ledger.CreateEntry(ctx, draft)
	if err != nil {
		t.Fatalf("Re-submission must be a no-op, got: %v", err)
	}
	if !second.Existing {
		t.Error("Re-submission must report the entry as existing")
	}
	if second.EntryID != first.EntryID {
		t.Errorf("Re-submission returned entry %d, want %d", second.EntryID, first.EntryID)
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM journal_entries").Scan(&count); err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly one stored entry, got %d", count)
	}
}

func TestLedger_RejectsInvalidDraftWithoutWriting(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger, _ := newTestLedger(pool)
	ctx := context.Background()

	draft := receiptDraft(core.NewInternalCode(time.Now()))
	draft.Lines[1].Credit = decimal.RequireFromString("340.00")

	_, err := ledger.CreateEntry(ctx, draft)
	if err == nil {
		t.Fatal("Expected unbalanced draft to be rejected")
	}
	v, ok := core.AsViolation(err)
	if !ok {
		t.Fatalf("Expected a typed violation, got: %v", err)
	}
	if v.ViolationCode() != "UNBALANCED_ENTRY" {
		t.Errorf("Violation code = %s, want UNBALANCED_ENTRY", v.ViolationCode())
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM journal_entries").Scan(&count); err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	if count != 0 {
		t.Errorf("Rejected draft must write nothing, found %d entries", count)
	}
}

func TestLedger_DeleteEntryLeavesAuditTrail(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger, audit := newTestLedger(pool)
	ctx := context.Background()

	res, err := ledger.CreateEntry(ctx, receiptDraft(core.NewInternalCode(time.Now())))
	if err != nil {
		t.Fatalf("Setup commit failed: %v", err)
	}

	if err := ledger.DeleteEntry(ctx, res.EntryID, "tester", "posted against the wrong period"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := ledger.GetEntry(ctx, res.EntryID); !errors.Is(err, core.ErrEntryNotFound) {
		t.Errorf("Expected ErrEntryNotFound after delete, got: %v", err)
	}

	// Lines go with the header.
	var lines int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM journal_lines WHERE entry_id = $1", res.EntryID).Scan(&lines); err != nil {
		t.Fatalf("Failed to count lines: %v", err)
	}
	if lines != 0 {
		t.Errorf("Expected no surviving lines, got %d", lines)
	}

	trail, err := audit.Trail(ctx, "t1", "journal_entry", fmt.Sprintf("%d", res.EntryID), 10)
	if err != nil {
		t.Fatalf("Trail failed: %v", err)
	}
	if len(trail) == 0 {
		t.Fatal("Expected audit records for the deleted entry")
	}
	if trail[0].Action != core.AuditDelete {
		t.Errorf("Newest record action = %s, want delete", trail[0].Action)
	}
	if trail[0].Before == "" {
		t.Error("Delete record must capture the before-image")
	}
}

func TestStateManager_ReconcileLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger, audit := newTestLedger(pool)
	state := core.NewStateManager(pool, audit)
	ctx := context.Background()

	res, err := ledger.CreateEntry(ctx, receiptDraft(core.NewInternalCode(time.Now())))
	if err != nil {
		t.Fatalf("Setup commit failed: %v", err)
	}

	var txID int64
	err = pool.QueryRow(ctx, `
		INSERT INTO bank_transactions (tenant_id, bank_account_id, transaction_date, amount, description)
		SELECT 't1', id, '2026-03-10', 350.00, 'PIX ACME LTDA' FROM bank_accounts LIMIT 1
		RETURNING id
	`).Scan(&txID)
	if err != nil {
		t.Fatalf("Failed to seed transaction: %v", err)
	}

	if err := state.Reconcile(ctx, txID, res.EntryID, "tester"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if err := state.Reconcile(ctx, txID, res.EntryID, "tester"); !errors.Is(err, core.ErrAlreadyReconciled) {
		t.Errorf("Second reconcile: got %v, want ErrAlreadyReconciled", err)
	}

	store := core.NewTransactionStore(pool)
	tx, err := store.Transaction(ctx, txID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !tx.Reconciled() || *tx.JournalEntryID != res.EntryID {
		t.Errorf("Transaction not linked: %+v", tx)
	}

	if err := state.Unreconcile(ctx, txID, "tester", "matched the wrong invoice"); err != nil {
		t.Fatalf("Unreconcile failed: %v", err)
	}
	if err := state.Unreconcile(ctx, txID, "tester", "again"); !errors.Is(err, core.ErrNotReconciled) {
		t.Errorf("Second unreconcile: got %v, want ErrNotReconciled", err)
	}

	// The journal entry itself survives an unreconcile.
	if _, err := ledger.GetEntry(ctx, res.EntryID); err != nil {
		t.Errorf("Entry must survive unreconcile, got: %v", err)
	}
}

func TestLedger_DeleteRefusesLinkedEntry(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger, audit := newTestLedger(pool)
	state := core.NewStateManager(pool, audit)
	ctx := context.Background()

	res, err := ledger.CreateEntry(ctx, receiptDraft(core.NewInternalCode(time.Now())))
	if err != nil {
		t.Fatalf("Setup commit failed: %v", err)
	}

	var txID int64
	err = pool.QueryRow(ctx, `
		INSERT INTO bank_transactions (tenant_id, bank_account_id, transaction_date, amount, description)
		SELECT 't1', id, '2026-03-10', 350.00, 'PIX ACME LTDA' FROM bank_accounts LIMIT 1
		RETURNING id
	`).Scan(&txID)
	if err != nil {
		t.Fatalf("Failed to seed transaction: %v", err)
	}
	if err := state.Reconcile(ctx, txID, res.EntryID, "tester"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	// Deleting the entry would flip the transaction back to unreconciled
	// without an audit record; the ledger must refuse.
	err = ledger.DeleteEntry(ctx, res.EntryID, "tester", "attempted cleanup")
	if !errors.Is(err, core.ErrEntryLinked) {
		t.Fatalf("Delete of linked entry: got %v, want ErrEntryLinked", err)
	}
	if _, err := ledger.GetEntry(ctx, res.EntryID); err != nil {
		t.Errorf("Entry must survive the refused delete, got: %v", err)
	}

	// After an audited unreconcile the delete goes through.
	if err := state.Unreconcile(ctx, txID, "tester", "entry posted in error"); err != nil {
		t.Fatalf("Unreconcile failed: %v", err)
	}
	if err := ledger.DeleteEntry(ctx, res.EntryID, "tester", "entry posted in error"); err != nil {
		t.Fatalf("Delete after unreconcile failed: %v", err)
	}
}

func TestObligationFinder_ExactAmountTolerance(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	obligations := core.NewObligationStore(pool)

	// Two open obligations: the earlier-due one misses the amount by 0.05,
	// the later one by exactly 0.02. The tolerance is inclusive, so the
	// later exact match must win over due-date order.
	_, err := pool.Exec(ctx, `
		INSERT INTO obligations (tenant_id, counterparty_id, amount, due_date, status)
		SELECT 't1', c.id, v.amount, v.due_date::date, 'open'
		FROM counterparties c,
		     (VALUES (349.95, '2026-03-01'), (349.98, '2026-03-05')) AS v(amount, due_date)
	`)
	if err != nil {
		t.Fatalf("Failed to seed obligations: %v", err)
	}

	tx := &core.BankTransaction{
		TenantID:        "t1",
		TransactionDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Amount:          decimal.RequireFromString("350.00"),
	}
	var counterpartyID int64
	if err := pool.QueryRow(ctx, "SELECT id FROM counterparties LIMIT 1").Scan(&counterpartyID); err != nil {
		t.Fatalf("Failed to fetch counterparty: %v", err)
	}

	found, err := obligations.FindOpen(ctx, tx, counterpartyID)
	if err != nil {
		t.Fatalf("FindOpen failed: %v", err)
	}
	if found == nil {
		t.Fatal("Expected an obligation match")
	}
	if found.Amount.StringFixed(2) != "349.98" {
		t.Errorf("Matched amount = %s, want 349.98 (difference of exactly 0.02 counts as exact)", found.Amount.StringFixed(2))
	}
}

func TestAuditLog_ChainVerification(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger, audit := newTestLedger(pool)
	ctx := context.Background()

	// Several audited operations build the chain.
	res, err := ledger.CreateEntry(ctx, receiptDraft(core.NewInternalCode(time.Now())))
	if err != nil {
		t.Fatalf("Setup commit failed: %v", err)
	}
	if err := ledger.DeleteEntry(ctx, res.EntryID, "tester", "cleanup"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	report, err := audit.VerifyChain(ctx, "t1")
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if !report.Valid {
		t.Fatalf("Fresh chain reported invalid at sequence %d", report.FirstBrokenSequence)
	}
	if report.TotalRecords < 2 {
		t.Errorf("Expected at least 2 records, got %d", report.TotalRecords)
	}

	// Rewriting history must break every later link.
	_, err = pool.Exec(ctx, "UPDATE audit_records SET after_state = '{\"amount\":\"999.99\"}' WHERE sequence = 1 AND tenant_id = 't1'")
	if err != nil {
		t.Fatalf("Failed to tamper with record: %v", err)
	}

	report, err = audit.VerifyChain(ctx, "t1")
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if report.Valid {
		t.Fatal("Tampered chain reported valid")
	}
	if report.FirstBrokenSequence != 1 {
		t.Errorf("First broken sequence = %d, want 1", report.FirstBrokenSequence)
	}
}

func TestHealthService_Check(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ledger, _ := newTestLedger(pool)
	health := core.NewHealthService(pool)
	ctx := context.Background()

	if _, err := ledger.CreateEntry(ctx, receiptDraft(core.NewInternalCode(time.Now()))); err != nil {
		t.Fatalf("Setup commit failed: %v", err)
	}

	report, err := health.Check(ctx, "t1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !report.Balanced {
		t.Errorf("Ledger should balance: debit %s credit %s", report.TotalDebit, report.TotalCredit)
	}
	if len(report.TransitoryBalances) != 0 {
		t.Errorf("No transitory balance expected, got %+v", report.TransitoryBalances)
	}
	if !report.Healthy {
		t.Error("Fresh ledger should report healthy")
	}

	// Park an amount on the suspense account; the report must flag it.
	draft := core.Draft{
		TenantID:      "t1",
		EntryDate:     time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		Description:   "Unidentified deposit",
		EntryType:     core.EntryTypeManual,
		ReferenceType: "statement",
		ReferenceID:   "stmt-77",
		InternalCode:  core.NewInternalCode(time.Now()),
		Lines: []core.DraftLine{
			{AccountCode: "1.1.1", Debit: decimal.RequireFromString("90.00")},
			{AccountCode: "1.1.9", Credit: decimal.RequireFromString("90.00")},
		},
	}
	if _, err := ledger.CreateEntry(ctx, draft); err != nil {
		t.Fatalf("Suspense commit failed: %v", err)
	}

	report, err = health.Check(ctx, "t1")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(report.TransitoryBalances) != 1 {
		t.Fatalf("Expected one transitory balance, got %+v", report.TransitoryBalances)
	}
	if report.TransitoryBalances[0].AccountCode != "1.1.9" {
		t.Errorf("Flagged account = %s, want 1.1.9", report.TransitoryBalances[0].AccountCode)
	}
	if report.Healthy {
		t.Error("Undrained suspense account must mark the ledger unhealthy")
	}
}
