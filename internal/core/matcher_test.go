package core_test

import (
	"context"
	"testing"

	"ledger-core/internal/core"
)

type fakeMatchSource struct {
	patterns       map[string]*core.LearnedPattern
	history        []core.HistoricalPosting
	counterparties []core.Counterparty
	upserts        map[string]int64
}

func newFakeMatchSource() *fakeMatchSource {
	return &fakeMatchSource{
		patterns: make(map[string]*core.LearnedPattern),
		upserts:  make(map[string]int64),
	}
}

func (f *fakeMatchSource) PatternByText(_ context.Context, _, pattern string) (*core.LearnedPattern, error) {
	return f.patterns[pattern], nil
}

func (f *fakeMatchSource) HistoricalPostings(_ context.Context, _ string, _ int) ([]core.HistoricalPosting, error) {
	return f.history, nil
}

func (f *fakeMatchSource) Counterparties(_ context.Context, _ string) ([]core.Counterparty, error) {
	return f.counterparties, nil
}

func (f *fakeMatchSource) UpsertPattern(_ context.Context, _, pattern string, counterpartyID int64) error {
	f.upserts[pattern] = counterpartyID
	return nil
}

func bankTx(description string) *core.BankTransaction {
	return &core.BankTransaction{ID: 1, TenantID: "t1", Description: description}
}

func TestIdentify_LearnedPattern(t *testing.T) {
	src := newFakeMatchSource()
	src.patterns["PIX TRANSF ACME LTDA"] = &core.LearnedPattern{
		Pattern: "PIX TRANSF ACME LTDA", CounterpartyID: 7, Confidence: 98,
	}
	m := core.NewMatcher(src)

	match, err := m.Identify(context.Background(), bankTx("pix transf.: ACME LTDA"))
	if err != nil {
		t.Fatal(err)
	}
	if match.CounterpartyID == nil || *match.CounterpartyID != 7 {
		t.Fatalf("counterparty = %v, want 7", match.CounterpartyID)
	}
	if match.Confidence != 98 || match.Method != core.MethodPatternLearned {
		t.Errorf("got %d/%s, want 98/pattern_learned", match.Confidence, match.Method)
	}
}

func TestIdentify_HistoryMatch(t *testing.T) {
	src := newFakeMatchSource()
	// Two structurally similar postings (digits differ) for counterparty 3.
	src.history = []core.HistoricalPosting{
		{Description: "TED 0001 GLOBEX SUPPLY 2026", CounterpartyID: 3},
		{Description: "TED 0002 GLOBEX SUPPLY 2025", CounterpartyID: 3},
	}
	m := core.NewMatcher(src)

	match, err := m.Identify(context.Background(), bankTx("TED 0447 GLOBEX SUPPLY 2024"))
	if err != nil {
		t.Fatal(err)
	}
	if match.CounterpartyID == nil || *match.CounterpartyID != 3 {
		t.Fatalf("counterparty = %v, want 3", match.CounterpartyID)
	}
	if match.Confidence != 85 || match.Method != core.MethodHistoryMatch {
		t.Errorf("got %d/%s, want 85/history_match", match.Confidence, match.Method)
	}
}

func TestIdentify_HistoryNeedsTwoPostings(t *testing.T) {
	src := newFakeMatchSource()
	src.history = []core.HistoricalPosting{
		{Description: "TED 0001 GLOBEX SUPPLY", CounterpartyID: 3},
	}
	m := core.NewMatcher(src)

	match, err := m.Identify(context.Background(), bankTx("TED 0447 GLOBEX SUPPLY"))
	if err != nil {
		t.Fatal(err)
	}
	if match.Method == core.MethodHistoryMatch {
		t.Fatal("a single posting must not count as history evidence")
	}
}

func TestIdentify_HistoryTieBreaksOnLowerID(t *testing.T) {
	src := newFakeMatchSource()
	src.history = []core.HistoricalPosting{
		{Description: "RENT PAYMENT 01", CounterpartyID: 9},
		{Description: "RENT PAYMENT 02", CounterpartyID: 9},
		{Description: "RENT PAYMENT 03", CounterpartyID: 4},
		{Description: "RENT PAYMENT 04", CounterpartyID: 4},
	}
	m := core.NewMatcher(src)

	for i := 0; i < 5; i++ {
		match, err := m.Identify(context.Background(), bankTx("RENT PAYMENT 99"))
		if err != nil {
			t.Fatal(err)
		}
		if match.CounterpartyID == nil || *match.CounterpartyID != 4 {
			t.Fatalf("run %d: counterparty = %v, want 4 (lower id wins ties)", i, match.CounterpartyID)
		}
	}
}

func TestIdentify_KeywordMatch(t *testing.T) {
	src := newFakeMatchSource()
	src.counterparties = []core.Counterparty{
		{ID: 2, TenantID: "t1", Name: "Acme Logistics", Keywords: []string{"acme"}},
	}
	m := core.NewMatcher(src)

	match, err := m.Identify(context.Background(), bankTx("payment to ACME ref 123"))
	if err != nil {
		t.Fatal(err)
	}
	if match.CounterpartyID == nil || *match.CounterpartyID != 2 {
		t.Fatalf("counterparty = %v, want 2", match.CounterpartyID)
	}
	// "ACME" is 4 chars: 50 + 3*4 = 62.
	if match.Confidence != 62 || match.Method != core.MethodKeywordMatch {
		t.Errorf("got %d/%s, want 62/keyword_match", match.Confidence, match.Method)
	}
}

func TestIdentify_KeywordConfidenceCapped(t *testing.T) {
	src := newFakeMatchSource()
	src.counterparties = []core.Counterparty{
		{ID: 5, TenantID: "t1", Name: "Continental Freight Services"},
	}
	m := core.NewMatcher(src)

	match, err := m.Identify(context.Background(), bankTx("wire continental freight services inv 9"))
	if err != nil {
		t.Fatal(err)
	}
	if match.Confidence != 80 {
		t.Errorf("confidence = %d, want cap of 80", match.Confidence)
	}
}

func TestIdentify_ShortTermsIgnored(t *testing.T) {
	src := newFakeMatchSource()
	src.counterparties = []core.Counterparty{
		{ID: 2, TenantID: "t1", Name: "ABC", Keywords: []string{"ab"}},
	}
	m := core.NewMatcher(src)

	match, err := m.Identify(context.Background(), bankTx("payment ABC ab"))
	if err != nil {
		t.Fatal(err)
	}
	if match.Method != core.MethodNone || match.Confidence != 0 {
		t.Errorf("terms under 4 chars must not match, got %d/%s", match.Confidence, match.Method)
	}
}

func TestIdentify_NoMatch(t *testing.T) {
	m := core.NewMatcher(newFakeMatchSource())

	match, err := m.Identify(context.Background(), bankTx("completely unknown deposit"))
	if err != nil {
		t.Fatal(err)
	}
	if match.CounterpartyID != nil || match.Confidence != 0 || match.Method != core.MethodNone {
		t.Errorf("got %+v, want zero match", match)
	}
}

func TestIdentify_EmptyDescription(t *testing.T) {
	m := core.NewMatcher(newFakeMatchSource())

	match, err := m.Identify(context.Background(), bankTx("  .,;  "))
	if err != nil {
		t.Fatal(err)
	}
	if match.Method != core.MethodNone {
		t.Errorf("got %s, want none", match.Method)
	}
}

func TestConfirmMatch_RecordsNormalizedPattern(t *testing.T) {
	src := newFakeMatchSource()
	m := core.NewMatcher(src)

	if err := m.ConfirmMatch(context.Background(), "t1", "pix transf.: ACME LTDA", 7); err != nil {
		t.Fatal(err)
	}
	if got := src.upserts["PIX TRANSF ACME LTDA"]; got != 7 {
		t.Errorf("upserted counterparty = %d, want 7", got)
	}
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"pix transf.: ACME LTDA", "PIX TRANSF ACME LTDA"},
		{"  TED   123/456  ", "TED 123 456"},
		{"...", ""},
		{"a-b-c", "A B C"},
	}
	for _, tt := range tests {
		if got := core.NormalizeDescription(tt.in); got != tt.want {
			t.Errorf("NormalizeDescription(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDescriptionSignature(t *testing.T) {
	a := core.DescriptionSignature(core.NormalizeDescription("TED 0001 GLOBEX SUPPLY 2026"))
	b := core.DescriptionSignature(core.NormalizeDescription("TED 0999 GLOBEX SUPPLY 2021"))
	if a != b {
		t.Errorf("signatures differ: %q vs %q", a, b)
	}
	if a == "" {
		t.Error("signature should not be empty")
	}
}
