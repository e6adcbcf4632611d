package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Confidence levels of the matching cascade. The cascade is a deterministic
// rule ladder, highest rung first; it never involves randomness or learned
// models, so identical input and history always yield the same result.
const (
	confidencePattern    = 98
	confidenceHistory    = 85
	confidenceKeywordMin = 50
	confidenceKeywordMax = 80

	// historyMinPostings is the number of structurally similar historical
	// postings a counterparty needs before history alone is trusted.
	historyMinPostings = 2
)

// Match is the matching engine's verdict for one transaction.
type Match struct {
	CounterpartyID *int64               `json:"counterparty_id,omitempty"`
	Confidence     int                  `json:"confidence"`
	Method         IdentificationMethod `json:"method"`
}

// LearnedPattern is an exact description pattern confirmed by earlier
// reconciliations for this tenant.
type LearnedPattern struct {
	ID             int64  `json:"id"`
	TenantID       string `json:"tenant_id"`
	Pattern        string `json:"pattern"`
	CounterpartyID int64  `json:"counterparty_id"`
	Confidence     int    `json:"confidence"`
	UseCount       int    `json:"use_count"`
}

// HistoricalPosting is a previously reconciled transaction used as matching
// evidence.
type HistoricalPosting struct {
	Description    string
	CounterpartyID int64
}

// MatchSource supplies the historical state the cascade consults.
type MatchSource interface {
	// PatternByText returns the learned pattern for a normalized
	// description, or nil when none exists.
	PatternByText(ctx context.Context, tenantID, pattern string) (*LearnedPattern, error)

	// HistoricalPostings returns recent reconciled transactions with their
	// confirmed counterparties, newest first.
	HistoricalPostings(ctx context.Context, tenantID string, limit int) ([]HistoricalPosting, error)

	// Counterparties returns the tenant's counterparties ordered by id.
	Counterparties(ctx context.Context, tenantID string) ([]Counterparty, error)

	// UpsertPattern records a confirmed description->counterparty pattern,
	// bumping the use count when it already exists.
	UpsertPattern(ctx context.Context, tenantID, pattern string, counterpartyID int64) error
}

// Matcher runs the identification cascade over a MatchSource.
type Matcher struct {
	source       MatchSource
	historyDepth int
}

func NewMatcher(source MatchSource) *Matcher {
	return &Matcher{source: source, historyDepth: 500}
}

// Identify runs the cascade for one transaction:
//
//  1. exact learned description pattern
//  2. counterparty with >= 2 structurally similar historical postings
//  3. keyword/name vocabulary, confidence proportional to specificity
//  4. no match, confidence 0
func (m *Matcher) Identify(ctx context.Context, tx *BankTransaction) (Match, error) {
	norm := NormalizeDescription(tx.Description)
	if norm == "" {
		return Match{Method: MethodNone}, nil
	}

	if p, err := m.source.PatternByText(ctx, tx.TenantID, norm); err != nil {
		return Match{}, fmt.Errorf("pattern lookup failed: %w", err)
	} else if p != nil {
		conf := p.Confidence
		if conf <= 0 || conf > confidencePattern {
			conf = confidencePattern
		}
		id := p.CounterpartyID
		return Match{CounterpartyID: &id, Confidence: conf, Method: MethodPatternLearned}, nil
	}

	history, err := m.source.HistoricalPostings(ctx, tx.TenantID, m.historyDepth)
	if err != nil {
		return Match{}, fmt.Errorf("history lookup failed: %w", err)
	}
	if id, ok := m.historyMatch(norm, history); ok {
		return Match{CounterpartyID: &id, Confidence: confidenceHistory, Method: MethodHistoryMatch}, nil
	}

	counterparties, err := m.source.Counterparties(ctx, tx.TenantID)
	if err != nil {
		return Match{}, fmt.Errorf("counterparty lookup failed: %w", err)
	}
	if id, conf, ok := keywordMatch(norm, counterparties); ok {
		return Match{CounterpartyID: &id, Confidence: conf, Method: MethodKeywordMatch}, nil
	}

	return Match{Method: MethodNone}, nil
}

// ConfirmMatch records feedback after a reconciliation is confirmed so the
// next identical description hits the top rung of the cascade.
func (m *Matcher) ConfirmMatch(ctx context.Context, tenantID, description string, counterpartyID int64) error {
	norm := NormalizeDescription(description)
	if norm == "" {
		return nil
	}
	return m.source.UpsertPattern(ctx, tenantID, norm, counterpartyID)
}

// historyMatch groups history by structural signature and picks the
// counterparty with the most matching postings. Ties break on the lower
// counterparty id, keeping the outcome independent of map iteration order.
func (m *Matcher) historyMatch(norm string, history []HistoricalPosting) (int64, bool) {
	sig := DescriptionSignature(norm)
	if sig == "" {
		return 0, false
	}

	counts := make(map[int64]int)
	for _, h := range history {
		if DescriptionSignature(NormalizeDescription(h.Description)) == sig {
			counts[h.CounterpartyID]++
		}
	}

	ids := make([]int64, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if len(ids) > 0 && counts[ids[0]] >= historyMinPostings {
		return ids[0], true
	}
	return 0, false
}

// keywordMatch scans counterparty names and keyword vocabularies. Longer
// matched terms are more specific and score higher. Counterparties are
// visited in id order so equal scores resolve the same way every run.
func keywordMatch(norm string, counterparties []Counterparty) (int64, int, bool) {
	bestID := int64(0)
	bestConf := 0

	for _, cp := range counterparties {
		terms := make([]string, 0, len(cp.Keywords)+1)
		terms = append(terms, NormalizeDescription(cp.Name))
		for _, kw := range cp.Keywords {
			terms = append(terms, NormalizeDescription(kw))
		}

		for _, term := range terms {
			if len(term) < 4 || !strings.Contains(norm, term) {
				continue
			}
			conf := confidenceKeywordMin + 3*len(term)
			if conf > confidenceKeywordMax {
				conf = confidenceKeywordMax
			}
			if conf > bestConf {
				bestConf = conf
				bestID = cp.ID
			}
		}
	}

	if bestConf >= confidenceKeywordMin {
		return bestID, bestConf, true
	}
	return 0, 0, false
}

// NormalizeDescription uppercases and collapses a statement description so
// cosmetic differences (case, spacing, punctuation) do not defeat matching.
func NormalizeDescription(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch {
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// DescriptionSignature strips digits from a normalized description, leaving
// the structural skeleton shared by recurring transfers that differ only in
// dates, document numbers or amounts.
func DescriptionSignature(norm string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range norm {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// ── pgx-backed MatchSource ────────────────────────────────────────────────────

type matchStore struct {
	pool *pgxpool.Pool
}

func NewMatchStore(pool *pgxpool.Pool) MatchSource {
	return &matchStore{pool: pool}
}

func (s *matchStore) PatternByText(ctx context.Context, tenantID, pattern string) (*LearnedPattern, error) {
	p := &LearnedPattern{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, pattern, counterparty_id, confidence, use_count
		FROM learned_patterns
		WHERE tenant_id = $1 AND pattern = $2
	`, tenantID, pattern).Scan(&p.ID, &p.TenantID, &p.Pattern, &p.CounterpartyID, &p.Confidence, &p.UseCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch learned pattern: %w", err)
	}
	return p, nil
}

func (s *matchStore) HistoricalPostings(ctx context.Context, tenantID string, limit int) ([]HistoricalPosting, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `
		SELECT description, suggested_counterparty_id
		FROM bank_transactions
		WHERE tenant_id = $1 AND journal_entry_id IS NOT NULL AND suggested_counterparty_id IS NOT NULL
		ORDER BY id DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical postings: %w", err)
	}
	defer rows.Close()

	var out []HistoricalPosting
	for rows.Next() {
		var h HistoricalPosting
		if err := rows.Scan(&h.Description, &h.CounterpartyID); err != nil {
			return nil, fmt.Errorf("failed to scan historical posting: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating historical postings: %w", err)
	}
	return out, nil
}

func (s *matchStore) Counterparties(ctx context.Context, tenantID string) ([]Counterparty, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, COALESCE(document, ''), COALESCE(keywords, '{}'), account_id
		FROM counterparties
		WHERE tenant_id = $1
		ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query counterparties: %w", err)
	}
	defer rows.Close()

	var out []Counterparty
	for rows.Next() {
		var cp Counterparty
		if err := rows.Scan(&cp.ID, &cp.TenantID, &cp.Name, &cp.Document, &cp.Keywords, &cp.AccountID); err != nil {
			return nil, fmt.Errorf("failed to scan counterparty: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counterparties: %w", err)
	}
	return out, nil
}

func (s *matchStore) UpsertPattern(ctx context.Context, tenantID, pattern string, counterpartyID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO learned_patterns (tenant_id, pattern, counterparty_id, confidence, use_count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (tenant_id, pattern)
		DO UPDATE SET counterparty_id = EXCLUDED.counterparty_id, use_count = learned_patterns.use_count + 1
	`, tenantID, pattern, counterpartyID, confidencePattern)
	if err != nil {
		return fmt.Errorf("failed to upsert learned pattern: %w", err)
	}
	return nil
}
