package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountDirectory is the read-only view of the chart of accounts. Accounts
// are created and edited by administrative tooling; this core only reads.
type AccountDirectory interface {
	// AccountByCode resolves one account within a tenant's chart.
	AccountByCode(ctx context.Context, tenantID, code string) (*Account, error)

	// AccountByID resolves one account by primary key.
	AccountByID(ctx context.Context, id int64) (*Account, error)

	// Snapshot returns the tenant's full chart as an AccountSet for the
	// validator. The snapshot is immutable once returned.
	Snapshot(ctx context.Context, tenantID string) (AccountSet, error)
}

const accountColumns = "id, tenant_id, code, name, type, nature, is_analytical, is_transitory, COALESCE(parent_code, '')"

func scanAccount(row pgx.Row) (*Account, error) {
	a := &Account{}
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.Nature,
		&a.IsAnalytical, &a.IsTransitory, &a.ParentCode)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type accountDirectory struct {
	pool *pgxpool.Pool

	// Side-cache for chart snapshots. The chart changes rarely and every
	// pipeline run reads it, so a short TTL removes most of the query load
	// without risking stale analytical flags for long.
	ttl     time.Duration
	mu      sync.Mutex
	cached  map[string]*chartSnapshot
	nowFunc func() time.Time
}

// NewAccountDirectory constructs a directory backed by the accounts table.
// cacheTTL <= 0 disables the snapshot cache.
func NewAccountDirectory(pool *pgxpool.Pool, cacheTTL time.Duration) AccountDirectory {
	return &accountDirectory{
		pool:    pool,
		ttl:     cacheTTL,
		cached:  make(map[string]*chartSnapshot),
		nowFunc: time.Now,
	}
}

func (d *accountDirectory) AccountByCode(ctx context.Context, tenantID, code string) (*Account, error) {
	row := d.pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE tenant_id = $1 AND code = $2",
		tenantID, code)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", code, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to fetch account %s: %w", code, err)
	}
	return a, nil
}

func (d *accountDirectory) AccountByID(ctx context.Context, id int64) (*Account, error) {
	row := d.pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account id %d: %w", id, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to fetch account id %d: %w", id, err)
	}
	return a, nil
}

func (d *accountDirectory) Snapshot(ctx context.Context, tenantID string) (AccountSet, error) {
	if d.ttl > 0 {
		d.mu.Lock()
		if snap, ok := d.cached[tenantID]; ok && d.nowFunc().Sub(snap.fetchedAt) < d.ttl {
			d.mu.Unlock()
			return snap, nil
		}
		d.mu.Unlock()
	}

	rows, err := d.pool.Query(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE tenant_id = $1 ORDER BY code", tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart of accounts: %w", err)
	}
	defer rows.Close()

	snap := &chartSnapshot{byCode: make(map[string]*Account), fetchedAt: d.nowFunc()}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		snap.byCode[a.Code] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	if d.ttl > 0 {
		d.mu.Lock()
		d.cached[tenantID] = snap
		d.mu.Unlock()
	}
	return snap, nil
}

// chartSnapshot is an immutable point-in-time chart view.
type chartSnapshot struct {
	byCode    map[string]*Account
	fetchedAt time.Time
}

func (s *chartSnapshot) ByCode(code string) (*Account, bool) {
	a, ok := s.byCode[code]
	return a, ok
}

// StaticAccountSet builds an AccountSet from a fixed slice. Used by callers
// that already hold the accounts they need, and by tests.
func StaticAccountSet(accounts []Account) AccountSet {
	snap := &chartSnapshot{byCode: make(map[string]*Account, len(accounts))}
	for i := range accounts {
		snap.byCode[accounts[i].Code] = &accounts[i]
	}
	return snap
}
