package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// genesisHash anchors the first record of each tenant's chain.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditLog is the append-only record of every state-changing action. Records
// are hash-chained per tenant: each record's hash covers the previous
// record's hash, so tampering with history is detectable by a full walk.
type AuditLog interface {
	// Append writes one record in its own transaction.
	Append(ctx context.Context, rec AuditRecord) error

	// AppendTx writes one record inside the caller's transaction so that the
	// audited change and its record commit or roll back together.
	AppendTx(ctx context.Context, tx pgx.Tx, rec AuditRecord) error

	// Trail returns the records for one entity, newest first.
	Trail(ctx context.Context, tenantID, entityType, entityID string, limit int) ([]AuditRecord, error)

	// VerifyChain walks a tenant's full chain and reports the first broken
	// link, if any.
	VerifyChain(ctx context.Context, tenantID string) (*ChainReport, error)
}

// ChainReport is the result of a chain integrity walk.
type ChainReport struct {
	TenantID     string `json:"tenant_id"`
	TotalRecords int64  `json:"total_records"`
	Valid        bool   `json:"valid"`
	// FirstBrokenSequence is set when Valid is false.
	FirstBrokenSequence int64 `json:"first_broken_sequence,omitempty"`
}

type auditLog struct {
	pool    *pgxpool.Pool
	nowFunc func() time.Time
}

func NewAuditLog(pool *pgxpool.Pool) AuditLog {
	return &auditLog{pool: pool, nowFunc: time.Now}
}

func (a *auditLog) Append(ctx context.Context, rec AuditRecord) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := a.AppendTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit audit record: %w", err)
	}
	return nil
}

func (a *auditLog) AppendTx(ctx context.Context, tx pgx.Tx, rec AuditRecord) error {
	// Lock the tenant's chain head so concurrent appends serialize and
	// every record sees the true previous hash.
	var lastSeq int64
	var lastHash string
	err := tx.QueryRow(ctx, `
		SELECT last_sequence, last_hash FROM audit_chain_heads
		WHERE tenant_id = $1 FOR UPDATE
	`, rec.TenantID).Scan(&lastSeq, &lastHash)
	if errors.Is(err, pgx.ErrNoRows) {
		lastSeq, lastHash = 0, genesisHash
		if _, err := tx.Exec(ctx, `
			INSERT INTO audit_chain_heads (tenant_id, last_sequence, last_hash)
			VALUES ($1, 0, $2)
			ON CONFLICT (tenant_id) DO NOTHING
		`, rec.TenantID, genesisHash); err != nil {
			return fmt.Errorf("failed to initialize audit chain: %w", err)
		}
		// Re-acquire under lock in case another transaction initialized it.
		if err := tx.QueryRow(ctx, `
			SELECT last_sequence, last_hash FROM audit_chain_heads
			WHERE tenant_id = $1 FOR UPDATE
		`, rec.TenantID).Scan(&lastSeq, &lastHash); err != nil {
			return fmt.Errorf("failed to lock audit chain head: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to lock audit chain head: %w", err)
	}

	rec.Sequence = lastSeq + 1
	rec.PreviousHash = lastHash
	// Postgres keeps microseconds; hash what will actually round-trip.
	rec.CreatedAt = a.nowFunc().UTC().Truncate(time.Microsecond)
	rec.RecordHash = hashRecord(rec)

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_records (tenant_id, sequence, actor, action, entity_type, entity_id, before_state, after_state, previous_hash, record_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.TenantID, rec.Sequence, rec.Actor, rec.Action, rec.EntityType, rec.EntityID,
		rec.Before, rec.After, rec.PreviousHash, rec.RecordHash, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE audit_chain_heads SET last_sequence = $2, last_hash = $3 WHERE tenant_id = $1
	`, rec.TenantID, rec.Sequence, rec.RecordHash)
	if err != nil {
		return fmt.Errorf("failed to advance audit chain head: %w", err)
	}
	return nil
}

const auditColumns = "id, tenant_id, sequence, actor, action, entity_type, entity_id, COALESCE(before_state, ''), COALESCE(after_state, ''), previous_hash, record_hash, created_at"

func scanAuditRecord(row pgx.Row) (AuditRecord, error) {
	var r AuditRecord
	err := row.Scan(&r.ID, &r.TenantID, &r.Sequence, &r.Actor, &r.Action,
		&r.EntityType, &r.EntityID, &r.Before, &r.After, &r.PreviousHash, &r.RecordHash, &r.CreatedAt)
	return r, err
}

func (a *auditLog) Trail(ctx context.Context, tenantID, entityType, entityID string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.pool.Query(ctx, `
		SELECT `+auditColumns+` FROM audit_records
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY sequence DESC LIMIT $4
	`, tenantID, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	var trail []AuditRecord
	for rows.Next() {
		r, err := scanAuditRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		trail = append(trail, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return trail, nil
}

func (a *auditLog) VerifyChain(ctx context.Context, tenantID string) (*ChainReport, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT `+auditColumns+` FROM audit_records
		WHERE tenant_id = $1 ORDER BY sequence ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit chain: %w", err)
	}
	defer rows.Close()

	report := &ChainReport{TenantID: tenantID, Valid: true}
	prevHash := genesisHash
	prevSeq := int64(0)

	for rows.Next() {
		r, err := scanAuditRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		report.TotalRecords++

		if r.Sequence != prevSeq+1 || r.PreviousHash != prevHash || hashRecord(r) != r.RecordHash {
			report.Valid = false
			report.FirstBrokenSequence = r.Sequence
			return report, nil
		}
		prevHash = r.RecordHash
		prevSeq = r.Sequence
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return report, nil
}

// hashRecord computes the chained SHA-256 over the record's immutable fields.
// Field order is fixed; changing it invalidates every stored chain.
func hashRecord(r AuditRecord) string {
	h := sha256.New()
	fields := []string{
		r.TenantID,
		strconv.FormatInt(r.Sequence, 10),
		r.Actor,
		string(r.Action),
		r.EntityType,
		r.EntityID,
		r.Before,
		r.After,
		r.PreviousHash,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	h.Write([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}
