// Command verify-db checks database connectivity and schema sanity: every
// table the services expect must exist, and every migration on disk must be
// recorded as applied. Exits non-zero on the first problem.
package main

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

var requiredTables = []string{
	"accounts",
	"bank_accounts",
	"counterparties",
	"obligations",
	"journal_entries",
	"journal_lines",
	"bank_transactions",
	"learned_patterns",
	"audit_records",
	"audit_chain_heads",
	"schema_migrations",
}

func main() {
	_ = godotenv.Load()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		log.Fatal("[CONNECT] DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool := connectDB(ctx, url)
	defer pool.Close()

	verifyTables(ctx, pool)
	verifyMigrations(ctx, pool)

	log.Println("[DONE] database verified")
}

func connectDB(ctx context.Context, url string) *pgxpool.Pool {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		log.Fatalf("[CONNECT] failed to create pool: %v", err)
	}

	if err := pool.Ping(connCtx); err != nil {
		log.Fatalf("[CONNECT] failed to ping database: %v", err)
	}

	log.Println("[CONNECT] success")
	return pool
}

func verifyTables(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public'
	`)
	if err != nil {
		log.Fatalf("[SCHEMA] failed to list tables: %v", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			log.Fatalf("[SCHEMA] failed to scan table name: %v", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("[SCHEMA] error listing tables: %v", err)
	}

	for _, table := range requiredTables {
		if !present[table] {
			log.Fatalf("[SCHEMA] missing table %s (run cmd/migrate)", table)
		}
	}
	log.Printf("[SCHEMA] all %d required tables present", len(requiredTables))
}

func verifyMigrations(ctx context.Context, pool *pgxpool.Pool) {
	entries, err := os.ReadDir("migrations")
	if err != nil {
		log.Fatalf("[MIGRATIONS] failed to read migrations directory: %v", err)
	}

	var onDisk []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		onDisk = append(onDisk, strings.SplitN(entry.Name(), "_", 2)[0])
	}
	sort.Strings(onDisk)

	applied := make(map[string]bool)
	rows, err := pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		log.Fatalf("[MIGRATIONS] failed to query schema_migrations: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			log.Fatalf("[MIGRATIONS] failed to scan version: %v", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("[MIGRATIONS] error listing versions: %v", err)
	}

	for _, version := range onDisk {
		if !applied[version] {
			log.Fatalf("[MIGRATIONS] version %s not applied (run cmd/migrate)", version)
		}
	}
	log.Printf("[MIGRATIONS] %d migrations applied", len(onDisk))
}
