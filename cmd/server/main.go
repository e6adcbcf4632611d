package main

import (
	"context"
	"log"
	"net/http"
	"os"

	webAdapter "ledger-core/internal/adapters/web"
	"ledger-core/internal/app"
	"ledger-core/internal/config"
	"ledger-core/internal/core"
	"ledger-core/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("LEDGER_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	directory := core.NewAccountDirectory(pool, cfg.Ledger.ChartCacheTTL)
	audit := core.NewAuditLog(pool)
	ledger := core.NewLedger(pool, directory, audit)
	state := core.NewStateManager(pool, audit)
	transactions := core.NewTransactionStore(pool)
	matcher := core.NewMatcher(core.NewMatchStore(pool))
	obligations := core.NewObligationStore(pool)
	health := core.NewHealthService(pool)

	orchestrator := core.NewOrchestrator(
		transactions, transactions, obligations, directory,
		matcher, obligations, ledger, state,
		core.Thresholds{
			Auto:   cfg.Reconciliation.AutoThreshold,
			Review: cfg.Reconciliation.ReviewThreshold,
		},
	)

	svc := app.NewAppService(ledger, state, orchestrator, audit, health)

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	handler := webAdapter.NewHandler(svc, allowedOrigins)

	log.Printf("server starting on %s", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}
