package commands

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"ledger-core/internal/app"
	"ledger-core/internal/config"
	"ledger-core/internal/core"
	"ledger-core/internal/db"
)

// services bundles everything a command needs. Close releases the pool.
type services struct {
	cfg  *config.Config
	pool *pgxpool.Pool
	svc  app.ApplicationService
}

func (s *services) Close() {
	s.pool.Close()
}

// buildServices loads configuration, connects to the database and wires the
// full service graph.
func buildServices(ctx context.Context, configPath string) (*services, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	directory := core.NewAccountDirectory(pool, cfg.Ledger.ChartCacheTTL)
	audit := core.NewAuditLog(pool)
	ledger := core.NewLedger(pool, directory, audit)
	state := core.NewStateManager(pool, audit)
	transactions := core.NewTransactionStore(pool)
	matcher := core.NewMatcher(core.NewMatchStore(pool))
	obligations := core.NewObligationStore(pool)
	health := core.NewHealthService(pool)

	orchestrator := core.NewOrchestrator(
		transactions,
		transactions,
		obligations,
		directory,
		matcher,
		obligations,
		ledger,
		state,
		core.Thresholds{
			Auto:   cfg.Reconciliation.AutoThreshold,
			Review: cfg.Reconciliation.ReviewThreshold,
		},
	)

	return &services{
		cfg:  cfg,
		pool: pool,
		svc:  app.NewAppService(ledger, state, orchestrator, audit, health),
	}, nil
}
