package app

import (
	"context"
	"fmt"
	"time"

	"ledger-core/internal/core"
	"ledger-core/internal/observability"
)

type appService struct {
	ledger       core.LedgerService
	state        core.StateManager
	orchestrator *core.Orchestrator
	audit        core.AuditLog
	health       core.HealthService
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	ledger core.LedgerService,
	state core.StateManager,
	orchestrator *core.Orchestrator,
	audit core.AuditLog,
	health core.HealthService,
) ApplicationService {
	return &appService{
		ledger:       ledger,
		state:        state,
		orchestrator: orchestrator,
		audit:        audit,
		health:       health,
	}
}

// CreateEntry converts the request into a draft, filling in today's date and
// a generated internal code where omitted, and posts it.
func (s *appService) CreateEntry(ctx context.Context, req CreateEntryRequest) (*EntryResult, error) {
	entryDate := time.Now().UTC()
	if req.EntryDate != "" {
		parsed, err := time.Parse("2006-01-02", req.EntryDate)
		if err != nil {
			return nil, fmt.Errorf("invalid entry_date %q: %w", req.EntryDate, err)
		}
		entryDate = parsed
	}

	internalCode := req.InternalCode
	if internalCode == "" {
		internalCode = core.NewInternalCode(entryDate)
	}

	lines := make([]core.DraftLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = core.DraftLine{
			AccountCode: l.AccountCode,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		}
	}

	draft := core.Draft{
		TenantID:      req.TenantID,
		EntryDate:     entryDate,
		Description:   req.Description,
		EntryType:     req.EntryType,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		InternalCode:  internalCode,
		Lines:         lines,
	}

	res, err := s.ledger.CreateEntry(ctx, draft)
	if err != nil {
		if v, ok := core.AsViolation(err); ok {
			observability.EntryViolations.WithLabelValues(v.ViolationCode()).Inc()
		}
		return nil, err
	}

	if res.Existing {
		observability.DuplicateEntries.Inc()
	} else {
		observability.EntriesPosted.WithLabelValues(draft.EntryType).Inc()
	}

	debit, credit := draft.Totals()
	return &EntryResult{
		EntryID:      res.EntryID,
		InternalCode: res.InternalCode,
		Existing:     res.Existing,
		TotalDebit:   debit,
		TotalCredit:  credit,
	}, nil
}

func (s *appService) GetEntry(ctx context.Context, id int64) (*core.JournalEntry, error) {
	return s.ledger.GetEntry(ctx, id)
}

func (s *appService) DeleteEntry(ctx context.Context, req DeleteEntryRequest) error {
	return s.ledger.DeleteEntry(ctx, req.EntryID, req.Actor, req.Reason)
}

func (s *appService) Reconcile(ctx context.Context, req ReconcileRequest) error {
	return s.state.Reconcile(ctx, req.TransactionID, req.EntryID, req.Actor)
}

func (s *appService) Unreconcile(ctx context.Context, req UnreconcileRequest) error {
	return s.state.Unreconcile(ctx, req.TransactionID, req.Actor, req.Reason)
}

func (s *appService) ProcessTransaction(ctx context.Context, transactionID int64) (*core.PipelineResult, error) {
	result := s.orchestrator.ProcessTransaction(ctx, transactionID)
	recordPipelineMetrics(result)
	return result, nil
}

func (s *appService) ProcessAllPending(ctx context.Context, tenantID string, limit int) (*core.BatchStats, error) {
	stats, err := s.orchestrator.ProcessAllPending(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}
	observability.BatchDuration.Observe(stats.Duration.Seconds())
	observability.BatchSize.Observe(float64(stats.Processed))
	return stats, nil
}

func (s *appService) AuditTrail(ctx context.Context, tenantID, entityType, entityID string, limit int) ([]core.AuditRecord, error) {
	return s.audit.Trail(ctx, tenantID, entityType, entityID, limit)
}

func (s *appService) VerifyAuditChain(ctx context.Context, tenantID string) (*core.ChainReport, error) {
	return s.audit.VerifyChain(ctx, tenantID)
}

func (s *appService) LedgerHealth(ctx context.Context, tenantID string) (*core.HealthReport, error) {
	report, err := s.health.Check(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, tb := range report.TransitoryBalances {
		bal, _ := tb.Balance.Float64()
		observability.SuspenseBalance.WithLabelValues(tb.AccountCode).Set(bal)
	}
	return report, nil
}

func recordPipelineMetrics(result *core.PipelineResult) {
	observability.PipelineRuns.WithLabelValues(string(result.FinalStatus)).Inc()
	if result.Method != "" {
		observability.IdentificationMethods.WithLabelValues(string(result.Method)).Inc()
	}
	for _, step := range result.Steps {
		observability.PipelineStepDuration.
			WithLabelValues(step.Name, string(step.Status)).
			Observe(step.Duration.Seconds())
	}
}
