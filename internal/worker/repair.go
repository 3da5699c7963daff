package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/voyaai/voyaai/internal/itinerary"
	"github.com/voyaai/voyaai/internal/plan"
)

// RepairJob re-runs failed cost lookups of stored plans and saves the
// results.
type RepairJob struct {
	config   RepairConfig
	repo     plan.Repository
	provider itinerary.CostProvider
	logger   zerolog.Logger

	metrics *RepairMetrics
}

// RepairMetrics tracks repair job statistics.
type RepairMetrics struct {
	mu sync.RWMutex

	Runs             int64
	PlansScanned     int64
	PlansSaved       int64
	PlansFailed      int64
	SegmentsQueued   int64
	SegmentsRepaired int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// RepairJobConfig holds configuration for creating a RepairJob.
type RepairJobConfig struct {
	Config     RepairConfig
	Repository plan.Repository
	Provider   itinerary.CostProvider
	Logger     zerolog.Logger
}

// NewRepairJob creates a new repair job.
func NewRepairJob(cfg RepairJobConfig) *RepairJob {
	return &RepairJob{
		config:   cfg.Config.withDefaults(),
		repo:     cfg.Repository,
		provider: cfg.Provider,
		logger:   cfg.Logger,
		metrics:  &RepairMetrics{},
	}
}

// PlanResult is the outcome of repairing one plan.
type PlanResult struct {
	PlanID string

	// Queued is the number of segments looked up again.
	Queued int

	// Remaining is the number of segments still without a cost.
	Remaining int

	Saved bool
}

// RepairResult contains the result of a repair run.
type RepairResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Plans     int
	Saved     int
	Failed    int
	Queued    int
	Remaining int
	Errors    []RepairError
}

// RepairError records a plan that could not be repaired.
type RepairError struct {
	PlanID string
	Error  string
}

// RepairPlan loads one plan, retries its failed lookups and saves it when
// anything was retried.
func (j *RepairJob) RepairPlan(ctx context.Context, planID string) (PlanResult, error) {
	result := PlanResult{PlanID: planID}

	doc, err := j.repo.Load(ctx, planID)
	if err != nil {
		return result, fmt.Errorf("load plan %s: %w", planID, err)
	}
	p, notes := itinerary.PlanFromDocument(doc)
	for _, n := range notes {
		j.logger.Warn().Str("plan_id", planID).Str("repair", n).Msg("repaired stored plan")
	}

	ed := itinerary.NewEditor(p, itinerary.Config{Provider: j.provider, Logger: j.logger})
	result.Queued = ed.RepairAll(ctx)
	if result.Queued == 0 && len(notes) == 0 {
		return result, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()
	if err := ed.Wait(waitCtx); err != nil {
		return result, fmt.Errorf("repair plan %s: %w", planID, err)
	}

	snap := ed.Snapshot()
	result.Remaining = countRetries(snap)
	if _, err := j.repo.Save(ctx, snap); err != nil {
		return result, fmt.Errorf("save plan %s: %w", planID, err)
	}
	result.Saved = true
	return result, nil
}

// Run repairs every stored plan with bounded concurrency.
func (j *RepairJob) Run(ctx context.Context) (*RepairResult, error) {
	start := time.Now()
	result := &RepairResult{StartTime: start}

	ids, err := j.planIDs(ctx)
	if err != nil {
		return nil, err
	}
	result.Plans = len(ids)

	j.logger.Info().
		Int("plans", len(ids)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting cost repair job")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			pr, err := j.RepairPlan(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			result.Queued += pr.Queued
			result.Remaining += pr.Remaining
			if pr.Saved {
				result.Saved++
			}
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, RepairError{PlanID: id, Error: err.Error()})
				j.logger.Warn().Err(err).Str("plan_id", id).Msg("plan repair failed")
			}
			// One broken plan must not cancel the rest.
			return nil
		})
	}
	_ = g.Wait()

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("plans", result.Plans).
		Int("saved", result.Saved).
		Int("failed", result.Failed).
		Int("queued", result.Queued).
		Int("remaining", result.Remaining).
		Msg("cost repair job completed")

	return result, ctx.Err()
}

// planIDs lists every plan up front so saves during the run do not move
// plans between pages.
func (j *RepairJob) planIDs(ctx context.Context) ([]string, error) {
	var ids []string
	cursor := ""
	for {
		page, err := j.repo.List(ctx, plan.ListOptions{Limit: j.config.PageSize, Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("list plans: %w", err)
		}
		for _, s := range page.Items {
			ids = append(ids, s.ID)
		}
		if page.NextCursor == "" {
			return ids, nil
		}
		cursor = page.NextCursor
	}
}

func countRetries(doc *itinerary.Document) int {
	n := 0
	for _, d := range doc.Days {
		for _, s := range d.Segments {
			if s.NeedsRetry() {
				n++
			}
		}
	}
	return n
}

func (j *RepairJob) updateMetrics(result *RepairResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.Runs++
	j.metrics.PlansScanned += int64(result.Plans)
	j.metrics.PlansSaved += int64(result.Saved)
	j.metrics.PlansFailed += int64(result.Failed)
	j.metrics.SegmentsQueued += int64(result.Queued)
	j.metrics.SegmentsRepaired += int64(result.Queued - result.Remaining)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RepairJob) GetMetrics() RepairMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RepairMetrics{
		Runs:             j.metrics.Runs,
		PlansScanned:     j.metrics.PlansScanned,
		PlansSaved:       j.metrics.PlansSaved,
		PlansFailed:      j.metrics.PlansFailed,
		SegmentsQueued:   j.metrics.SegmentsQueued,
		SegmentsRepaired: j.metrics.SegmentsRepaired,
		LastRunAt:        j.metrics.LastRunAt,
		LastRunDuration:  j.metrics.LastRunDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RepairJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"runs":              m.Runs,
		"plans_scanned":     m.PlansScanned,
		"plans_saved":       m.PlansSaved,
		"plans_failed":      m.PlansFailed,
		"segments_queued":   m.SegmentsQueued,
		"segments_repaired": m.SegmentsRepaired,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
	}
}
