package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyaai/voyaai/internal/itinerary"
	"github.com/voyaai/voyaai/internal/plan"
)

var errUpstream = errors.New("routing upstream down")

// flakyProvider fails until healed.
type flakyProvider struct {
	healed atomic.Bool
	calls  atomic.Int32
}

func (p *flakyProvider) Lookup(context.Context, itinerary.Waypoint, itinerary.Waypoint, itinerary.Mode, string) (itinerary.Cost, error) {
	p.calls.Add(1)
	if !p.healed.Load() {
		return itinerary.Cost{}, errUpstream
	}
	return itinerary.Cost{DistanceKm: 170, DurationMinutes: 65}, nil
}

// failingLoads fails Load for one plan.
type failingLoads struct {
	*plan.InMemoryRepository
	broken string
}

func (r *failingLoads) Load(ctx context.Context, id string) (*itinerary.Document, error) {
	if id == r.broken {
		return nil, errors.New("corrupt row")
	}
	return r.InMemoryRepository.Load(ctx, id)
}

// storeBrokenPlan saves a plan whose train leg lost its cost lookup.
func storeBrokenPlan(t *testing.T, repo plan.Repository, provider itinerary.CostProvider, title string) string {
	t.Helper()
	ctx := context.Background()

	ed := itinerary.NewEditor(itinerary.NewPlan(title, nil), itinerary.Config{Provider: provider})
	require.NoError(t, ed.Append(ctx, 0, itinerary.Waypoint{Name: "Shanghai Hongqiao"}))
	require.NoError(t, ed.Append(ctx, 0, itinerary.Waypoint{Name: "Hangzhou East"}))
	require.NoError(t, ed.ChangeMode(ctx, 0, 0, itinerary.ModeTrain))
	require.NoError(t, ed.Wait(ctx))

	snap := ed.Snapshot()
	require.True(t, snap.Days[0].Segments[0].NeedsRetry())
	res, err := repo.Save(ctx, snap)
	require.NoError(t, err)
	return res.ID
}

func newJob(repo plan.Repository, provider itinerary.CostProvider, cfg RepairConfig) *RepairJob {
	return NewRepairJob(RepairJobConfig{
		Config:     cfg,
		Repository: repo,
		Provider:   provider,
		Logger:     zerolog.Nop(),
	})
}

func TestDefaultRepairConfig(t *testing.T) {
	cfg := DefaultRepairConfig()

	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, cfg, RepairConfig{}.withDefaults())
}

func TestRepairJob_RepairPlan(t *testing.T) {
	repo := plan.NewInMemoryRepository()
	provider := &flakyProvider{}
	id := storeBrokenPlan(t, repo, provider, "rail trip")

	provider.healed.Store(true)
	job := newJob(repo, provider, RepairConfig{})

	res, err := job.RepairPlan(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Zero(t, res.Remaining)
	assert.True(t, res.Saved)

	doc, err := repo.Load(context.Background(), id)
	require.NoError(t, err)
	seg := doc.Days[0].Segments[0]
	assert.Equal(t, itinerary.ModeTrain, seg.Mode)
	assert.Equal(t, 65, seg.DurationMinutes)
	assert.False(t, seg.NeedsRetry())
}

func TestRepairJob_RepairPlan_NothingToDo(t *testing.T) {
	repo := plan.NewInMemoryRepository()
	provider := &flakyProvider{}
	provider.healed.Store(true)
	id := storeBrokenPlan(t, repo, &flakyProvider{}, "trip")

	job := newJob(repo, provider, RepairConfig{})
	_, err := job.RepairPlan(context.Background(), id)
	require.NoError(t, err)

	calls := provider.calls.Load()
	res, err := job.RepairPlan(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, res.Queued)
	assert.False(t, res.Saved)
	assert.Equal(t, calls, provider.calls.Load(), "healthy plans cause no lookups")
}

func TestRepairJob_RepairPlan_StillFailing(t *testing.T) {
	repo := plan.NewInMemoryRepository()
	provider := &flakyProvider{}
	id := storeBrokenPlan(t, repo, provider, "trip")

	res, err := newJob(repo, provider, RepairConfig{}).RepairPlan(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Equal(t, 1, res.Remaining)
}

func TestRepairJob_RepairPlan_NotFound(t *testing.T) {
	job := newJob(plan.NewInMemoryRepository(), &flakyProvider{}, RepairConfig{})

	_, err := job.RepairPlan(context.Background(), "missing")
	assert.ErrorIs(t, err, plan.ErrNotFound)
}

func TestRepairJob_Run(t *testing.T) {
	repo := &failingLoads{InMemoryRepository: plan.NewInMemoryRepository()}
	provider := &flakyProvider{}
	for _, title := range []string{"a", "b", "c", "d"} {
		storeBrokenPlan(t, repo, provider, title)
	}
	repo.broken = storeBrokenPlan(t, repo, provider, "broken")
	provider.healed.Store(true)

	// Small pages exercise the cursor walk.
	job := newJob(repo, provider, RepairConfig{Concurrency: 2, PageSize: 2})
	result, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Plans)
	assert.Equal(t, 4, result.Saved)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 4, result.Queued)
	assert.Zero(t, result.Remaining)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, repo.broken, result.Errors[0].PlanID)

	m := job.GetMetrics()
	assert.Equal(t, int64(1), m.Runs)
	assert.Equal(t, int64(4), m.SegmentsRepaired)
	assert.Equal(t, int64(5), job.MetricsSnapshot()["plans_scanned"])
}

func TestPubSubHandler_Process(t *testing.T) {
	repo := plan.NewInMemoryRepository()
	provider := &flakyProvider{}
	id := storeBrokenPlan(t, repo, provider, "trip")
	provider.healed.Store(true)

	h := &PubSubHandler{repairJob: newJob(repo, provider, RepairConfig{}), logger: zerolog.Nop()}

	tests := []struct {
		name string
		data string
		ack  bool
	}{
		{"single plan", `{"job_type":"cost_repair","planId":"` + id + `"}`, true},
		{"job type defaults to repair", `{"planId":"` + id + `"}`, true},
		{"all plans", `{"job_type":"cost_repair","all":true}`, true},
		{"deleted plan", `{"job_type":"cost_repair","planId":"gone"}`, true},
		{"health check", `{"job_type":"health_check"}`, true},
		{"unknown job", `{"job_type":"reindex"}`, true},
		{"repair without target", `{"job_type":"cost_repair"}`, true},
		{"malformed", `{not json`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ack, h.process(context.Background(), zerolog.Nop(), []byte(tt.data)))
		})
	}
}

func TestPubSubHandler_ProcessNacksFailures(t *testing.T) {
	repo := &failingLoads{InMemoryRepository: plan.NewInMemoryRepository(), broken: "broken"}
	h := &PubSubHandler{repairJob: newJob(repo, &flakyProvider{}, RepairConfig{}), logger: zerolog.Nop()}

	ack := h.process(context.Background(), zerolog.Nop(), []byte(`{"job_type":"cost_repair","planId":"broken"}`))

	assert.False(t, ack, "failed jobs are redelivered")
}
