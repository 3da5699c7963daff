package itinerary

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultCanvasWidth is used when no container width is known.
const DefaultCanvasWidth = 960.0

// ChangeKind classifies an editor change for persistence scheduling.
type ChangeKind int

const (
	ChangeStructure ChangeKind = iota
	ChangeSettings
	ChangeLayout
	ChangeCost
	// ChangeTicket follows a ticket import.
	ChangeTicket
	// ChangeReorderSettled fires once every lookup issued by a reorder has
	// resolved.
	ChangeReorderSettled
)

// Eager reports whether the change should be saved without debounce.
func (k ChangeKind) Eager() bool {
	return k == ChangeTicket || k == ChangeReorderSettled
}

func (k ChangeKind) String() string {
	switch k {
	case ChangeStructure:
		return "structure"
	case ChangeSettings:
		return "settings"
	case ChangeLayout:
		return "layout"
	case ChangeCost:
		return "cost"
	case ChangeTicket:
		return "ticket"
	case ChangeReorderSettled:
		return "reorder_settled"
	}
	return "unknown"
}

// Change is passed to Config.OnChange. Day is -1 for plan-level changes.
type Change struct {
	Kind ChangeKind
	Day  int
}

// Config holds Editor configuration.
type Config struct {
	// Provider computes segment costs. Without one, every segment keeps the
	// zero-cost placeholder.
	Provider CostProvider

	// Logger for editor operations.
	Logger zerolog.Logger

	// CanvasWidth is the container width used to place new cards
	// (default: DefaultCanvasWidth).
	CanvasWidth float64

	// DefaultMode is the mode of newly created segments (default: driving).
	DefaultMode Mode

	// OnChange is called after every committed change, outside the editor
	// lock. It must not block for long.
	OnChange func(Change)

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Editor is the single writer of a Plan. Structural edits apply
// synchronously; cost lookups run in the background and are written back only
// if the segment they target is still linked and unchanged.
type Editor struct {
	mu   sync.Mutex
	plan *Plan

	provider    CostProvider
	logger      zerolog.Logger
	width       float64
	defaultMode Mode
	onChange    func(Change)
	now         func() time.Time

	// lookups counts in-flight lookups; idle is closed when it drops to zero.
	lookupMu sync.Mutex
	lookups  int
	idle     chan struct{}
}

// NewEditor takes ownership of p.
func NewEditor(p *Plan, cfg Config) *Editor {
	width := cfg.CanvasWidth
	if width <= 0 {
		width = DefaultCanvasWidth
	}

	mode := cfg.DefaultMode
	if !mode.Valid() || mode == ModeFlight {
		mode = ModeDriving
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if len(p.Days) == 0 {
		p.Days = []*Day{NewDay()}
	}
	for _, d := range p.Days {
		d.ensureLayout(width)
	}

	return &Editor{
		plan:        p,
		provider:    cfg.Provider,
		logger:      cfg.Logger,
		width:       width,
		defaultMode: mode,
		onChange:    cfg.OnChange,
		now:         now,
	}
}

// lookupJob is one background cost lookup bound to a leg revision.
type lookupJob struct {
	day         *Day
	dayIndex    int
	leg         *leg
	revision    uint64
	origin      Waypoint
	destination Waypoint
	mode        Mode
	city        string
}

func (e *Editor) newLeg(mode Mode) *leg {
	return &leg{id: uuid.NewString(), mode: mode}
}

// carryMode keeps a replaced segment's mode for the segments that replace it,
// except flights which only exist through ticket import.
func (e *Editor) carryMode(m Mode) Mode {
	if m == ModeFlight || !m.Valid() {
		return e.defaultMode
	}
	return m
}

func (e *Editor) jobFor(d *Day, dayIndex, i int) lookupJob {
	l := d.stops[i].leg
	origin := d.stops[i].waypoint.clone()
	return lookupJob{
		day:         d,
		dayIndex:    dayIndex,
		leg:         l,
		revision:    l.revision,
		origin:      origin,
		destination: d.stops[i+1].waypoint.clone(),
		mode:        l.mode,
		city:        d.contextCity(origin),
	}
}

func (e *Editor) dayLocked(op string, i int) (*Day, error) {
	if i < 0 || i >= len(e.plan.Days) {
		return nil, indexError(op, ErrDayOutOfRange, i, len(e.plan.Days))
	}
	return e.plan.Days[i], nil
}

// syncStartLocked keeps the plan start equal to day 0's first waypoint.
func (e *Editor) syncStartLocked() {
	d := e.plan.Days[0]
	if len(d.stops) == 0 {
		return
	}
	wp := d.stops[0].waypoint.clone()
	e.plan.StartLocation = &wp
}

// commit stamps the plan, releases the lock, starts lookups and notifies.
// The caller must hold e.mu.
func (e *Editor) commit(ctx context.Context, change Change, jobs []lookupJob, settled func()) {
	e.plan.UpdatedAt = e.now()
	e.mu.Unlock()

	e.dispatch(ctx, jobs, settled)
	e.notify(change)
}

func (e *Editor) notify(c Change) {
	if e.onChange != nil {
		e.onChange(c)
	}
}

func (e *Editor) dispatch(ctx context.Context, jobs []lookupJob, settled func()) {
	if len(jobs) == 0 {
		if settled != nil {
			settled()
		}
		return
	}
	if e.provider == nil {
		e.logger.Debug().Int("segments", len(jobs)).Msg("no cost provider, keeping zero-cost placeholders")
		if settled != nil {
			settled()
		}
		return
	}

	// Lookups outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)

	var remaining atomic.Int32
	remaining.Store(int32(len(jobs)))

	e.startLookups(len(jobs))
	for _, j := range jobs {
		go func(j lookupJob) {
			defer e.finishLookup()

			e.resolve(ctx, j)
			if remaining.Add(-1) == 0 && settled != nil {
				settled()
			}
		}(j)
	}
}

func (e *Editor) resolve(ctx context.Context, j lookupJob) {
	cost, err := e.provider.Lookup(ctx, j.origin, j.destination, j.mode, j.city)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("segment_id", j.leg.id).
			Str("mode", string(j.mode)).
			Str("origin", j.origin.Name).
			Str("destination", j.destination.Name).
			Msg("cost lookup failed, keeping zero-cost placeholder")
		return
	}

	e.mu.Lock()
	if !j.day.owns(j.leg) || j.leg.revision != j.revision {
		e.mu.Unlock()
		e.logger.Debug().
			Str("segment_id", j.leg.id).
			Msg("discarding stale cost lookup")
		return
	}

	j.leg.distance = max(0, cost.DistanceKm)
	j.leg.duration = max(0, cost.DurationMinutes)
	j.leg.currency = cost.Currency
	j.leg.cost = nil
	if cost.CostEstimate != nil {
		c := *cost.CostEstimate
		j.leg.cost = &c
	}
	if len(cost.TransitSteps) > 0 {
		if j.leg.details == nil {
			j.leg.details = &Details{}
		}
		j.leg.details.TransitSteps = append([]string(nil), cost.TransitSteps...)
	}
	e.plan.UpdatedAt = e.now()
	e.mu.Unlock()

	e.logger.Debug().
		Str("segment_id", j.leg.id).
		Float64("distance_km", cost.DistanceKm).
		Int("duration_minutes", cost.DurationMinutes).
		Msg("segment cost updated")

	e.notify(Change{Kind: ChangeCost, Day: j.dayIndex})
}

func (e *Editor) startLookups(n int) {
	e.lookupMu.Lock()
	defer e.lookupMu.Unlock()
	if e.lookups == 0 {
		e.idle = make(chan struct{})
	}
	e.lookups += n
}

func (e *Editor) finishLookup() {
	e.lookupMu.Lock()
	defer e.lookupMu.Unlock()
	e.lookups--
	if e.lookups == 0 {
		close(e.idle)
		e.idle = nil
	}
}

// Wait blocks until every in-flight lookup has resolved or ctx is done.
func (e *Editor) Wait(ctx context.Context) error {
	e.lookupMu.Lock()
	idle := e.idle
	e.lookupMu.Unlock()
	if idle == nil {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of in-flight lookups.
func (e *Editor) Pending() int {
	e.lookupMu.Lock()
	defer e.lookupMu.Unlock()
	return e.lookups
}
