package plan

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voyaai/voyaai/internal/itinerary"
)

// DefaultSaveDelay is the trailing-edge debounce for ordinary edits.
const DefaultSaveDelay = 800 * time.Millisecond

// Source is the live plan an Autosaver persists. *itinerary.Editor
// satisfies it.
type Source interface {
	Snapshot() *itinerary.Document
	MergeSaved(id string, createdAt time.Time)
}

var _ Source = (*itinerary.Editor)(nil)

// AutosaverConfig configures an Autosaver.
type AutosaverConfig struct {
	Repository Repository

	// Delay is the debounce window (default: DefaultSaveDelay).
	Delay time.Duration

	// Timeout bounds one save (default: 10s).
	Timeout time.Duration

	// OnSaved is called after each successful save (optional).
	OnSaved func(SaveResult)

	Logger zerolog.Logger
}

// Autosaver debounces saves of one plan. Bursts of edits collapse into a
// single save after the last one; eager changes save immediately. A failed
// save is logged and the plan stays dirty until the next trigger.
type Autosaver struct {
	source  Source
	repo    Repository
	delay   time.Duration
	timeout time.Duration
	onSaved func(SaveResult)
	logger  zerolog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	dirty  bool
	closed bool

	// saveMu serializes saves so a slow save is never overtaken by a newer
	// snapshot. Close and Discard take it to wait out a running save.
	saveMu sync.Mutex
}

// NewAutosaver creates an autosaver for source.
func NewAutosaver(source Source, cfg AutosaverConfig) *Autosaver {
	delay := cfg.Delay
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Autosaver{
		source:  source,
		repo:    cfg.Repository,
		delay:   delay,
		timeout: timeout,
		onSaved: cfg.OnSaved,
		logger:  cfg.Logger,
	}
}

// OnChange is an itinerary.Config.OnChange hook.
func (a *Autosaver) OnChange(c itinerary.Change) {
	if c.Kind.Eager() {
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return
		}
		// Close must still see the change if the flush has not started.
		a.dirty = true
		a.mu.Unlock()

		go func() {
			_ = a.Flush(context.Background())
		}()
		return
	}
	a.Touch()
}

// Touch marks the plan dirty and (re)starts the debounce timer.
func (a *Autosaver) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.dirty = true
	a.stopTimerLocked()
	a.timer = time.AfterFunc(a.delay, func() {
		_ = a.Flush(context.Background())
	})
}

// Flush cancels any pending debounce and saves now. It does nothing once
// the autosaver is closed.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.stopTimerLocked()
	a.dirty = false
	a.mu.Unlock()

	return a.saveLocked(ctx)
}

// Dirty reports whether a debounced save is pending.
func (a *Autosaver) Dirty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dirty
}

// Close stops the timer, waits for a running save and saves once more if
// there are unsaved changes. Later triggers are ignored.
func (a *Autosaver) Close(ctx context.Context) error {
	a.shutdown()

	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	dirty := a.dirty
	a.dirty = false
	a.mu.Unlock()

	if !dirty {
		return nil
	}
	return a.saveLocked(ctx)
}

// Discard closes the autosaver without saving. It returns once any running
// save has finished, so nothing is written after it.
func (a *Autosaver) Discard() {
	a.shutdown()

	a.mu.Lock()
	a.dirty = false
	a.mu.Unlock()

	a.saveMu.Lock()
	defer a.saveMu.Unlock()
}

func (a *Autosaver) shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.stopTimerLocked()
}

func (a *Autosaver) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// saveLocked writes one snapshot. The caller must hold saveMu.
func (a *Autosaver) saveLocked(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	doc := a.source.Snapshot()
	res, err := a.repo.Save(ctx, doc)
	if err != nil {
		a.mu.Lock()
		a.dirty = true
		a.mu.Unlock()

		a.logger.Error().Err(err).
			Str("plan_id", doc.ID).
			Msg("failed to save plan")
		return err
	}

	a.source.MergeSaved(res.ID, res.CreatedAt)
	a.logger.Debug().
		Str("plan_id", res.ID).
		Int("days", len(doc.Days)).
		Msg("plan saved")

	if a.onSaved != nil {
		a.onSaved(res)
	}
	return nil
}
