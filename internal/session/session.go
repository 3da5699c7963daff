// Package session keeps one live editor per plan and hands it to a single
// subject at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voyaai/voyaai/internal/itinerary"
	"github.com/voyaai/voyaai/internal/plan"
)

// DefaultLeaseTTL is how long an idle lease blocks other subjects.
const DefaultLeaseTTL = 10 * time.Minute

// ErrLeaseHeld is returned when another subject holds the plan's lease.
var ErrLeaseHeld = errors.New("plan is being edited by another user")

// LeaseError describes the conflicting lease.
type LeaseError struct {
	PlanID    string
	Holder    string
	ExpiresAt time.Time
}

func (e *LeaseError) Error() string {
	return fmt.Sprintf("%s: plan %s until %s", ErrLeaseHeld, e.PlanID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *LeaseError) Unwrap() error {
	return ErrLeaseHeld
}

// Config holds Manager configuration.
type Config struct {
	Repository plan.Repository

	// Provider computes segment costs for every editor (optional).
	Provider itinerary.CostProvider

	// LeaseTTL (default: DefaultLeaseTTL).
	LeaseTTL time.Duration

	// SaveDelay is the autosave debounce (default: plan.DefaultSaveDelay).
	SaveDelay time.Duration

	// CanvasWidth for editors (default: itinerary.DefaultCanvasWidth).
	CanvasWidth float64

	Logger zerolog.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Session is a live plan: its editor and autosaver.
type Session struct {
	editor *itinerary.Editor
	saver  *plan.Autosaver

	// guarded by Manager.mu
	holder   string
	lastUsed time.Time
}

// Editor returns the session's editor.
func (s *Session) Editor() *itinerary.Editor {
	return s.editor
}

// Flush saves the plan now.
func (s *Session) Flush(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

// Manager owns the live sessions.
type Manager struct {
	repo      plan.Repository
	provider  itinerary.CostProvider
	leaseTTL  time.Duration
	saveDelay time.Duration
	width     float64
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		repo:      cfg.Repository,
		provider:  cfg.Provider,
		leaseTTL:  ttl,
		saveDelay: cfg.SaveDelay,
		width:     cfg.CanvasWidth,
		logger:    cfg.Logger,
		now:       now,
		sessions:  make(map[string]*Session),
	}
}

func (m *Manager) open(p *itinerary.Plan) *Session {
	s := &Session{}
	s.editor = itinerary.NewEditor(p, itinerary.Config{
		Provider:    m.provider,
		Logger:      m.logger,
		CanvasWidth: m.width,
		OnChange:    func(c itinerary.Change) { s.saver.OnChange(c) },
	})
	s.saver = plan.NewAutosaver(s.editor, plan.AutosaverConfig{
		Repository: m.repo,
		Delay:      m.saveDelay,
		Logger:     m.logger,
	})
	return s
}

// Create starts a new plan leased to subject. The plan is saved once so it
// has an ID.
func (m *Manager) Create(ctx context.Context, subject, title string, start *itinerary.Waypoint) (*Session, error) {
	s := m.open(itinerary.NewPlan(title, start))
	if err := s.saver.Flush(ctx); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	id := s.editor.ID()
	m.mu.Lock()
	s.holder = subject
	s.lastUsed = m.now()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info().Str("plan_id", id).Str("subject", subject).Msg("plan created")
	return s, nil
}

// Acquire returns the live session for planID, loading it on first use.
// The lease moves to subject when it is free, already theirs, or idle for
// longer than the lease TTL.
func (m *Manager) Acquire(ctx context.Context, planID, subject string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[planID]
	if ok {
		defer m.mu.Unlock()
		return s, m.leaseLocked(planID, s, subject)
	}
	m.mu.Unlock()

	doc, err := m.repo.Load(ctx, planID)
	if err != nil {
		return nil, err
	}
	p, notes := itinerary.PlanFromDocument(doc)
	for _, n := range notes {
		m.logger.Warn().Str("plan_id", planID).Str("repair", n).Msg("repaired stored plan")
	}
	loaded := m.open(p)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have loaded it meanwhile.
	if s, ok := m.sessions[planID]; ok {
		return s, m.leaseLocked(planID, s, subject)
	}
	loaded.holder = subject
	loaded.lastUsed = m.now()
	m.sessions[planID] = loaded
	return loaded, nil
}

func (m *Manager) leaseLocked(planID string, s *Session, subject string) error {
	now := m.now()
	if s.holder != "" && s.holder != subject {
		expires := s.lastUsed.Add(m.leaseTTL)
		if now.Before(expires) {
			return &LeaseError{PlanID: planID, Holder: s.holder, ExpiresAt: expires}
		}
		m.logger.Info().
			Str("plan_id", planID).
			Str("from", s.holder).
			Str("to", subject).
			Msg("idle lease taken over")
	}
	s.holder = subject
	s.lastUsed = now
	return nil
}

// Peek returns the current document without taking the lease.
func (m *Manager) Peek(ctx context.Context, planID string) (*itinerary.Document, error) {
	m.mu.Lock()
	s, ok := m.sessions[planID]
	m.mu.Unlock()
	if ok {
		return s.editor.Snapshot(), nil
	}
	return m.repo.Load(ctx, planID)
}

// Release saves and closes the session if subject holds it.
func (m *Manager) Release(ctx context.Context, planID, subject string) error {
	m.mu.Lock()
	s, ok := m.sessions[planID]
	if !ok || s.holder != subject {
		m.mu.Unlock()
		return nil
	}
	delete(m.sessions, planID)
	m.mu.Unlock()

	return m.close(ctx, planID, s)
}

// Delete removes the plan. The caller must be able to take the lease.
func (m *Manager) Delete(ctx context.Context, planID, subject string) error {
	m.mu.Lock()
	if s, ok := m.sessions[planID]; ok {
		if err := m.leaseLocked(planID, s, subject); err != nil {
			m.mu.Unlock()
			return err
		}
		delete(m.sessions, planID)
		m.mu.Unlock()
		// No save may land after the row is gone.
		s.saver.Discard()
		_ = s.editor.Wait(ctx)
	} else {
		m.mu.Unlock()
		if _, err := m.repo.Load(ctx, planID); err != nil {
			return err
		}
	}

	if err := m.repo.Delete(ctx, planID); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	m.logger.Info().Str("plan_id", planID).Str("subject", subject).Msg("plan deleted")
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the lease TTL.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	idle := map[string]*Session{}

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.lastUsed) >= m.leaseTTL && s.editor.Pending() == 0 {
			idle[id] = s
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for id, s := range idle {
		_ = m.close(ctx, id, s)
	}
	if len(idle) > 0 {
		m.logger.Debug().Int("closed", len(idle)).Msg("swept idle sessions")
	}
	return len(idle)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Close waits for outstanding lookups and saves every live session.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for id, s := range sessions {
		if err := m.close(ctx, id, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) close(ctx context.Context, planID string, s *Session) error {
	if err := s.editor.Wait(ctx); err != nil {
		m.logger.Warn().Err(err).Str("plan_id", planID).Msg("closing session with lookups in flight")
	}
	if err := s.saver.Close(ctx); err != nil {
		return fmt.Errorf("close plan %s: %w", planID, err)
	}
	return nil
}
