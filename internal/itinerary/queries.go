package itinerary

import (
	"time"

	"github.com/voyaai/voyaai/internal/layout"
	"github.com/voyaai/voyaai/internal/schedule"
)

// Snapshot returns the plan's document form.
func (e *Editor) Snapshot() *Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan.Document(e.width)
}

// Plan returns a deep copy of the plan.
func (e *Editor) Plan() *Plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := *e.plan
	if e.plan.StartLocation != nil {
		wp := e.plan.StartLocation.clone()
		p.StartLocation = &wp
	}
	p.Days = make([]*Day, len(e.plan.Days))
	for i, d := range e.plan.Days {
		p.Days[i] = d.clone()
	}
	return &p
}

// ID returns the plan id, empty until first saved.
func (e *Editor) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan.ID
}

// MergeSaved records the identity assigned by persistence.
func (e *Editor) MergeSaved(id string, createdAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id != "" {
		e.plan.ID = id
	}
	if !createdAt.IsZero() {
		e.plan.CreatedAt = createdAt
	}
}

// DayCount returns the number of days.
func (e *Editor) DayCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.plan.Days)
}

// State returns a day's connectivity.
func (e *Editor) State(dayIndex int) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, err := e.dayLocked("state", dayIndex)
	if err != nil {
		return StateEmpty, err
	}
	return d.State(), nil
}

// Segments returns a day's segment view.
func (e *Editor) Segments(dayIndex int) ([]Segment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, err := e.dayLocked("segments", dayIndex)
	if err != nil {
		return nil, err
	}
	return d.Segments(), nil
}

// DayDocument returns one day in array form.
func (e *Editor) DayDocument(dayIndex int) (DayDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, err := e.dayLocked("day", dayIndex)
	if err != nil {
		return DayDocument{}, err
	}
	return d.Document(dayIndex, e.width), nil
}

// Schedule computes a day's timetable and its summary from current state.
func (e *Editor) Schedule(dayIndex int) ([]schedule.Entry, schedule.Summary, error) {
	e.mu.Lock()
	d, err := e.dayLocked("schedule", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return nil, schedule.Summary{}, err
	}
	in := d.ScheduleInput()
	e.mu.Unlock()

	return schedule.Compute(in), schedule.Summarize(in), nil
}

// Layout returns a day's card positions and the canvas height they need.
func (e *Editor) Layout(dayIndex int, containerWidth float64) ([]layout.Position, float64, error) {
	if containerWidth <= 0 {
		containerWidth = e.width
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	d, err := e.dayLocked("layout", dayIndex)
	if err != nil {
		return nil, 0, err
	}
	positions := d.Layout(containerWidth)
	return positions, layout.CanvasHeight(positions), nil
}
