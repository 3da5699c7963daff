// Package itinerary holds the multi-day travel plan model and the Editor that
// mutates it.
package itinerary

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mode is how a segment is travelled.
type Mode string

const (
	ModeDriving Mode = "driving"
	ModeTransit Mode = "transit"
	ModeWalking Mode = "walking"
	ModeCycling Mode = "cycling"
	ModeFlight  Mode = "flight"
	ModeTrain   Mode = "train"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeDriving, ModeTransit, ModeWalking, ModeCycling, ModeFlight, ModeTrain}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// Valid reports whether m is a supported mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeDriving, ModeTransit, ModeWalking, ModeCycling, ModeFlight, ModeTrain:
		return true
	}
	return false
}

// Ticketed reports whether segments of this mode are normally booked.
func (m Mode) Ticketed() bool {
	return m == ModeFlight || m == ModeTrain
}

// Waypoint is a named place visited during a day.
type Waypoint struct {
	Name    string   `json:"name"`
	Address string   `json:"address,omitempty"`
	City    string   `json:"city,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`

	// Set only on ticket endpoints.
	DepartureTime string `json:"departureTime,omitempty"`
	ArrivalTime   string `json:"arrivalTime,omitempty"`
}

// HasCoordinates reports whether both lat and lng are set.
func (w Waypoint) HasCoordinates() bool {
	return w.Lat != nil && w.Lng != nil
}

func (w Waypoint) clone() Waypoint {
	out := w
	if w.Lat != nil {
		lat := *w.Lat
		out.Lat = &lat
	}
	if w.Lng != nil {
		lng := *w.Lng
		out.Lng = &lng
	}
	return out
}

// Details carries booking and transit information for a segment.
type Details struct {
	FlightNo      string   `json:"flightNo,omitempty"`
	TrainNo       string   `json:"trainNo,omitempty"`
	SeatInfo      string   `json:"seatInfo,omitempty"`
	DepartureTime string   `json:"departureTime,omitempty"`
	ArrivalTime   string   `json:"arrivalTime,omitempty"`
	TransitSteps  []string `json:"transitSteps,omitempty"`
}

func (d *Details) clone() *Details {
	if d == nil {
		return nil
	}
	out := *d
	if d.TransitSteps != nil {
		out.TransitSteps = append([]string(nil), d.TransitSteps...)
	}
	return &out
}

// Segment is a directed travel edge between two consecutive waypoints.
type Segment struct {
	ID              string   `json:"id"`
	Mode            Mode     `json:"type"`
	Origin          Waypoint `json:"origin"`
	Destination     Waypoint `json:"destination"`
	DistanceKm      float64  `json:"distanceKm"`
	DurationMinutes int      `json:"durationMinutes"`
	CostEstimate    *float64 `json:"costEstimate,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	Details         *Details `json:"details,omitempty"`
}

// NeedsRetry reports a booked-mode segment still carrying the zero-cost
// placeholder left by a failed lookup.
func (s Segment) NeedsRetry() bool {
	return s.DistanceKm == 0 && s.DurationMinutes == 0 && s.Mode.Ticketed()
}

// Cost is what a CostProvider returns for one origin/destination/mode triple.
type Cost struct {
	DistanceKm      float64
	DurationMinutes int
	CostEstimate    *float64
	Currency        string
	TransitSteps    []string
}

// CostProvider computes distance and duration between two waypoints.
// Implementations may fail; the editor never propagates those failures.
type CostProvider interface {
	Lookup(ctx context.Context, origin, destination Waypoint, mode Mode, contextCity string) (Cost, error)
}

// CostProviderFunc adapts a function to CostProvider.
type CostProviderFunc func(ctx context.Context, origin, destination Waypoint, mode Mode, contextCity string) (Cost, error)

// Lookup calls f.
func (f CostProviderFunc) Lookup(ctx context.Context, origin, destination Waypoint, mode Mode, contextCity string) (Cost, error) {
	return f(ctx, origin, destination, mode, contextCity)
}

// State is a day's connectivity.
type State int

const (
	// StateEmpty is a day with no waypoints.
	StateEmpty State = iota
	// StatePendingStart is a day whose departure point is chosen but which
	// has no segments yet.
	StatePendingStart
	// StateConnected is a day with at least one segment.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePendingStart:
		return "pending_start"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Plan is a whole itinerary.
type Plan struct {
	ID            string
	Title         string
	Days          []*Day
	StartLocation *Waypoint
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPlan returns a plan with a single empty day.
func NewPlan(title string, start *Waypoint) *Plan {
	p := &Plan{
		Title: title,
		Days:  []*Day{NewDay()},
	}
	if start != nil {
		wp := start.clone()
		p.StartLocation = &wp
	}
	return p
}

// EffectiveStart returns where day i departs from when it has no waypoints
// of its own: the plan start for day 0, otherwise the day's override or the
// previous day's last waypoint.
func (p *Plan) EffectiveStart(i int) (Waypoint, bool) {
	if i < 0 || i >= len(p.Days) {
		return Waypoint{}, false
	}
	if i == 0 {
		if p.StartLocation == nil {
			return Waypoint{}, false
		}
		return p.StartLocation.clone(), true
	}
	if d := p.Days[i]; d.StartLocation != nil {
		return d.StartLocation.clone(), true
	}
	if prev := p.Days[i-1]; len(prev.stops) > 0 {
		return prev.stops[len(prev.stops)-1].waypoint.clone(), true
	}
	return Waypoint{}, false
}
