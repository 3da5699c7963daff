package itinerary

import (
	"github.com/voyaai/voyaai/internal/layout"
	"github.com/voyaai/voyaai/internal/schedule"
)

// Day is an ordered list of stops. Each stop owns its waypoint, its stay,
// its canvas position and the leg leaving it; the last stop has no leg.
// Segments, stays and layout are views over the stops, so they always have
// matching lengths.
type Day struct {
	Date          string
	City          string
	StartTime     string
	StartLocation *Waypoint

	stops []*stop
}

type stop struct {
	waypoint Waypoint
	stay     int
	position *layout.Position
	leg      *leg
}

// leg is the mutable part of a segment. Its endpoints come from the
// neighbouring stops. revision changes whenever an in-flight lookup for the
// leg must no longer be written back.
type leg struct {
	id       string
	mode     Mode
	distance float64
	duration int
	cost     *float64
	currency string
	details  *Details

	revision        uint64
	repairAttempted bool
}

// NewDay returns an empty day starting at the default time.
func NewDay() *Day {
	return &Day{StartTime: schedule.DefaultStartTime}
}

// State returns the day's connectivity.
func (d *Day) State() State {
	switch len(d.stops) {
	case 0:
		return StateEmpty
	case 1:
		return StatePendingStart
	default:
		return StateConnected
	}
}

// Len is the number of waypoints.
func (d *Day) Len() int {
	return len(d.stops)
}

// Waypoints returns copies of the day's waypoints in order.
func (d *Day) Waypoints() []Waypoint {
	out := make([]Waypoint, len(d.stops))
	for i, s := range d.stops {
		out[i] = s.waypoint.clone()
	}
	return out
}

// Segments returns the segment view: one entry per consecutive stop pair.
func (d *Day) Segments() []Segment {
	if len(d.stops) < 2 {
		return []Segment{}
	}
	out := make([]Segment, 0, len(d.stops)-1)
	for i := 0; i < len(d.stops)-1; i++ {
		out = append(out, d.segment(i))
	}
	return out
}

func (d *Day) segment(i int) Segment {
	l := d.stops[i].leg
	seg := Segment{
		ID:              l.id,
		Mode:            l.mode,
		Origin:          d.stops[i].waypoint.clone(),
		Destination:     d.stops[i+1].waypoint.clone(),
		DistanceKm:      l.distance,
		DurationMinutes: l.duration,
		Currency:        l.currency,
		Details:         l.details.clone(),
	}
	if l.cost != nil {
		c := *l.cost
		seg.CostEstimate = &c
	}
	return seg
}

// StayMinutes returns one stay per waypoint. An empty day reports a single
// zero stay so the view always has len(Segments())+1 entries.
func (d *Day) StayMinutes() []int {
	if len(d.stops) == 0 {
		return []int{0}
	}
	out := make([]int, len(d.stops))
	for i, s := range d.stops {
		out[i] = s.stay
	}
	return out
}

// Layout returns one position per waypoint, filling unplaced stops from the
// default grid for the given container width.
func (d *Day) Layout(containerWidth float64) []layout.Position {
	if len(d.stops) == 0 {
		return layout.Default(1, containerWidth)
	}
	return layout.Ensure(d.positions(), len(d.stops), containerWidth)
}

// positions lists the stored positions, Unplaced where a stop has none.
func (d *Day) positions() []layout.Position {
	out := make([]layout.Position, len(d.stops))
	for i, s := range d.stops {
		out[i] = layout.Unplaced
		if s.position != nil {
			out[i] = *s.position
		}
	}
	return out
}

// ScheduleInput adapts the day for the propagation engine.
func (d *Day) ScheduleInput() schedule.Input {
	in := schedule.Input{
		StartTime: d.StartTime,
		Stays:     d.StayMinutes(),
		Legs:      make([]schedule.Leg, 0, max(0, len(d.stops)-1)),
	}
	for i := 0; i < len(d.stops)-1; i++ {
		l := d.stops[i].leg
		sl := schedule.Leg{DurationMinutes: l.duration, DistanceKm: l.distance}
		if l.details != nil {
			sl.TicketDeparture = l.details.DepartureTime
			sl.TicketArrival = l.details.ArrivalTime
		}
		in.Legs = append(in.Legs, sl)
	}
	return in
}

// Schedule computes the day's timetable.
func (d *Day) Schedule() []schedule.Entry {
	return schedule.Compute(d.ScheduleInput())
}

// contextCity is the city hint passed to cost lookups.
func (d *Day) contextCity(origin Waypoint) string {
	if d.City != "" {
		return d.City
	}
	return origin.City
}

// owns reports whether l is still linked into the day.
func (d *Day) owns(l *leg) bool {
	for _, s := range d.stops {
		if s.leg == l {
			return true
		}
	}
	return false
}

// ensureLayout places unplaced stops on the default grid and clamps the rest.
func (d *Day) ensureLayout(containerWidth float64) {
	for i, p := range layout.Ensure(d.positions(), len(d.stops), containerWidth) {
		d.stops[i].position = &p
	}
}

// clearUnpinnedTimes drops waypoint fixed times no ticket leg backs any
// more.
func (d *Day) clearUnpinnedTimes() {
	for i, s := range d.stops {
		if s.leg == nil || s.leg.details == nil || s.leg.details.DepartureTime == "" {
			s.waypoint.DepartureTime = ""
		}
		if i == 0 {
			s.waypoint.ArrivalTime = ""
			continue
		}
		if in := d.stops[i-1].leg; in == nil || in.details == nil || in.details.ArrivalTime == "" {
			s.waypoint.ArrivalTime = ""
		}
	}
}

func (d *Day) clone() *Day {
	out := &Day{
		Date:      d.Date,
		City:      d.City,
		StartTime: d.StartTime,
		stops:     make([]*stop, len(d.stops)),
	}
	if d.StartLocation != nil {
		wp := d.StartLocation.clone()
		out.StartLocation = &wp
	}
	for i, s := range d.stops {
		cs := &stop{waypoint: s.waypoint.clone(), stay: s.stay}
		if s.position != nil {
			p := *s.position
			cs.position = &p
		}
		if s.leg != nil {
			l := *s.leg
			l.details = s.leg.details.clone()
			if s.leg.cost != nil {
				c := *s.leg.cost
				l.cost = &c
			}
			cs.leg = &l
		}
		out.stops[i] = cs
	}
	return out
}
