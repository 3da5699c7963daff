package itinerary

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voyaai/voyaai/internal/layout"
	"github.com/voyaai/voyaai/internal/schedule"
)

// Document is the persisted and wire form of a plan.
type Document struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Days          []DayDocument `json:"days"`
	StartLocation *Waypoint     `json:"startLocation,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// DayDocument is the array form of a day. StayMinutes and Layout always hold
// len(Segments)+1 entries. PendingStart is set only for a day with a chosen
// departure point and no segments.
type DayDocument struct {
	DayIndex       int               `json:"dayIndex"`
	Date           string            `json:"date,omitempty"`
	City           string            `json:"city,omitempty"`
	StartTimeOfDay string            `json:"startTimeOfDay"`
	StartLocation  *Waypoint         `json:"startLocation,omitempty"`
	PendingStart   *Waypoint         `json:"pendingStart,omitempty"`
	Segments       []Segment         `json:"segments"`
	StayMinutes    []int             `json:"stayMinutes"`
	Layout         []layout.Position `json:"layout"`
}

// Document renders the plan. Unplaced stops get default grid positions for
// the given container width.
func (p *Plan) Document(containerWidth float64) *Document {
	doc := &Document{
		ID:        p.ID,
		Title:     p.Title,
		Days:      make([]DayDocument, len(p.Days)),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.StartLocation != nil {
		wp := p.StartLocation.clone()
		doc.StartLocation = &wp
	}
	for i, d := range p.Days {
		doc.Days[i] = d.Document(i, containerWidth)
	}
	return doc
}

// Document renders the day in array form.
func (d *Day) Document(index int, containerWidth float64) DayDocument {
	doc := DayDocument{
		DayIndex:       index,
		Date:           d.Date,
		City:           d.City,
		StartTimeOfDay: d.StartTime,
		Segments:       d.Segments(),
		StayMinutes:    d.StayMinutes(),
		Layout:         d.Layout(containerWidth),
	}
	if d.StartLocation != nil {
		wp := d.StartLocation.clone()
		doc.StartLocation = &wp
	}
	if d.State() == StatePendingStart {
		wp := d.stops[0].waypoint.clone()
		doc.PendingStart = &wp
	}
	return doc
}

// PlanFromDocument rebuilds a plan, repairing anything that would break the
// day invariants. The returned notes describe each repair.
func PlanFromDocument(doc *Document) (*Plan, []string) {
	p := &Plan{
		ID:        doc.ID,
		Title:     doc.Title,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if doc.StartLocation != nil {
		wp := doc.StartLocation.clone()
		p.StartLocation = &wp
	}

	var notes []string
	for i := range doc.Days {
		d, dayNotes := DayFromDocument(doc.Days[i])
		for _, n := range dayNotes {
			notes = append(notes, fmt.Sprintf("day %d: %s", i, n))
		}
		p.Days = append(p.Days, d)
	}
	if len(p.Days) == 0 {
		p.Days = []*Day{NewDay()}
		notes = append(notes, "plan had no days, added an empty one")
	}
	return p, notes
}

// DayFromDocument rebuilds a day from its array form.
func DayFromDocument(doc DayDocument) (*Day, []string) {
	var notes []string

	d := &Day{
		Date:      doc.Date,
		City:      doc.City,
		StartTime: doc.StartTimeOfDay,
	}
	if _, err := schedule.ParseHM(d.StartTime); err != nil {
		if d.StartTime != "" {
			notes = append(notes, fmt.Sprintf("start time %q replaced by %s", d.StartTime, schedule.DefaultStartTime))
		}
		d.StartTime = schedule.DefaultStartTime
	}
	if doc.StartLocation != nil {
		wp := doc.StartLocation.clone()
		d.StartLocation = &wp
	}

	switch {
	case len(doc.Segments) > 0:
		d.stops = append(d.stops, &stop{waypoint: doc.Segments[0].Origin.clone()})
		for i, seg := range doc.Segments {
			if i > 0 && doc.Segments[i-1].Destination.Name != seg.Origin.Name {
				notes = append(notes, fmt.Sprintf("segment %d origin %q relinked to %q", i, seg.Origin.Name, doc.Segments[i-1].Destination.Name))
			}
			l, legNotes := legFromSegment(seg)
			for _, n := range legNotes {
				notes = append(notes, fmt.Sprintf("segment %d: %s", i, n))
			}
			d.stops[len(d.stops)-1].leg = l
			d.stops = append(d.stops, &stop{waypoint: seg.Destination.clone()})
		}
	case doc.PendingStart != nil:
		d.stops = []*stop{{waypoint: doc.PendingStart.clone()}}
	}

	if len(d.stops) > 0 {
		if len(doc.StayMinutes) != len(d.stops) {
			notes = append(notes, fmt.Sprintf("stayMinutes length %d repaired to %d", len(doc.StayMinutes), len(d.stops)))
		}
		if len(doc.Layout) != len(d.stops) {
			notes = append(notes, fmt.Sprintf("layout length %d repaired to %d", len(doc.Layout), len(d.stops)))
		}
	}
	for i, s := range d.stops {
		if i < len(doc.StayMinutes) {
			s.stay = max(0, doc.StayMinutes[i])
		}
		if i < len(doc.Layout) && layout.Valid(doc.Layout[i]) {
			p := doc.Layout[i]
			s.position = &p
		}
	}

	return d, notes
}

func legFromSegment(seg Segment) (*leg, []string) {
	var notes []string
	l := &leg{
		id:       seg.ID,
		mode:     seg.Mode,
		distance: max(0, seg.DistanceKm),
		duration: max(0, seg.DurationMinutes),
		currency: seg.Currency,
		details:  seg.Details.clone(),
	}
	if l.id == "" {
		l.id = uuid.NewString()
		notes = append(notes, "missing id generated")
	}
	if !l.mode.Valid() {
		notes = append(notes, fmt.Sprintf("unknown mode %q replaced by %s", seg.Mode, ModeDriving))
		l.mode = ModeDriving
	}
	if seg.CostEstimate != nil {
		c := *seg.CostEstimate
		l.cost = &c
	}
	return l, notes
}
