// Package calendar exports an itinerary as an iCalendar feed.
package calendar

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/voyaai/voyaai/internal/itinerary"
	"github.com/voyaai/voyaai/internal/schedule"
)

const productID = "-//VoyaAI//Itinerary//EN"

// Options controls an export.
type Options struct {
	// Location the day clocks are in (default: UTC).
	Location *time.Location

	// Now stamps DTSTAMP (default: time.Now).
	Now func() time.Time
}

// Export renders one VEVENT per segment of every dated day. An event runs
// from the origin's departure to the destination's arrival as computed by
// the day schedule; dated ticket times take precedence. Undated days are
// skipped.
func Export(doc *itinerary.Document, opts Options) (string, int) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	stamp := now()

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if doc.Title != "" {
		cal.SetXWRCalName(doc.Title)
	}
	cal.SetXWRTimezone(loc.String())

	events := 0
	for _, dd := range doc.Days {
		date, err := time.ParseInLocation("2006-01-02", dd.Date, loc)
		if err != nil || len(dd.Segments) == 0 {
			continue
		}
		day, _ := itinerary.DayFromDocument(dd)
		entries := day.Schedule()

		for i, seg := range dd.Segments {
			start := date.Add(time.Duration(entries[i].DepartureMinutes) * time.Minute)
			end := date.Add(time.Duration(entries[i+1].ArrivalMinutes) * time.Minute)
			if seg.Details != nil {
				if t, ok := absolute(seg.Details.DepartureTime, loc); ok {
					start = t
				}
				if t, ok := absolute(seg.Details.ArrivalTime, loc); ok {
					end = t
				}
			}
			if end.Before(start) {
				end = start
			}

			uid := seg.ID
			if uid == "" {
				uid = fmt.Sprintf("%s-%d-%d", doc.ID, dd.DayIndex, i)
			}
			ev := cal.AddEvent(uid + "@voyaai")
			ev.SetDtStampTime(stamp)
			if !doc.UpdatedAt.IsZero() {
				ev.SetModifiedAt(doc.UpdatedAt)
			}
			ev.SetStartAt(start)
			ev.SetEndAt(end)
			ev.SetSummary(summary(seg))
			ev.SetLocation(place(seg.Origin))
			ev.SetDescription(description(seg))
			events++
		}
	}

	return cal.Serialize(), events
}

func absolute(s string, loc *time.Location) (time.Time, bool) {
	in, err := schedule.Resolve(s)
	if err != nil || !in.HasDate {
		return time.Time{}, false
	}
	at := in.At
	// Layouts without a zone parse as UTC wall time.
	if at.Location() == time.UTC && !strings.HasSuffix(strings.TrimSpace(s), "Z") {
		at = time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), 0, 0, loc)
	}
	return at, true
}

func summary(seg itinerary.Segment) string {
	s := fmt.Sprintf("%s → %s", seg.Origin.Name, seg.Destination.Name)
	if seg.Details != nil {
		if n := seg.Details.FlightNo + seg.Details.TrainNo; n != "" {
			return fmt.Sprintf("%s %s", n, s)
		}
	}
	return fmt.Sprintf("%s (%s)", s, seg.Mode)
}

func place(wp itinerary.Waypoint) string {
	parts := []string{wp.Name}
	if wp.Address != "" {
		parts = append(parts, wp.Address)
	}
	if wp.City != "" {
		parts = append(parts, wp.City)
	}
	return strings.Join(parts, ", ")
}

func description(seg itinerary.Segment) string {
	var lines []string
	lines = append(lines, "Mode: "+string(seg.Mode))
	if seg.DistanceKm > 0 {
		lines = append(lines, fmt.Sprintf("Distance: %.1f km", seg.DistanceKm))
	}
	if seg.DurationMinutes > 0 {
		lines = append(lines, fmt.Sprintf("Duration: %d min", seg.DurationMinutes))
	}
	if seg.CostEstimate != nil {
		lines = append(lines, fmt.Sprintf("Estimated cost: %.2f %s", *seg.CostEstimate, seg.Currency))
	}
	if d := seg.Details; d != nil {
		if d.SeatInfo != "" {
			lines = append(lines, "Seat: "+d.SeatInfo)
		}
		for _, step := range d.TransitSteps {
			lines = append(lines, "- "+step)
		}
	}
	return strings.Join(lines, "\n")
}
