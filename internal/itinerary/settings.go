package itinerary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voyaai/voyaai/internal/layout"
	"github.com/voyaai/voyaai/internal/schedule"
)

const dateLayout = "2006-01-02"

// SetStartTime sets the day's departure time ("HH:MM").
func (e *Editor) SetStartTime(dayIndex int, hm string) error {
	minutes, err := schedule.ParseHM(hm)
	if err != nil {
		return err
	}

	e.mu.Lock()
	d, err := e.dayLocked("set start time", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	d.StartTime = fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
	e.commit(context.Background(), Change{Kind: ChangeSettings, Day: dayIndex}, nil, nil)
	return nil
}

// SetStay sets the dwell time at a waypoint. Negative values are stored as 0.
func (e *Editor) SetStay(dayIndex, index, minutes int) error {
	e.mu.Lock()
	d, err := e.dayLocked("set stay", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if index < 0 || index >= len(d.stops) {
		e.mu.Unlock()
		return indexError("set stay", ErrIndexOutOfRange, index, len(d.stops))
	}
	d.stops[index].stay = max(0, minutes)
	e.commit(context.Background(), Change{Kind: ChangeSettings, Day: dayIndex}, nil, nil)
	return nil
}

// SetDate sets the day's calendar date (YYYY-MM-DD). An empty string clears it.
func (e *Editor) SetDate(dayIndex int, date string) error {
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := time.Parse(dateLayout, date); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDate, date)
		}
	}

	e.mu.Lock()
	d, err := e.dayLocked("set date", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	d.Date = date
	e.commit(context.Background(), Change{Kind: ChangeSettings, Day: dayIndex}, nil, nil)
	return nil
}

// SetCity sets the city hint used for the day's cost lookups.
func (e *Editor) SetCity(dayIndex int, city string) error {
	e.mu.Lock()
	d, err := e.dayLocked("set city", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	d.City = strings.TrimSpace(city)
	e.commit(context.Background(), Change{Kind: ChangeSettings, Day: dayIndex}, nil, nil)
	return nil
}

// SetTitle renames the plan.
func (e *Editor) SetTitle(title string) {
	e.mu.Lock()
	e.plan.Title = strings.TrimSpace(title)
	e.commit(context.Background(), Change{Kind: ChangeSettings, Day: -1}, nil, nil)
}

// DayOptions configures a new day. Empty fields inherit: the date follows
// the previous day's, the city is copied and the start time is the default.
type DayOptions struct {
	// StartLocation overrides where the day departs from.
	StartLocation *Waypoint
	Date          string
	City          string
	StartTime     string
}

// AddDay appends an empty day and returns its index. Invalid options are
// rejected before the day is added.
func (e *Editor) AddDay(opts DayOptions) (int, error) {
	d := NewDay()
	if date := strings.TrimSpace(opts.Date); date != "" {
		if _, err := time.Parse(dateLayout, date); err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDate, date)
		}
		d.Date = date
	}
	if opts.StartTime != "" {
		minutes, err := schedule.ParseHM(opts.StartTime)
		if err != nil {
			return 0, err
		}
		d.StartTime = fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
	}
	d.City = strings.TrimSpace(opts.City)
	if opts.StartLocation != nil {
		wp := opts.StartLocation.clone()
		d.StartLocation = &wp
	}

	e.mu.Lock()
	prev := e.plan.Days[len(e.plan.Days)-1]
	if d.Date == "" {
		if t, err := time.Parse(dateLayout, prev.Date); err == nil {
			d.Date = t.AddDate(0, 0, 1).Format(dateLayout)
		}
	}
	if d.City == "" {
		d.City = prev.City
	}

	e.plan.Days = append(e.plan.Days, d)
	index := len(e.plan.Days) - 1
	e.commit(context.Background(), Change{Kind: ChangeStructure, Day: index}, nil, nil)
	return index, nil
}

// RemoveDay deletes a day. The last remaining day cannot be removed.
func (e *Editor) RemoveDay(dayIndex int) error {
	e.mu.Lock()
	if _, err := e.dayLocked("remove day", dayIndex); err != nil {
		e.mu.Unlock()
		return err
	}
	if len(e.plan.Days) == 1 {
		e.mu.Unlock()
		return ErrLastDay
	}

	e.plan.Days = append(e.plan.Days[:dayIndex], e.plan.Days[dayIndex+1:]...)
	if dayIndex == 0 {
		e.syncStartLocked()
	}
	e.commit(context.Background(), Change{Kind: ChangeStructure, Day: -1}, nil, nil)
	return nil
}

// MovePosition stores a dragged card position, clamped to the container.
// It never touches segments. A non-positive width uses the editor default.
func (e *Editor) MovePosition(dayIndex, index int, pos layout.Position, containerWidth float64) (layout.Position, error) {
	if containerWidth <= 0 {
		containerWidth = e.width
	}

	e.mu.Lock()
	d, err := e.dayLocked("move", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return layout.Position{}, err
	}
	if index < 0 || index >= len(d.stops) {
		e.mu.Unlock()
		return layout.Position{}, indexError("move", ErrIndexOutOfRange, index, len(d.stops))
	}

	p := layout.Clamp(pos, containerWidth)
	d.stops[index].position = &p
	e.commit(context.Background(), Change{Kind: ChangeLayout, Day: dayIndex}, nil, nil)
	return p, nil
}

// ResetLayout replaces every card position with the default grid.
func (e *Editor) ResetLayout(dayIndex int, containerWidth float64) ([]layout.Position, error) {
	if containerWidth <= 0 {
		containerWidth = e.width
	}

	e.mu.Lock()
	d, err := e.dayLocked("reset layout", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	positions := layout.Reset(len(d.stops), containerWidth)
	for i, s := range d.stops {
		p := positions[i]
		s.position = &p
	}
	out := d.Layout(containerWidth)
	e.commit(context.Background(), Change{Kind: ChangeLayout, Day: dayIndex}, nil, nil)
	return out, nil
}
