package itinerary

import (
	"context"
	"fmt"
	"strings"

	"github.com/voyaai/voyaai/internal/schedule"
	"github.com/voyaai/voyaai/internal/ticket"
)

func validateWaypoint(op string, wp Waypoint) (Waypoint, error) {
	wp.Name = strings.TrimSpace(wp.Name)
	if wp.Name == "" {
		return Waypoint{}, fmt.Errorf("%s: %w", op, ErrEmptyWaypoint)
	}
	return wp.clone(), nil
}

// Append adds wp at the end of the day. On an empty day wp becomes the
// pending start, unless the day already has an effective start, in which
// case that start is seeded and connected to wp.
func (e *Editor) Append(ctx context.Context, dayIndex int, wp Waypoint) error {
	wp, err := validateWaypoint("append", wp)
	if err != nil {
		return err
	}

	e.mu.Lock()
	d, err := e.dayLocked("append", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	jobs := e.appendLocked(d, dayIndex, wp)
	e.commit(ctx, Change{Kind: ChangeStructure, Day: dayIndex}, jobs, nil)
	return nil
}

func (e *Editor) appendLocked(d *Day, dayIndex int, wp Waypoint) []lookupJob {
	if len(d.stops) == 0 {
		start, ok := e.plan.EffectiveStart(dayIndex)
		if !ok {
			d.stops = []*stop{{waypoint: wp}}
			d.ensureLayout(e.width)
			if dayIndex == 0 {
				e.syncStartLocked()
			}
			return nil
		}
		d.stops = []*stop{{waypoint: start}}
	}

	last := d.stops[len(d.stops)-1]
	last.leg = e.newLeg(e.defaultMode)
	d.stops = append(d.stops, &stop{waypoint: wp})
	d.ensureLayout(e.width)
	if dayIndex == 0 {
		e.syncStartLocked()
	}

	return []lookupJob{e.jobFor(d, dayIndex, len(d.stops)-2)}
}

// InsertAt inserts wp before the waypoint currently at index. Inserting at
// the end is Append. An interior insert splits the segment it lands on into
// two segments looked up independently.
func (e *Editor) InsertAt(ctx context.Context, dayIndex, index int, wp Waypoint) error {
	wp, err := validateWaypoint("insert", wp)
	if err != nil {
		return err
	}

	e.mu.Lock()
	d, err := e.dayLocked("insert", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	n := len(d.stops)
	if index < 0 || index > n {
		e.mu.Unlock()
		return indexError("insert", ErrIndexOutOfRange, index, n+1)
	}

	var jobs []lookupJob
	switch {
	case index == n:
		jobs = e.appendLocked(d, dayIndex, wp)
	case index == 0:
		s := &stop{waypoint: wp, leg: e.newLeg(e.defaultMode)}
		d.stops = append([]*stop{s}, d.stops...)
		jobs = []lookupJob{e.jobFor(d, dayIndex, 0)}
	default:
		prev := d.stops[index-1]
		mode := e.carryMode(prev.leg.mode)
		prev.leg = e.newLeg(mode)
		s := &stop{waypoint: wp, leg: e.newLeg(mode)}
		d.stops = append(d.stops[:index], append([]*stop{s}, d.stops[index:]...)...)
		jobs = []lookupJob{e.jobFor(d, dayIndex, index-1), e.jobFor(d, dayIndex, index)}
	}

	d.clearUnpinnedTimes()
	d.ensureLayout(e.width)
	if dayIndex == 0 {
		e.syncStartLocked()
	}
	e.commit(ctx, Change{Kind: ChangeStructure, Day: dayIndex}, jobs, nil)
	return nil
}

// RemoveAt removes the waypoint at index together with its stay and layout
// slot. Removing an interior waypoint merges its two segments into a fresh
// one; removing an end drops the adjacent segment.
func (e *Editor) RemoveAt(ctx context.Context, dayIndex, index int) error {
	e.mu.Lock()
	d, err := e.dayLocked("remove", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	n := len(d.stops)
	if index < 0 || index >= n {
		e.mu.Unlock()
		return indexError("remove", ErrIndexOutOfRange, index, n)
	}

	var jobs []lookupJob
	switch {
	case n == 1:
		d.stops = nil
	case index == 0:
		d.stops = d.stops[1:]
	case index == n-1:
		d.stops = d.stops[:n-1]
		d.stops[n-2].leg = nil
	default:
		prev := d.stops[index-1]
		prev.leg = e.newLeg(e.carryMode(prev.leg.mode))
		d.stops = append(d.stops[:index], d.stops[index+1:]...)
		jobs = []lookupJob{e.jobFor(d, dayIndex, index-1)}
	}

	d.clearUnpinnedTimes()
	// Stops keep their own positions; only unplaced ones are filled.
	d.ensureLayout(e.width)
	if dayIndex == 0 {
		if len(d.stops) == 0 {
			e.plan.StartLocation = nil
		} else {
			e.syncStartLocked()
		}
	}
	e.commit(ctx, Change{Kind: ChangeStructure, Day: dayIndex}, jobs, nil)
	return nil
}

// Reorder moves the waypoint at from to to, carrying its stay and position,
// then rebuilds every segment. All lookups run in parallel; when the last
// one resolves a ChangeReorderSettled is emitted.
func (e *Editor) Reorder(ctx context.Context, dayIndex, from, to int) error {
	e.mu.Lock()
	d, err := e.dayLocked("reorder", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	n := len(d.stops)
	if from < 0 || from >= n {
		e.mu.Unlock()
		return indexError("reorder", ErrIndexOutOfRange, from, n)
	}
	if to < 0 || to >= n {
		e.mu.Unlock()
		return indexError("reorder", ErrIndexOutOfRange, to, n)
	}
	if from == to {
		e.mu.Unlock()
		return nil
	}

	moved := d.stops[from]
	rest := append(append([]*stop(nil), d.stops[:from]...), d.stops[from+1:]...)
	d.stops = append(rest[:to], append([]*stop{moved}, rest[to:]...)...)

	jobs := make([]lookupJob, 0, n-1)
	for i, s := range d.stops {
		if i == n-1 {
			s.leg = nil
			continue
		}
		s.leg = e.newLeg(e.defaultMode)
		jobs = append(jobs, e.jobFor(d, dayIndex, i))
	}

	d.clearUnpinnedTimes()
	d.ensureLayout(e.width)
	if dayIndex == 0 {
		e.syncStartLocked()
	}

	settled := func() {
		e.notify(Change{Kind: ChangeReorderSettled, Day: dayIndex})
	}
	e.commit(ctx, Change{Kind: ChangeStructure, Day: dayIndex}, jobs, settled)
	return nil
}

// ChangeMode switches a segment to mode and looks up its new cost. Flights
// are refused with ErrTicketRequired; use ApplyTicket instead.
func (e *Editor) ChangeMode(ctx context.Context, dayIndex, segmentIndex int, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	e.mu.Lock()
	d, err := e.dayLocked("change mode", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	segments := max(0, len(d.stops)-1)
	if segmentIndex < 0 || segmentIndex >= segments {
		e.mu.Unlock()
		return indexError("change mode", ErrSegmentOutOfRange, segmentIndex, segments)
	}

	l := d.stops[segmentIndex].leg
	if l.mode == mode {
		e.mu.Unlock()
		return nil
	}
	if mode == ModeFlight {
		e.mu.Unlock()
		return ErrTicketRequired
	}

	l.mode = mode
	l.distance = 0
	l.duration = 0
	l.cost = nil
	l.currency = ""
	l.details = nil
	l.revision++
	l.repairAttempted = false
	d.clearUnpinnedTimes()

	jobs := []lookupJob{e.jobFor(d, dayIndex, segmentIndex)}
	e.commit(ctx, Change{Kind: ChangeStructure, Day: dayIndex}, jobs, nil)
	return nil
}

// ApplyTicket overwrites a segment with an imported ticket. The ticket's
// times pin the segment in the schedule. Neighbouring segments whose
// endpoint was renamed are looked up again.
func (e *Editor) ApplyTicket(ctx context.Context, dayIndex, segmentIndex int, t *ticket.Ticket) error {
	if t == nil {
		return ErrInvalidTicket
	}
	if err := t.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	d, err := e.dayLocked("apply ticket", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	segments := max(0, len(d.stops)-1)
	if segmentIndex < 0 || segmentIndex >= segments {
		e.mu.Unlock()
		return indexError("apply ticket", ErrSegmentOutOfRange, segmentIndex, segments)
	}

	origin := d.stops[segmentIndex]
	destination := d.stops[segmentIndex+1]
	originRenamed := rename(&origin.waypoint, t.OriginName, t.OriginCity)
	destinationRenamed := rename(&destination.waypoint, t.DestinationName, t.DestinationCity)
	origin.waypoint.DepartureTime = t.DepartureTime
	destination.waypoint.ArrivalTime = t.ArrivalTime

	l := origin.leg
	l.mode = ModeTrain
	if t.Type == ticket.KindFlight {
		l.mode = ModeFlight
	}
	if t.DistanceKm != nil {
		l.distance = *t.DistanceKm
	}
	if minutes, ok := schedule.TicketDurationMinutes(t.DepartureTime, t.ArrivalTime); ok {
		l.duration = minutes
	}
	l.details = &Details{
		SeatInfo:      t.SeatInfo,
		DepartureTime: t.DepartureTime,
		ArrivalTime:   t.ArrivalTime,
	}
	if l.mode == ModeFlight {
		l.details.FlightNo = t.Number()
	} else {
		l.details.TrainNo = t.Number()
	}
	l.revision++
	l.repairAttempted = false

	var jobs []lookupJob
	if originRenamed && segmentIndex > 0 {
		prev := d.stops[segmentIndex-1].leg
		prev.revision++
		jobs = append(jobs, e.jobFor(d, dayIndex, segmentIndex-1))
	}
	if destinationRenamed && destination.leg != nil {
		destination.leg.revision++
		jobs = append(jobs, e.jobFor(d, dayIndex, segmentIndex+1))
	}
	if dayIndex == 0 {
		e.syncStartLocked()
	}

	e.logger.Info().
		Str("segment_id", l.id).
		Str("type", string(t.Type)).
		Str("number", t.Number()).
		Msg("ticket applied")

	e.commit(ctx, Change{Kind: ChangeTicket, Day: dayIndex}, jobs, nil)
	return nil
}

// rename replaces a waypoint's name and city. A new name invalidates the
// coordinates and address, which belonged to the old place.
func rename(wp *Waypoint, name, city string) bool {
	renamed := wp.Name != name
	wp.Name = name
	if city != "" {
		wp.City = city
	}
	if renamed {
		wp.Lat, wp.Lng = nil, nil
		wp.Address = ""
	}
	return renamed
}

// RepairCosts re-attempts lookups for booked-mode segments still holding the
// zero-cost placeholder. Each segment is attempted at most once until it is
// changed again. It returns the number of lookups started.
func (e *Editor) RepairCosts(ctx context.Context, dayIndex int) (int, error) {
	e.mu.Lock()
	d, err := e.dayLocked("repair", dayIndex)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}

	jobs := e.repairLocked(d, dayIndex)
	e.mu.Unlock()

	e.dispatch(ctx, jobs, nil)
	return len(jobs), nil
}

// RepairAll runs RepairCosts over every day.
func (e *Editor) RepairAll(ctx context.Context) int {
	e.mu.Lock()
	var jobs []lookupJob
	for i, d := range e.plan.Days {
		jobs = append(jobs, e.repairLocked(d, i)...)
	}
	e.mu.Unlock()

	e.dispatch(ctx, jobs, nil)
	return len(jobs)
}

func (e *Editor) repairLocked(d *Day, dayIndex int) []lookupJob {
	var jobs []lookupJob
	for i := 0; i < len(d.stops)-1; i++ {
		l := d.stops[i].leg
		if l.repairAttempted || !d.segment(i).NeedsRetry() {
			continue
		}
		l.repairAttempted = true
		jobs = append(jobs, e.jobFor(d, dayIndex, i))
	}
	return jobs
}
