package itinerary_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyaai/voyaai/internal/itinerary"
	"github.com/voyaai/voyaai/internal/layout"
	"github.com/voyaai/voyaai/internal/schedule"
	"github.com/voyaai/voyaai/internal/ticket"
)

// fakeProvider returns costs keyed by "Origin>Destination:mode", falling back
// to "Origin>Destination" and then to a 1 km / 1 min default.
type fakeProvider struct {
	mu    sync.Mutex
	costs map[string]itinerary.Cost
	err   error
	gate  chan struct{}
	calls []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{costs: make(map[string]itinerary.Cost)}
}

func (f *fakeProvider) Lookup(ctx context.Context, origin, destination itinerary.Waypoint, mode itinerary.Mode, _ string) (itinerary.Cost, error) {
	key := origin.Name + ">" + destination.Name

	f.mu.Lock()
	f.calls = append(f.calls, key+":"+string(mode))
	gate := f.gate
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return itinerary.Cost{}, ctx.Err()
		}
	}
	if err != nil {
		return itinerary.Cost{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.costs[key+":"+string(mode)]; ok {
		return c, nil
	}
	if c, ok := f.costs[key]; ok {
		return c, nil
	}
	return itinerary.Cost{DistanceKm: 1, DurationMinutes: 1}, nil
}

func (f *fakeProvider) set(key string, km float64, minutes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.costs[key] = itinerary.Cost{DistanceKm: km, DurationMinutes: minutes}
}

func (f *fakeProvider) hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

func (f *fakeProvider) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.gate)
	f.gate = nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func wp(name string) itinerary.Waypoint {
	return itinerary.Waypoint{Name: name}
}

func newEditor(t *testing.T, p itinerary.CostProvider, start *itinerary.Waypoint) *itinerary.Editor {
	t.Helper()
	return itinerary.NewEditor(itinerary.NewPlan("trip", start), itinerary.Config{
		Provider: p,
		Logger:   zerolog.Nop(),
	})
}

func wait(t *testing.T, e *itinerary.Editor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
}

func names(segments []itinerary.Segment) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.Origin.Name + ">" + s.Destination.Name
	}
	return out
}

func waypointNames(e *itinerary.Editor, day int) []string {
	p := e.Plan()
	out := []string{}
	for _, w := range p.Days[day].Waypoints() {
		out = append(out, w.Name)
	}
	return out
}

// build connects the given waypoints on day 0 and waits for lookups.
func build(t *testing.T, e *itinerary.Editor, stops ...string) {
	t.Helper()
	ctx := context.Background()
	for _, s := range stops {
		require.NoError(t, e.Append(ctx, 0, wp(s)))
	}
	wait(t, e)
}

func assertInvariants(t *testing.T, e *itinerary.Editor) {
	t.Helper()
	doc := e.Snapshot()
	for _, d := range doc.Days {
		assert.Len(t, d.StayMinutes, len(d.Segments)+1, "day %d stays", d.DayIndex)
		assert.Len(t, d.Layout, len(d.Segments)+1, "day %d layout", d.DayIndex)
		for i := 0; i+1 < len(d.Segments); i++ {
			assert.Equal(t, d.Segments[i].Destination.Name, d.Segments[i+1].Origin.Name, "day %d chain at %d", d.DayIndex, i)
		}
	}
}

func TestAppend_EmptyDayBecomesPendingStart(t *testing.T) {
	p := newFakeProvider()
	e := newEditor(t, p, nil)

	require.NoError(t, e.Append(context.Background(), 0, wp("Hotel")))

	state, err := e.State(0)
	require.NoError(t, err)
	assert.Equal(t, itinerary.StatePendingStart, state)
	assert.Equal(t, 0, p.callCount())

	doc := e.Snapshot()
	require.NotNil(t, doc.Days[0].PendingStart)
	assert.Equal(t, "Hotel", doc.Days[0].PendingStart.Name)
	assert.Empty(t, doc.Days[0].Segments)
	require.NotNil(t, doc.StartLocation)
	assert.Equal(t, "Hotel", doc.StartLocation.Name)
}

func TestAppend_ConnectsAndLooksUpCost(t *testing.T) {
	p := newFakeProvider()
	p.set("Hotel>Museum", 4.2, 15)
	e := newEditor(t, p, nil)

	build(t, e, "Hotel", "Museum")

	segments, err := e.Segments(0)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, itinerary.ModeDriving, segments[0].Mode)
	assert.Equal(t, 4.2, segments[0].DistanceKm)
	assert.Equal(t, 15, segments[0].DurationMinutes)
	assert.NotEmpty(t, segments[0].ID)

	state, _ := e.State(0)
	assert.Equal(t, itinerary.StateConnected, state)
	assertInvariants(t, e)
}

func TestAppend_SeedsPlanStartLocation(t *testing.T) {
	p := newFakeProvider()
	start := wp("Airport")
	e := newEditor(t, p, &start)

	build(t, e, "Hotel")

	segments, _ := e.Segments(0)
	assert.Equal(t, []string{"Airport>Hotel"}, names(segments))
}

func TestAppend_NextDaySeedsPreviousDayEnd(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B")

	day, err := e.AddDay(itinerary.DayOptions{})
	require.NoError(t, err)
	require.NoError(t, e.Append(context.Background(), day, wp("C")))
	wait(t, e)

	segments, _ := e.Segments(day)
	assert.Equal(t, []string{"B>C"}, names(segments))
}

func TestAppend_DayStartOverride(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B")

	override := wp("Station")
	day, err := e.AddDay(itinerary.DayOptions{StartLocation: &override})
	require.NoError(t, err)
	require.NoError(t, e.Append(context.Background(), day, wp("C")))
	wait(t, e)

	segments, _ := e.Segments(day)
	assert.Equal(t, []string{"Station>C"}, names(segments))
}

func TestAppend_RejectsBlankName(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	err := e.Append(context.Background(), 0, wp("  "))
	assert.ErrorIs(t, err, itinerary.ErrEmptyWaypoint)
}

func TestInsertAt_Front(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B")
	require.NoError(t, e.SetStay(0, 0, 30))

	require.NoError(t, e.InsertAt(context.Background(), 0, 0, wp("X")))
	wait(t, e)

	doc := e.Snapshot()
	assert.Equal(t, []string{"X>A", "A>B"}, names(doc.Days[0].Segments))
	assert.Equal(t, []int{0, 30, 0}, doc.Days[0].StayMinutes)
	assert.Equal(t, "X", doc.StartLocation.Name)
	assertInvariants(t, e)
}

func TestInsertAt_InteriorSplitsSegment(t *testing.T) {
	p := newFakeProvider()
	p.set("A>X", 3, 10)
	p.set("X>B", 5, 12)
	e := newEditor(t, p, nil)
	build(t, e, "A", "B")
	require.NoError(t, e.ChangeMode(context.Background(), 0, 0, itinerary.ModeTransit))
	wait(t, e)

	before, _ := e.Segments(0)

	require.NoError(t, e.InsertAt(context.Background(), 0, 1, wp("X")))
	wait(t, e)

	segments, _ := e.Segments(0)
	assert.Equal(t, []string{"A>X", "X>B"}, names(segments))
	assert.Equal(t, 3.0, segments[0].DistanceKm)
	assert.Equal(t, 12, segments[1].DurationMinutes)
	assert.Equal(t, itinerary.ModeTransit, segments[0].Mode, "split segments keep the mode")
	assert.Equal(t, itinerary.ModeTransit, segments[1].Mode)
	assert.NotEqual(t, before[0].ID, segments[0].ID)
	assert.NotEqual(t, segments[0].ID, segments[1].ID)
	assertInvariants(t, e)
}

func TestInsertAt_EndEqualsAppend(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B")

	require.NoError(t, e.InsertAt(context.Background(), 0, 2, wp("C")))
	wait(t, e)

	assert.Equal(t, []string{"A", "B", "C"}, waypointNames(e, 0))
}

func TestInsertAt_EmptyDay(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)

	require.NoError(t, e.InsertAt(context.Background(), 0, 0, wp("A")))

	state, _ := e.State(0)
	assert.Equal(t, itinerary.StatePendingStart, state)
}

func TestInsertAt_OutOfRange(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B")
	before := e.Snapshot()

	err := e.InsertAt(context.Background(), 0, 3, wp("X"))
	require.ErrorIs(t, err, itinerary.ErrIndexOutOfRange)

	var ie *itinerary.IndexError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 3, ie.Index)
	assert.Equal(t, 3, ie.Len)

	assert.Equal(t, before.Days, e.Snapshot().Days)

	err = e.InsertAt(context.Background(), 4, 0, wp("X"))
	assert.ErrorIs(t, err, itinerary.ErrDayOutOfRange)
}

func TestRemoveAt_Interior(t *testing.T) {
	p := newFakeProvider()
	p.set("A>C", 9, 21)
	e := newEditor(t, p, nil)
	build(t, e, "A", "B", "C", "D")

	require.NoError(t, e.RemoveAt(context.Background(), 0, 1))
	wait(t, e)

	segments, _ := e.Segments(0)
	assert.Equal(t, []string{"A>C", "C>D"}, names(segments))
	assert.Equal(t, 9.0, segments[0].DistanceKm)
	assertInvariants(t, e)
}

func TestRemoveAt_InteriorLookupFailure(t *testing.T) {
	p := newFakeProvider()
	e := newEditor(t, p, nil)
	build(t, e, "A", "B", "C", "D")

	p.mu.Lock()
	p.err = errors.New("provider down")
	p.mu.Unlock()

	require.NoError(t, e.RemoveAt(context.Background(), 0, 1))
	wait(t, e)

	segments, _ := e.Segments(0)
	assert.Equal(t, []string{"A>C", "C>D"}, names(segments))
	assert.Zero(t, segments[0].DistanceKm)
	assert.Zero(t, segments[0].DurationMinutes)
	assert.Equal(t, 1.0, segments[1].DistanceKm)
}

func TestRemoveAt_FirstOfTwoLeavesPendingStart(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B")

	require.NoError(t, e.RemoveAt(context.Background(), 0, 0))

	doc := e.Snapshot()
	require.NotNil(t, doc.Days[0].PendingStart)
	assert.Equal(t, "B", doc.Days[0].PendingStart.Name)
	assert.Equal(t, "B", doc.StartLocation.Name)
	assert.Len(t, doc.Days[0].StayMinutes, 1)
}

func TestRemoveAt_Ends(t *testing.T) {
	p := newFakeProvider()
	e := newEditor(t, p, nil)
	build(t, e, "A", "B", "C", "D")
	calls := p.callCount()

	require.NoError(t, e.RemoveAt(context.Background(), 0, 3))
	require.NoError(t, e.RemoveAt(context.Background(), 0, 0))
	wait(t, e)

	assert.Equal(t, calls, p.callCount(), "dropping an end segment needs no lookup")
	segments, _ := e.Segments(0)
	assert.Equal(t, []string{"B>C"}, names(segments))
	assertInvariants(t, e)
}

func TestRemoveAt_OnlyWaypoint(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A")

	require.NoError(t, e.RemoveAt(context.Background(), 0, 0))

	state, _ := e.State(0)
	assert.Equal(t, itinerary.StateEmpty, state)
	assert.Nil(t, e.Snapshot().StartLocation)

	err := e.RemoveAt(context.Background(), 0, 0)
	assert.ErrorIs(t, err, itinerary.ErrIndexOutOfRange)
}

func TestReorder(t *testing.T) {
	p := newFakeProvider()
	var mu sync.Mutex
	var changes []itinerary.ChangeKind
	e := itinerary.NewEditor(itinerary.NewPlan("trip", nil), itinerary.Config{
		Provider: p,
		Logger:   zerolog.Nop(),
		OnChange: func(c itinerary.Change) {
			mu.Lock()
			changes = append(changes, c.Kind)
			mu.Unlock()
		},
	})
	build(t, e, "A", "B", "C")
	require.NoError(t, e.SetStay(0, 0, 45))
	moved, err := e.MovePosition(0, 0, layout.Position{X: 300, Y: 600}, 0)
	require.NoError(t, err)

	before, _ := e.Segments(0)
	require.NoError(t, e.Reorder(context.Background(), 0, 0, 2))
	wait(t, e)

	assert.Equal(t, []string{"B", "C", "A"}, waypointNames(e, 0))
	doc := e.Snapshot()
	assert.Equal(t, "B", doc.StartLocation.Name)
	assert.Equal(t, []int{0, 0, 45}, doc.Days[0].StayMinutes)
	assert.Equal(t, moved, doc.Days[0].Layout[2], "position travels with the waypoint")

	for _, s := range doc.Days[0].Segments {
		for _, old := range before {
			assert.NotEqual(t, old.ID, s.ID, "every segment is rebuilt")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, changes, itinerary.ChangeReorderSettled)
	assertInvariants(t, e)
}

func TestReorder_NotDayZeroKeepsStart(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "Home", "Work")

	day, err := e.AddDay(itinerary.DayOptions{})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, e.Append(ctx, day, wp("X")))
	require.NoError(t, e.Append(ctx, day, wp("Y")))
	require.NoError(t, e.Reorder(ctx, day, 0, 2))
	wait(t, e)

	assert.Equal(t, "Home", e.Snapshot().StartLocation.Name)
	assert.Equal(t, []string{"X", "Y", "Work"}, waypointNames(e, day))
}

func TestReorder_OutOfRange(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B")

	assert.ErrorIs(t, e.Reorder(context.Background(), 0, 0, 2), itinerary.ErrIndexOutOfRange)
	assert.ErrorIs(t, e.Reorder(context.Background(), 0, -1, 0), itinerary.ErrIndexOutOfRange)
	assert.Equal(t, []string{"A", "B"}, waypointNames(e, 0))
}

func TestChangeMode(t *testing.T) {
	p := newFakeProvider()
	p.set("A>B:driving", 10, 20)
	p.set("A>B:walking", 9, 110)
	e := newEditor(t, p, nil)
	build(t, e, "A", "B")

	require.NoError(t, e.ChangeMode(context.Background(), 0, 0, itinerary.ModeWalking))
	wait(t, e)

	segments, _ := e.Segments(0)
	assert.Equal(t, itinerary.ModeWalking, segments[0].Mode)
	assert.Equal(t, 110, segments[0].DurationMinutes)
}

func TestChangeMode_SameModeIsNoop(t *testing.T) {
	p := newFakeProvider()
	e := newEditor(t, p, nil)
	build(t, e, "A", "B")
	calls := p.callCount()

	require.NoError(t, e.ChangeMode(context.Background(), 0, 0, itinerary.ModeDriving))
	wait(t, e)

	assert.Equal(t, calls, p.callCount())
}

func TestChangeMode_FlightRequiresTicket(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B")
	before, _ := e.Segments(0)

	err := e.ChangeMode(context.Background(), 0, 0, itinerary.ModeFlight)
	assert.ErrorIs(t, err, itinerary.ErrTicketRequired)

	after, _ := e.Segments(0)
	assert.Equal(t, before, after)
}

func TestChangeMode_Errors(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A")

	assert.ErrorIs(t, e.ChangeMode(context.Background(), 0, 0, itinerary.ModeTrain), itinerary.ErrSegmentOutOfRange)
	assert.ErrorIs(t, e.ChangeMode(context.Background(), 0, 0, itinerary.Mode("boat")), itinerary.ErrUnknownMode)
}

func TestApplyTicket(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "Home", "Airport", "Hotel")
	require.NoError(t, e.SetStay(0, 1, 30))

	km := 1100.0
	err := e.ApplyTicket(context.Background(), 0, 1, &ticket.Ticket{
		Type:            ticket.KindFlight,
		OriginName:      "Airport",
		DestinationName: "Chengdu Tianfu",
		DestinationCity: "Chengdu",
		DepartureTime:   "10:00",
		ArrivalTime:     "12:30",
		FlightNo:        "CA1234",
		SeatInfo:        "32A",
		DistanceKm:      &km,
	})
	require.NoError(t, err)
	wait(t, e)

	segments, _ := e.Segments(0)
	require.Len(t, segments, 2)
	seg := segments[1]
	assert.Equal(t, itinerary.ModeFlight, seg.Mode)
	assert.Equal(t, 1100.0, seg.DistanceKm)
	assert.Equal(t, 150, seg.DurationMinutes)
	require.NotNil(t, seg.Details)
	assert.Equal(t, "CA1234", seg.Details.FlightNo)
	assert.Equal(t, "32A", seg.Details.SeatInfo)
	assert.Equal(t, "10:00", seg.Origin.DepartureTime)
	assert.Equal(t, "Chengdu Tianfu", seg.Destination.Name)
	assert.Equal(t, "Chengdu", seg.Destination.City)
	assert.Equal(t, "12:30", seg.Destination.ArrivalTime)
	assertInvariants(t, e)

	entries, _, err := e.Schedule(0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 600, entries[1].DepartureMinutes)
	assert.True(t, entries[1].Pinned)
	assert.Equal(t, 750, entries[2].ArrivalMinutes)
}

func TestFixedTimesClearedWithTicketLeg(t *testing.T) {
	trainTicket := &ticket.Ticket{
		Type:            ticket.KindTrain,
		OriginName:      "B",
		DestinationName: "C",
		DepartureTime:   "10:00",
		ArrivalTime:     "11:00",
		TrainNo:         "G1",
	}

	tests := []struct {
		name string
		edit func(ctx context.Context, e *itinerary.Editor) error
	}{
		{"remove interior", func(ctx context.Context, e *itinerary.Editor) error { return e.RemoveAt(ctx, 0, 2) }},
		{"reorder", func(ctx context.Context, e *itinerary.Editor) error { return e.Reorder(ctx, 0, 3, 0) }},
		{"split", func(ctx context.Context, e *itinerary.Editor) error { return e.InsertAt(ctx, 0, 2, wp("X")) }},
		{"change mode", func(ctx context.Context, e *itinerary.Editor) error {
			return e.ChangeMode(ctx, 0, 1, itinerary.ModeDriving)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEditor(t, newFakeProvider(), nil)
			build(t, e, "A", "B", "C", "D")
			require.NoError(t, e.ApplyTicket(ctx, 0, 1, trainTicket))
			wait(t, e)

			require.NoError(t, tt.edit(ctx, e))
			wait(t, e)

			for _, seg := range e.Snapshot().Days[0].Segments {
				assert.Empty(t, seg.Origin.DepartureTime, "%s>%s", seg.Origin.Name, seg.Destination.Name)
				assert.Empty(t, seg.Destination.ArrivalTime, "%s>%s", seg.Origin.Name, seg.Destination.Name)
			}
			assertInvariants(t, e)
		})
	}
}

func TestFixedTimesKeptWhenTicketLegSurvives(t *testing.T) {
	ctx := context.Background()
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B", "C", "D")
	require.NoError(t, e.ApplyTicket(ctx, 0, 1, &ticket.Ticket{
		Type:            ticket.KindTrain,
		OriginName:      "B",
		DestinationName: "C",
		DepartureTime:   "10:00",
		ArrivalTime:     "11:00",
	}))
	require.NoError(t, e.RemoveAt(ctx, 0, 3))
	wait(t, e)

	segments, _ := e.Segments(0)
	require.Len(t, segments, 2)
	assert.Equal(t, "10:00", segments[1].Origin.DepartureTime)
	assert.Equal(t, "11:00", segments[1].Destination.ArrivalTime)
}

func TestApplyTicket_Rejected(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B")
	before, _ := e.Segments(0)

	err := e.ApplyTicket(context.Background(), 0, 0, &ticket.Ticket{Type: ticket.KindUnknown, Error: "not a ticket"})

	var pe *ticket.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "not a ticket", pe.Reason)
	after, _ := e.Segments(0)
	assert.Equal(t, before, after)

	err = e.ApplyTicket(context.Background(), 0, 1, &ticket.Ticket{Type: ticket.KindTrain, OriginName: "A", DestinationName: "B"})
	assert.ErrorIs(t, err, itinerary.ErrSegmentOutOfRange)
}

func TestApplyTicket_EagerChange(t *testing.T) {
	var got []itinerary.Change
	var mu sync.Mutex
	e := itinerary.NewEditor(itinerary.NewPlan("trip", nil), itinerary.Config{
		Logger: zerolog.Nop(),
		OnChange: func(c itinerary.Change) {
			mu.Lock()
			got = append(got, c)
			mu.Unlock()
		},
	})
	build(t, e, "A", "B")

	require.NoError(t, e.ApplyTicket(context.Background(), 0, 0, &ticket.Ticket{
		Type: ticket.KindTrain, OriginName: "A", DestinationName: "B", TrainNo: "G7",
	}))

	mu.Lock()
	defer mu.Unlock()
	last := got[len(got)-1]
	assert.Equal(t, itinerary.ChangeTicket, last.Kind)
	assert.True(t, last.Kind.Eager())
}

func TestStaleLookup_DiscardedAfterSplit(t *testing.T) {
	p := newFakeProvider()
	p.set("A>B", 100, 100)
	p.set("A>X", 10, 10)
	p.set("X>B", 20, 20)
	e := newEditor(t, p, nil)
	build(t, e, "A")

	p.hold()
	ctx := context.Background()
	require.NoError(t, e.Append(ctx, 0, wp("B")))
	require.NoError(t, e.InsertAt(ctx, 0, 1, wp("X")))
	assert.Equal(t, 3, e.Pending())
	p.release()
	wait(t, e)

	segments, _ := e.Segments(0)
	assert.Equal(t, []string{"A>X", "X>B"}, names(segments))
	assert.Equal(t, 10.0, segments[0].DistanceKm)
	assert.Equal(t, 20.0, segments[1].DistanceKm)
}

func TestInFlightLookup_FollowsShiftedSegment(t *testing.T) {
	p := newFakeProvider()
	p.set("A>B", 100, 100)
	p.set("X>A", 5, 5)
	e := newEditor(t, p, nil)
	build(t, e, "A")

	p.hold()
	ctx := context.Background()
	require.NoError(t, e.Append(ctx, 0, wp("B")))
	require.NoError(t, e.InsertAt(ctx, 0, 0, wp("X")))
	assert.Equal(t, 2, e.Pending())
	p.release()
	wait(t, e)

	segments, _ := e.Segments(0)
	require.Equal(t, []string{"X>A", "A>B"}, names(segments))
	assert.Equal(t, 5.0, segments[0].DistanceKm)
	assert.Equal(t, 100.0, segments[1].DistanceKm, "lookup lands on its segment after the index shift")
	assert.Equal(t, 100, segments[1].DurationMinutes)
}

func TestStaleLookup_DiscardedAfterReorder(t *testing.T) {
	p := newFakeProvider()
	p.set("A>B", 100, 100)
	p.set("B>C", 200, 200)
	p.set("B>A", 7, 7)
	p.set("A>C", 8, 8)
	e := newEditor(t, p, nil)
	build(t, e, "A")

	p.hold()
	ctx := context.Background()
	require.NoError(t, e.Append(ctx, 0, wp("B")))
	require.NoError(t, e.Append(ctx, 0, wp("C")))
	require.NoError(t, e.Reorder(ctx, 0, 1, 0))
	p.release()
	wait(t, e)

	segments, _ := e.Segments(0)
	assert.Equal(t, []string{"B>A", "A>C"}, names(segments))
	assert.Equal(t, 7.0, segments[0].DistanceKm)
	assert.Equal(t, 8.0, segments[1].DistanceKm)
}

func TestStaleLookup_DiscardedAfterModeChange(t *testing.T) {
	p := newFakeProvider()
	p.set("A>B:driving", 50, 50)
	p.set("A>B:train", 60, 30)
	e := newEditor(t, p, nil)
	build(t, e, "A")

	p.hold()
	ctx := context.Background()
	require.NoError(t, e.Append(ctx, 0, wp("B")))
	require.NoError(t, e.ChangeMode(ctx, 0, 0, itinerary.ModeTrain))
	p.release()
	wait(t, e)

	segments, _ := e.Segments(0)
	assert.Equal(t, itinerary.ModeTrain, segments[0].Mode)
	assert.Equal(t, 60.0, segments[0].DistanceKm)
	assert.Equal(t, 30, segments[0].DurationMinutes)
}

func TestStaleLookup_DiscardedAfterTicket(t *testing.T) {
	p := newFakeProvider()
	p.set("A>B", 50, 50)
	e := newEditor(t, p, nil)
	build(t, e, "A")

	p.hold()
	ctx := context.Background()
	require.NoError(t, e.Append(ctx, 0, wp("B")))
	require.NoError(t, e.ApplyTicket(ctx, 0, 0, &ticket.Ticket{
		Type: ticket.KindTrain, OriginName: "A", DestinationName: "B",
		DepartureTime: "2025-04-01 09:00", ArrivalTime: "2025-04-01 13:15",
	}))
	p.release()
	wait(t, e)

	segments, _ := e.Segments(0)
	assert.Equal(t, 255, segments[0].DurationMinutes)
	assert.Zero(t, segments[0].DistanceKm)
}

func TestRepairCosts(t *testing.T) {
	p := newFakeProvider()
	e := newEditor(t, p, nil)
	build(t, e, "A")

	p.mu.Lock()
	p.err = errors.New("timeout")
	p.mu.Unlock()
	ctx := context.Background()
	require.NoError(t, e.Append(ctx, 0, wp("B")))
	require.NoError(t, e.ChangeMode(ctx, 0, 0, itinerary.ModeTrain))
	require.NoError(t, e.Append(ctx, 0, wp("C")))
	wait(t, e)

	segments, _ := e.Segments(0)
	assert.True(t, segments[0].NeedsRetry())
	assert.False(t, segments[1].NeedsRetry(), "driving placeholders are not flagged")

	p.mu.Lock()
	p.err = nil
	p.costs["A>B"] = itinerary.Cost{DistanceKm: 320, DurationMinutes: 120}
	p.mu.Unlock()

	started, err := e.RepairCosts(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	wait(t, e)

	segments, _ = e.Segments(0)
	assert.Equal(t, 320.0, segments[0].DistanceKm)

	started, err = e.RepairCosts(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, started)
}

func TestRepairCosts_AttemptsOnce(t *testing.T) {
	p := newFakeProvider()
	p.err = errors.New("distance too short")
	e := newEditor(t, p, nil)
	build(t, e, "A", "B")
	require.NoError(t, e.ChangeMode(context.Background(), 0, 0, itinerary.ModeTrain))
	wait(t, e)

	assert.Equal(t, 1, e.RepairAll(context.Background()))
	wait(t, e)
	assert.Equal(t, 0, e.RepairAll(context.Background()))
}

func TestMovePosition(t *testing.T) {
	p := newFakeProvider()
	e := newEditor(t, p, nil)
	build(t, e, "A", "B")
	calls := p.callCount()

	pos, err := e.MovePosition(0, 1, layout.Position{X: 5000, Y: 2}, 1000)
	require.NoError(t, err)
	assert.Equal(t, layout.Position{X: 776, Y: 24}, pos)

	positions, height, err := e.Layout(0, 1000)
	require.NoError(t, err)
	assert.Equal(t, pos, positions[1])
	assert.Equal(t, layout.DefaultHeight, height)
	assert.Equal(t, calls, p.callCount())

	_, err = e.MovePosition(0, 2, layout.Position{}, 1000)
	assert.ErrorIs(t, err, itinerary.ErrIndexOutOfRange)
}

func TestInsertAt_KeepsDraggedPositions(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B", "C")
	dragged, err := e.MovePosition(0, 2, layout.Position{X: 500, Y: 600}, 1000)
	require.NoError(t, err)

	require.NoError(t, e.InsertAt(context.Background(), 0, 1, wp("X")))
	wait(t, e)

	positions, _, err := e.Layout(0, 1000)
	require.NoError(t, err)
	require.Len(t, positions, 4)
	assert.Equal(t, dragged, positions[3], "dragged card moves with its stop")
	assert.Equal(t, layout.Default(4, 1000)[1], positions[1], "new stop takes its grid slot")
}

func TestResetLayout(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B", "C")
	_, err := e.MovePosition(0, 0, layout.Position{X: 500, Y: 900}, 1000)
	require.NoError(t, err)

	positions, err := e.ResetLayout(0, 1000)
	require.NoError(t, err)
	assert.Equal(t, layout.Default(3, 1000), positions)
}

func TestSettings(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	build(t, e, "A", "B")

	require.NoError(t, e.SetStartTime(0, "7:05"))
	require.ErrorIs(t, e.SetStartTime(0, "7am"), schedule.ErrInvalidTime)
	require.NoError(t, e.SetStay(0, 0, -20))
	require.NoError(t, e.SetDate(0, "2025-10-01"))
	require.ErrorIs(t, e.SetDate(0, "01/10/2025"), itinerary.ErrInvalidDate)
	e.SetTitle("  Sichuan  ")

	doc := e.Snapshot()
	assert.Equal(t, "Sichuan", doc.Title)
	assert.Equal(t, "07:05", doc.Days[0].StartTimeOfDay)
	assert.Equal(t, 0, doc.Days[0].StayMinutes[0])

	day, err := e.AddDay(itinerary.DayOptions{})
	require.NoError(t, err)
	doc = e.Snapshot()
	assert.Equal(t, "2025-10-02", doc.Days[day].Date)
	assert.Equal(t, "08:00", doc.Days[day].StartTimeOfDay)

	require.NoError(t, e.RemoveDay(day))
	assert.ErrorIs(t, e.RemoveDay(0), itinerary.ErrLastDay)
	assert.ErrorIs(t, e.RemoveDay(3), itinerary.ErrDayOutOfRange)
}

func TestAddDay_Options(t *testing.T) {
	e := newEditor(t, newFakeProvider(), nil)
	require.NoError(t, e.SetDate(0, "2025-10-01"))
	require.NoError(t, e.SetCity(0, "Chengdu"))

	tests := []struct {
		name    string
		opts    itinerary.DayOptions
		wantErr error
		date    string
		city    string
		start   string
	}{
		{"inherits", itinerary.DayOptions{}, nil, "2025-10-02", "Chengdu", "08:00"},
		{"explicit", itinerary.DayOptions{Date: "2025-12-24", City: " Lhasa ", StartTime: "7:05"}, nil, "2025-12-24", "Lhasa", "07:05"},
		{"bad date", itinerary.DayOptions{Date: "24/12"}, itinerary.ErrInvalidDate, "", "", ""},
		{"bad start time", itinerary.DayOptions{StartTime: "noon"}, schedule.ErrInvalidTime, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := e.DayCount()
			day, err := e.AddDay(tt.opts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, e.DayCount(), "no day added")
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { require.NoError(t, e.RemoveDay(day)) })

			dd, err := e.DayDocument(day)
			require.NoError(t, err)
			assert.Equal(t, tt.date, dd.Date)
			assert.Equal(t, tt.city, dd.City)
			assert.Equal(t, tt.start, dd.StartTimeOfDay)
		})
	}
}

func TestMergeSaved(t *testing.T) {
	e := newEditor(t, nil, nil)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	e.MergeSaved("plan-1", created)

	doc := e.Snapshot()
	assert.Equal(t, "plan-1", doc.ID)
	assert.Equal(t, created, doc.CreatedAt)
}

func TestNoProviderKeepsPlaceholders(t *testing.T) {
	e := newEditor(t, nil, nil)
	build(t, e, "A", "B")

	segments, _ := e.Segments(0)
	assert.Zero(t, segments[0].DistanceKm)
	assert.Zero(t, e.Pending())
}

func TestWait(t *testing.T) {
	p := newFakeProvider()
	e := newEditor(t, p, nil)
	build(t, e, "A")

	require.NoError(t, e.Wait(context.Background()), "nothing in flight")

	p.hold()
	require.NoError(t, e.Append(context.Background(), 0, wp("B")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Wait(ctx), context.Canceled)
	assert.Equal(t, 1, e.Pending())
	p.release()
	wait(t, e)
	assert.Zero(t, e.Pending())

	// Waiters and new lookups may overlap freely.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				short, cancel := context.WithTimeout(context.Background(), time.Millisecond)
				_ = e.Wait(short)
				cancel()
			}
		}
	}()
	for _, name := range []string{"C", "D", "E", "F"} {
		require.NoError(t, e.Append(context.Background(), 0, wp(name)))
	}
	wait(t, e)
	close(stop)
	wg.Wait()

	segments, _ := e.Segments(0)
	assert.Len(t, segments, 5)
	assert.Zero(t, e.Pending())
}
