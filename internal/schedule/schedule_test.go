package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyaai/voyaai/internal/schedule"
)

func TestCompute_NoLegs(t *testing.T) {
	entries := schedule.Compute(schedule.Input{
		StartTime: "09:15",
		Stays:     []int{45},
	})

	require.Len(t, entries, 1)
	assert.Equal(t, schedule.Entry{ArrivalMinutes: 555, StayMinutes: 45, DepartureMinutes: 600}, entries[0])
}

func TestCompute_PropagatesStaysAndDurations(t *testing.T) {
	entries := schedule.Compute(schedule.Input{
		StartTime: "08:00",
		Stays:     []int{30, 60, 0},
		Legs: []schedule.Leg{
			{DurationMinutes: 20},
			{DurationMinutes: 45},
		},
	})

	require.Len(t, entries, 3)
	assert.Equal(t, 480, entries[0].ArrivalMinutes)
	assert.Equal(t, 510, entries[0].DepartureMinutes)
	assert.Equal(t, 530, entries[1].ArrivalMinutes)
	assert.Equal(t, 590, entries[1].DepartureMinutes)
	assert.Equal(t, 635, entries[2].ArrivalMinutes)
	assert.Equal(t, 635, entries[2].DepartureMinutes)
}

func TestCompute_TicketPinnedLeg(t *testing.T) {
	entries := schedule.Compute(schedule.Input{
		StartTime: "08:00",
		Stays:     []int{30, 0},
		Legs: []schedule.Leg{
			{DurationMinutes: 90, TicketDeparture: "10:00", TicketArrival: "12:30"},
		},
	})

	require.Len(t, entries, 2)
	assert.Equal(t, 480, entries[0].ArrivalMinutes)
	assert.Equal(t, 30, entries[0].StayMinutes)
	assert.Equal(t, 600, entries[0].DepartureMinutes)
	assert.True(t, entries[0].Pinned)
	assert.False(t, entries[0].Conflict)
	assert.Equal(t, 750, entries[1].ArrivalMinutes)
}

func TestCompute_TicketDepartureEarlierThanArrival(t *testing.T) {
	entries := schedule.Compute(schedule.Input{
		StartTime: "08:00",
		Stays:     []int{0, 0, 0},
		Legs: []schedule.Leg{
			{DurationMinutes: 180},
			{TicketDeparture: "2025-05-01 09:00", TicketArrival: "2025-05-01 11:00"},
		},
	})

	require.Len(t, entries, 3)
	assert.Equal(t, 660, entries[1].ArrivalMinutes)
	assert.Equal(t, 540, entries[1].DepartureMinutes, "ticket time wins even when it runs backwards")
	assert.True(t, entries[1].Conflict)
	assert.Equal(t, 660, entries[2].ArrivalMinutes)
}

func TestCompute_OnlyOneTicketTimeIsNotPinned(t *testing.T) {
	entries := schedule.Compute(schedule.Input{
		StartTime: "08:00",
		Stays:     []int{10, 0},
		Legs:      []schedule.Leg{{DurationMinutes: 50, TicketDeparture: "10:00"}},
	})

	assert.False(t, entries[0].Pinned)
	assert.Equal(t, 490, entries[0].DepartureMinutes)
	assert.Equal(t, 540, entries[1].ArrivalMinutes)
}

func TestCompute_ClampsNegativeValues(t *testing.T) {
	entries := schedule.Compute(schedule.Input{
		StartTime: "08:00",
		Stays:     []int{-30, -5},
		Legs:      []schedule.Leg{{DurationMinutes: -10}},
	})

	assert.Equal(t, 0, entries[0].StayMinutes)
	assert.Equal(t, 480, entries[0].DepartureMinutes)
	assert.Equal(t, 480, entries[1].ArrivalMinutes)
	assert.Equal(t, 0, entries[1].StayMinutes)
}

func TestCompute_ShortStaysCountAsZero(t *testing.T) {
	entries := schedule.Compute(schedule.Input{
		StartTime: "08:00",
		Legs:      []schedule.Leg{{DurationMinutes: 15}},
	})

	require.Len(t, entries, 2)
	assert.Equal(t, 495, entries[1].ArrivalMinutes)
}

func TestCompute_InvalidStartFallsBack(t *testing.T) {
	entries := schedule.Compute(schedule.Input{StartTime: "soon"})
	assert.Equal(t, 480, entries[0].ArrivalMinutes)
}

func TestCompute_RunsPastMidnightWithoutWrapping(t *testing.T) {
	entries := schedule.Compute(schedule.Input{
		StartTime: "22:00",
		Stays:     []int{60, 30},
		Legs:      []schedule.Leg{{DurationMinutes: 120}},
	})

	assert.Equal(t, 1500, entries[1].ArrivalMinutes)
	assert.Equal(t, 1530, entries[1].DepartureMinutes)
}

func TestCompute_Idempotent(t *testing.T) {
	in := schedule.Input{
		StartTime: "07:30",
		Stays:     []int{15, 20, 25},
		Legs: []schedule.Leg{
			{DurationMinutes: 33},
			{TicketDeparture: "09:00", TicketArrival: "10:10"},
		},
	}
	stays := append([]int(nil), in.Stays...)

	first := schedule.Compute(in)
	second := schedule.Compute(in)

	assert.Equal(t, first, second)
	assert.Equal(t, stays, in.Stays)
}

func TestSummarize(t *testing.T) {
	s := schedule.Summarize(schedule.Input{
		StartTime: "08:00",
		Stays:     []int{30, 60, 15},
		Legs: []schedule.Leg{
			{DurationMinutes: 40, DistanceKm: 12.5},
			{DistanceKm: 1100, TicketDeparture: "23:00", TicketArrival: "01:30"},
		},
	})

	assert.Equal(t, 480, s.StartMinutes)
	assert.Equal(t, 40+150, s.TravelMinutes)
	assert.InDelta(t, 1112.5, s.TotalDistanceKm, 0.001)
	assert.Equal(t, 1, s.PinnedLegs)
	assert.Equal(t, 90+15, s.EndMinutes, "ticket arrival is taken as a clock time")
}
