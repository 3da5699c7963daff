package schedule

// Leg is the schedule's view of an outgoing segment.
type Leg struct {
	DurationMinutes int
	DistanceKm      float64

	// TicketDeparture and TicketArrival are authoritative times from a booked
	// ticket. Both must resolve for the leg to be pinned.
	TicketDeparture string
	TicketArrival   string
}

// Input is everything the propagation needs for one day. Stays is indexed by
// waypoint and should hold len(Legs)+1 entries; missing entries count as 0.
type Input struct {
	StartTime string
	Stays     []int
	Legs      []Leg
}

// Entry is one waypoint's row in the timetable. All values are minutes since
// the day's local midnight and may exceed MinutesPerDay.
type Entry struct {
	ArrivalMinutes   int  `json:"arrivalMinutes"`
	StayMinutes      int  `json:"stayMinutes"`
	DepartureMinutes int  `json:"departureMinutes"`
	Pinned           bool `json:"pinned,omitempty"`

	// Conflict marks a pinned departure earlier than the computed arrival.
	// The times are left as the ticket says.
	Conflict bool `json:"conflict,omitempty"`
}

// Pinned reports whether the leg carries two resolvable ticket times and
// returns them as minutes of day.
func (l Leg) Pinned() (departure, arrival int, ok bool) {
	if l.TicketDeparture == "" || l.TicketArrival == "" {
		return 0, 0, false
	}
	dep, okDep := ResolveMinutes(l.TicketDeparture)
	arr, okArr := ResolveMinutes(l.TicketArrival)
	if !okDep || !okArr {
		return 0, 0, false
	}
	return dep, arr, true
}

// Compute propagates the start time through stays and legs. It never mutates
// its input and returns len(in.Legs)+1 entries.
func Compute(in Input) []Entry {
	cursor, err := ParseHM(in.StartTime)
	if err != nil {
		cursor, _ = ParseHM(DefaultStartTime)
	}

	entries := make([]Entry, 0, len(in.Legs)+1)
	for i, leg := range in.Legs {
		stay := stayAt(in.Stays, i)

		if dep, arr, ok := leg.Pinned(); ok {
			entries = append(entries, Entry{
				ArrivalMinutes:   cursor,
				StayMinutes:      stay,
				DepartureMinutes: dep,
				Pinned:           true,
				Conflict:         dep < cursor,
			})
			cursor = arr
			continue
		}

		departure := cursor + stay
		entries = append(entries, Entry{
			ArrivalMinutes:   cursor,
			StayMinutes:      stay,
			DepartureMinutes: departure,
		})
		cursor = departure + max(0, leg.DurationMinutes)
	}

	last := stayAt(in.Stays, len(in.Legs))
	entries = append(entries, Entry{
		ArrivalMinutes:   cursor,
		StayMinutes:      last,
		DepartureMinutes: cursor + last,
	})

	return entries
}

func stayAt(stays []int, i int) int {
	if i < 0 || i >= len(stays) {
		return 0
	}
	return max(0, stays[i])
}

// Summary aggregates a computed day.
type Summary struct {
	StartMinutes       int     `json:"startMinutes"`
	EndMinutes         int     `json:"endMinutes"`
	TravelMinutes      int     `json:"travelMinutes"`
	TotalDistanceKm    float64 `json:"totalDistanceKm"`
	PinnedLegs         int     `json:"pinnedLegs"`
	ConflictingEntries int     `json:"conflictingEntries"`
}

// Summarize computes the day and totals it.
func Summarize(in Input) Summary {
	entries := Compute(in)

	s := Summary{
		StartMinutes: entries[0].ArrivalMinutes,
		EndMinutes:   entries[len(entries)-1].DepartureMinutes,
	}
	for i, leg := range in.Legs {
		s.TotalDistanceKm += max(0, leg.DistanceKm)
		if entries[i].Pinned {
			s.PinnedLegs++
			if d, ok := TicketDurationMinutes(leg.TicketDeparture, leg.TicketArrival); ok {
				s.TravelMinutes += d
			}
		} else {
			s.TravelMinutes += max(0, leg.DurationMinutes)
		}
		if entries[i].Conflict {
			s.ConflictingEntries++
		}
	}
	return s
}
