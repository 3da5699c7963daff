package itinerary

import (
	"errors"
	"fmt"
)

// Sentinel errors for itinerary operations.
var (
	ErrDayOutOfRange     = errors.New("day index out of range")
	ErrIndexOutOfRange   = errors.New("waypoint index out of range")
	ErrSegmentOutOfRange = errors.New("segment index out of range")
	ErrUnknownMode       = errors.New("unknown transport mode")

	// ErrTicketRequired is returned when switching a segment to flight.
	// Flights are created through ticket import, never estimated.
	ErrTicketRequired = errors.New("flight segments require an imported ticket")

	ErrInvalidDate   = errors.New("invalid date, expected YYYY-MM-DD")
	ErrLastDay       = errors.New("a plan must keep at least one day")
	ErrEmptyWaypoint = errors.New("waypoint name is required")
	ErrInvalidTicket = errors.New("ticket cannot be applied")
)

// IndexError describes a rejected structural edit.
type IndexError struct {
	Op    string
	Index int
	Len   int
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: index %d out of range [0,%d): %v", e.Op, e.Index, e.Len, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

func indexError(op string, err error, index, length int) error {
	return &IndexError{Op: op, Index: index, Len: length, Err: err}
}
