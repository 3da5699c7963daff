// Package ticket normalizes structured flight and train ticket data produced
// by an OCR or LLM collaborator.
package ticket

import (
	"context"
	"errors"
)

// Kind is the ticket type reported by the recognizer.
type Kind string

const (
	KindFlight  Kind = "flight"
	KindTrain   Kind = "train"
	KindUnknown Kind = "unknown"
)

// ErrEmptyImage is returned by resolvers given no image data.
var ErrEmptyImage = errors.New("empty ticket image")

// Ticket is a recognized ticket. Time strings are "YYYY-MM-DD HH:MM" or
// "HH:MM" as printed on the ticket.
type Ticket struct {
	Type            Kind     `json:"type"`
	OriginName      string   `json:"origin_name"`
	DestinationName string   `json:"destination_name"`
	OriginCity      string   `json:"origin_city,omitempty"`
	DestinationCity string   `json:"destination_city,omitempty"`
	DepartureTime   string   `json:"departure_time"`
	ArrivalTime     string   `json:"arrival_time"`
	FlightNo        string   `json:"flight_no,omitempty"`
	TrainNo         string   `json:"train_no,omitempty"`
	SeatInfo        string   `json:"seat_info,omitempty"`
	DistanceKm      *float64 `json:"distance_km,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Number returns the flight or train number, whichever the ticket carries.
func (t *Ticket) Number() string {
	if t.Type == KindTrain {
		return t.TrainNo
	}
	return t.FlightNo
}

// ParseError reports a ticket that could not be recognized. Reason is meant
// to be shown to the user as is.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return "ticket not recognized: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Resolver turns a ticket image into structured data.
type Resolver interface {
	Resolve(ctx context.Context, image []byte) (*Ticket, error)
}
