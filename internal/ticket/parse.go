package ticket

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/voyaai/voyaai/internal/schedule"
)

// Recognizers often wrap the object in prose or a markdown fence.
var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Parse extracts a ticket from raw recognizer output. Anything that is not a
// flight or train ticket with resolvable endpoints yields a *ParseError.
func Parse(raw []byte) (*Ticket, error) {
	body := strings.TrimSpace(string(raw))
	if m := objectPattern.FindString(body); m != "" {
		body = m
	}
	if body == "" {
		return nil, &ParseError{Reason: "empty recognizer output"}
	}

	var t Ticket
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, &ParseError{Reason: "recognizer output is not valid JSON", Err: err}
	}

	t.Type = Kind(strings.ToLower(strings.TrimSpace(string(t.Type))))
	t.OriginName = strings.TrimSpace(t.OriginName)
	t.DestinationName = strings.TrimSpace(t.DestinationName)
	t.DepartureTime = strings.TrimSpace(t.DepartureTime)
	t.ArrivalTime = strings.TrimSpace(t.ArrivalTime)

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that the ticket can be applied to a segment.
func (t *Ticket) Validate() error {
	switch t.Type {
	case KindFlight, KindTrain:
	case KindUnknown, "":
		reason := t.Error
		if reason == "" {
			reason = "ticket type could not be determined"
		}
		return &ParseError{Reason: reason}
	default:
		return &ParseError{Reason: fmt.Sprintf("unsupported ticket type %q", t.Type)}
	}

	if t.OriginName == "" || t.DestinationName == "" {
		return &ParseError{Reason: "ticket is missing origin or destination"}
	}
	for _, s := range []string{t.DepartureTime, t.ArrivalTime} {
		if s == "" {
			continue
		}
		if _, err := schedule.Resolve(s); err != nil {
			return &ParseError{Reason: fmt.Sprintf("unreadable time %q", s), Err: err}
		}
	}
	if t.DistanceKm != nil && *t.DistanceKm < 0 {
		return &ParseError{Reason: "negative distance"}
	}
	return nil
}
