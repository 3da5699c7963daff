package models

import (
	"strings"

	"github.com/voyaai/voyaai/internal/itinerary"
	"github.com/voyaai/voyaai/internal/layout"
	"github.com/voyaai/voyaai/internal/plan"
	"github.com/voyaai/voyaai/internal/schedule"
	"github.com/voyaai/voyaai/internal/ticket"
)

// CreatePlanRequest is the body of POST /v1/plans.
type CreatePlanRequest struct {
	Title         string              `json:"title"`
	StartLocation *itinerary.Waypoint `json:"startLocation,omitempty"`
	Date          string              `json:"date,omitempty"`
	StartTime     string              `json:"startTime,omitempty"`
}

// Validate checks the request fields.
func (r *CreatePlanRequest) Validate() []FieldError {
	var errs []FieldError
	if len(r.Title) > 200 {
		errs = append(errs, FieldError{Field: "title", Message: "must be at most 200 characters", Code: "TOO_LONG"})
	}
	if r.StartLocation != nil && strings.TrimSpace(r.StartLocation.Name) == "" {
		errs = append(errs, FieldError{Field: "startLocation.name", Message: "required", Code: "REQUIRED"})
	}
	return errs
}

// Plan is a full plan with its live editing state.
type Plan struct {
	*itinerary.Document
	PendingLookups int `json:"pendingLookups"`
}

// PlanList is the response of GET /v1/plans.
type PlanList struct {
	Items []plan.Summary    `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// TitleRequest is the body of PUT /v1/plans/{planId}/title.
type TitleRequest struct {
	Title string `json:"title"`
}

// AddDayRequest is the body of POST /v1/plans/{planId}/days.
type AddDayRequest struct {
	Date          string              `json:"date,omitempty"`
	City          string              `json:"city,omitempty"`
	StartTime     string              `json:"startTime,omitempty"`
	StartLocation *itinerary.Waypoint `json:"startLocation,omitempty"`
}

// DayCreated is the response of POST /v1/plans/{planId}/days.
type DayCreated struct {
	DayIndex int                   `json:"dayIndex"`
	Day      itinerary.DayDocument `json:"day"`
}

// StartTimeRequest is the body of PUT .../days/{day}/start-time.
type StartTimeRequest struct {
	StartTime string `json:"startTime"`
}

// AddWaypointRequest is the body of POST .../days/{day}/waypoints. Without
// an index the waypoint is appended.
type AddWaypointRequest struct {
	Index *int `json:"index,omitempty"`
	itinerary.Waypoint
}

// Validate checks the request fields.
func (r *AddWaypointRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required", Code: "REQUIRED"})
	}
	if (r.Lat == nil) != (r.Lng == nil) {
		errs = append(errs, FieldError{Field: "lat", Message: "lat and lng must be given together", Code: "INCOMPLETE"})
	}
	if r.Lat != nil && (*r.Lat < -90 || *r.Lat > 90) {
		errs = append(errs, FieldError{Field: "lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"})
	}
	if r.Lng != nil && (*r.Lng < -180 || *r.Lng > 180) {
		errs = append(errs, FieldError{Field: "lng", Message: "must be between -180 and 180", Code: "OUT_OF_RANGE"})
	}
	return errs
}

// ReorderRequest is the body of POST .../waypoints:reorder.
type ReorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// StayRequest is the body of PUT .../waypoints/{index}/stay.
type StayRequest struct {
	StayMinutes int `json:"stayMinutes"`
}

// PositionRequest is the body of PUT .../waypoints/{index}/position.
type PositionRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Width float64 `json:"width,omitempty"`
}

// ModeRequest is the body of PUT .../segments/{segment}/mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// TicketRequest is the body of PUT .../segments/{segment}/ticket. Exactly
// one of Ticket (already recognized) or Image (base64) is set.
type TicketRequest struct {
	Ticket *ticket.Ticket `json:"ticket,omitempty"`
	Image  string         `json:"image,omitempty"`
}

// Validate checks the request fields.
func (r *TicketRequest) Validate() []FieldError {
	if (r.Ticket == nil) == (r.Image == "") {
		return []FieldError{{Field: "ticket", Message: "exactly one of ticket or image is required", Code: "ONE_OF"}}
	}
	return nil
}

// DayView is a day after an edit: its segments plus the state machine
// position.
type DayView struct {
	DayIndex int                   `json:"dayIndex"`
	State    string                `json:"state"`
	Day      itinerary.DayDocument `json:"day"`
}

// ScheduleEntry is one waypoint in a day schedule.
type ScheduleEntry struct {
	Name      string `json:"name"`
	Arrival   string `json:"arrival"`
	Departure string `json:"departure"`
	schedule.Entry
}

// Schedule is the response of GET .../days/{day}/schedule.
type Schedule struct {
	DayIndex int              `json:"dayIndex"`
	Date     string           `json:"date,omitempty"`
	Entries  []ScheduleEntry  `json:"entries"`
	Summary  schedule.Summary `json:"summary"`
}

// Layout is the response of the layout endpoints.
type Layout struct {
	DayIndex  int               `json:"dayIndex"`
	Width     float64           `json:"width"`
	Height    float64           `json:"height"`
	Positions []layout.Position `json:"positions"`
}

// Repair is the response of POST /v1/plans/{planId}/repair.
type Repair struct {
	Requeued int `json:"requeued"`
}
