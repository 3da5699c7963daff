package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/voyaai/voyaai/internal/api/models"
	"github.com/voyaai/voyaai/internal/api/response"
	"github.com/voyaai/voyaai/internal/itinerary"
	"github.com/voyaai/voyaai/internal/layout"
	"github.com/voyaai/voyaai/internal/ticket"
)

// AddDay handles POST /v1/plans/{planId}/days.
func (h *PlanHandler) AddDay(w http.ResponseWriter, r *http.Request) {
	var req models.AddDayRequest
	if !decode(w, r, maxBodyBytes, &req) {
		return
	}

	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	day, err := ed.AddDay(itinerary.DayOptions{
		StartLocation: req.StartLocation,
		Date:          req.Date,
		City:          req.City,
		StartTime:     req.StartTime,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}

	dd, err := ed.DayDocument(day)
	if err != nil {
		h.error(w, r, err)
		return
	}
	response.Created(w, r, "", models.DayCreated{DayIndex: day, Day: dd})
}

// DeleteDay handles DELETE /v1/plans/{planId}/days/{day}.
func (h *PlanHandler) DeleteDay(w http.ResponseWriter, r *http.Request) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return
	}
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	if err := ed.RemoveDay(day); err != nil {
		h.error(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// SetStartTime handles PUT /v1/plans/{planId}/days/{day}/start-time.
func (h *PlanHandler) SetStartTime(w http.ResponseWriter, r *http.Request) {
	var req models.StartTimeRequest
	h.dayEdit(w, r, &req, func(ed *itinerary.Editor, day int) error {
		return ed.SetStartTime(day, req.StartTime)
	})
}

// AddWaypoint handles POST /v1/plans/{planId}/days/{day}/waypoints.
func (h *PlanHandler) AddWaypoint(w http.ResponseWriter, r *http.Request) {
	var req models.AddWaypointRequest
	if !decode(w, r, maxBodyBytes, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid waypoint", errs)
		return
	}
	h.dayEdit(w, r, nil, func(ed *itinerary.Editor, day int) error {
		if req.Index == nil {
			return ed.Append(r.Context(), day, req.Waypoint)
		}
		return ed.InsertAt(r.Context(), day, *req.Index, req.Waypoint)
	})
}

// DeleteWaypoint handles DELETE /v1/plans/{planId}/days/{day}/waypoints/{index}.
func (h *PlanHandler) DeleteWaypoint(w http.ResponseWriter, r *http.Request) {
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}
	h.dayEdit(w, r, nil, func(ed *itinerary.Editor, day int) error {
		return ed.RemoveAt(r.Context(), day, index)
	})
}

// ReorderWaypoints handles POST /v1/plans/{planId}/days/{day}/waypoints:reorder.
func (h *PlanHandler) ReorderWaypoints(w http.ResponseWriter, r *http.Request) {
	var req models.ReorderRequest
	h.dayEdit(w, r, &req, func(ed *itinerary.Editor, day int) error {
		return ed.Reorder(r.Context(), day, req.From, req.To)
	})
}

// SetStay handles PUT /v1/plans/{planId}/days/{day}/waypoints/{index}/stay.
func (h *PlanHandler) SetStay(w http.ResponseWriter, r *http.Request) {
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}
	var req models.StayRequest
	h.dayEdit(w, r, &req, func(ed *itinerary.Editor, day int) error {
		return ed.SetStay(day, index, req.StayMinutes)
	})
}

// SetPosition handles PUT /v1/plans/{planId}/days/{day}/waypoints/{index}/position.
// The stored position is clamped to the canvas and returned.
func (h *PlanHandler) SetPosition(w http.ResponseWriter, r *http.Request) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return
	}
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}
	var req models.PositionRequest
	if !decode(w, r, maxBodyBytes, &req) {
		return
	}
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}

	pos, err := ed.MovePosition(day, index, layout.Position{X: req.X, Y: req.Y}, req.Width)
	if err != nil {
		h.error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, pos)
}

// SetMode handles PUT /v1/plans/{planId}/days/{day}/segments/{segment}/mode.
func (h *PlanHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	segment, ok := intParam(w, r, "segment")
	if !ok {
		return
	}
	var req models.ModeRequest
	h.dayEdit(w, r, &req, func(ed *itinerary.Editor, day int) error {
		mode, err := itinerary.ParseMode(req.Mode)
		if err != nil {
			return err
		}
		return ed.ChangeMode(r.Context(), day, segment, mode)
	})
}

// SetTicket handles PUT /v1/plans/{planId}/days/{day}/segments/{segment}/ticket.
// The body carries either a recognized ticket or a base64 image for the
// recognizer. A rejected ticket leaves the segment untouched.
func (h *PlanHandler) SetTicket(w http.ResponseWriter, r *http.Request) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return
	}
	segment, ok := intParam(w, r, "segment")
	if !ok {
		return
	}
	var req models.TicketRequest
	if !decode(w, r, maxTicketBodyBytes, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid ticket request", errs)
		return
	}
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}

	t := req.Ticket
	if t == nil {
		var err error
		if t, err = h.recognize(r.Context(), req.Image); err != nil {
			h.recognizeError(w, r, err)
			return
		}
	}

	if err := ed.ApplyTicket(r.Context(), day, segment, t); err != nil {
		h.error(w, r, err)
		return
	}
	h.writeDay(w, r, ed, day)
}

var errRecognizerDisabled = errors.New("ticket recognition is not configured")

func (h *PlanHandler) recognize(ctx context.Context, encoded string) (*ticket.Ticket, error) {
	if h.resolver == nil {
		return nil, errRecognizerDisabled
	}
	// Data URLs are accepted as pasted from a browser.
	if i := strings.Index(encoded, ";base64,"); i >= 0 {
		encoded = encoded[i+len(";base64,"):]
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ticket.ErrEmptyImage
	}

	ctx, cancel := context.WithTimeout(ctx, h.recognizeTimeout)
	defer cancel()
	return h.resolver.Resolve(ctx, image)
}

func (h *PlanHandler) recognizeError(w http.ResponseWriter, r *http.Request, err error) {
	var parse *ticket.ParseError
	switch {
	case errors.Is(err, errRecognizerDisabled):
		response.ServiceUnavailable(w, r, err.Error())
	case errors.As(err, &parse), errors.Is(err, ticket.ErrEmptyImage):
		h.error(w, r, err)
	default:
		h.logger.Warn().Err(err).Msg("ticket recognition failed")
		response.BadGateway(w, r, "ticket recognition failed")
	}
}

// dayEdit decodes an optional body, acquires the editor, applies edit and
// responds with the day.
func (h *PlanHandler) dayEdit(w http.ResponseWriter, r *http.Request, body interface{}, edit func(ed *itinerary.Editor, day int) error) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return
	}
	if body != nil && !decode(w, r, maxBodyBytes, body) {
		return
	}
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	if err := edit(ed, day); err != nil {
		h.error(w, r, err)
		return
	}
	h.writeDay(w, r, ed, day)
}

func (h *PlanHandler) writeDay(w http.ResponseWriter, r *http.Request, ed *itinerary.Editor, day int) {
	dd, err := ed.DayDocument(day)
	if err != nil {
		h.error(w, r, err)
		return
	}
	state, _ := ed.State(day)
	response.JSON(w, r, http.StatusOK, models.DayView{DayIndex: day, State: state.String(), Day: dd})
}
