package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/voyaai/voyaai/internal/api/middleware"
	"github.com/voyaai/voyaai/internal/api/models"
	"github.com/voyaai/voyaai/internal/api/response"
	"github.com/voyaai/voyaai/internal/itinerary"
	"github.com/voyaai/voyaai/internal/plan"
	"github.com/voyaai/voyaai/internal/schedule"
	"github.com/voyaai/voyaai/internal/session"
	"github.com/voyaai/voyaai/internal/ticket"
)

// writeError maps domain errors to problem responses. Anything unmapped is
// logged and reported as a 500.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	var (
		lease *session.LeaseError
		index *itinerary.IndexError
		parse *ticket.ParseError
	)

	switch {
	case errors.As(err, &lease):
		wait := int(math.Ceil(time.Until(lease.ExpiresAt).Seconds()))
		response.LeaseHeld(w, r, fmt.Sprintf("plan is being edited by %s", lease.Holder), wait)
	case errors.Is(err, session.ErrLeaseHeld):
		response.LeaseHeld(w, r, err.Error(), 0)
	case errors.Is(err, plan.ErrNotFound):
		response.NotFound(w, r, "plan not found")
	case errors.As(err, &index):
		response.BadRequest(w, r, err.Error(), []models.FieldError{{
			Field:   index.Op,
			Message: index.Err.Error(),
			Code:    "OUT_OF_RANGE",
		}})
	case errors.As(err, &parse):
		response.TicketRejected(w, r, parse.Reason)
	case errors.Is(err, itinerary.ErrLastDay):
		response.Conflict(w, r, err.Error())
	case errors.Is(err, itinerary.ErrUnknownMode),
		errors.Is(err, itinerary.ErrTicketRequired),
		errors.Is(err, itinerary.ErrInvalidDate),
		errors.Is(err, itinerary.ErrEmptyWaypoint),
		errors.Is(err, itinerary.ErrInvalidTicket),
		errors.Is(err, schedule.ErrInvalidTime),
		errors.Is(err, ticket.ErrEmptyImage):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "request timed out")
	default:
		log.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("unhandled error")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
