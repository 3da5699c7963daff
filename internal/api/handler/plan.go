package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/voyaai/voyaai/internal/api/models"
	"github.com/voyaai/voyaai/internal/api/response"
	"github.com/voyaai/voyaai/internal/itinerary"
	"github.com/voyaai/voyaai/internal/plan"
	"github.com/voyaai/voyaai/internal/session"
	"github.com/voyaai/voyaai/internal/ticket"
)

const (
	maxBodyBytes       = 64 << 10
	maxTicketBodyBytes = 8 << 20
	maxListLimit       = 100
)

// PlanHandlerConfig holds PlanHandler dependencies.
type PlanHandlerConfig struct {
	Sessions   *session.Manager
	Repository plan.Repository

	// Resolver recognizes uploaded ticket images (optional). Without it
	// only pre-recognized tickets are accepted.
	Resolver ticket.Resolver

	// RecognizeTimeout bounds a ticket recognition call (default: 45s).
	RecognizeTimeout time.Duration

	// CalendarLocation is the zone day clocks are in (default: UTC).
	CalendarLocation *time.Location

	// CanvasWidth is used when a layout request names no width
	// (default: itinerary.DefaultCanvasWidth).
	CanvasWidth float64

	Logger zerolog.Logger
}

// PlanHandler handles plan editing endpoints. Writes take the plan's
// editor lease for the authenticated subject; reads do not.
type PlanHandler struct {
	sessions         *session.Manager
	repo             plan.Repository
	resolver         ticket.Resolver
	recognizeTimeout time.Duration
	location         *time.Location
	width            float64
	logger           zerolog.Logger
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(cfg PlanHandlerConfig) *PlanHandler {
	timeout := cfg.RecognizeTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	loc := cfg.CalendarLocation
	if loc == nil {
		loc = time.UTC
	}
	width := cfg.CanvasWidth
	if width <= 0 {
		width = itinerary.DefaultCanvasWidth
	}
	return &PlanHandler{
		sessions:         cfg.Sessions,
		repo:             cfg.Repository,
		resolver:         cfg.Resolver,
		recognizeTimeout: timeout,
		location:         loc,
		width:            width,
		logger:           cfg.Logger,
	}
}

// CreatePlan handles POST /v1/plans.
func (h *PlanHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePlanRequest
	if !decode(w, r, maxBodyBytes, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid plan", errs)
		return
	}

	s, err := h.sessions.Create(r.Context(), GetSubject(r.Context()), req.Title, req.StartLocation)
	if err != nil {
		h.error(w, r, err)
		return
	}
	ed := s.Editor()
	if req.Date != "" {
		if err := ed.SetDate(0, req.Date); err != nil {
			h.error(w, r, err)
			return
		}
	}
	if req.StartTime != "" {
		if err := ed.SetStartTime(0, req.StartTime); err != nil {
			h.error(w, r, err)
			return
		}
	}

	response.Created(w, r, "/v1/plans/"+ed.ID(), planView(ed))
}

// ListPlans handles GET /v1/plans.
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{{
				Field:   "limit",
				Message: fmt.Sprintf("must be between 1 and %d", maxListLimit),
				Code:    "OUT_OF_RANGE",
			}})
			return
		}
		limit = n
	}

	res, err := h.repo.List(r.Context(), plan.ListOptions{Limit: limit, Cursor: r.URL.Query().Get("cursor")})
	if err != nil {
		h.error(w, r, err)
		return
	}

	out := models.PlanList{Items: res.Items, Meta: models.PagedResponseMeta{Limit: len(res.Items)}}
	if out.Items == nil {
		out.Items = []plan.Summary{}
	}
	if limit > 0 {
		out.Meta.Limit = limit
	}
	if res.NextCursor != "" {
		out.Meta.NextCursor = &res.NextCursor
	}
	response.JSON(w, r, http.StatusOK, out)
}

// GetPlan handles GET /v1/plans/{planId}. It returns live edits without
// taking the lease.
func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	doc, err := h.sessions.Peek(r.Context(), chi.URLParam(r, "planId"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.Plan{Document: doc})
}

// DeletePlan handles DELETE /v1/plans/{planId}.
func (h *PlanHandler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "planId"), GetSubject(r.Context())); err != nil {
		h.error(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// ReleasePlan handles POST /v1/plans/{planId}/release. The plan is saved and
// another editor may pick it up immediately.
func (h *PlanHandler) ReleasePlan(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Release(r.Context(), chi.URLParam(r, "planId"), GetSubject(r.Context())); err != nil {
		h.error(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// SetTitle handles PUT /v1/plans/{planId}/title.
func (h *PlanHandler) SetTitle(w http.ResponseWriter, r *http.Request) {
	var req models.TitleRequest
	if !decode(w, r, maxBodyBytes, &req) {
		return
	}
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	ed.SetTitle(req.Title)
	response.JSON(w, r, http.StatusOK, planView(ed))
}

// Repair handles POST /v1/plans/{planId}/repair. Segments whose cost lookup
// failed are looked up again; the call waits for the lookups when the
// client asks with ?wait=true.
func (h *PlanHandler) Repair(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}
	n := ed.RepairAll(r.Context())
	if r.URL.Query().Get("wait") == "true" {
		if err := ed.Wait(r.Context()); err != nil {
			h.error(w, r, err)
			return
		}
	}
	response.JSON(w, r, http.StatusOK, models.Repair{Requeued: n})
}

// editor acquires the plan's lease for the request subject.
func (h *PlanHandler) editor(w http.ResponseWriter, r *http.Request) (*itinerary.Editor, bool) {
	s, err := h.sessions.Acquire(r.Context(), chi.URLParam(r, "planId"), GetSubject(r.Context()))
	if err != nil {
		h.error(w, r, err)
		return nil, false
	}
	return s.Editor(), true
}

func (h *PlanHandler) error(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

func planView(ed *itinerary.Editor) models.Plan {
	return models.Plan{Document: ed.Snapshot(), PendingLookups: ed.Pending()}
}

// decode reads a JSON body of at most limit bytes. Empty bodies decode to
// the zero value.
func decode(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, context.Canceled):
			return false
		case errors.As(err, &tooLarge):
			response.BadRequest(w, r, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), nil)
			return false
		case errors.Is(err, io.EOF):
			return true
		default:
			response.BadRequest(w, r, "invalid JSON body: "+err.Error(), nil)
			return false
		}
	}
	return true
}

// intParam parses a non-negative integer URL parameter.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		response.BadRequest(w, r, fmt.Sprintf("invalid %s %q", name, raw), []models.FieldError{{
			Field:   name,
			Message: "must be a non-negative integer",
			Code:    "INVALID",
		}})
		return 0, false
	}
	return n, true
}
