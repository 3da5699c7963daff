package handler

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voyaai/voyaai/internal/api/models"
	"github.com/voyaai/voyaai/internal/api/response"
	"github.com/voyaai/voyaai/internal/calendar"
	"github.com/voyaai/voyaai/internal/itinerary"
	"github.com/voyaai/voyaai/internal/layout"
	"github.com/voyaai/voyaai/internal/schedule"
)

// GetSchedule handles GET /v1/plans/{planId}/days/{day}/schedule.
func (h *PlanHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	dd, d, ok := h.peekDay(w, r, "schedule")
	if !ok {
		return
	}

	in := d.ScheduleInput()
	entries := schedule.Compute(in)
	names := stopNames(d.Waypoints(), len(entries))

	out := models.Schedule{
		DayIndex: dd.DayIndex,
		Date:     dd.Date,
		Entries:  make([]models.ScheduleEntry, len(entries)),
		Summary:  schedule.Summarize(in),
	}
	for i, e := range entries {
		out.Entries[i] = models.ScheduleEntry{
			Name:      names[i],
			Arrival:   schedule.FormatHM(e.ArrivalMinutes),
			Departure: schedule.FormatHM(e.DepartureMinutes),
			Entry:     e,
		}
	}
	response.JSON(w, r, http.StatusOK, out)
}

// GetLayout handles GET /v1/plans/{planId}/days/{day}/layout?width=.
// Cards without a stored position get their default grid slot.
func (h *PlanHandler) GetLayout(w http.ResponseWriter, r *http.Request) {
	width, ok := widthParam(w, r)
	if !ok {
		return
	}
	dd, d, ok := h.peekDay(w, r, "layout")
	if !ok {
		return
	}
	if width <= 0 {
		width = h.width
	}

	positions := d.Layout(width)
	response.JSON(w, r, http.StatusOK, models.Layout{
		DayIndex:  dd.DayIndex,
		Width:     width,
		Height:    layout.CanvasHeight(positions),
		Positions: positions,
	})
}

// ResetLayout handles POST /v1/plans/{planId}/days/{day}/layout:reset?width=.
func (h *PlanHandler) ResetLayout(w http.ResponseWriter, r *http.Request) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return
	}
	width, ok := widthParam(w, r)
	if !ok {
		return
	}
	if width <= 0 {
		width = h.width
	}
	ed, ok := h.editor(w, r)
	if !ok {
		return
	}

	positions, err := ed.ResetLayout(day, width)
	if err != nil {
		h.error(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.Layout{
		DayIndex:  day,
		Width:     width,
		Height:    layout.CanvasHeight(positions),
		Positions: positions,
	})
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// GetCalendar handles GET /v1/plans/{planId}/calendar.ics.
func (h *PlanHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	doc, err := h.sessions.Peek(r.Context(), chi.URLParam(r, "planId"))
	if err != nil {
		h.error(w, r, err)
		return
	}

	body, events := calendar.Export(doc, calendar.Options{Location: h.location})
	name := strings.Trim(unsafeFilename.ReplaceAllString(doc.Title, "-"), "-")
	if name == "" {
		name = "itinerary"
	}
	w.Header().Set("X-Event-Count", strconv.Itoa(events))
	response.Attachment(w, r, "text/calendar; charset=utf-8", name+".ics", []byte(body))
}

// peekDay loads one day without taking the lease.
func (h *PlanHandler) peekDay(w http.ResponseWriter, r *http.Request, op string) (itinerary.DayDocument, *itinerary.Day, bool) {
	day, ok := intParam(w, r, "day")
	if !ok {
		return itinerary.DayDocument{}, nil, false
	}
	doc, err := h.sessions.Peek(r.Context(), chi.URLParam(r, "planId"))
	if err != nil {
		h.error(w, r, err)
		return itinerary.DayDocument{}, nil, false
	}
	if day >= len(doc.Days) {
		h.error(w, r, &itinerary.IndexError{Op: op, Index: day, Len: len(doc.Days), Err: itinerary.ErrDayOutOfRange})
		return itinerary.DayDocument{}, nil, false
	}

	dd := doc.Days[day]
	d, notes := itinerary.DayFromDocument(dd)
	for _, n := range notes {
		h.logger.Warn().Str("plan_id", doc.ID).Int("day", day).Str("repair", n).Msg("repaired stored day")
	}
	return dd, d, true
}

// stopNames pads names to n; an empty day still reports one entry.
func stopNames(waypoints []itinerary.Waypoint, n int) []string {
	names := make([]string, n)
	for i := 0; i < n && i < len(waypoints); i++ {
		names[i] = waypoints[i].Name
	}
	return names
}

func widthParam(w http.ResponseWriter, r *http.Request) (float64, bool) {
	raw := r.URL.Query().Get("width")
	if raw == "" {
		return 0, true
	}
	width, err := strconv.ParseFloat(raw, 64)
	if err != nil || width <= 0 || width > 10000 {
		response.BadRequest(w, r, "invalid width", []models.FieldError{{
			Field:   "width",
			Message: "must be a positive number of pixels",
			Code:    "OUT_OF_RANGE",
		}})
		return 0, false
	}
	return width, true
}
