package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/OYD-Protocol/shoptrack/internal/event"
	"github.com/OYD-Protocol/shoptrack/internal/query"
	"github.com/OYD-Protocol/shoptrack/internal/storage"
)

// ReportsHandler serves the admin reporting endpoints.
type ReportsHandler struct {
	svc *query.Service
}

func NewReportsHandler(svc *query.Service) *ReportsHandler {
	return &ReportsHandler{svc: svc}
}

type listResponse struct {
	Success    bool            `json:"success"`
	Events     []event.Event   `json:"events"`
	Pagination query.Pagination `json:"pagination"`
}

// HandleListEvents serves GET /v1/analytics/events.
func (h *ReportsHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := 1
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, statusResponse{Success: false, Message: "page must be an integer"})
			return
		}
		page = n
	}

	pageSize := query.DefaultPageSize
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, statusResponse{Success: false, Message: "page_size must be an integer"})
			return
		}
		pageSize = n
	}

	var f storage.Filter
	if action := strings.TrimSpace(q.Get("action")); action != "" && action != "all" {
		a := event.Action(action)
		if !a.Valid() {
			writeJSON(w, http.StatusBadRequest, statusResponse{Success: false, Message: "unknown action filter"})
			return
		}
		f.Action = a
	}

	var err error
	if f.DateFrom, err = parseDate(q.Get("date_from")); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Success: false, Message: "date_from must be RFC 3339 or YYYY-MM-DD"})
		return
	}
	if f.DateTo, err = parseDate(q.Get("date_to")); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Success: false, Message: "date_to must be RFC 3339 or YYYY-MM-DD"})
		return
	}

	res, err := h.svc.List(r.Context(), query.ListParams{Filter: f, Page: page, PageSize: pageSize})
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Success: true, Events: res.Events, Pagination: res.Pagination})
}

type summaryResponse struct {
	Success bool           `json:"success"`
	Summary *query.Summary `json:"summary"`
}

// HandleSummary serves GET /v1/analytics/summary.
func (h *ReportsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	days := query.DefaultWindowDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, statusResponse{Success: false, Message: "days must be an integer"})
			return
		}
		days = n
	}

	sum, err := h.svc.Summarize(r.Context(), days)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{Success: true, Summary: sum})
}

func (h *ReportsHandler) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidPage),
		errors.Is(err, query.ErrInvalidPageSize),
		errors.Is(err, query.ErrInvalidWindow):
		writeJSON(w, http.StatusBadRequest, statusResponse{Success: false, Message: err.Error()})
	default:
		log.Error().Err(err).Msg("Analytics query failed")
		writeJSON(w, http.StatusInternalServerError, statusResponse{Success: false, Message: "could not load analytics"})
	}
}

// parseDate accepts RFC 3339 timestamps or bare dates.
func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
