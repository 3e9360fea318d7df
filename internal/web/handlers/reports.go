package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/markrhq/markr/internal/report"
)

// ReportHandler handles attendance reports and analytics endpoints.
type ReportHandler struct {
	reports *report.Service
}

// NewReportHandler creates a new report handler.
func NewReportHandler(reports *report.Service) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Daily returns the school-wide attendance report for one date.
// GET /reports/daily?school_id=1&date=2026-03-09
func (h *ReportHandler) Daily(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	schoolID, err := queryInt64(r, "school_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "school_id is required")
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	daily, err := h.reports.Daily(r.Context(), schoolID, date, actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, daily)
}

// ClassRange returns per-student attendance rates for a class over a
// date range.
// GET /reports/class?school_id=1&class=5A&from=2026-03-01&to=2026-03-31
func (h *ReportHandler) ClassRange(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	schoolID, err := queryInt64(r, "school_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "school_id is required")
		return
	}
	className := r.URL.Query().Get("class")
	if className == "" {
		respondError(w, http.StatusBadRequest, "class is required")
		return
	}
	from, to, ok := queryRange(w, r)
	if !ok {
		return
	}

	summary, err := h.reports.ClassRange(r.Context(), schoolID, className, from, to, actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// SchoolAnalytics returns school-wide attendance statistics over a range.
// GET /analytics/school?school_id=1&from=2026-03-01&to=2026-03-31
func (h *ReportHandler) SchoolAnalytics(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	schoolID, err := queryInt64(r, "school_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "school_id is required")
		return
	}
	from, to, ok := queryRange(w, r)
	if !ok {
		return
	}

	analytics, err := h.reports.SchoolAnalytics(r.Context(), schoolID, from, to, actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, analytics)
}

// DistrictOverview returns the per-school daily summary for a district.
// GET /analytics/district?district_id=10&date=2026-03-09
func (h *ReportHandler) DistrictOverview(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	districtID, err := queryInt64(r, "district_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "district_id is required")
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	overview, err := h.reports.DistrictOverview(r.Context(), districtID, date, actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

// queryInt64 parses a required positive integer query parameter.
func queryInt64(r *http.Request, name string) (int64, error) {
	value, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0, err
	}
	if value <= 0 {
		return 0, strconv.ErrRange
	}
	return value, nil
}

// queryRange parses the from/to query parameters, writing a 400 on
// malformed input.
func queryRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	var err error
	from, err = parseDate(r.URL.Query().Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return from, to, false
	}
	to, err = parseDate(r.URL.Query().Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return from, to, false
	}
	return from, to, true
}
