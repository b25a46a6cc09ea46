package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/goliatone/go-admin-search/internal/logging"
	"github.com/goliatone/go-admin-search/paginate"
	"github.com/goliatone/go-admin-search/report"
	"github.com/goliatone/go-admin-search/review"
	"github.com/goliatone/go-admin-search/search"
)

// SearchResponse is a page of search results.
type SearchResponse[T any] struct {
	Results    []T           `json:"results"`
	Pagination paginate.Meta `json:"pagination"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// RedirectResponse replaces the result list when page 1 holds exactly one
// record. Warnings about dropped filters travel with the redirect.
type RedirectResponse struct {
	RedirectLocation string   `json:"redirect_location"`
	Warnings         []string `json:"warnings,omitempty"`
}

// UnreviewedUsersResponse is one page of the snapshot. CachedAt is null
// until the first computation has been published.
type UnreviewedUsersResponse struct {
	Users      []review.UnreviewedUser `json:"users"`
	Pagination paginate.Meta           `json:"pagination"`
	TotalCount int                     `json:"total_count"`
	CutoffDate *string                 `json:"cutoff_date"`
	CachedAt   *time.Time              `json:"cached_at"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *handler) searchPurchases(w http.ResponseWriter, r *http.Request) {
	criteria, page, warnings := search.ParsePurchaseParams(r.URL.Query())

	rs, err := h.deps.Search.SearchPurchases(r.Context(), criteria, page)
	if err != nil {
		h.searchFailed(w, r, err)
		return
	}

	if n, ok := rs.ExactCount(); ok && n == 1 && rs.Page == 1 && len(rs.Records) == 1 {
		writeJSON(w, http.StatusOK, RedirectResponse{RedirectLocation: "/admin/purchases/" + rs.Records[0].ExternalID, Warnings: warnings})
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse[search.Purchase]{Results: rs.Records, Pagination: rs.Meta(), Warnings: warnings})
}

func (h *handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	criteria, page, warnings := search.ParseUserParams(r.URL.Query())

	rs, err := h.deps.Search.SearchUsers(r.Context(), criteria, page)
	if err != nil {
		h.searchFailed(w, r, err)
		return
	}

	if n, ok := rs.ExactCount(); ok && n == 1 && rs.Page == 1 && len(rs.Records) == 1 {
		writeJSON(w, http.StatusOK, RedirectResponse{RedirectLocation: "/admin/users/" + rs.Records[0].ExternalID, Warnings: warnings})
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse[search.User]{Results: rs.Records, Pagination: rs.Meta(), Warnings: warnings})
}

func (h *handler) searchFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, search.ErrQueryTimeout) {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "search timed out"})
		return
	}
	h.internalError(w, r, "search failed", err)
}

func (h *handler) unreviewedUsers(w http.ResponseWriter, r *http.Request) {
	doc, found, err := h.deps.Unreviewed.Read(r.Context())
	if err != nil {
		h.internalError(w, r, "unreviewed users snapshot unreadable", err)
		return
	}

	page := listingPage(r).Normalize(h.deps.DefaultPerPage, h.deps.MaxPerPage)
	rs := paginate.Slice(doc.Users, page)

	resp := UnreviewedUsersResponse{
		Users:      rs.Records,
		Pagination: rs.Meta(),
		TotalCount: doc.TotalCount,
	}
	if found {
		resp.CutoffDate = &doc.CutoffDate
		resp.CachedAt = &doc.CachedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func listingPage(r *http.Request) paginate.Request {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("per_page"))
	return paginate.Request{Page: page, Limit: limit}
}

type cutoffRequest struct {
	CutoffDate string `json:"cutoff_date"`
}

func (h *handler) setCutoff(w http.ResponseWriter, r *http.Request) {
	var body cutoffRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed JSON body"})
		return
	}

	cutoff, err := review.SetCutoff(r.Context(), h.deps.Settings, body.CutoffDate)
	if err != nil {
		if errors.Is(err, review.ErrInvalidCutoff) {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error:  "invalid cutoff date",
				Fields: map[string]string{"cutoff_date": "must use YYYY-MM-DD"},
			})
			return
		}
		h.internalError(w, r, "cutoff update failed", err)
		return
	}

	h.log(r).Info("unreviewed users cutoff updated", zap.String("cutoff_date", cutoff.Format(review.DateLayout)))
	writeJSON(w, http.StatusOK, cutoffRequest{CutoffDate: cutoff.Format(review.DateLayout)})
}

func (h *handler) refreshUnreviewed(w http.ResponseWriter, r *http.Request) {
	ran, err := h.deps.Refresh(r.Context())
	if !ran && err == nil {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "refresh already in progress"})
		return
	}
	if err != nil {
		h.internalError(w, r, "refresh failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "published"})
}

func (h *handler) enqueueReport(w http.ResponseWriter, r *http.Request) {
	var req report.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed JSON body"})
		return
	}

	status, err := h.deps.Reports.Enqueue(r.Context(), req)
	if err != nil {
		if errors.Is(err, report.ErrInvalidRequest) {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid sales report request", Fields: fieldErrors(err)})
			return
		}
		if errors.Is(err, report.ErrClosed) {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "sales reports are shutting down"})
			return
		}
		h.internalError(w, r, "sales report enqueue failed", err)
		return
	}

	w.Header().Set("Location", "/admin/sales_reports/"+status.ID)
	writeJSON(w, http.StatusAccepted, status)
}

func (h *handler) reportStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.deps.Reports.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.reportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) reportCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := h.deps.Reports.CSV(r.Context(), id)
	if err != nil {
		h.reportError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sales_report_`+id+`.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handler) reportError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, report.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "sales report not found"})
	case errors.Is(err, report.ErrNotReady):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "sales report not ready"})
	default:
		h.internalError(w, r, "sales report unavailable", err)
	}
}

func fieldErrors(err error) map[string]string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for field, ferr := range verrs {
		fields[field] = ferr.Error()
	}
	return fields
}

func (h *handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.log(r).Error(msg, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: msg})
}

func (h *handler) log(r *http.Request) *zap.Logger {
	return logging.FromContext(r.Context(), h.logger)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
