// Package httpapi exposes admin search, the unreviewed-users snapshot and
// sales report jobs over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/goliatone/go-admin-search/paginate"
	"github.com/goliatone/go-admin-search/report"
	"github.com/goliatone/go-admin-search/review"
	"github.com/goliatone/go-admin-search/search"
	"github.com/goliatone/go-admin-search/snapshot"
)

// Searcher runs admin searches.
type Searcher interface {
	SearchPurchases(ctx context.Context, criteria search.PurchaseCriteria, req paginate.Request) (paginate.ResultSet[search.Purchase], error)
	SearchUsers(ctx context.Context, criteria search.UserCriteria, req paginate.Request) (paginate.ResultSet[search.User], error)
}

// SnapshotReader returns the last published unreviewed-users document.
type SnapshotReader interface {
	Read(ctx context.Context) (review.UnreviewedUsers, bool, error)
}

// ReportQueue starts sales report jobs and serves their results.
type ReportQueue interface {
	Enqueue(ctx context.Context, req report.Request) (report.Status, error)
	Status(ctx context.Context, id string) (report.Status, error)
	CSV(ctx context.Context, id string) ([]byte, error)
}

// RefreshFunc recomputes the unreviewed-users snapshot now. ran is false
// when a computation was already in progress.
type RefreshFunc func(ctx context.Context) (ran bool, err error)

// Deps are the collaborators of the router. Nil optional collaborators
// disable their routes.
type Deps struct {
	Search     Searcher
	Unreviewed SnapshotReader
	Settings   snapshot.Store
	Refresh    RefreshFunc
	Reports    ReportQueue
	Metrics    http.Handler
	// MetricsPath defaults to /metrics.
	MetricsPath string
	// Health reports dependency failures; nil means always healthy.
	Health func(ctx context.Context) error
	// DefaultPerPage and MaxPerPage bound the snapshot listing.
	DefaultPerPage int
	MaxPerPage     int
	// RequestTimeout bounds every request; zero disables it.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

type handler struct {
	deps   Deps
	logger *zap.Logger
}

// NewRouter returns the chi router serving every admin route.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	h := &handler{deps: deps, logger: deps.Logger}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(deps.Logger))
	r.Use(middleware.Recoverer)
	if deps.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.RequestTimeout))
	}

	r.Get("/healthz", h.health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, deps.MetricsPath, deps.Metrics)
	}

	r.Route("/admin", func(r chi.Router) {
		if deps.Search != nil {
			r.Get("/search/purchases", h.searchPurchases)
			r.Get("/search/users", h.searchUsers)
		}
		if deps.Unreviewed != nil {
			r.Get("/unreviewed_users", h.unreviewedUsers)
		}
		if deps.Settings != nil {
			r.Put("/unreviewed_users/cutoff_date", h.setCutoff)
		}
		if deps.Refresh != nil {
			r.Post("/unreviewed_users/refresh", h.refreshUnreviewed)
		}
		if deps.Reports != nil {
			r.Post("/sales_reports", h.enqueueReport)
			r.Get("/sales_reports/{id}", h.reportStatus)
			r.Get("/sales_reports/{id}/csv", h.reportCSV)
		}
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health(r.Context()); err != nil {
			h.log(r).Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
