package dashboardhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/gymops/gymops/internal/platform/httpx"
)

// MountRoutes registers the dashboard endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	recomputeLimiter := httprate.Limit(2, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "ranking recompute already requested recently")
		}),
	)

	r.Route("/calendar", func(cr chi.Router) {
		cr.Get("/", h.handleRange)
		cr.Route("/{date}", func(dr chi.Router) {
			dr.Get("/", h.handleDay)
			dr.Get("/changes", h.handleChanges)
			dr.Post("/sessions", h.handleAddSession)
			dr.Put("/sessions/{index}", h.handleModifySession)
			dr.Delete("/sessions/{index}", h.handleDeleteSession)
			dr.Delete("/override", h.handleRestore)
		})
	})
	r.Get("/stats", h.handleStats)
	r.Get("/discrepancies", h.handleDiscrepancies)
	r.Get("/members/{id}/summary", h.handleMemberSummary)
	r.Get("/centers/{id}/summary", h.handleCenterSummary)
	r.Group(func(gr chi.Router) {
		gr.Use(recomputeLimiter)
		gr.Post("/rankings/recompute", h.handleRecompute)
	})
}
