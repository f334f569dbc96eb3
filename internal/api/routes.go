package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Runs
	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.CreateRun)))
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/v1/runs/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))

	// Progress
	mux.Handle("GET /api/v1/runs/{id}/events", chain(http.HandlerFunc(h.ListRunEvents)))
	mux.Handle("GET /api/v1/runs/{id}/snapshot", chain(http.HandlerFunc(h.GetRunSnapshot)))
	mux.Handle("GET /api/v1/runs/{id}/watch", chain(http.HandlerFunc(h.WatchRun)))

	// Manifests
	mux.Handle("GET /api/v1/manifests", chain(http.HandlerFunc(h.ListManifests)))
	mux.Handle("GET /api/v1/manifests/{name}", chain(http.HandlerFunc(h.GetManifest)))
	mux.Handle("POST /api/v1/manifests/validate", chain(http.HandlerFunc(h.ValidateManifest)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}", chain(http.HandlerFunc(h.UpdateSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))
}
