package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/veridianhq/veridian/pkg/scheduler"
)

// AdminHandlers exposes the lifecycle sweeps for operator-triggered runs.
// The scheduler binary drives the same sweeps on a cron cadence.
type AdminHandlers struct {
	sweeper *scheduler.Sweeper
}

// NewAdminHandlers creates a new AdminHandlers.
func NewAdminHandlers(sweeper *scheduler.Sweeper) *AdminHandlers {
	return &AdminHandlers{sweeper: sweeper}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/sweeps/trial-warnings", h.RunTrialWarnings).Methods("POST")
	router.HandleFunc("/admin/sweeps/expired-trials", h.RunExpiredTrials).Methods("POST")
	router.HandleFunc("/admin/sweeps/demo-cleanup", h.RunDemoCleanup).Methods("POST")
}

// RunTrialWarnings runs the trial warning sweep once.
func (h *AdminHandlers) RunTrialWarnings(w http.ResponseWriter, r *http.Request) {
	sent, err := h.sweeper.SendTrialWarnings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"warnings_sent": sent})
}

// RunExpiredTrials runs the expired trial lockout sweep once.
func (h *AdminHandlers) RunExpiredTrials(w http.ResponseWriter, r *http.Request) {
	locked, err := h.sweeper.ProcessExpiredTrials(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"trials_locked": locked})
}

// RunDemoCleanup runs the demo cleanup sweep once.
func (h *AdminHandlers) RunDemoCleanup(w http.ResponseWriter, r *http.Request) {
	count, err := h.sweeper.CleanupDemos(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"demos_deleted": count})
}
