package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stanstork/safeme-sync/internal/network"
)

type Reachability interface {
	Reachable(ctx context.Context) bool
}

type ImmediateScheduler interface {
	ScheduleImmediate(ctx context.Context) error
}

type ConnectivityMonitor interface {
	Signal()
	State() network.State
}

type SyncHandler struct {
	network   Reachability
	scheduler ImmediateScheduler
	monitor   ConnectivityMonitor
	logger    zerolog.Logger
}

func NewSyncHandler(reach Reachability, scheduler ImmediateScheduler, monitor ConnectivityMonitor, logger zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		network:   reach,
		scheduler: scheduler,
		monitor:   monitor,
		logger:    logger.With().Str("handler", "sync").Logger(),
	}
}

// SyncNow queues an immediate sync pass.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if !h.network.Reachable(r.Context()) {
		http.Error(w, "No internet connection", http.StatusServiceUnavailable)
		return
	}
	if err := h.scheduler.ScheduleImmediate(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("failed to schedule sync")
		http.Error(w, "Failed to schedule sync", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Sync scheduled"})
}

// ConnectivityChanged is the connectivity broadcast entry point.
func (h *SyncHandler) ConnectivityChanged(w http.ResponseWriter, r *http.Request) {
	h.monitor.Signal()
	w.WriteHeader(http.StatusAccepted)
}

func (h *SyncHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.State())
}
