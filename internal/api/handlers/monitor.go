package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"gaswatch/internal/core"
	"gaswatch/internal/scheduler"
	"gaswatch/internal/types"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 500
)

// CycleReporter exposes the monitor loop's last cycle.
type CycleReporter interface {
	LastCycle() (scheduler.CycleReport, bool)
	Interval() time.Duration
}

// EventLister reads persisted classification history.
type EventLister interface {
	ListRecent(ctx context.Context, limit int) ([]types.ClassificationEvent, error)
}

// MonitorHandler serves monitor loop status and classification history.
// Both dependencies are optional; their routes are only mounted when set.
type MonitorHandler struct {
	monitor CycleReporter
	events  EventLister
	logger  *slog.Logger
}

// NewMonitorHandler creates a MonitorHandler.
func NewMonitorHandler(monitor CycleReporter, events EventLister, logger *slog.Logger) *MonitorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorHandler{monitor: monitor, events: events, logger: logger}
}

// RegisterRoutes mounts the monitor endpoints onto the /v1 router.
func (h *MonitorHandler) RegisterRoutes(r chi.Router) {
	if h.monitor != nil {
		r.Get("/monitor/status", h.HandleStatus)
	}
	if h.events != nil {
		r.Get("/classification/events", h.HandleEvents)
	}
}

type monitorStatusResponse struct {
	Interval  string                 `json:"interval"`
	LastCycle *scheduler.CycleReport `json:"last_cycle"`
	LastError string                 `json:"last_error,omitempty"`
}

// HandleStatus handles GET /v1/monitor/status.
func (h *MonitorHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := monitorStatusResponse{Interval: h.monitor.Interval().String()}
	if last, ok := h.monitor.LastCycle(); ok {
		resp.LastCycle = &last
		if last.Err != nil {
			resp.LastError = last.Err.Error()
		}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// HandleEvents handles GET /v1/classification/events?limit=N.
func (h *MonitorHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventsLimit {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidLimit,
				"limit must be an integer between 1 and 500",
				err,
			))
			return
		}
		limit = n
	}

	events, err := h.events.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list classification events", "error", err)
		core.Error(w, r, err)
		return
	}
	if events == nil {
		events = []types.ClassificationEvent{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: events})
}
