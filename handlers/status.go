package handlers

import (
	"net/http"
	"time"

	"smartlists/services/coordinator"
	"smartlists/services/events"
	"smartlists/services/scheduler"
)

type coordinatorStatus interface {
	Stats() coordinator.Stats
	Pending() []coordinator.PendingRefresh
}

var _ coordinatorStatus = (*coordinator.Coordinator)(nil)

type hubStatus interface {
	Stats() events.Stats
}

var _ hubStatus = (*events.Hub)(nil)

type scheduleStatus interface {
	Status() []scheduler.Status
}

var _ scheduleStatus = (*scheduler.Service)(nil)

type StatusHandler struct {
	Coordinator coordinatorStatus
	Events      hubStatus
	// Schedules is optional.
	Schedules scheduleStatus
	started   time.Time
}

func NewStatusHandler(c coordinatorStatus, hub hubStatus) *StatusHandler {
	return &StatusHandler{Coordinator: c, Events: hub, started: time.Now()}
}

func (h *StatusHandler) Get(w http.ResponseWriter, _ *http.Request) {
	pending := h.Coordinator.Pending()
	if pending == nil {
		pending = []coordinator.PendingRefresh{}
	}
	schedules := []scheduler.Status{}
	if h.Schedules != nil {
		schedules = append(schedules, h.Schedules.Status()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
		"coordinator":   h.Coordinator.Stats(),
		"pending":       pending,
		"events":        h.Events.Stats(),
		"schedules":     schedules,
	})
}
