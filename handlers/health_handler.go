package handlers

import (
	"net/http"

	"github.com/Dosada05/pong-arena/services"
)

// HealthHandler reports liveness together with the live session counts.
type HealthHandler struct {
	registry *services.Registry
	queue    *services.MatchmakingQueue
}

func NewHealthHandler(registry *services.Registry, queue *services.MatchmakingQueue) *HealthHandler {
	return &HealthHandler{registry: registry, queue: queue}
}

func (h *HealthHandler) CheckHandler(w http.ResponseWriter, r *http.Request) {
	env := jsonResponse{
		"status":      "available",
		"instance_id": h.registry.InstanceID(),
		"matches":     len(h.registry.Matches()),
		"tournaments": len(h.registry.Tournaments()),
		"queued":      h.queue.Len(),
	}
	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
