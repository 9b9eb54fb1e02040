package server

import (
	"net/http"
	"time"

	"github.com/analyzerhq/analyzer-console/internal/services/engine"
)

// StatsHandlers serves the health and stats endpoints
type StatsHandlers struct {
	server *Server
}

func NewStatsHandlers(server *Server) *StatsHandlers {
	return &StatsHandlers{server: server}
}

func (h *StatsHandlers) Health(w http.ResponseWriter, r *http.Request) {
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"service": "analyzer-console",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats reports entity counts across the catalog
func (h *StatsHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	_, engineTotal, err := h.server.services.Engines.List(ctx, engine.ListFilter{Limit: 1})
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	paradigms, err := h.server.services.Paradigms.List(ctx, "", "")
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	pipelines, err := h.server.services.Pipelines.List(ctx, "", "")
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	consumers, err := h.server.services.Consumers.List(ctx, "")
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	grids, err := h.server.services.Grids.List(ctx, "", "")
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	pendingChanges, err := h.server.services.Changes.PendingCount(ctx)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"engines":         engineTotal,
		"paradigms":       len(paradigms),
		"pipelines":       len(pipelines),
		"consumers":       len(consumers),
		"grids":           len(grids),
		"pending_changes": pendingChanges,
	})
}
