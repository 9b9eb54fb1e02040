package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/analyzerhq/analyzer-console/internal/services/change"
)

// ChangeHandlers serves the /api/changes routes
type ChangeHandlers struct {
	server *Server
}

func NewChangeHandlers(server *Server) *ChangeHandlers {
	return &ChangeHandlers{server: server}
}

func (h *ChangeHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := change.ListFilter{
		ConstructType: q.Get("construct_type"),
		ConstructKey:  q.Get("construct_key"),
		ChangeType:    q.Get("change_type"),
		Status:        q.Get("status"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	events, err := h.server.services.Changes.List(r.Context(), filter)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"changes": events,
		"total":   len(events),
	})
}

func (h *ChangeHandlers) Get(w http.ResponseWriter, r *http.Request) {
	changeID := mux.Vars(r)["change_id"]
	event, err := h.server.services.Changes.Get(r.Context(), changeID)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, event)
}

func (h *ChangeHandlers) History(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.server.services.Changes.History(r.Context(), vars["construct_type"], vars["construct_key"], limit)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"construct_type": vars["construct_type"],
		"construct_key":  vars["construct_key"],
		"changes":        events,
		"total":          len(events),
	})
}

func (h *ChangeHandlers) Notifications(w http.ResponseWriter, r *http.Request) {
	changeID := mux.Vars(r)["change_id"]
	notifications, err := h.server.services.Changes.Notifications(r.Context(), changeID)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"change_id":     changeID,
		"notifications": notifications,
		"total":         len(notifications),
	})
}

func (h *ChangeHandlers) Record(w http.ResponseWriter, r *http.Request) {
	var req change.RecordRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConstructType == "" || req.ConstructKey == "" || req.ChangeType == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "construct_type, construct_key and change_type are required")
		return
	}

	event, err := h.server.services.Changes.Record(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusCreated, event)
}

func (h *ChangeHandlers) Propagate(w http.ResponseWriter, r *http.Request) {
	changeID := mux.Vars(r)["change_id"]
	notifyOnly := r.URL.Query().Get("notify_only") == "true"

	result, err := h.server.services.Changes.Propagate(r.Context(), changeID, notifyOnly)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, result)
}

func (h *ChangeHandlers) Acknowledge(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req struct {
		Action  string  `json:"action"`
		Message *string `json:"message,omitempty"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	notification, err := h.server.services.Changes.Acknowledge(r.Context(), vars["change_id"], vars["consumer_id"], req.Action, req.Message)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, notification)
}

func (h *ChangeHandlers) MigrationHints(w http.ResponseWriter, r *http.Request) {
	changeID := mux.Vars(r)["change_id"]
	event, hints, err := h.server.services.Changes.MigrationHints(r.Context(), changeID)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"change_id":      event.ID,
		"construct_type": event.ConstructType,
		"construct_key":  event.ConstructKey,
		"hints":          hints,
	})
}
