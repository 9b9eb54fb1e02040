package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/analyzerhq/analyzer-console/internal/services/consumer"
)

// ConsumerHandlers serves the /api/consumers routes
type ConsumerHandlers struct {
	server *Server
}

func NewConsumerHandlers(server *Server) *ConsumerHandlers {
	return &ConsumerHandlers{server: server}
}

func (h *ConsumerHandlers) List(w http.ResponseWriter, r *http.Request) {
	consumers, err := h.server.services.Consumers.List(r.Context(), r.URL.Query().Get("consumer_type"))
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"consumers": consumers,
		"total":     len(consumers),
	})
}

func (h *ConsumerHandlers) Get(w http.ResponseWriter, r *http.Request) {
	consumerID := mux.Vars(r)["consumer_id"]
	c, err := h.server.services.Consumers.Get(r.Context(), consumerID)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, c)
}

func (h *ConsumerHandlers) Dependencies(w http.ResponseWriter, r *http.Request) {
	consumerID := mux.Vars(r)["consumer_id"]
	deps, err := h.server.services.Consumers.Dependencies(r.Context(), consumerID, r.URL.Query().Get("construct_type"))
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"consumer_id":  consumerID,
		"dependencies": deps,
		"total":        len(deps),
	})
}

// ByConstruct lists the consumers actively depending on a construct
func (h *ConsumerHandlers) ByConstruct(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	constructType := vars["construct_type"]
	constructKey := vars["construct_key"]

	consumers, err := h.server.services.Consumers.ByConstruct(r.Context(), constructType, constructKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"construct_type": constructType,
		"construct_key":  constructKey,
		"consumers":      consumers,
		"total":          len(consumers),
	})
}

func (h *ConsumerHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req consumer.RegisterRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.ConsumerType == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "name and consumer_type are required")
		return
	}

	c, err := h.server.services.Consumers.Register(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusCreated, c)
}

func (h *ConsumerHandlers) Update(w http.ResponseWriter, r *http.Request) {
	consumerID := mux.Vars(r)["consumer_id"]
	var req consumer.UpdateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.server.services.Consumers.Update(r.Context(), consumerID, req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, c)
}

func (h *ConsumerHandlers) AddDependency(w http.ResponseWriter, r *http.Request) {
	consumerID := mux.Vars(r)["consumer_id"]
	var req consumer.DependencyRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConstructType == "" || req.ConstructKey == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "construct_type and construct_key are required")
		return
	}

	dep, err := h.server.services.Consumers.AddDependency(r.Context(), consumerID, req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusCreated, dep)
}

func (h *ConsumerHandlers) RemoveDependency(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.server.services.Consumers.RemoveDependency(r.Context(), vars["consumer_id"], vars["dependency_id"]); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Dependency deactivated",
	})
}

func (h *ConsumerHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	consumerID := mux.Vars(r)["consumer_id"]
	if err := h.server.services.Consumers.Delete(r.Context(), consumerID); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Consumer deleted",
	})
}
