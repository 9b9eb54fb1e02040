package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/analyzerhq/analyzer-console/internal/services/grid"
)

// GridHandlers serves the /api/grids routes
type GridHandlers struct {
	server *Server
}

func NewGridHandlers(server *Server) *GridHandlers {
	return &GridHandlers{server: server}
}

// verifyAPIKey checks the X-API-Key header on consumer-facing grid writes.
// An empty configured key means open access.
func (h *GridHandlers) verifyAPIKey(r *http.Request) bool {
	configured := h.server.config.GridsAPIKey
	if configured == "" {
		return true
	}
	return r.Header.Get("X-API-Key") == configured
}

func (h *GridHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	grids, err := h.server.services.Grids.List(r.Context(), q.Get("track"), q.Get("status"))
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"grids": grids,
		"total": len(grids),
	})
}

func (h *GridHandlers) Get(w http.ResponseWriter, r *http.Request) {
	gridKey := mux.Vars(r)["grid_key"]
	g, err := h.server.services.Grids.Get(r.Context(), gridKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, g)
}

func (h *GridHandlers) Dimensions(w http.ResponseWriter, r *http.Request) {
	gridKey := mux.Vars(r)["grid_key"]
	d, err := h.server.services.Grids.Dimensions(r.Context(), gridKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, d)
}

func (h *GridHandlers) Versions(w http.ResponseWriter, r *http.Request) {
	gridKey := mux.Vars(r)["grid_key"]
	current, versions, err := h.server.services.Grids.Versions(r.Context(), gridKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"grid_key":        gridKey,
		"current_version": current,
		"versions":        versions,
	})
}

func (h *GridHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req grid.CreateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GridKey == "" || req.GridName == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "grid_key and grid_name are required")
		return
	}

	g, err := h.server.services.Grids.Create(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusCreated, g)
}

func (h *GridHandlers) Update(w http.ResponseWriter, r *http.Request) {
	gridKey := mux.Vars(r)["grid_key"]
	var req grid.UpdateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	g, err := h.server.services.Grids.Update(r.Context(), gridKey, req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, g)
}

func (h *GridHandlers) Archive(w http.ResponseWriter, r *http.Request) {
	gridKey := mux.Vars(r)["grid_key"]
	if err := h.server.services.Grids.Archive(r.Context(), gridKey); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Grid archived",
	})
}

// SubmitWildcard accepts a dimension suggestion from a consumer project
func (h *GridHandlers) SubmitWildcard(w http.ResponseWriter, r *http.Request) {
	if !h.verifyAPIKey(r) {
		h.server.writeErrorResponse(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	gridKey := mux.Vars(r)["grid_key"]
	var req grid.WildcardRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.DimensionType == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "name and dimension_type are required")
		return
	}

	wildcard, err := h.server.services.Grids.SubmitWildcard(r.Context(), gridKey, req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusCreated, wildcard)
}

func (h *GridHandlers) ListWildcards(w http.ResponseWriter, r *http.Request) {
	gridKey := mux.Vars(r)["grid_key"]
	q := r.URL.Query()

	wildcards, err := h.server.services.Grids.Wildcards(r.Context(), gridKey, q.Get("status"), q.Get("scope"))
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"grid_key":  gridKey,
		"wildcards": wildcards,
		"total":     len(wildcards),
	})
}

func (h *GridHandlers) PromoteWildcard(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	wildcard, err := h.server.services.Grids.PromoteWildcard(r.Context(), vars["grid_key"], vars["wildcard_id"])
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, wildcard)
}

func (h *GridHandlers) RejectWildcard(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	wildcard, err := h.server.services.Grids.RejectWildcard(r.Context(), vars["grid_key"], vars["wildcard_id"])
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, wildcard)
}

func (h *GridHandlers) AddWildcardToGrid(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := h.server.services.Grids.AddWildcardToGrid(r.Context(), vars["grid_key"], vars["wildcard_id"])
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, result)
}
