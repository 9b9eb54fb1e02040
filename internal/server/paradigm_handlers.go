package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/analyzerhq/analyzer-console/internal/services/engine"
	"github.com/analyzerhq/analyzer-console/internal/services/paradigm"
)

// ParadigmHandlers serves the /api/paradigms routes
type ParadigmHandlers struct {
	server *Server
}

func NewParadigmHandlers(server *Server) *ParadigmHandlers {
	return &ParadigmHandlers{server: server}
}

func (h *ParadigmHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	paradigms, err := h.server.services.Paradigms.List(r.Context(), q.Get("status"), q.Get("search"))
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"paradigms": paradigms,
		"total":     len(paradigms),
	})
}

func (h *ParadigmHandlers) Get(w http.ResponseWriter, r *http.Request) {
	paradigmKey := mux.Vars(r)["paradigm_key"]
	p, err := h.server.services.Paradigms.Get(r.Context(), paradigmKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, p)
}

func (h *ParadigmHandlers) Primer(w http.ResponseWriter, r *http.Request) {
	paradigmKey := mux.Vars(r)["paradigm_key"]
	p, err := h.server.services.Paradigms.Get(r.Context(), paradigmKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"paradigm_key": p.ParadigmKey,
		"primer":       p.Primer(),
	})
}

// Engines lists the engines declaring this paradigm in their paradigm_keys
func (h *ParadigmHandlers) Engines(w http.ResponseWriter, r *http.Request) {
	paradigmKey := mux.Vars(r)["paradigm_key"]
	if _, err := h.server.services.Paradigms.Get(r.Context(), paradigmKey); err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	engines, total, err := h.server.services.Engines.List(r.Context(), engine.ListFilter{Paradigm: paradigmKey})
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"paradigm_key": paradigmKey,
		"engines":      engines,
		"total":        total,
	})
}

func (h *ParadigmHandlers) CritiquePatterns(w http.ResponseWriter, r *http.Request) {
	paradigmKey := mux.Vars(r)["paradigm_key"]
	p, err := h.server.services.Paradigms.Get(r.Context(), paradigmKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"paradigm_key":      p.ParadigmKey,
		"critique_patterns": p.CritiquePatterns,
	})
}

func (h *ParadigmHandlers) GetLayer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	paradigmKey := vars["paradigm_key"]
	layerName := vars["layer_name"]

	if !paradigm.IsValidLayerName(layerName) {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid layer name: "+layerName)
		return
	}

	p, err := h.server.services.Paradigms.Get(r.Context(), paradigmKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"paradigm_key": p.ParadigmKey,
		"layer":        layerName,
		"data":         p.Layer(layerName),
	})
}

func (h *ParadigmHandlers) UpdateLayer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	paradigmKey := vars["paradigm_key"]
	layerName := vars["layer_name"]

	var layerData map[string]interface{}
	if err := decodeJSONBody(r, &layerData); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.server.services.Paradigms.UpdateLayer(r.Context(), paradigmKey, layerName, layerData)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, p)
}

func (h *ParadigmHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req paradigm.CreateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParadigmKey == "" || req.ParadigmName == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "paradigm_key and paradigm_name are required")
		return
	}

	p, err := h.server.services.Paradigms.Create(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusCreated, p)
}

func (h *ParadigmHandlers) Update(w http.ResponseWriter, r *http.Request) {
	paradigmKey := mux.Vars(r)["paradigm_key"]
	var req paradigm.UpdateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.server.services.Paradigms.Update(r.Context(), paradigmKey, req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, p)
}

func (h *ParadigmHandlers) Archive(w http.ResponseWriter, r *http.Request) {
	paradigmKey := mux.Vars(r)["paradigm_key"]
	if err := h.server.services.Paradigms.Archive(r.Context(), paradigmKey); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Paradigm archived",
	})
}

// CreateBranch creates a pending branch paradigm derived from a parent
func (h *ParadigmHandlers) CreateBranch(w http.ResponseWriter, r *http.Request) {
	parentKey := mux.Vars(r)["paradigm_key"]
	var req paradigm.BranchRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParadigmKey == "" || req.SynthesisDirective == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "paradigm_key and synthesis_directive are required")
		return
	}

	p, err := h.server.services.Paradigms.CreateBranch(r.Context(), parentKey, req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusCreated, p)
}

// GenerateBranch runs the field-by-field branch generation workflow
func (h *ParadigmHandlers) GenerateBranch(w http.ResponseWriter, r *http.Request) {
	paradigmKey := mux.Vars(r)["paradigm_key"]
	result, err := h.server.services.Generator.Generate(r.Context(), paradigmKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, result)
}

// BranchProgress re-derives per-field generation progress from current state
func (h *ParadigmHandlers) BranchProgress(w http.ResponseWriter, r *http.Request) {
	paradigmKey := mux.Vars(r)["paradigm_key"]
	p, err := h.server.services.Paradigms.Get(r.Context(), paradigmKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, paradigm.DeriveProgress(p))
}
