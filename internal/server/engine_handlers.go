package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/analyzerhq/analyzer-console/internal/composer"
	"github.com/analyzerhq/analyzer-console/internal/services/engine"
)

// EngineHandlers serves the /api/engines routes
type EngineHandlers struct {
	server *Server
}

func NewEngineHandlers(server *Server) *EngineHandlers {
	return &EngineHandlers{server: server}
}

func (h *EngineHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := engine.ListFilter{
		Category: q.Get("category"),
		Kind:     q.Get("kind"),
		Paradigm: q.Get("paradigm"),
		Status:   q.Get("status"),
		Search:   q.Get("search"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	engines, total, err := h.server.services.Engines.List(r.Context(), filter)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"engines": engines,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func (h *EngineHandlers) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.server.services.Engines.Categories(r.Context())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

func (h *EngineHandlers) Get(w http.ResponseWriter, r *http.Request) {
	engineKey := mux.Vars(r)["engine_key"]
	e, err := h.server.services.Engines.Get(r.Context(), engineKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, e)
}

func (h *EngineHandlers) Versions(w http.ResponseWriter, r *http.Request) {
	engineKey := mux.Vars(r)["engine_key"]
	current, versions, err := h.server.services.Engines.Versions(r.Context(), engineKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"engine_key":      engineKey,
		"current_version": current,
		"versions":        versions,
	})
}

func (h *EngineHandlers) ExtractionPrompt(w http.ResponseWriter, r *http.Request) {
	h.storedPrompt(w, r, "extraction")
}

func (h *EngineHandlers) CurationPrompt(w http.ResponseWriter, r *http.Request) {
	h.storedPrompt(w, r, "curation")
}

func (h *EngineHandlers) storedPrompt(w http.ResponseWriter, r *http.Request, promptType string) {
	engineKey := mux.Vars(r)["engine_key"]
	e, err := h.server.services.Engines.Get(r.Context(), engineKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	var prompt *string
	if promptType == "extraction" {
		prompt = e.ExtractionPrompt
	} else {
		prompt = e.CurationPrompt
	}
	if prompt == nil || *prompt == "" {
		h.server.writeErrorResponse(w, http.StatusNotFound, "prompt not found")
		return
	}

	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"engine_key":  e.EngineKey,
		"engine_name": e.EngineName,
		"prompt_type": promptType,
		"prompt":      *prompt,
	})
}

// ComposedPrompt renders a stage prompt from the engine's stage context,
// falling back to the legacy stored prompt when composition fails
func (h *EngineHandlers) ComposedPrompt(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	engineKey := vars["engine_key"]
	stage := vars["stage"]

	if !composer.ValidStage(stage) {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid stage: "+stage)
		return
	}

	e, err := h.server.services.Engines.Get(r.Context(), engineKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}

	result, err := h.server.services.Composer.Compose(composer.Request{
		Stage:           stage,
		EngineKey:       e.EngineKey,
		StageContext:    e.StageContext,
		Audience:        r.URL.Query().Get("audience"),
		CanonicalSchema: e.CanonicalSchema,
	})
	if err == nil {
		h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"engine_key":     e.EngineKey,
			"stage":          result.Stage,
			"audience":       result.Audience,
			"prompt":         result.Prompt,
			"framework_used": result.FrameworkUsed,
			"skipped":        result.Skipped,
			"composed":       true,
		})
		return
	}

	var legacy *string
	switch stage {
	case composer.StageExtraction:
		legacy = e.ExtractionPrompt
	case composer.StageCuration:
		legacy = e.CurationPrompt
	case composer.StageConcretization:
		legacy = e.ConcretizationPrompt
	}
	if legacy == nil || *legacy == "" {
		h.server.writeServiceError(w, err)
		return
	}

	h.server.logger.Warnf("Prompt composition failed for %s/%s, serving legacy prompt: %v", engineKey, stage, err)
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"engine_key": e.EngineKey,
		"stage":      stage,
		"prompt":     *legacy,
		"composed":   false,
	})
}

func (h *EngineHandlers) Schema(w http.ResponseWriter, r *http.Request) {
	engineKey := mux.Vars(r)["engine_key"]
	e, err := h.server.services.Engines.Get(r.Context(), engineKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"engine_key":       e.EngineKey,
		"version":          e.Version,
		"canonical_schema": e.CanonicalSchema,
	})
}

func (h *EngineHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req engine.CreateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EngineKey == "" || req.EngineName == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "engine_key and engine_name are required")
		return
	}

	e, err := h.server.services.Engines.Create(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusCreated, e)
}

func (h *EngineHandlers) Update(w http.ResponseWriter, r *http.Request) {
	engineKey := mux.Vars(r)["engine_key"]
	var req engine.UpdateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, err := h.server.services.Engines.Update(r.Context(), engineKey, req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, e)
}

func (h *EngineHandlers) Archive(w http.ResponseWriter, r *http.Request) {
	engineKey := mux.Vars(r)["engine_key"]
	if err := h.server.services.Engines.Archive(r.Context(), engineKey); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Engine archived",
	})
}

func (h *EngineHandlers) Restore(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	engineKey := vars["engine_key"]
	version, err := strconv.Atoi(vars["version"])
	if err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid version number")
		return
	}

	e, err := h.server.services.Engines.Restore(r.Context(), engineKey, version)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, e)
}
