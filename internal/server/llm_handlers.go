package server

import (
	"net/http"

	"github.com/analyzerhq/analyzer-console/internal/llm"
)

// LLMHandlers serves the /api/llm routes
type LLMHandlers struct {
	server *Server
}

func NewLLMHandlers(server *Server) *LLMHandlers {
	return &LLMHandlers{server: server}
}

func (h *LLMHandlers) ParadigmSuggestions(w http.ResponseWriter, r *http.Request) {
	var req llm.ParadigmSuggestionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParadigmKey == "" || req.Query == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "paradigm_key and query are required")
		return
	}

	resp, err := h.server.services.Helpers.ParadigmSuggestions(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *LLMHandlers) ImprovePrompt(w http.ResponseWriter, r *http.Request) {
	var req llm.PromptImproveRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EngineKey == "" || req.PromptType == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "engine_key and prompt_type are required")
		return
	}

	resp, err := h.server.services.Helpers.ImprovePrompt(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *LLMHandlers) ValidateSchema(w http.ResponseWriter, r *http.Request) {
	var req llm.SchemaValidateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EngineKey == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "engine_key is required")
		return
	}

	resp, err := h.server.services.Helpers.ValidateSchema(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *LLMHandlers) CompareParadigms(w http.ResponseWriter, r *http.Request) {
	var req llm.CompareParadigmsRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParadigmA == "" || req.ParadigmB == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "paradigm_a and paradigm_b are required")
		return
	}

	resp, err := h.server.services.Helpers.CompareParadigms(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *LLMHandlers) GenerateCritiquePatterns(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParadigmKey string `json:"paradigm_key"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParadigmKey == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "paradigm_key is required")
		return
	}

	resp, err := h.server.services.Helpers.GenerateCritiquePatterns(r.Context(), req.ParadigmKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *LLMHandlers) GenerateProfile(w http.ResponseWriter, r *http.Request) {
	var req llm.ProfileGenerateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EngineKey == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "engine_key is required")
		return
	}

	resp, err := h.server.services.Helpers.GenerateProfile(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *LLMHandlers) ImproveStageContext(w http.ResponseWriter, r *http.Request) {
	var req llm.StageContextImproveRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EngineKey == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "engine_key is required")
		return
	}

	resp, err := h.server.services.Helpers.ImproveStageContext(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, resp)
}
