package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/analyzerhq/analyzer-console/internal/services/pipeline"
)

// PipelineHandlers serves the /api/pipelines routes
type PipelineHandlers struct {
	server *Server
}

func NewPipelineHandlers(server *Server) *PipelineHandlers {
	return &PipelineHandlers{server: server}
}

func (h *PipelineHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pipelines, err := h.server.services.Pipelines.List(r.Context(), q.Get("category"), q.Get("status"))
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pipelines": pipelines,
		"total":     len(pipelines),
	})
}

func (h *PipelineHandlers) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.server.services.Pipelines.Categories(r.Context())
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

func (h *PipelineHandlers) Get(w http.ResponseWriter, r *http.Request) {
	pipelineKey := mux.Vars(r)["pipeline_key"]
	p, err := h.server.services.Pipelines.Get(r.Context(), pipelineKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, p)
}

func (h *PipelineHandlers) Stages(w http.ResponseWriter, r *http.Request) {
	pipelineKey := mux.Vars(r)["pipeline_key"]
	p, err := h.server.services.Pipelines.Get(r.Context(), pipelineKey)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pipeline_key": p.PipelineKey,
		"stages":       p.Stages,
	})
}

func (h *PipelineHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req pipeline.CreateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PipelineKey == "" || req.PipelineName == "" {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "pipeline_key and pipeline_name are required")
		return
	}

	p, err := h.server.services.Pipelines.Create(r.Context(), req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusCreated, p)
}

func (h *PipelineHandlers) Update(w http.ResponseWriter, r *http.Request) {
	pipelineKey := mux.Vars(r)["pipeline_key"]
	var req pipeline.UpdateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.server.services.Pipelines.Update(r.Context(), pipelineKey, req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, p)
}

func (h *PipelineHandlers) AddStage(w http.ResponseWriter, r *http.Request) {
	pipelineKey := mux.Vars(r)["pipeline_key"]
	var req pipeline.StageRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stage, err := h.server.services.Pipelines.AddStage(r.Context(), pipelineKey, req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusCreated, stage)
}

func (h *PipelineHandlers) UpdateStage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pipelineKey := vars["pipeline_key"]
	stageOrder, err := strconv.Atoi(vars["stage_order"])
	if err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid stage order")
		return
	}

	var req pipeline.StageUpdateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stage, err := h.server.services.Pipelines.UpdateStage(r.Context(), pipelineKey, stageOrder, req)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, stage)
}

func (h *PipelineHandlers) DeleteStage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pipelineKey := vars["pipeline_key"]
	stageOrder, err := strconv.Atoi(vars["stage_order"])
	if err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid stage order")
		return
	}

	if err := h.server.services.Pipelines.DeleteStage(r.Context(), pipelineKey, stageOrder); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Stage deleted",
	})
}

func (h *PipelineHandlers) Reorder(w http.ResponseWriter, r *http.Request) {
	pipelineKey := mux.Vars(r)["pipeline_key"]
	var req struct {
		StageOrder []int `json:"stage_order"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		h.server.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.server.services.Pipelines.Reorder(r.Context(), pipelineKey, req.StageOrder)
	if err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, p)
}

func (h *PipelineHandlers) Archive(w http.ResponseWriter, r *http.Request) {
	pipelineKey := mux.Vars(r)["pipeline_key"]
	if err := h.server.services.Pipelines.Archive(r.Context(), pipelineKey); err != nil {
		h.server.writeServiceError(w, err)
		return
	}
	h.server.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Pipeline archived",
	})
}
