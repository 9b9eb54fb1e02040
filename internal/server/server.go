package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/analyzerhq/analyzer-console/internal/composer"
	"github.com/analyzerhq/analyzer-console/internal/llm"
	"github.com/analyzerhq/analyzer-console/internal/services/change"
	"github.com/analyzerhq/analyzer-console/internal/services/consumer"
	"github.com/analyzerhq/analyzer-console/internal/services/engine"
	"github.com/analyzerhq/analyzer-console/internal/services/grid"
	"github.com/analyzerhq/analyzer-console/internal/services/paradigm"
	"github.com/analyzerhq/analyzer-console/internal/services/pipeline"
	"github.com/analyzerhq/analyzer-console/pkg/logger"
)

// Config holds the HTTP server settings
type Config struct {
	Port        int
	GridsAPIKey string
}

// Services bundles the service instances the server exposes
type Services struct {
	Engines   *engine.Service
	Paradigms *paradigm.Service
	Pipelines *pipeline.Service
	Consumers *consumer.Service
	Changes   *change.Service
	Grids     *grid.Service
	Generator *paradigm.Generator
	Composer  *composer.Composer
	Helpers   *llm.Helpers
}

// Server is the REST surface over the console services
type Server struct {
	config     Config
	router     *mux.Router
	httpServer *http.Server
	logger     *logger.Logger
	services   Services

	engineHandler   *EngineHandlers
	paradigmHandler *ParadigmHandlers
	pipelineHandler *PipelineHandlers
	consumerHandler *ConsumerHandlers
	changeHandler   *ChangeHandlers
	gridHandler     *GridHandlers
	llmHandler      *LLMHandlers
	statsHandler    *StatsHandlers
}

// NewServer creates the server and wires up all routes
func NewServer(cfg Config, services Services, logger *logger.Logger) *Server {
	s := &Server{
		config:   cfg,
		router:   mux.NewRouter(),
		logger:   logger,
		services: services,
	}
	s.engineHandler = NewEngineHandlers(s)
	s.paradigmHandler = NewParadigmHandlers(s)
	s.pipelineHandler = NewPipelineHandlers(s)
	s.consumerHandler = NewConsumerHandlers(s)
	s.changeHandler = NewChangeHandlers(s)
	s.gridHandler = NewGridHandlers(s)
	s.llmHandler = NewLLMHandlers(s)
	s.statsHandler = NewStatsHandlers(s)

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.statsHandler.Health).Methods(http.MethodGet)
	s.router.HandleFunc("/api/stats", s.statsHandler.Stats).Methods(http.MethodGet)

	engines := s.router.PathPrefix("/api/engines").Subrouter()
	engines.HandleFunc("", s.engineHandler.List).Methods(http.MethodGet)
	engines.HandleFunc("", s.engineHandler.Create).Methods(http.MethodPost)
	engines.HandleFunc("/categories", s.engineHandler.Categories).Methods(http.MethodGet)
	engines.HandleFunc("/{engine_key}", s.engineHandler.Get).Methods(http.MethodGet)
	engines.HandleFunc("/{engine_key}", s.engineHandler.Update).Methods(http.MethodPut)
	engines.HandleFunc("/{engine_key}", s.engineHandler.Archive).Methods(http.MethodDelete)
	engines.HandleFunc("/{engine_key}/versions", s.engineHandler.Versions).Methods(http.MethodGet)
	engines.HandleFunc("/{engine_key}/extraction-prompt", s.engineHandler.ExtractionPrompt).Methods(http.MethodGet)
	engines.HandleFunc("/{engine_key}/curation-prompt", s.engineHandler.CurationPrompt).Methods(http.MethodGet)
	engines.HandleFunc("/{engine_key}/prompt/{stage}", s.engineHandler.ComposedPrompt).Methods(http.MethodGet)
	engines.HandleFunc("/{engine_key}/schema", s.engineHandler.Schema).Methods(http.MethodGet)
	engines.HandleFunc("/{engine_key}/restore/{version}", s.engineHandler.Restore).Methods(http.MethodPost)

	paradigms := s.router.PathPrefix("/api/paradigms").Subrouter()
	paradigms.HandleFunc("", s.paradigmHandler.List).Methods(http.MethodGet)
	paradigms.HandleFunc("", s.paradigmHandler.Create).Methods(http.MethodPost)
	paradigms.HandleFunc("/{paradigm_key}", s.paradigmHandler.Get).Methods(http.MethodGet)
	paradigms.HandleFunc("/{paradigm_key}", s.paradigmHandler.Update).Methods(http.MethodPut)
	paradigms.HandleFunc("/{paradigm_key}", s.paradigmHandler.Archive).Methods(http.MethodDelete)
	paradigms.HandleFunc("/{paradigm_key}/primer", s.paradigmHandler.Primer).Methods(http.MethodGet)
	paradigms.HandleFunc("/{paradigm_key}/engines", s.paradigmHandler.Engines).Methods(http.MethodGet)
	paradigms.HandleFunc("/{paradigm_key}/critique-patterns", s.paradigmHandler.CritiquePatterns).Methods(http.MethodGet)
	paradigms.HandleFunc("/{paradigm_key}/layer/{layer_name}", s.paradigmHandler.GetLayer).Methods(http.MethodGet)
	paradigms.HandleFunc("/{paradigm_key}/layer/{layer_name}", s.paradigmHandler.UpdateLayer).Methods(http.MethodPut)
	paradigms.HandleFunc("/{paradigm_key}/branch", s.paradigmHandler.CreateBranch).Methods(http.MethodPost)
	paradigms.HandleFunc("/{paradigm_key}/generate-branch", s.paradigmHandler.GenerateBranch).Methods(http.MethodPost)
	paradigms.HandleFunc("/{paradigm_key}/branch-progress", s.paradigmHandler.BranchProgress).Methods(http.MethodGet)

	pipelines := s.router.PathPrefix("/api/pipelines").Subrouter()
	pipelines.HandleFunc("", s.pipelineHandler.List).Methods(http.MethodGet)
	pipelines.HandleFunc("", s.pipelineHandler.Create).Methods(http.MethodPost)
	pipelines.HandleFunc("/categories", s.pipelineHandler.Categories).Methods(http.MethodGet)
	pipelines.HandleFunc("/{pipeline_key}", s.pipelineHandler.Get).Methods(http.MethodGet)
	pipelines.HandleFunc("/{pipeline_key}", s.pipelineHandler.Update).Methods(http.MethodPut)
	pipelines.HandleFunc("/{pipeline_key}", s.pipelineHandler.Archive).Methods(http.MethodDelete)
	pipelines.HandleFunc("/{pipeline_key}/stages", s.pipelineHandler.Stages).Methods(http.MethodGet)
	pipelines.HandleFunc("/{pipeline_key}/stages", s.pipelineHandler.AddStage).Methods(http.MethodPost)
	pipelines.HandleFunc("/{pipeline_key}/stages/{stage_order}", s.pipelineHandler.UpdateStage).Methods(http.MethodPut)
	pipelines.HandleFunc("/{pipeline_key}/stages/{stage_order}", s.pipelineHandler.DeleteStage).Methods(http.MethodDelete)
	pipelines.HandleFunc("/{pipeline_key}/reorder", s.pipelineHandler.Reorder).Methods(http.MethodPost)

	consumers := s.router.PathPrefix("/api/consumers").Subrouter()
	consumers.HandleFunc("", s.consumerHandler.List).Methods(http.MethodGet)
	consumers.HandleFunc("", s.consumerHandler.Register).Methods(http.MethodPost)
	consumers.HandleFunc("/by-construct/{construct_type}/{construct_key}", s.consumerHandler.ByConstruct).Methods(http.MethodGet)
	consumers.HandleFunc("/{consumer_id}", s.consumerHandler.Get).Methods(http.MethodGet)
	consumers.HandleFunc("/{consumer_id}", s.consumerHandler.Update).Methods(http.MethodPut)
	consumers.HandleFunc("/{consumer_id}", s.consumerHandler.Delete).Methods(http.MethodDelete)
	consumers.HandleFunc("/{consumer_id}/dependencies", s.consumerHandler.Dependencies).Methods(http.MethodGet)
	consumers.HandleFunc("/{consumer_id}/dependencies", s.consumerHandler.AddDependency).Methods(http.MethodPost)
	consumers.HandleFunc("/{consumer_id}/dependencies/{dependency_id}", s.consumerHandler.RemoveDependency).Methods(http.MethodDelete)

	changes := s.router.PathPrefix("/api/changes").Subrouter()
	changes.HandleFunc("", s.changeHandler.List).Methods(http.MethodGet)
	changes.HandleFunc("", s.changeHandler.Record).Methods(http.MethodPost)
	changes.HandleFunc("/construct/{construct_type}/{construct_key}", s.changeHandler.History).Methods(http.MethodGet)
	changes.HandleFunc("/{change_id}", s.changeHandler.Get).Methods(http.MethodGet)
	changes.HandleFunc("/{change_id}/notifications", s.changeHandler.Notifications).Methods(http.MethodGet)
	changes.HandleFunc("/{change_id}/propagate", s.changeHandler.Propagate).Methods(http.MethodPost)
	changes.HandleFunc("/{change_id}/notifications/{consumer_id}/acknowledge", s.changeHandler.Acknowledge).Methods(http.MethodPost)
	changes.HandleFunc("/{change_id}/migration-hints", s.changeHandler.MigrationHints).Methods(http.MethodGet)

	grids := s.router.PathPrefix("/api/grids").Subrouter()
	grids.HandleFunc("", s.gridHandler.List).Methods(http.MethodGet)
	grids.HandleFunc("", s.gridHandler.Create).Methods(http.MethodPost)
	grids.HandleFunc("/{grid_key}", s.gridHandler.Get).Methods(http.MethodGet)
	grids.HandleFunc("/{grid_key}", s.gridHandler.Update).Methods(http.MethodPut)
	grids.HandleFunc("/{grid_key}", s.gridHandler.Archive).Methods(http.MethodDelete)
	grids.HandleFunc("/{grid_key}/dimensions", s.gridHandler.Dimensions).Methods(http.MethodGet)
	grids.HandleFunc("/{grid_key}/versions", s.gridHandler.Versions).Methods(http.MethodGet)
	grids.HandleFunc("/{grid_key}/wildcards", s.gridHandler.SubmitWildcard).Methods(http.MethodPost)
	grids.HandleFunc("/{grid_key}/wildcards", s.gridHandler.ListWildcards).Methods(http.MethodGet)
	grids.HandleFunc("/{grid_key}/wildcards/{wildcard_id}/promote", s.gridHandler.PromoteWildcard).Methods(http.MethodPost)
	grids.HandleFunc("/{grid_key}/wildcards/{wildcard_id}/reject", s.gridHandler.RejectWildcard).Methods(http.MethodPost)
	grids.HandleFunc("/{grid_key}/wildcards/{wildcard_id}/add-to-grid", s.gridHandler.AddWildcardToGrid).Methods(http.MethodPost)

	llmRoutes := s.router.PathPrefix("/api/llm").Subrouter()
	llmRoutes.HandleFunc("/paradigm-suggestions", s.llmHandler.ParadigmSuggestions).Methods(http.MethodPost)
	llmRoutes.HandleFunc("/prompt-improve", s.llmHandler.ImprovePrompt).Methods(http.MethodPost)
	llmRoutes.HandleFunc("/schema-validate", s.llmHandler.ValidateSchema).Methods(http.MethodPost)
	llmRoutes.HandleFunc("/compare-paradigms", s.llmHandler.CompareParadigms).Methods(http.MethodPost)
	llmRoutes.HandleFunc("/generate-critique-patterns", s.llmHandler.GenerateCritiquePatterns).Methods(http.MethodPost)
	llmRoutes.HandleFunc("/profile-generate", s.llmHandler.GenerateProfile).Methods(http.MethodPost)
	llmRoutes.HandleFunc("/stage-context-improve", s.llmHandler.ImproveStageContext).Methods(http.MethodPost)
}

// Router returns the configured router, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start begins serving HTTP requests and blocks until the listener stops
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	s.logger.Infof("Console API listening on port %d", s.config.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down console API")
	return s.httpServer.Shutdown(ctx)
}
