// Package server exposes the render pipeline over HTTP: submit a render,
// poll its status, and fetch the finished audio.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/pipeline"
)

const (
	readTimeout     = 30 * time.Second
	writeTimeout    = 10 * time.Minute
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 30 * time.Second

	maxRequestBody = 1 << 20
)

// Config holds server configuration.
type Config struct {
	Port int
}

// Server is the HTTP front of the render service.
type Server struct {
	config Config
	router *chi.Mux
	jobs   *JobManager
	log    *logger.Logger
}

// New creates the HTTP server around the render pipeline.
func New(cfg Config, renderPipeline *pipeline.Pipeline, log *logger.Logger) *Server {
	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		jobs:   NewJobManager(renderPipeline, log),
		log:    log,
	}

	s.setupRoutes()

	return s
}

// Router exposes the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Post("/v1/render", s.handleSubmit)
	r.Get("/v1/render/{id}", s.handleStatus)
	r.Get("/v1/render/{id}/audio", s.handleAudio)
	r.Get("/v1/render/{id}/preview", s.handlePreview)
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errChan := make(chan error, 1)

	go func() {
		errChan <- srv.ListenAndServe()
	}()

	s.log.Info("HTTP server listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := srv.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			return fmt.Errorf("server shutdown failed: %w", shutdownErr)
		}

		return nil
	case serveErr := <-errChan:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", serveErr)
		}

		return nil
	}
}

type submitResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

type statusResponse struct {
	JobID  string             `json:"jobId"`
	Status JobStatus          `json:"status"`
	Error  string             `json:"error,omitempty"`
	Result *core.RenderResult `json:"result,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload core.RenderPayload

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))

	decodeErr := decoder.Decode(&payload)
	if decodeErr != nil {
		s.writeError(w, http.StatusBadRequest, "invalid render payload: "+decodeErr.Error())

		return
	}

	validateErr := payload.Validate()
	if validateErr != nil {
		s.writeError(w, http.StatusUnprocessableEntity, validateErr.Error())

		return
	}

	job := s.jobs.Create(payload)
	// Snapshot the response fields before Process starts mutating the job.
	response := submitResponse{JobID: job.ID, Status: job.Status}

	go s.jobs.Process(context.Background(), job)

	s.writeJSON(w, http.StatusAccepted, response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		s.writeError(w, http.StatusNotFound, "unknown job")

		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		JobID:  job.ID,
		Status: job.Status,
		Error:  job.Error,
		Result: job.Result,
	})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(result *core.RenderResult) string {
		return result.FinalPath
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(result *core.RenderResult) string {
		return result.PreviewPath
	})
}

func (s *Server) serveArtifact(
	w http.ResponseWriter,
	r *http.Request,
	pick func(*core.RenderResult) string,
) {
	job := s.jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		s.writeError(w, http.StatusNotFound, "unknown job")

		return
	}

	if job.Status != StatusComplete || job.Result == nil {
		s.writeError(w, http.StatusConflict, "render not complete")

		return
	}

	path := pick(job.Result)
	if path == "" {
		s.writeError(w, http.StatusNotFound, "artifact not produced")

		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encodeErr := json.NewEncoder(w).Encode(body)
	if encodeErr != nil {
		s.log.Error("Failed to encode response: %v", encodeErr)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}
