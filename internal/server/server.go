package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/sitedrop/internal/app"
	"github.com/raysh454/sitedrop/internal/bundle"
	"github.com/raysh454/sitedrop/internal/logging"
	"github.com/raysh454/sitedrop/internal/metrics"
	_ "github.com/raysh454/sitedrop/internal/server/docs" // registers the swagger document
)

// maxFieldBytes bounds the text fields of the upload form.
const maxFieldBytes = 4 << 10

// Config wires a Server. When App is nil one is built from AppConfig.
type Config struct {
	ListenAddr string
	AppConfig  *app.Config
	App        *app.Application
	Logger     logging.Logger
	// Limiter replaces the limiter derived from the rate limit settings.
	Limiter RateLimiter
}

// Server is the HTTP + WebSocket API surface for sitedrop.
type Server struct {
	cfg          app.HTTPConfig
	appCfg       *app.Config
	listenAddr   string
	app          *app.Application
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
	limiter      RateLimiter
	metrics      *metrics.Metrics
}

// NewServer creates a new Server around an Application.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}

	application := cfg.App
	if application == nil {
		if cfg.AppConfig == nil {
			cfg.AppConfig = app.DefaultConfig()
		}
		a, err := app.NewApplication(cfg.AppConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("creating application: %w", err)
		}
		application = a
	}
	appCfg := application.Config

	limiter := cfg.Limiter
	if limiter == nil {
		rl := appCfg.HTTP.RateLimit
		if rl.RedisAddr != "" {
			l, err := NewRedisRateLimiter(rl.RedisAddr, rl.RedisPassword, rl.RedisDB, logger)
			if err != nil {
				return nil, fmt.Errorf("connecting rate limiter to redis %s: %w", rl.RedisAddr, err)
			}
			limiter = l
		} else {
			limiter = NewMemoryRateLimiter()
		}
	}

	listenAddr := cfg.ListenAddr
	if listenAddr == "" {
		listenAddr = appCfg.ListenAddr()
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:          appCfg.HTTP,
		appCfg:       appCfg,
		listenAddr:   listenAddr,
		app:          application,
		orchestrator: application.Orch,
		router:       r,
		logger:       logger.With(logging.Field{Key: "component", Value: "server"}),
		limiter:      limiter,
		metrics:      application.Metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(req *http.Request) bool {
				origin := req.Header.Get("Origin")
				return origin == "" || appCfg.HTTP.CORSOrigin == "" || origin == appCfg.HTTP.CORSOrigin
			},
		},
	}

	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.instrument)
	r.Use(s.corsMiddleware)
	r.Use(s.rateLimit)

	// CORS preflight
	r.Options("/upload", s.optionsHandler("POST"))
	r.Options("/health", s.optionsHandler("GET"))
	r.Options("/projects", s.optionsHandler("GET"))
	r.Options("/jobs", s.optionsHandler("GET"))
	r.Options("/jobs/upload", s.optionsHandler("POST"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))

	r.Post("/upload", s.handleUpload)
	r.Get("/health", s.handleHealth)
	r.Get("/projects", s.handleListProjects)

	// Jobs over REST
	r.Post("/jobs/upload", s.handleStartUploadJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// WebSockets for job progress
	r.Get("/ws/jobs/{jobID}", s.handleJobWS)

	r.Handle("/metrics", s.metrics.Handler())
	if s.cfg.Swagger {
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close shuts down the orchestrator and underlying resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.listenAddr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // deployments and websocket streams run long
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// --- Upload intake ---

// errBadUpload marks intake failures that are the client's fault.
var errBadUpload = errors.New("invalid upload")

// readUpload streams the multipart form into a fresh staging directory.
// On error the staging directory is already released.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*bundle.Bundle, *bundle.Staging, error) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: expected multipart/form-data", errBadUpload)
	}

	sessionID := uuid.New().String()
	staging, err := bundle.NewStaging(s.appCfg.UploadDir, sessionID, s.logger)
	if err != nil {
		return nil, nil, err
	}

	b := &bundle.Bundle{SessionID: sessionID}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			staging.Release()
			return nil, nil, intakeError(err)
		}
		if err := s.readPart(part, b, staging); err != nil {
			part.Close()
			staging.Release()
			return nil, nil, intakeError(err)
		}
		part.Close()
	}
	return b, staging, nil
}

func (s *Server) readPart(part *multipart.Part, b *bundle.Bundle, staging *bundle.Staging) error {
	switch part.FormName() {
	case "projectName":
		v, err := readField(part)
		b.ProjectName = v
		return err
	case "email":
		v, err := readField(part)
		b.ContactEmail = v
		return err
	case "files":
		if part.FileName() == "" {
			return nil
		}
		f, err := staging.Add(part.FileName(), part)
		if err != nil {
			return err
		}
		b.Files = append(b.Files, f)
		return nil
	default:
		_, err := io.Copy(io.Discard, part)
		return err
	}
}

func readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxFieldBytes {
		return "", fmt.Errorf("%w: field %s is too long", errBadUpload, part.FormName())
	}
	return strings.TrimSpace(string(data)), nil
}

func intakeError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) || errors.Is(err, errBadUpload) {
		return err
	}
	return fmt.Errorf("%w: %v", errBadUpload, err)
}

func (s *Server) writeIntakeError(w http.ResponseWriter, err error) {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", mbe.Limit))
	case errors.Is(err, errBadUpload):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("staging upload", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "could not store upload")
	}
}

// failureMessage is the single user-facing message for a failed workflow.
func (s *Server) failureMessage(err error) string {
	msg := err.Error()
	var se *app.StageError
	if errors.As(err, &se) {
		msg = se.Err.Error()
	}
	return fmt.Sprintf("Repository creation failed: %s. Ensure GITHUB_TOKEN has sufficient permissions and GITHUB_USERNAME (%s) is correct.",
		msg, s.appCfg.GitHub.Owner)
}

// --- HTTP handlers ---

// handleUpload godoc
// @Summary Deploy a static site
// @Description Uploads .html, .css and .js files, creates a repository for them and enables Pages. Blocks until the site is deployed.
// @Tags deploy
// @Accept multipart/form-data
// @Produce json
// @Param projectName formData string true "Project name"
// @Param email formData string true "Contact email"
// @Param files formData file true "Site files"
// @Success 200 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /upload [post]
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	b, staging, err := s.readUpload(w, r)
	if err != nil {
		s.writeIntakeError(w, err)
		return
	}
	defer staging.Release()

	dep, err := s.orchestrator.Deploy(r.Context(), b)
	if err != nil {
		var ve *bundle.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, s.failureMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		HostingEndpoint: dep.HostingEndpoint,
		RepositoryURL:   dep.RepositoryURL,
		RepositoryName:  dep.RepositoryName,
		Message:         DeployedMessage,
		Warnings:        dep.Warnings,
	})
}

// handleHealth godoc
// @Summary Liveness check
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "OK", Message: "Server is running"})
}

// handleListProjects godoc
// @Summary List deployed projects
// @Tags deploy
// @Produce json
// @Success 200 {array} registry.Record
// @Router /projects [get]
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ps, err := s.orchestrator.Projects(r.Context())
	if err != nil {
		s.logger.Warn("listing projects", logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ps == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// Jobs (REST)

// handleStartUploadJob godoc
// @Summary Deploy a static site in the background
// @Tags jobs
// @Accept multipart/form-data
// @Produce json
// @Param projectName formData string true "Project name"
// @Param email formData string true "Contact email"
// @Param files formData file true "Site files"
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Router /jobs/upload [post]
func (s *Server) handleStartUploadJob(w http.ResponseWriter, r *http.Request) {
	b, staging, err := s.readUpload(w, r)
	if err != nil {
		s.writeIntakeError(w, err)
		return
	}
	if err := bundle.ValidateBundle(b); err != nil {
		staging.Release()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.orchestrator.StartDeployJob(r.Context(), b, staging.Release)
	if err != nil {
		if errors.Is(err, app.ErrOrchestratorClosed) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("started deploy job", logging.Field{Key: "job_id", Value: job.ID})
	writeJSON(w, http.StatusAccepted, s.orchestrator.GetJob(job.ID))
}

// handleGetJob godoc
// @Summary Get a job
// @Tags jobs
// @Produce json
// @Param jobID path string true "Job ID"
// @Success 200 {object} app.Job
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob godoc
// @Summary Cancel a job at its next stage boundary
// @Tags jobs
// @Param jobID path string true "Job ID"
// @Success 204
// @Router /jobs/{jobID} [delete]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	s.orchestrator.CancelJob(jobID)
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	w.WriteHeader(http.StatusNoContent)
}

// handleListJobs godoc
// @Summary List jobs
// @Tags jobs
// @Produce json
// @Success 200 {array} app.Job
// @Router /jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.ListJobs())
}

// WebSockets

// handleJobWS streams a job's events until the job ends or the client leaves.
// The current job snapshot is sent first. Each connection has its own
// subscription, so any number of clients can follow one job.
func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	events, unsubscribe, ok := s.orchestrator.SubscribeJob(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	defer unsubscribe()
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(job); err != nil {
		return
	}
	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			// Client went away; the deployment keeps running.
			return
		}
	}
	if final := s.orchestrator.GetJob(jobID); final != nil {
		_ = conn.WriteJSON(final)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
}
