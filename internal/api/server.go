// Package api is the HTTP front door: job creation, status queries, document
// upload, and filled-form retrieval.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"claimease/internal/artifacts"
	"claimease/internal/jobs"
	"claimease/internal/jobstore"
	"claimease/internal/models"
	"claimease/internal/ratelimit"
	"claimease/internal/telemetry"
)

// Server wires the HTTP handlers.
type Server struct {
	service   *jobs.Service
	artifacts *artifacts.Store
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	maxUpload int64
}

// New constructs the gateway. artifacts and limiter may be nil, disabling
// the document routes and rate limiting respectively.
func New(service *jobs.Service, store *artifacts.Store, limiter *ratelimit.Limiter, logger *slog.Logger, maxUpload int64) *Server {
	return &Server{
		service:   service,
		artifacts: store,
		limiter:   limiter,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/patients/{name}/process", s.handleProcess)
		r.Get("/jobs/{id}/status", s.handleJobStatus)
		r.Get("/jobs", s.handleListJobs)
		if s.artifacts != nil {
			r.Post("/patients/{name}/documents", s.handleUploadDocument)
			r.Get("/patients/{name}/form", s.handleFilledForm)
		}
	})

	return r
}

type processResponse struct {
	JobID     string `json:"job_id"`
	SubjectID string `json:"subject_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	name := subjectParam(r)
	if name == "" {
		http.Error(w, "patient name is required", http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), clientKey(r))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	job, err := s.service.Create(r.Context(), name)
	if err != nil {
		s.logger.Error("create job failed",
			slog.String("subject_id", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "could not create job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, processResponse{
		JobID:     job.ID,
		SubjectID: job.SubjectID,
		Status:    "submitted",
		Message:   "Processing started",
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.service.Get(r.Context(), id)
	if errors.Is(err, jobstore.ErrJobNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "could not load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.List(r.Context())
	if err != nil {
		http.Error(w, "could not list jobs", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

// handleUploadDocument stores one patient PDF in the documents bucket, where
// the document stage expects to find it before the pipeline runs.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	name := subjectParam(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		http.Error(w, "invalid multipart upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	filename := filepath.Base(header.Filename)
	if err := s.artifacts.PutDocument(r.Context(), name, filename, contentType, file); err != nil {
		s.logger.Error("document upload failed",
			slog.String("subject_id", name),
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		http.Error(w, "could not store document", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"subject_id": name,
		"filename":   filename,
	})
}

func (s *Server) handleFilledForm(w http.ResponseWriter, r *http.Request) {
	name := subjectParam(r)
	body, err := s.artifacts.GetFilledForm(r.Context(), name)
	if errors.Is(err, artifacts.ErrArtifactNotFound) {
		http.Error(w, "filled form not available", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "could not load filled form", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

// subjectParam returns the decoded {name} route parameter. chi hands back
// the raw path segment, so names with spaces arrive percent-encoded.
func subjectParam(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		return decoded
	}
	return name
}

func clientKey(r *http.Request) string {
	if v := r.Header.Get("X-Client-ID"); v != "" {
		return v
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
