package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tabext/tabext/internal/extract"
)

// Server exposes the extraction pipeline over HTTP.
type Server struct {
	extractor *extract.Extractor
	log       zerolog.Logger
}

func New(extractor *extract.Extractor, logger zerolog.Logger) *Server {
	return &Server{extractor: extractor, log: logger}
}

// Handler returns the routed handler with request logging attached.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /extract", s.handleExtract)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.logRequests(mux)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extract.Request
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, extract.Response{
			Results: []extract.PageResult{},
			Error:   "invalid request body: " + err.Error(),
		})
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, extract.Response{
			Results: []extract.PageResult{},
			Error:   err.Error(),
		})
		return
	}
	// Configuration problems (missing credential, unsupported provider) are
	// reported inside the response body with Success=false, matching the
	// contract that the endpoint itself answered.
	resp := s.extractor.Run(r.Context(), req)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("write response failed")
	}
}

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		requestID := uuid.NewString()
		next.ServeHTTP(rec, r)
		s.log.Info().
			Str("id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
