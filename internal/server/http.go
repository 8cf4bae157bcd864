package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/paywatch/internal/ingest"
	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/queryrpc"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events/posted", s.handlePosted)
	mux.HandleFunc("POST /v1/events/removed", s.handleRemoved)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/authorization", s.handleGetAuthorization)
	mux.HandleFunc("PUT /v1/authorization", s.handleSetAuthorization)
	mux.HandleFunc("GET /v1/sources", s.handleListSources)
	mux.HandleFunc("GET /v1/sources/{id}/state", s.handleGetState)
	mux.HandleFunc("GET /v1/sources/{id}/latest", s.handleGetLatest)
	mux.HandleFunc("GET /v1/sources/{id}/latest-matching", s.handleGetLatestMatching)
	mux.HandleFunc("GET /v1/sources/{id}/snapshot", s.handleGetSnapshot)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePosted handles POST /v1/events/posted.
func (s *Server) handlePosted(w http.ResponseWriter, r *http.Request) {
	s.serveIngest(w, r, s.ingest.Posted)
}

// handleRemoved handles POST /v1/events/removed.
func (s *Server) handleRemoved(w http.ResponseWriter, r *http.Request) {
	s.serveIngest(w, r, s.ingest.Removed)
}

type ingestFunc func(context.Context, ingest.Request) (ingest.Result, error)

func (s *Server) serveIngest(w http.ResponseWriter, r *http.Request, fn ingestFunc) {
	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := fn(r.Context(), req)
	var verr *model.ValidationError
	switch {
	case err == nil && res.Ignored:
		writeJSON(w, http.StatusOK, map[string]bool{"ignored": true})
	case err == nil:
		writeJSON(w, http.StatusOK, res.State)
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	default:
		s.logger.Warn("ingest failed", "source_id", req.Event.SourceID, "key", req.Event.Key, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
			"state": res.State,
		})
	}
}

// handleGetAuthorization handles GET /v1/authorization.
func (s *Server) handleGetAuthorization(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, queryrpc.AuthorizedResponse{Authorized: s.query.IsMonitoringAuthorized(r.Context())})
}

// handleSetAuthorization handles PUT /v1/authorization.
func (s *Server) handleSetAuthorization(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Authorized *bool `json:"authorized"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Authorized == nil {
		writeError(w, http.StatusBadRequest, "authorized is required")
		return
	}
	s.authz.Set(*body.Authorized)
	s.logger.Info("monitoring authorization changed", "authorized", *body.Authorized)
	writeJSON(w, http.StatusOK, queryrpc.AuthorizedResponse{Authorized: *body.Authorized})
}

// handleListSources handles GET /v1/sources.
func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, queryrpc.SourcesResponse{
		Primary: s.sources.Primary(),
		Sources: s.sources.Sources(),
	})
}

// handleGetState handles GET /v1/sources/{id}/state.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	sum, err := s.query.GetState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryrpc.StateResponse{
		Authorized:  sum.Authorized,
		HasActive:   sum.HasActive,
		UpdatedAtMs: sum.UpdatedAtMs,
	})
}

// handleGetLatest handles GET /v1/sources/{id}/latest.
func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	ev, err := s.query.GetLatestEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryrpc.EventResponse{Event: ev})
}

// handleGetLatestMatching handles GET /v1/sources/{id}/latest-matching.
func (s *Server) handleGetLatestMatching(w http.ResponseWriter, r *http.Request) {
	ev, err := s.query.GetLatestMatchingEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryrpc.EventResponse{Event: ev})
}

// handleGetSnapshot handles GET /v1/sources/{id}/snapshot.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	evs, err := s.query.GetActiveSnapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryrpc.SnapshotResponse{Events: evs})
}

// writeQueryError reports a storage fault. Absent and malformed state never
// reach here; the query service answers those with defaults.
func writeQueryError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, err.Error())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
