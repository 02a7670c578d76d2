// Package controller is the HTTP and WebSocket surface of the interview
// service. It translates transport requests into engine calls; all session
// semantics live in the engine.
package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pion/webrtc/v3"
	"github.com/spool-learn/interview/pkg/model"
	"github.com/spool-learn/interview/pkg/usecase/interview"
	"github.com/spool-learn/interview/pkg/utils/logging"
)

// Server exposes the interview engine over HTTP.
type Server struct {
	engine *interview.Engine
	mux    *http.ServeMux
}

// New creates a server for the given engine.
func New(engine *interview.Engine) *Server {
	s := &Server{
		engine: engine,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/interview/start", s.handleStart)
	s.mux.HandleFunc("GET /api/interview/{id}/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/interview/{id}/results", s.handleResults)
	s.mux.HandleFunc("GET /api/interview/{id}/archive", s.handleArchive)
	s.mux.HandleFunc("POST /api/interview/{id}/end", s.handleEnd)
	s.mux.HandleFunc("GET /api/interview/{id}/ice-servers", s.handleICEServers)
	s.mux.HandleFunc("GET /api/interview/{id}/ws", s.handleWebSocket)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRequest struct {
	UserID  string `json:"user_id"`
	Mode    string `json:"mode,omitempty"`
	Purpose string `json:"purpose,omitempty"`
}

type startResponse struct {
	SessionID model.SessionID `json:"session_id"`
	Greeting  string          `json:"greeting"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	id, err := s.engine.StartSession(r.Context(), interview.StartInput{
		UserID:    req.UserID,
		Mode:      req.Mode,
		Purpose:   req.Purpose,
		AuthToken: r.Header.Get("Authorization"),
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, startResponse{
		SessionID: id,
		Greeting:  interview.Greeting,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.GetStatus(r.Context(), sessionID(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":       status.SessionID,
		"stage":            status.Stage,
		"interests_found":  status.InterestCount,
		"duration_seconds": status.Duration.Seconds(),
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.engine.GetResults(r.Context(), sessionID(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsBody(results))
}

// handleArchive serves the stored record of an ended session.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	rc, err := s.engine.ArchivedTranscript(r.Context(), sessionID(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	if _, err := io.Copy(w, rc); err != nil {
		logging.From(r.Context()).Warn("failed to stream archived transcript", "error", err)
	}
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	results, err := s.engine.EndSession(r.Context(), sessionID(r))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsBody(results))
}

// iceServersResponse is what WebRTC clients feed to their RTCPeerConnection.
type iceServersResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

func (s *Server) handleICEServers(w http.ResponseWriter, r *http.Request) {
	cred, err := s.engine.IssueRelayCredential(r.Context(), sessionID(r), r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, iceServersResponse{
		ICEServers: s.engine.RelayIssuer().ICEServers(cred),
	})
}

func sessionID(r *http.Request) model.SessionID {
	return model.SessionID(r.PathValue("id"))
}

func resultsBody(results *interview.Results) map[string]any {
	body := map[string]any{
		"session_id":       results.SessionID,
		"user_id":          results.UserID,
		"interests":        results.Interests,
		"duration_seconds": results.Duration.Seconds(),
	}
	if results.ThreadID != "" {
		body["thread_id"] = results.ThreadID
	}
	if results.ThreadCreationError != "" {
		body["thread_creation_error"] = results.ThreadCreationError
	}
	return body
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, model.ErrSessionClosed):
		writeError(w, http.StatusConflict, "session already ended")
	default:
		logging.From(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
