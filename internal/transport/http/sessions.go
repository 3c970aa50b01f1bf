package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrWong99/omniagent/internal/gatewayerr"
	"github.com/MrWong99/omniagent/internal/orchestrator/session"
)

// sessionDescriptor is the REST representation of a [session.Session].
type sessionDescriptor struct {
	ID        string         `json:"id"`
	TraceID   string         `json:"trace_id"`
	ClientID  string         `json:"client_id"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Stats     session.Stats  `json:"stats"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func toDescriptor(s *session.Session) sessionDescriptor {
	return sessionDescriptor{
		ID:        s.ID,
		TraceID:   s.TraceID,
		ClientID:  s.ClientID,
		Status:    s.Status.String(),
		Metadata:  s.Metadata,
		Stats:     s.Stats(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

type sessionConfigRequest struct {
	STT            *session.SttConfig `json:"stt,omitempty"`
	LLM            *session.LlmConfig `json:"llm,omitempty"`
	TimeoutSeconds int                `json:"timeout_seconds,omitempty"`
}

func (r sessionConfigRequest) toConfig() session.Config {
	cfg := session.Config{TimeoutSeconds: r.TimeoutSeconds}
	if r.STT != nil {
		cfg.STT = *r.STT
	}
	if r.LLM != nil {
		cfg.LLM = *r.LLM
	}
	return cfg
}

type createSessionRequest struct {
	ClientID string                `json:"client_id"`
	Config   *sessionConfigRequest `json:"config,omitempty"`
	Metadata map[string]any        `json:"metadata,omitempty"`
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDOf(r)

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, traceID, gatewayerr.NewInvalidParam("malformed request body", err))
		return
	}
	if req.ClientID == "" {
		writeError(w, traceID, gatewayerr.NewInvalidParam("client_id is required", nil))
		return
	}

	var cfg session.Config
	if req.Config != nil {
		cfg = req.Config.toConfig()
	}

	s, err := a.Sessions.Create(req.ClientID, cfg, req.Metadata)
	if err != nil {
		var capErr *session.ErrMaxSessionsReached
		if errors.As(err, &capErr) {
			writeError(w, traceID, gatewayerr.NewRateLimit(capErr.Error()))
			return
		}
		writeError(w, traceID, gatewayerr.NewInternal("failed to create session", err))
		return
	}

	writeJSON(w, http.StatusOK, toDescriptor(s))
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDOf(r)
	id := r.PathValue("id")

	s, ok := a.Sessions.Get(id)
	if !ok {
		writeError(w, traceID, gatewayerr.NewSessionNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, toDescriptor(s))
}

func (a *API) handleUpdateSessionConfig(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDOf(r)
	id := r.PathValue("id")

	s, ok := a.Sessions.Get(id)
	if !ok {
		writeError(w, traceID, gatewayerr.NewSessionNotFound(id))
		return
	}

	var req sessionConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, traceID, gatewayerr.NewInvalidParam("malformed request body", err))
		return
	}

	s.UpdateConfig(req.toConfig())
	writeJSON(w, http.StatusOK, toDescriptor(s))
}

func (a *API) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDOf(r)
	id := r.PathValue("id")

	a.Sessions.Close(id)
	if !a.Sessions.Delete(id) {
		writeError(w, traceID, gatewayerr.NewSessionNotFound(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")

	var statusPtr *session.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := parseStatus(raw)
		if !ok {
			writeError(w, traceIDOf(r), gatewayerr.NewInvalidParam("unknown status filter: "+raw, nil))
			return
		}
		statusPtr = &st
	}

	sessions := a.Sessions.List(clientID, statusPtr)
	out := make([]sessionDescriptor, len(sessions))
	for i, s := range sessions {
		out[i] = toDescriptor(s)
	}
	writeJSON(w, http.StatusOK, out)
}

func parseStatus(raw string) (session.Status, bool) {
	switch raw {
	case "created":
		return session.StatusCreated, true
	case "active":
		return session.StatusActive, true
	case "paused":
		return session.StatusPaused, true
	case "closed":
		return session.StatusClosed, true
	case "expired":
		return session.StatusExpired, true
	default:
		return 0, false
	}
}

func traceIDOf(r *http.Request) string {
	return r.Header.Get("X-Trace-ID")
}
