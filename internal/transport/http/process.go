package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/MrWong99/omniagent/internal/gatewayerr"
	"github.com/MrWong99/omniagent/internal/orchestrator/events"
	"github.com/MrWong99/omniagent/internal/orchestrator/session"
)

type processRequest struct {
	SessionID string `json:"session_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Audio     string `json:"audio,omitempty"` // base64-encoded PCM
}

type processResponse struct {
	SessionID    string         `json:"session_id"`
	Content      string         `json:"content"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// handleProcess is the unary POST /api/v1/process endpoint: the combined
// multimodal counterpart to /api/v1/chat, accepting either text or audio
// input and driving it through the orchestrator directly. An existing
// session_id is reused; otherwise an ephemeral session is created from
// client_id and closed once the request completes.
func (a *API) handleProcess(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDOf(r)

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, traceID, gatewayerr.NewInvalidParam("malformed request body", err))
		return
	}
	if req.Text == "" && req.Audio == "" {
		writeError(w, traceID, gatewayerr.NewInvalidParam("one of text or audio is required", nil))
		return
	}

	s, ephemeral, err := a.resolveProcessSession(req)
	if err != nil {
		writeError(w, traceID, err)
		return
	}
	if ephemeral {
		defer a.Sessions.Close(s.ID)
	}

	var audio []byte
	modalities := []events.ModalityType{events.ModalityText}
	instruction := req.Text
	if req.Audio != "" {
		audio, err = base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			writeError(w, traceID, gatewayerr.NewInvalidParam("audio must be base64-encoded", err))
			return
		}
		modalities = []events.ModalityType{events.ModalityAudio}
		instruction = "[audio input]"
	}

	t := s.CreateTask(instruction, modalities)
	result, err := a.Orchestrator.Process(r.Context(), t, audio)
	if err != nil {
		s.RecordError()
		writeError(w, traceID, err)
		return
	}
	if req.Audio != "" {
		s.RecordSttRequest()
	}
	s.RecordLlmRequest(0)

	var finishReason string
	if result.Metadata != nil {
		if fr, ok := result.Metadata["finish_reason"].(string); ok {
			finishReason = fr
		}
	}
	writeJSON(w, http.StatusOK, processResponse{
		SessionID:    s.ID,
		Content:      result.Content,
		FinishReason: finishReason,
		Metadata:     result.Metadata,
	})
}

// resolveProcessSession returns the session named by req.SessionID, or
// creates a short-lived one from req.ClientID if no session_id was given.
// The bool return reports whether the caller owns closing the session.
func (a *API) resolveProcessSession(req processRequest) (*session.Session, bool, error) {
	if req.SessionID != "" {
		s, ok := a.Sessions.GetActive(req.SessionID)
		if !ok {
			return nil, false, gatewayerr.NewSessionNotFound(req.SessionID)
		}
		return s, false, nil
	}
	if req.ClientID == "" {
		return nil, false, gatewayerr.NewInvalidParam("one of session_id or client_id is required", nil)
	}
	s, err := a.Sessions.Create(req.ClientID, session.Config{}, nil)
	if err != nil {
		return nil, false, gatewayerr.NewInternal("failed to create ephemeral session", err)
	}
	return s, true, nil
}
