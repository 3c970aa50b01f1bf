package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/omniagent/internal/gatewayerr"
	"github.com/MrWong99/omniagent/internal/orchestrator/events"
	"github.com/MrWong99/omniagent/internal/orchestrator/task"
	"github.com/MrWong99/omniagent/pkg/provider/llm"
	"github.com/MrWong99/omniagent/pkg/types"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Content      string         `json:"content"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// handleChat is the unary POST /api/v1/chat endpoint: a text turn run
// through the orchestrator and returned as a single JSON body.
func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDOf(r)
	s, ok := a.sessionOrError(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, traceID, gatewayerr.NewInvalidParam("malformed request body", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, traceID, gatewayerr.NewInvalidParam("message must not be empty", nil))
		return
	}

	t := s.CreateTask(req.Message, []events.ModalityType{events.ModalityText})
	result, err := a.Orchestrator.Process(r.Context(), t, nil)
	if err != nil {
		s.RecordError()
		writeError(w, traceID, err)
		return
	}
	s.RecordLlmRequest(0)

	var finishReason string
	if result.Metadata != nil {
		if fr, ok := result.Metadata["finish_reason"].(string); ok {
			finishReason = fr
		}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Content:      result.Content,
		FinishReason: finishReason,
		Metadata:     result.Metadata,
	})
}

// handleChatStream is the SSE POST /api/v1/chat/stream endpoint. It bypasses
// the non-streaming orchestrator (which only returns the accumulated
// result) and drives the LLM provider directly so deltas can be forwarded
// as they arrive, mirroring the incremental behaviour of the bidirectional
// stream handler for callers that only need text in, text out.
func (a *API) handleChatStream(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDOf(r)
	s, ok := a.sessionOrError(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, traceID, gatewayerr.NewInvalidParam("malformed request body", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, traceID, gatewayerr.NewInvalidParam("message must not be empty", nil))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, traceID, gatewayerr.NewInternal("streaming not supported by this response writer", nil))
		return
	}

	t := s.CreateTask(req.Message, []events.ModalityType{events.ModalityText})
	messages := append(chatMessagesToLLM(t.Messages()), types.Message{Role: types.RoleUser, Content: req.Message})

	chunks, err := a.LLM.StreamCompletion(r.Context(), llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: a.Orchestrator.SystemPrompt,
		Temperature:  a.Orchestrator.Temperature,
		MaxTokens:    a.Orchestrator.MaxTokens,
	})
	if err != nil {
		s.RecordError()
		writeError(w, traceID, gatewayerr.NewLLMError(err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	var content strings.Builder
	var finishReason string

	for chunk := range chunks {
		content.WriteString(chunk.Text)
		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}
		writeSSE(bw, "delta", map[string]any{"delta": chunk.Text})
		bw.Flush()
		flusher.Flush()
	}
	if finishReason == "" {
		finishReason = "stop"
	}

	resultMessages := append(t.Messages(), task.ChatMessage{Role: types.RoleAssistant, Content: content.String()})
	t.Complete(&task.Result{
		Content:  content.String(),
		Format:   "text",
		Messages: resultMessages,
		Metadata: map[string]any{"finish_reason": finishReason},
	})
	s.RecordLlmRequest(0)

	writeSSE(bw, "done", map[string]any{"finish_reason": finishReason})
	bw.Flush()
	flusher.Flush()
}

func writeSSE(w *bufio.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

func chatMessagesToLLM(msgs []task.ChatMessage) []types.Message {
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = types.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
