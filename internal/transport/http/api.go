// Package http implements the unary REST/SSE surface of the gateway: session
// CRUD, one-shot chat (unary and server-sent events), one-shot speech
// recognition, and the combined multimodal process endpoint. The
// bidirectional streaming surface lives in internal/transport/ws.
package http

import (
	"log/slog"
	"net/http"

	"github.com/MrWong99/omniagent/internal/gatewayerr"
	"github.com/MrWong99/omniagent/internal/health"
	"github.com/MrWong99/omniagent/internal/orchestrator"
	"github.com/MrWong99/omniagent/internal/orchestrator/session"
	"github.com/MrWong99/omniagent/pkg/provider/llm"
	"github.com/MrWong99/omniagent/pkg/provider/stt"
)

// API wires the session registry, orchestrator, and providers to the REST
// surface. It holds no request state of its own.
type API struct {
	Sessions     *session.Manager
	Orchestrator *orchestrator.Orchestrator
	STT          stt.Provider
	LLM          llm.Provider
	Health       *health.Handler
	Logger       *slog.Logger
}

// Option configures an [API].
type Option func(*API)

// WithHealth attaches a health handler, registered alongside the REST
// routes. Defaults to a [health.Handler] with no checkers if not set.
func WithHealth(h *health.Handler) Option { return func(a *API) { a.Health = h } }

// WithLogger attaches a logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option { return func(a *API) { a.Logger = l } }

// New constructs an [API] wired to the given session manager, orchestrator,
// and providers.
func New(sessions *session.Manager, orch *orchestrator.Orchestrator, sttProvider stt.Provider, llmProvider llm.Provider, opts ...Option) *API {
	a := &API{
		Sessions:     sessions,
		Orchestrator: orch,
		STT:          sttProvider,
		LLM:          llmProvider,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Health == nil {
		a.Health = health.New()
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	return a
}

// Register adds every REST/SSE route to mux, plus /healthz and /readyz.
func (a *API) Register(mux *http.ServeMux) {
	a.Health.Register(mux)

	mux.HandleFunc("POST /api/v1/sessions", a.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions", a.handleListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", a.handleGetSession)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/config", a.handleUpdateSessionConfig)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", a.handleDeleteSession)

	mux.HandleFunc("POST /api/v1/chat", a.handleChat)
	mux.HandleFunc("POST /api/v1/chat/stream", a.handleChatStream)

	mux.HandleFunc("POST /api/v1/stt/recognize", a.handleRecognize)

	mux.HandleFunc("POST /api/v1/process", a.handleProcess)
}

// sessionOrError resolves the X-Session-ID header to an active session,
// writing the canonical error response and returning ok=false if it is
// missing, unknown, or expired.
func (a *API) sessionOrError(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	traceID := traceIDOf(r)
	id := r.Header.Get("X-Session-ID")
	if id == "" {
		writeError(w, traceID, gatewayerr.NewInvalidParam("X-Session-ID header is required", nil))
		return nil, false
	}
	s, ok := a.Sessions.Get(id)
	if !ok {
		writeError(w, traceID, gatewayerr.NewSessionNotFound(id))
		return nil, false
	}
	if !s.IsActive() {
		writeError(w, traceID, gatewayerr.NewSessionExpired(id))
		return nil, false
	}
	return s, true
}
