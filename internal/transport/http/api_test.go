package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/omniagent/internal/orchestrator"
	"github.com/MrWong99/omniagent/internal/orchestrator/session"
	"github.com/MrWong99/omniagent/internal/orchestrator/trigger"
	"github.com/MrWong99/omniagent/internal/observe"
	"github.com/MrWong99/omniagent/pkg/provider/llm"
	"github.com/MrWong99/omniagent/pkg/provider/stt"
	"github.com/MrWong99/omniagent/pkg/types"
)

func init() {
	otel.SetMeterProvider(sdkmetric.NewMeterProvider())
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

type stubLLM struct{ response string }

func (s *stubLLM) StreamCompletion(context.Context, llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk, 1)
	ch <- llm.Chunk{Text: s.response, FinishReason: "stop"}
	close(ch)
	return ch, nil
}
func (s *stubLLM) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: s.response}, nil
}
func (s *stubLLM) CountTokens([]types.Message) (int, error) { return 0, nil }
func (s *stubLLM) Capabilities() types.ModelCapabilities    { return types.ModelCapabilities{} }

type stubSTT struct{ finalText string }

func (s stubSTT) StartStream(context.Context, stt.StreamConfig) (stt.SessionHandle, error) {
	h := &stubHandle{
		partials: make(chan types.Transcript),
		finals:   make(chan types.Transcript, 1),
	}
	if s.finalText != "" {
		h.finals <- types.Transcript{Text: s.finalText, IsFinal: true}
	}
	return h, nil
}

type stubHandle struct {
	partials chan types.Transcript
	finals   chan types.Transcript
	closed   bool
}

func (h *stubHandle) SendAudio([]byte) error                { return nil }
func (h *stubHandle) Partials() <-chan types.Transcript      { return h.partials }
func (h *stubHandle) Finals() <-chan types.Transcript        { return h.finals }
func (h *stubHandle) SetKeywords([]types.HotwordBoost) error { return nil }
func (h *stubHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.partials)
	close(h.finals)
	return nil
}

func newTestAPI(t *testing.T, llmResponse, sttFinal string) *API {
	t.Helper()
	metrics := testMetrics(t)
	sessions := session.NewManager(session.WithMetrics(metrics))
	sttProvider := stubSTT{finalText: sttFinal}
	llmProvider := &stubLLM{response: llmResponse}
	policy := trigger.NewRuleOnlyPolicy(0)
	orch := orchestrator.New(sttProvider, llmProvider, policy, orchestrator.WithMetrics(metrics))
	return New(sessions, orch, sttProvider, llmProvider)
}

func TestSessionCRUD(t *testing.T) {
	a := newTestAPI(t, "pong", "")
	mux := http.NewServeMux()
	a.Register(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"client_id": "client-1"})
	resp, err := http.Post(ts.URL+"/api/v1/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	var created sessionDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if created.ID == "" {
		t.Fatal("expected non-empty session id")
	}

	getResp, err := http.Get(ts.URL + "/api/v1/sessions/" + created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", getResp.StatusCode)
	}
	getResp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/sessions/"+created.ID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", delResp.StatusCode)
	}
	delResp.Body.Close()

	missResp, _ := http.Get(ts.URL + "/api/v1/sessions/" + created.ID)
	if missResp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want 404", missResp.StatusCode)
	}
	missResp.Body.Close()
}

func TestChat_RequiresSessionHeader(t *testing.T) {
	a := newTestAPI(t, "pong", "")
	mux := http.NewServeMux()
	a.Register(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"message": "hi"})
	resp, err := http.Post(ts.URL+"/api/v1/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChat_Unary_ReturnsLlmContent(t *testing.T) {
	a := newTestAPI(t, "pong", "")
	mux := http.NewServeMux()
	a.Register(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	sessResp, _ := http.Post(ts.URL+"/api/v1/sessions", "application/json",
		bytes.NewReader(mustJSON(map[string]any{"client_id": "client-1"})))
	var sess sessionDescriptor
	json.NewDecoder(sessResp.Body).Decode(&sess)
	sessResp.Body.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/chat",
		bytes.NewReader(mustJSON(map[string]any{"message": "hello"})))
	req.Header.Set("X-Session-ID", sess.ID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var chatResp chatResponse
	json.NewDecoder(resp.Body).Decode(&chatResp)
	if chatResp.Content != "pong" {
		t.Errorf("Content = %q, want pong", chatResp.Content)
	}
}

func TestRecognize_ReturnsTranscribedText(t *testing.T) {
	a := newTestAPI(t, "pong", "hello world")
	mux := http.NewServeMux()
	a.Register(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/stt/recognize", strings.NewReader("fake-pcm-bytes"))
	req.Header.Set("X-Sample-Rate", "16000")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out recognizeResponse
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Text != "hello world" {
		t.Errorf("Text = %q, want %q", out.Text, "hello world")
	}
}

func TestProcess_CreatesEphemeralSessionFromClientID(t *testing.T) {
	a := newTestAPI(t, "pong", "")
	mux := http.NewServeMux()
	a.Register(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/process", "application/json",
		bytes.NewReader(mustJSON(map[string]any{"client_id": "client-1", "text": "hi there"})))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out processResponse
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Content != "pong" {
		t.Errorf("Content = %q, want pong", out.Content)
	}
	if out.SessionID == "" {
		t.Error("expected a session id to be assigned")
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
