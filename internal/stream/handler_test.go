package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/omniagent/internal/transcript"
	"github.com/MrWong99/omniagent/pkg/provider/llm"
	"github.com/MrWong99/omniagent/pkg/provider/stt"
	"github.com/MrWong99/omniagent/pkg/types"
)

// stubMatcher corrects any word equal to "eldrinax" to "Eldrinax", ignoring
// the supplied hotword list; it exists purely to exercise the pipeline wiring
// without depending on the real phonetic-matching algorithm.
type stubMatcher struct{}

func (stubMatcher) Match(word string, _ []string) (string, float64, bool) {
	if word == "eldrinax" {
		return "Eldrinax", 1.0, true
	}
	return word, 0, false
}

// stubLLM returns a fixed single-chunk response for every turn.
type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) StreamCompletion(ctx context.Context, _ llm.CompletionRequest) (<-chan llm.Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}
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

// stubSTT hands back a session whose Finals channel the test controls
// directly via the returned handle.
type stubSTT struct {
	handle *stubSessionHandle
}

func (s *stubSTT) StartStream(context.Context, stt.StreamConfig) (stt.SessionHandle, error) {
	return s.handle, nil
}

type stubSessionHandle struct {
	mu       sync.Mutex
	partials chan types.Transcript
	finals   chan types.Transcript
	sent     [][]byte
	closed   sync.Once
}

func newStubSessionHandle() *stubSessionHandle {
	return &stubSessionHandle{
		partials: make(chan types.Transcript, 8),
		finals:   make(chan types.Transcript, 8),
	}
}

func (h *stubSessionHandle) SendAudio(b []byte) error {
	h.mu.Lock()
	h.sent = append(h.sent, b)
	h.mu.Unlock()
	return nil
}
func (h *stubSessionHandle) Partials() <-chan types.Transcript      { return h.partials }
func (h *stubSessionHandle) Finals() <-chan types.Transcript        { return h.finals }
func (h *stubSessionHandle) SetKeywords([]types.HotwordBoost) error { return nil }
func (h *stubSessionHandle) Close() error {
	h.closed.Do(func() {
		close(h.partials)
		close(h.finals)
	})
	return nil
}

func drainOut(out <-chan ServerFrame, collected *[]ServerFrame, done chan<- struct{}) {
	for f := range out {
		*collected = append(*collected, f)
	}
	close(done)
}

func TestRun_TextInitialInput_ProducesLlmAndComplete(t *testing.T) {
	handle := newStubSessionHandle()
	h := New(&stubSTT{handle: handle}, &stubLLM{response: "hello there"})

	in := make(chan ClientFrame, 4)
	out := make(chan ServerFrame, 32)
	var collected []ServerFrame
	done := make(chan struct{})
	go drainOut(out, &collected, done)

	in <- ClientFrame{
		Type:          ClientStart,
		SessionID:     "sess1",
		InitialInputs: []InitialInput{{Kind: InputText, Text: "hi"}},
	}
	in <- ClientFrame{Type: ClientControl, Command: ControlEndAudio}

	if err := h.Run(context.Background(), in, out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)
	<-done

	var sawReady, sawLlm, sawComplete bool
	for _, f := range collected {
		switch f.Type {
		case ServerReady:
			sawReady = true
		case ServerLlm:
			sawLlm = true
			if f.Delta != "hello there" {
				t.Errorf("Delta = %q, want %q", f.Delta, "hello there")
			}
		case ServerComplete:
			sawComplete = true
		}
	}
	if !sawReady || !sawLlm || !sawComplete {
		t.Fatalf("missing frame types, got %+v", collected)
	}
	if collected[len(collected)-1].Type != ServerComplete || collected[len(collected)-1].FinishReason != "stop" {
		t.Errorf("last frame = %+v, want terminal stop Complete", collected[len(collected)-1])
	}
}

func TestRun_AudioFinal_TriggersLlmTurn(t *testing.T) {
	handle := newStubSessionHandle()
	h := New(&stubSTT{handle: handle}, &stubLLM{response: "ok"})

	in := make(chan ClientFrame, 4)
	out := make(chan ServerFrame, 32)
	var collected []ServerFrame
	done := make(chan struct{})
	go drainOut(out, &collected, done)

	in <- ClientFrame{Type: ClientStart, SessionID: "sess1"}
	in <- ClientFrame{Type: ClientAudio, Audio: []byte{1, 2, 3, 4}}

	go func() {
		handle.finals <- types.Transcript{Text: "what time is it", IsFinal: true, Confidence: 0.9}
		time.Sleep(20 * time.Millisecond)
		in <- ClientFrame{Type: ClientControl, Command: ControlEndAudio}
	}()

	if err := h.Run(context.Background(), in, out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)
	<-done

	var sawFinalStt, sawSentenceComplete bool
	for _, f := range collected {
		if f.Type == ServerStt && f.IsFinal {
			sawFinalStt = true
		}
		if f.Type == ServerComplete && f.FinishReason == "sentence_complete" {
			sawSentenceComplete = true
			if f.Metadata["transcribed_text"] != "what time is it" {
				t.Errorf("transcribed_text = %v", f.Metadata["transcribed_text"])
			}
		}
	}
	if !sawFinalStt || !sawSentenceComplete {
		t.Fatalf("missing expected frames, got %+v", collected)
	}
}

func TestRun_HotwordCorrection_AppliedToFinalTranscript(t *testing.T) {
	handle := newStubSessionHandle()
	pipeline := transcript.NewPipeline(transcript.WithPhoneticMatcher(stubMatcher{}))
	h := New(&stubSTT{handle: handle}, &stubLLM{response: "ok"}, WithTranscriptPipeline(pipeline))

	in := make(chan ClientFrame, 4)
	out := make(chan ServerFrame, 32)
	var collected []ServerFrame
	done := make(chan struct{})
	go drainOut(out, &collected, done)

	in <- ClientFrame{
		Type:      ClientStart,
		SessionID: "sess1",
		Config:    Config{Hotwords: []string{"Eldrinax"}},
	}
	in <- ClientFrame{Type: ClientAudio, Audio: []byte{1, 2, 3, 4}}

	go func() {
		handle.finals <- types.Transcript{Text: "tell me about eldrinax", IsFinal: true, Confidence: 0.9}
		time.Sleep(20 * time.Millisecond)
		in <- ClientFrame{Type: ClientControl, Command: ControlEndAudio}
	}()

	if err := h.Run(context.Background(), in, out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)
	<-done

	var sawCorrectedStt bool
	for _, f := range collected {
		if f.Type == ServerStt && f.IsFinal {
			sawCorrectedStt = true
			if f.Text != "tell me about Eldrinax" {
				t.Errorf("Text = %q, want corrected hotword", f.Text)
			}
		}
	}
	if !sawCorrectedStt {
		t.Fatalf("missing final stt frame, got %+v", collected)
	}
}

func TestRun_Cancel_TerminatesPromptly(t *testing.T) {
	handle := newStubSessionHandle()
	h := New(&stubSTT{handle: handle}, &stubLLM{response: "ok"})

	in := make(chan ClientFrame, 4)
	out := make(chan ServerFrame, 32)
	var collected []ServerFrame
	done := make(chan struct{})
	go drainOut(out, &collected, done)

	in <- ClientFrame{Type: ClientStart, SessionID: "sess1"}
	in <- ClientFrame{Type: ClientControl, Command: ControlCancel}

	errCh := make(chan error, 1)
	go func() { errCh <- h.Run(context.Background(), in, out) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after CANCEL")
	}
	close(out)
	<-done

	for _, f := range collected {
		if f.Type == ServerComplete {
			t.Errorf("unexpected terminal Complete after CANCEL: %+v", f)
		}
	}
}

func TestRun_LLMFailure_EmitsRecoverableError(t *testing.T) {
	handle := newStubSessionHandle()
	h := New(&stubSTT{handle: handle}, &stubLLM{err: context.DeadlineExceeded})

	in := make(chan ClientFrame, 4)
	out := make(chan ServerFrame, 32)
	var collected []ServerFrame
	done := make(chan struct{})
	go drainOut(out, &collected, done)

	in <- ClientFrame{
		Type:          ClientStart,
		InitialInputs: []InitialInput{{Kind: InputText, Text: "hi"}},
	}
	in <- ClientFrame{Type: ClientControl, Command: ControlEndAudio}

	if err := h.Run(context.Background(), in, out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)
	<-done

	var sawRecoverable bool
	for _, f := range collected {
		if f.Type == ServerError && f.Recoverable {
			sawRecoverable = true
		}
	}
	if !sawRecoverable {
		t.Fatalf("expected recoverable error frame, got %+v", collected)
	}
}
