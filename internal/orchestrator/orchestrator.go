// Package orchestrator implements the non-streaming multimodal driver: given
// a task and an optional audio input, it transcribes (if audio is present),
// evaluates the trigger policy, reasons over the accumulated perception with
// the LLM, and resolves the task to a completed or failed state.
//
// This is the unary counterpart to the bidirectional stream handler in
// internal/stream; it backs the POST /api/v1/process REST endpoint, where
// incremental output is not exposed to the caller.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/omniagent/internal/gatewayerr"
	"github.com/MrWong99/omniagent/internal/observe"
	"github.com/MrWong99/omniagent/internal/orchestrator/events"
	"github.com/MrWong99/omniagent/internal/orchestrator/task"
	"github.com/MrWong99/omniagent/internal/orchestrator/trigger"
	"github.com/MrWong99/omniagent/pkg/provider/llm"
	"github.com/MrWong99/omniagent/pkg/provider/stt"
	"github.com/MrWong99/omniagent/pkg/types"
)

// sttSessionTimeout bounds how long the one-shot audio path waits for final
// transcripts before giving up.
const sttSessionTimeout = 10 * time.Second

// Orchestrator drives a single task through perception, triggering, and
// reasoning to completion.
type Orchestrator struct {
	STT     stt.Provider
	LLM     llm.Provider
	Trigger trigger.Policy
	Metrics *observe.Metrics
	Logger  *slog.Logger

	// SystemPrompt is prepended to every LLM call this orchestrator issues.
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithSystemPrompt sets the system prompt prepended to every LLM call.
func WithSystemPrompt(p string) Option { return func(o *Orchestrator) { o.SystemPrompt = p } }

// WithTemperature sets the LLM sampling temperature.
func WithTemperature(t float64) Option { return func(o *Orchestrator) { o.Temperature = t } }

// WithMaxTokens sets the LLM completion token cap.
func WithMaxTokens(n int) Option { return func(o *Orchestrator) { o.MaxTokens = n } }

// WithMetrics attaches an [observe.Metrics] instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option { return func(o *Orchestrator) { o.Metrics = m } }

// WithLogger attaches a logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.Logger = l } }

// New constructs an [Orchestrator] wired to the given STT/LLM providers and
// trigger policy.
func New(sttProvider stt.Provider, llmProvider llm.Provider, policy trigger.Policy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		STT:         sttProvider,
		LLM:         llmProvider,
		Trigger:     policy,
		Temperature: 0.7,
		MaxTokens:   2048,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Metrics == nil {
		o.Metrics = observe.DefaultMetrics()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Process runs t to completion. audio is the raw PCM payload to transcribe
// when t.InputModalities includes ModalityAudio; it is ignored otherwise.
//
// Returns the task's result on success. On any failure, t is marked
// StatusFailed and the error is returned.
func (o *Orchestrator) Process(ctx context.Context, t *task.Task, audio []byte) (*task.Result, error) {
	t.UpdateStatus(task.StatusPerceiving)

	switch {
	case hasModality(t.InputModalities, events.ModalityAudio):
		if err := o.perceiveAudio(ctx, t, audio); err != nil {
			t.Fail(err)
			return nil, err
		}
	case hasModality(t.InputModalities, events.ModalityText):
		o.perceiveText(t)
	}

	result, err := o.reason(ctx, t)
	if err != nil {
		t.Fail(err)
		return nil, err
	}

	t.Complete(result)
	t.ClearPerception()
	return result, nil
}

func hasModality(modalities []events.ModalityType, want events.ModalityType) bool {
	for _, m := range modalities {
		if m == want {
			return true
		}
	}
	return false
}

// perceiveText folds the task's instruction into the perception buffer as a
// single FINAL text event, mirroring how a direct text request is wrapped
// before reasoning.
func (o *Orchestrator) perceiveText(t *task.Task) {
	e := events.PerceptionEvent{
		EventID:   t.ID + "_text",
		Modality:  events.ModalityText,
		Stage:     events.StageFinal,
		Content:   t.Instruction,
		Timestamp: time.Now(),
	}
	t.AddPerception(e)
	o.Metrics.RecordTriggerDecision(context.Background(), events.ModalityText.String(), true)
}

// perceiveAudio transcribes audio through the STT driver and folds every
// final transcript into the task's perception buffer.
func (o *Orchestrator) perceiveAudio(ctx context.Context, t *task.Task, audio []byte) error {
	session, err := o.STT.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		return gatewayerr.NewSTTError(err)
	}
	defer session.Close()

	const chunkSize = 3200 // 100ms at 16kHz/16-bit mono
	for i := 0; i < len(audio); i += chunkSize {
		end := i + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := session.SendAudio(audio[i:end]); err != nil {
			return gatewayerr.NewSTTError(err)
		}
	}

	deadline := time.After(sttSessionTimeout)
	for {
		select {
		case tr, ok := <-session.Finals():
			if !ok {
				return nil
			}
			e := o.foldTranscript(t, tr.Text)
			o.Metrics.RecordTriggerDecision(ctx, events.ModalityAudio.String(), o.Trigger.ShouldInvoke(ctx, t, e))
		case <-deadline:
			return nil
		case <-ctx.Done():
			return gatewayerr.NewTimeout("audio perception", ctx.Err())
		}
	}
}

func (o *Orchestrator) foldTranscript(t *task.Task, text string) events.PerceptionEvent {
	e := events.PerceptionEvent{
		EventID:   t.ID + "_audio",
		Modality:  events.ModalityAudio,
		Stage:     events.StageFinal,
		Content:   text,
		Timestamp: time.Now(),
	}
	t.AddPerception(e)
	return e
}

// reason builds the LLM message list from the task's accumulated
// perception, calls the LLM in streaming mode, and accumulates the full
// response text into a [task.Result].
func (o *Orchestrator) reason(ctx context.Context, t *task.Task) (*task.Result, error) {
	t.UpdateStatus(task.StatusThinking)

	started := time.Now()
	messages := toLLMMessages(t.Messages())

	chunks, err := o.LLM.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: o.SystemPrompt,
		Temperature:  o.Temperature,
		MaxTokens:    o.MaxTokens,
	})
	if err != nil {
		o.Metrics.RecordProviderError(ctx, "llm", "completion")
		return nil, gatewayerr.NewLLMError(err)
	}

	var content strings.Builder
	var finishReason string
	for chunk := range chunks {
		content.WriteString(chunk.Text)
		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}
	}
	o.Metrics.LLMDuration.Record(ctx, time.Since(started).Seconds())
	o.Metrics.RecordProviderRequest(ctx, "llm", "completion", "ok")

	t.AddStep(task.ExecutionStep{
		StepID:       t.ID + "_reasoning",
		StepType:     task.StepReasoning,
		ActionOutput: content.String(),
		StartedAt:    started,
		FinishedAt:   time.Now(),
	})

	t.UpdateStatus(task.StatusActing)
	resultMessages := append(t.Messages(), task.ChatMessage{Role: types.RoleAssistant, Content: content.String()})
	result := &task.Result{
		Content:  content.String(),
		Format:   "text",
		Messages: resultMessages,
		Metadata: map[string]any{"finish_reason": finishReason},
	}
	return result, nil
}

func toLLMMessages(msgs []task.ChatMessage) []types.Message {
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = types.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
