// Package task implements the per-turn execution unit of the orchestration
// core: a [Task] accumulates perception events, records the reasoning/action
// steps taken on its behalf, and produces a [Result] once complete.
package task

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/omniagent/internal/orchestrator/events"
)

// Status represents where a [Task] sits in its lifecycle.
type Status int

const (
	// StatusPending is the initial state: created but not yet perceiving.
	StatusPending Status = iota

	// StatusPerceiving is accumulating perception events, waiting for the
	// trigger policy to fire.
	StatusPerceiving

	// StatusThinking is running reasoning (an LLM call) over the
	// accumulated perception.
	StatusThinking

	// StatusActing is executing a planned action.
	StatusActing

	// StatusCompleted finished successfully with a [Result].
	StatusCompleted

	// StatusFailed finished with an error.
	StatusFailed

	// StatusCancelled was cancelled before completion.
	StatusCancelled
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPerceiving:
		return "perceiving"
	case StatusThinking:
		return "thinking"
	case StatusActing:
		return "acting"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StepType categorizes an [ExecutionStep].
type StepType int

const (
	// StepPerception records a perception event folded into the task.
	StepPerception StepType = iota

	// StepReasoning records an LLM reasoning call.
	StepReasoning

	// StepAction records execution of a planned action.
	StepAction

	// StepOutput records the final output production step.
	StepOutput
)

// String returns the human-readable name of the step type.
func (t StepType) String() string {
	switch t {
	case StepPerception:
		return "perception"
	case StepReasoning:
		return "reasoning"
	case StepAction:
		return "action"
	case StepOutput:
		return "output"
	default:
		return "unknown"
	}
}

// ExecutionStep records one step of a task's execution trace, for
// diagnostics and for building the next turn's context.
type ExecutionStep struct {
	StepID       string
	StepType     StepType
	Trigger      string
	InputEvents  []events.PerceptionEvent
	Thought      string
	PlannedAction string
	Action       string
	ActionInput  string
	ActionOutput string
	Observation  string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns the wall-clock time this step took. Zero if the step
// hasn't finished yet.
func (s ExecutionStep) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// ChatMessage is a single role/content pair in a task's conversation
// history.
type ChatMessage struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Context carries the conversation history a task starts with, inherited
// from its session's prior completed tasks.
type Context struct {
	Messages []ChatMessage
	Metadata map[string]any
}

// AddMessage appends a message to the context's history.
func (c *Context) AddMessage(role, content string) {
	c.Messages = append(c.Messages, ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// Result is the output produced by a completed task.
type Result struct {
	// Content is the final textual response.
	Content string

	// Format describes Content's encoding, e.g. "text" or "markdown".
	Format string

	// Messages is the full set of role/content pairs this task produced,
	// folded into the next task's inherited context.
	Messages []ChatMessage

	// Metadata carries arbitrary diagnostic detail.
	Metadata map[string]any
}

// Task is a single conversational turn: it buffers perception events,
// accumulates execution steps, and resolves to a [Result] or an error.
//
// Task is not safe for concurrent use except through its exported methods,
// all of which are guarded by an internal mutex.
type Task struct {
	mu sync.Mutex

	ID              string
	Instruction     string
	InputModalities []events.ModalityType
	Context         *Context
	Status          Status

	perceptionBuffer []events.PerceptionEvent
	steps            []ExecutionStep

	Result    *Result
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a pending task with the given id and instruction. ctx may be
// nil, meaning the task starts with no inherited history.
func New(id, instruction string, modalities []events.ModalityType, ctx *Context) *Task {
	now := time.Now()
	if ctx == nil {
		ctx = &Context{}
	}
	return &Task{
		ID:              id,
		Instruction:     instruction,
		InputModalities: modalities,
		Context:         ctx,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// UpdateStatus transitions the task to a new status and touches UpdatedAt.
func (t *Task) UpdateStatus(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = status
	t.UpdatedAt = time.Now()
}

// AddPerception appends a perception event to the task's buffer.
func (t *Task) AddPerception(e events.PerceptionEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.perceptionBuffer = append(t.perceptionBuffer, e)
	t.UpdatedAt = time.Now()
}

// PerceptionBuffer returns a copy of the accumulated perception events.
func (t *Task) PerceptionBuffer() []events.PerceptionEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]events.PerceptionEvent, len(t.perceptionBuffer))
	copy(out, t.perceptionBuffer)
	return out
}

// ClearPerception empties the perception buffer, used once its content has
// been folded into a completed reasoning turn.
func (t *Task) ClearPerception() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.perceptionBuffer = nil
	t.UpdatedAt = time.Now()
}

// AddStep appends a completed execution step to the task's trace.
func (t *Task) AddStep(step ExecutionStep) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, step)
	t.UpdatedAt = time.Now()
}

// Steps returns a copy of the task's execution trace.
func (t *Task) Steps() []ExecutionStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ExecutionStep, len(t.steps))
	copy(out, t.steps)
	return out
}

// Complete marks the task as successfully finished with the given result.
func (t *Task) Complete(result *Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Result = result
	t.Status = StatusCompleted
	t.UpdatedAt = time.Now()
}

// Fail marks the task as failed with the given error.
func (t *Task) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Err = err
	t.Status = StatusFailed
	t.UpdatedAt = time.Now()
}

// audioPrefix and imagePrefix mirror the perception formatting of the reasoning driver
// this orchestration core was distilled from: audio and image perception
// are tagged inline so the LLM knows which sense produced the content.
const (
	audioPrefix = "[语音识别] "
	imagePrefix = "[图像识别] "
)

// formatPerception renders the task's perception buffer as a single block
// of text, prefixing audio- and image-derived content with a modality tag
// and leaving text (and any other modality) unprefixed.
func (t *Task) formatPerception() string {
	parts := make([]string, 0, len(t.perceptionBuffer))
	for _, e := range t.perceptionBuffer {
		switch e.Modality {
		case events.ModalityAudio:
			parts = append(parts, audioPrefix+e.Content)
		case events.ModalityImage:
			parts = append(parts, imagePrefix+e.Content)
		default:
			parts = append(parts, e.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// Messages returns the full message list to send to the LLM: the inherited
// context history followed by a single user message summarizing the
// accumulated perception buffer. Returns just the inherited history if the
// perception buffer is empty.
func (t *Task) Messages() []ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	msgs := make([]ChatMessage, len(t.Context.Messages))
	copy(msgs, t.Context.Messages)

	perception := t.formatPerception()
	if perception == "" {
		return msgs
	}
	return append(msgs, ChatMessage{
		Role:      "user",
		Content:   perception,
		Timestamp: time.Now(),
	})
}

// String implements fmt.Stringer for diagnostic logging.
func (t *Task) String() string {
	return fmt.Sprintf("Task{id=%s status=%s steps=%d}", t.ID, t.Status, len(t.steps))
}
