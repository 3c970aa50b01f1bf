// Package trigger decides whether an accumulated perception buffer should
// provoke a reasoning step.
//
// The default [RuleOnlyPolicy] applies five fixed rules by modality and
// stage. [LlmJudgePolicy] wraps it to additionally ask the LLM whether a
// final audio transcript is actionable, falling back to the rule-only
// threshold if the judge call fails.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/omniagent/internal/orchestrator/events"
	"github.com/MrWong99/omniagent/internal/orchestrator/task"
	"github.com/MrWong99/omniagent/pkg/provider/llm"
	"github.com/MrWong99/omniagent/pkg/types"
)

// RuleOnlyMinChars is the trimmed-content length (in bytes) that an audio
// final transcript must exceed, under rule-only evaluation, to be considered
// actionable.
const RuleOnlyMinChars = 5

// Policy decides whether a perception event should trigger a reasoning
// step for the given task.
type Policy interface {
	ShouldInvoke(ctx context.Context, t *task.Task, e events.PerceptionEvent) bool
}

// RuleOnlyPolicy applies five fixed rules, in order:
//
//  1. Error events never trigger.
//  2. Final text input always triggers.
//  3. Final audio input triggers when its trimmed content exceeds minChars.
//  4. Final image input always triggers.
//  5. Everything else does not trigger.
type RuleOnlyPolicy struct {
	// MinChars overrides RuleOnlyMinChars when non-zero.
	MinChars int
}

// NewRuleOnlyPolicy constructs a [RuleOnlyPolicy] with the given minimum
// audio-content length. A non-positive minChars falls back to
// [RuleOnlyMinChars].
func NewRuleOnlyPolicy(minChars int) *RuleOnlyPolicy {
	if minChars <= 0 {
		minChars = RuleOnlyMinChars
	}
	return &RuleOnlyPolicy{MinChars: minChars}
}

// ShouldInvoke implements [Policy].
func (p *RuleOnlyPolicy) ShouldInvoke(_ context.Context, _ *task.Task, e events.PerceptionEvent) bool {
	if e.Stage == events.StageError {
		return false
	}
	if e.Modality == events.ModalityText && e.Stage == events.StageFinal {
		return true
	}
	if e.Modality == events.ModalityAudio && e.Stage == events.StageFinal {
		return len(strings.TrimSpace(e.Content)) > p.minChars()
	}
	if e.Modality == events.ModalityImage && e.Stage == events.StageFinal {
		return true
	}
	return false
}

func (p *RuleOnlyPolicy) minChars() int {
	if p.MinChars <= 0 {
		return RuleOnlyMinChars
	}
	return p.MinChars
}

// LlmJudgePolicy applies [RuleOnlyPolicy] for every rule except final audio
// input, where it instead asks an LLM whether the transcribed content is a
// complete, actionable instruction. If the judge call fails for any reason,
// it falls back to the rule-only threshold.
type LlmJudgePolicy struct {
	Fallback *RuleOnlyPolicy
	Provider llm.Provider
	Logger   *slog.Logger
}

// NewLlmJudgePolicy constructs an [LlmJudgePolicy] backed by provider for
// the actionable-speech judgement, falling back to a rule-only policy with
// the given minChars threshold.
func NewLlmJudgePolicy(provider llm.Provider, minChars int, logger *slog.Logger) *LlmJudgePolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &LlmJudgePolicy{
		Fallback: NewRuleOnlyPolicy(minChars),
		Provider: provider,
		Logger:   logger,
	}
}

// ShouldInvoke implements [Policy].
func (p *LlmJudgePolicy) ShouldInvoke(ctx context.Context, t *task.Task, e events.PerceptionEvent) bool {
	if e.Modality != events.ModalityAudio || e.Stage != events.StageFinal {
		return p.Fallback.ShouldInvoke(ctx, t, e)
	}

	actionable, err := p.isActionableSpeech(ctx, t, e)
	if err != nil {
		p.Logger.Error("trigger: llm judge failed, falling back to rule-only", "error", err)
		return len(strings.TrimSpace(e.Content)) > p.Fallback.minChars()
	}
	return actionable
}

// DynamicPolicy wraps another [Policy] behind an atomically swappable
// pointer, letting a running orchestrator adopt a new trigger policy (e.g.
// after a config hot-reload) without restarting.
type DynamicPolicy struct {
	current atomic.Pointer[Policy]
}

// NewDynamicPolicy constructs a [DynamicPolicy] wrapping initial.
func NewDynamicPolicy(initial Policy) *DynamicPolicy {
	d := &DynamicPolicy{}
	d.Set(initial)
	return d
}

// Set atomically replaces the wrapped policy.
func (d *DynamicPolicy) Set(p Policy) { d.current.Store(&p) }

// ShouldInvoke implements [Policy] by delegating to the currently wrapped
// policy.
func (d *DynamicPolicy) ShouldInvoke(ctx context.Context, t *task.Task, e events.PerceptionEvent) bool {
	return (*d.current.Load()).ShouldInvoke(ctx, t, e)
}

const judgePromptTemplate = `User instruction: %s

Current recognized speech content: %s

Does this content require the agent to respond?
- If it is a complete question or instruction, answer YES
- If it is an incomplete sentence, background noise, or meaningless content, answer NO

Respond with only YES or NO
`

func (p *LlmJudgePolicy) isActionableSpeech(ctx context.Context, t *task.Task, e events.PerceptionEvent) (bool, error) {
	prompt := fmt.Sprintf(judgePromptTemplate, t.Instruction, e.Content)
	resp, err := p.Provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: types.RoleUser, Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		return false, err
	}
	result := strings.ToUpper(strings.TrimSpace(resp.Content)) == "YES"
	p.Logger.Debug("trigger: llm judge result", "task_id", t.ID, "result", result)
	return result, nil
}

