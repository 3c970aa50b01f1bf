package stream

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/omniagent/internal/gatewayerr"
	"github.com/MrWong99/omniagent/internal/observe"
	"github.com/MrWong99/omniagent/internal/transcript"
	"github.com/MrWong99/omniagent/pkg/provider/llm"
	"github.com/MrWong99/omniagent/pkg/provider/stt"
	"github.com/MrWong99/omniagent/pkg/types"
)

const (
	defaultQueueSize   = 64
	sentenceQueueSize  = 16
	fanInDrainTimeout  = 3 * time.Second
	workerDrainTimeout = 8 * time.Second
)

// Handler drives one bidirectional multimodal stream: it consumes
// ClientFrame values, transcribes audio, decides when an utterance is
// actionable, and runs it through the LLM, emitting ServerFrame values as
// work completes.
//
// A Handler has no per-stream state of its own; Run allocates a fresh
// turnState, output queue, and sentence queue for each call, so a single
// Handler may service many concurrent streams.
type Handler struct {
	STT stt.Provider
	LLM llm.Provider

	// Transcript, when set, corrects every final transcript against the
	// stream's configured hotwords before it reaches the LLM worker or the
	// client. A nil Transcript leaves final transcripts unchanged.
	Transcript transcript.Pipeline

	Metrics *observe.Metrics
	Logger  *slog.Logger

	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	QueueSize    int
}

// Option configures a [Handler].
type Option func(*Handler)

// WithSystemPrompt sets the default system prompt used when a stream's Start
// frame does not override it.
func WithSystemPrompt(p string) Option { return func(h *Handler) { h.SystemPrompt = p } }

// WithTemperature sets the default LLM sampling temperature.
func WithTemperature(t float64) Option { return func(h *Handler) { h.Temperature = t } }

// WithMaxTokens sets the default LLM completion token cap.
func WithMaxTokens(n int) Option { return func(h *Handler) { h.MaxTokens = n } }

// WithQueueSize overrides the output queue's capacity (the back-pressure
// knob described in the concurrency model). Defaults to 64.
func WithQueueSize(n int) Option { return func(h *Handler) { h.QueueSize = n } }

// WithMetrics attaches an [observe.Metrics] instance.
func WithMetrics(m *observe.Metrics) Option { return func(h *Handler) { h.Metrics = m } }

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option { return func(h *Handler) { h.Logger = l } }

// WithTranscriptPipeline attaches a [transcript.Pipeline] that corrects final
// transcripts against the stream's configured hotwords. Omit to leave
// transcripts uncorrected.
func WithTranscriptPipeline(p transcript.Pipeline) Option {
	return func(h *Handler) { h.Transcript = p }
}

// New constructs a [Handler] wired to the given STT/LLM providers.
func New(sttProvider stt.Provider, llmProvider llm.Provider, opts ...Option) *Handler {
	h := &Handler{
		STT:         sttProvider,
		LLM:         llmProvider,
		Temperature: 0.7,
		MaxTokens:   2048,
		QueueSize:   defaultQueueSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.Metrics == nil {
		h.Metrics = observe.DefaultMetrics()
	}
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	return h
}

// Run services one stream to completion: it blocks until the client ends
// the stream (END_AUDIO or CANCEL), the transport closes in, or ctx is
// cancelled. It never returns an error for a client-initiated end; a
// non-nil error indicates an internal failure unrelated to client behavior.
func (h *Handler) Run(parent context.Context, in <-chan ClientFrame, out chan<- ServerFrame) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	outputQueue := make(chan ServerFrame, h.queueSize())

	enqueue := func(f ServerFrame) {
		select {
		case outputQueue <- f:
		case <-gctx.Done():
		}
	}

	g.Go(func() error { return h.runSender(ctx, outputQueue, out) })

	start, ok := h.awaitStart(gctx, in)
	if !ok {
		close(outputQueue)
		return g.Wait()
	}

	cfg := h.mergeConfig(start.Config)

	session, err := h.STT.StartStream(gctx, stt.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
		Language:   cfg.Language,
		Keywords:   hotwordBoosts(cfg.Hotwords),
	})
	if err != nil {
		h.Metrics.RecordProviderError(gctx, "stt", "start_stream")
		enqueue(errorFrame(int(gatewayerr.CodeSTTError), "failed to start transcription", false))
		close(outputQueue)
		return g.Wait()
	}

	enqueue(readyFrame(start.SessionID, "stream ready"))

	state := &turnState{}
	pendingSentences := make(chan string, sentenceQueueSize)
	fanInDone := make(chan struct{})
	workerDone := make(chan struct{})

	for _, inp := range start.InitialInputs {
		switch inp.Kind {
		case InputText:
			if trimmedNonEmpty(inp.Text) {
				select {
				case pendingSentences <- inp.Text:
				case <-gctx.Done():
				}
			}
		case InputAudio:
			_ = session.SendAudio(inp.Audio)
		}
	}

	g.Go(func() error {
		defer close(fanInDone)
		return h.runSTTFanIn(gctx, session, enqueue, pendingSentences, cfg.Hotwords)
	})
	g.Go(func() error {
		defer close(workerDone)
		return h.runWorker(gctx, state, pendingSentences, enqueue, cfg)
	})

	h.runReader(ctx, gctx, cancel, in, session, pendingSentences, fanInDone, workerDone, enqueue)

	// runReader may return via the graceful END_AUDIO path (which already
	// awaited both) or an abrupt cancel/transport-drop path (which did not).
	// Always wait here too before closing outputQueue, so the fan-in and
	// worker goroutines, which send to outputQueue through enqueue, are
	// guaranteed to have exited and cannot race a send against this close.
	waitBounded(fanInDone, fanInDrainTimeout)
	waitBounded(workerDone, workerDrainTimeout)
	close(outputQueue)
	return g.Wait()
}

func (h *Handler) queueSize() int {
	if h.QueueSize <= 0 {
		return defaultQueueSize
	}
	return h.QueueSize
}

func (h *Handler) awaitStart(ctx context.Context, in <-chan ClientFrame) (ClientFrame, bool) {
	select {
	case <-ctx.Done():
		return ClientFrame{}, false
	case frame, ok := <-in:
		if !ok || frame.Type != ClientStart {
			return ClientFrame{}, false
		}
		return frame, true
	}
}

func (h *Handler) mergeConfig(c Config) Config {
	out := c
	if out.SystemPrompt == "" {
		out.SystemPrompt = h.SystemPrompt
	}
	if out.Temperature == 0 {
		out.Temperature = h.Temperature
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = h.MaxTokens
	}
	return out
}

// runReader consumes frames after Start: audio chunks are forwarded to the
// STT session, control commands drive shutdown. It owns the decision of
// when the stream ends and is the sole closer of pendingSentences.
func (h *Handler) runReader(
	ctx, gctx context.Context,
	cancel context.CancelFunc,
	in <-chan ClientFrame,
	session stt.SessionHandle,
	pendingSentences chan string,
	fanInDone, workerDone <-chan struct{},
	enqueue func(ServerFrame),
) {
	defer session.Close()

	for {
		select {
		case <-gctx.Done():
			return
		case frame, ok := <-in:
			if !ok {
				// Transport dropped: abrupt end, no flush of remaining output.
				cancel()
				return
			}
			switch frame.Type {
			case ClientAudio:
				if err := session.SendAudio(frame.Audio); err != nil {
					h.Metrics.RecordProviderError(gctx, "stt", "send_audio")
					enqueue(errorFrame(int(gatewayerr.CodeSTTError), "speech-to-text upstream error", false))
					cancel()
					return
				}
			case ClientControl:
				switch frame.Command {
				case ControlFlush:
					// No explicit flush primitive on SessionHandle; upstream
					// commits finals on its own cadence.
				case ControlEndAudio:
					session.Close()
					waitBounded(fanInDone, fanInDrainTimeout)
					close(pendingSentences)
					waitBounded(workerDone, workerDrainTimeout)
					enqueue(completeFrame("stop", nil))
					return
				case ControlCancel:
					cancel()
					return
				}
			case ClientStart:
				// Duplicate Start on an already-running stream: ignored.
			}
		}
	}
}

func waitBounded(done <-chan struct{}, timeout time.Duration) {
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// runSTTFanIn reads both transcript channels of session and forwards them as
// Stt frames, queuing non-empty finals as sentences for the LLM worker. It
// returns once both channels are closed or gctx is cancelled.
func (h *Handler) runSTTFanIn(
	gctx context.Context,
	session stt.SessionHandle,
	enqueue func(ServerFrame),
	pendingSentences chan<- string,
	hotwords []string,
) error {
	partials := session.Partials()
	finals := session.Finals()

	for partials != nil || finals != nil {
		select {
		case <-gctx.Done():
			return nil
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			enqueue(sttFrame(tr.Text, false, tr.Confidence))
		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			text := h.correctFinal(gctx, tr, hotwords)
			enqueue(sttFrame(text, true, tr.Confidence))
			if trimmedNonEmpty(text) {
				select {
				case pendingSentences <- text:
				case <-gctx.Done():
					return nil
				}
			}
		}
	}
	return nil
}

// correctFinal runs a final transcript through h.Transcript, if configured,
// and returns the corrected text. Correction failures and a nil pipeline both
// fall back to the transcript unchanged.
func (h *Handler) correctFinal(ctx context.Context, tr types.Transcript, hotwords []string) string {
	if h.Transcript == nil || len(hotwords) == 0 {
		return tr.Text
	}
	corrected, err := h.Transcript.Correct(ctx, tr, hotwords)
	if err != nil {
		h.Logger.Warn("transcript correction failed", "err", err)
		return tr.Text
	}
	return corrected.Corrected
}

// hotwordBoosts converts plain hotword phrases into the boosted form the STT
// provider's keyword hint API expects, using a uniform mid-range boost.
func hotwordBoosts(words []string) []types.HotwordBoost {
	boosts := make([]types.HotwordBoost, len(words))
	for i, w := range words {
		boosts[i] = types.HotwordBoost{Phrase: w, Boost: 1.0}
	}
	return boosts
}

// runWorker dequeues sentences and runs each through the LLM, single
// threaded, until pendingSentences is closed (normal end) or gctx is
// cancelled (abrupt end).
func (h *Handler) runWorker(
	gctx context.Context,
	state *turnState,
	pendingSentences <-chan string,
	enqueue func(ServerFrame),
	cfg Config,
) error {
	for {
		select {
		case <-gctx.Done():
			return nil
		case sentence, ok := <-pendingSentences:
			if !ok {
				return nil
			}
			h.runTurn(gctx, state, sentence, enqueue, cfg)
		}
	}
}

func (h *Handler) runTurn(gctx context.Context, state *turnState, sentence string, enqueue func(ServerFrame), cfg Config) {
	history := state.historySnapshot()
	messages := make([]types.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, types.Message{Role: types.RoleUser, Content: sentence})

	started := time.Now()
	chunks, err := h.LLM.StreamCompletion(gctx, llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	})
	if err != nil {
		h.Metrics.RecordProviderError(gctx, "llm", "stream")
		enqueue(errorFrame(int(gatewayerr.CodeLLMRecoverable), "llm turn failed, you may try again", true))
		return
	}

	var content strings.Builder
	var finishReason string
	index := 0
	for chunk := range chunks {
		if chunk.Text != "" {
			enqueue(llmFrame(chunk.Text, index))
			index++
			content.WriteString(chunk.Text)
		}
		if chunk.FinishReason != "" {
			finishReason = chunk.FinishReason
		}
	}
	if finishReason == "" {
		finishReason = "stop"
	}

	h.Metrics.LLMDuration.Record(gctx, time.Since(started).Seconds())
	h.Metrics.RecordProviderRequest(gctx, "llm", "stream", "ok")

	answerIndex := state.commitTurn(sentence, content.String())
	enqueue(completeFrame("sentence_complete", map[string]any{
		"transcribed_text": sentence,
		"answer_index":     answerIndex,
	}))
}

// runSender is the stream's sole writer to the wire. It drains outputQueue
// in FIFO order until the queue is closed (graceful end) or ctx is
// cancelled (abrupt end, remaining queued frames are dropped).
func (h *Handler) runSender(ctx context.Context, outputQueue <-chan ServerFrame, out chan<- ServerFrame) error {
	for {
		select {
		case frame, ok := <-outputQueue:
			if !ok {
				return nil
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
