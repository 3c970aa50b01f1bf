// Package stream implements the bidirectional multimodal stream handler: the
// hot path that accepts a continuous sequence of client frames (session
// start, audio chunks, control commands) and emits a continuous sequence of
// server frames (partial/final transcripts, LLM deltas, turn completions,
// errors).
//
// The handler is transport-agnostic: it reads from a channel of ClientFrame
// and writes to a channel of ServerFrame. internal/transport/ws is
// responsible for decoding/encoding these as JSON text messages, one frame
// per message, over a websocket connection.
package stream

// ClientFrameType tags the variant of an inbound ClientFrame.
type ClientFrameType string

const (
	ClientStart   ClientFrameType = "start"
	ClientAudio   ClientFrameType = "audio"
	ClientControl ClientFrameType = "control"
)

// ControlCommand is the payload of a ClientControl frame.
type ControlCommand string

const (
	ControlFlush    ControlCommand = "FLUSH"
	ControlEndAudio ControlCommand = "END_AUDIO"
	ControlCancel   ControlCommand = "CANCEL"
)

// InputKind tags the variant of an InitialInput.
type InputKind string

const (
	InputText  InputKind = "text"
	InputAudio InputKind = "audio"
)

// InitialInput is one of the inputs attached to a Start frame, folded into
// the turn before the stream begins accepting live audio.
type InitialInput struct {
	Kind  InputKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Audio []byte    `json:"audio,omitempty"`
}

// Config carries the per-stream overrides a client may request at Start
// time. Zero values mean "use the handler's default".
type Config struct {
	SttModel     string   `json:"stt_model,omitempty"`
	LlmModel     string   `json:"llm_model,omitempty"`
	Language     string   `json:"language,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  float64  `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Hotwords     []string `json:"hotwords,omitempty"`
}

// ClientFrame is the tagged union of frames a client may send. Exactly the
// fields relevant to Type are meaningful; transport decoders populate this
// struct directly from the wire JSON object.
type ClientFrame struct {
	Type ClientFrameType `json:"type"`

	// ClientStart fields.
	SessionID     string         `json:"session_id,omitempty"`
	Config        Config         `json:"config,omitempty"`
	InitialInputs []InitialInput `json:"initial_inputs,omitempty"`

	// ClientAudio fields.
	Audio []byte `json:"data,omitempty"`

	// ClientControl fields.
	Command ControlCommand `json:"command,omitempty"`
}

// ServerFrameType tags the variant of an outbound ServerFrame.
type ServerFrameType string

const (
	ServerReady    ServerFrameType = "ready"
	ServerStt      ServerFrameType = "stt"
	ServerLlm      ServerFrameType = "llm"
	ServerComplete ServerFrameType = "complete"
	ServerError    ServerFrameType = "error"
)

// ServerFrame is the tagged union of frames the handler emits.
type ServerFrame struct {
	Type ServerFrameType `json:"type"`

	// ServerReady fields.
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`

	// ServerStt fields.
	Text       string  `json:"text,omitempty"`
	IsFinal    bool    `json:"is_final,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// ServerLlm fields.
	Delta string `json:"delta,omitempty"`
	Index int    `json:"index,omitempty"`

	// ServerComplete fields.
	FinishReason string         `json:"finish_reason,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	// ServerError fields. Message above doubles as the error text.
	Code        int  `json:"code,omitempty"`
	Recoverable bool `json:"recoverable,omitempty"`
}

func readyFrame(sessionID, message string) ServerFrame {
	return ServerFrame{Type: ServerReady, SessionID: sessionID, Message: message}
}

func sttFrame(text string, isFinal bool, confidence float64) ServerFrame {
	return ServerFrame{Type: ServerStt, Text: text, IsFinal: isFinal, Confidence: confidence}
}

func llmFrame(delta string, index int) ServerFrame {
	return ServerFrame{Type: ServerLlm, Delta: delta, Index: index}
}

func completeFrame(finishReason string, metadata map[string]any) ServerFrame {
	return ServerFrame{Type: ServerComplete, FinishReason: finishReason, Metadata: metadata}
}

func errorFrame(code int, message string, recoverable bool) ServerFrame {
	return ServerFrame{Type: ServerError, Code: code, Message: message, Recoverable: recoverable}
}
