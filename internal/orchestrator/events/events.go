// Package events defines the perception event vocabulary flowing from
// transport adapters into the orchestration core.
//
// A [PerceptionEvent] is the atomic unit of input: a chunk of recognized
// text, an interim partial, or an error, tagged with the modality it came
// from. The trigger policy and the task buffer both operate purely in terms
// of this type, independent of which transport or provider produced it.
package events

import "time"

// ModalityType identifies the input channel a [PerceptionEvent] originated
// from.
type ModalityType int

const (
	// ModalityText is direct typed/text input.
	ModalityText ModalityType = iota

	// ModalityAudio is speech transcribed by an STT provider.
	ModalityAudio

	// ModalityImage is content extracted from an image.
	ModalityImage

	// ModalityVideo is content extracted from a video frame or clip.
	ModalityVideo
)

// String returns the human-readable name of the modality.
func (m ModalityType) String() string {
	switch m {
	case ModalityText:
		return "text"
	case ModalityAudio:
		return "audio"
	case ModalityImage:
		return "image"
	case ModalityVideo:
		return "video"
	default:
		return "unknown"
	}
}

// EventStage marks where in its lifecycle a perception event sits.
type EventStage int

const (
	// StagePartial is an interim, not-yet-final result (e.g. an STT interim
	// transcript). Partials may be superseded by a later partial or a final.
	StagePartial EventStage = iota

	// StageFinal is an authoritative, complete result for this perception
	// unit.
	StageFinal

	// StageError indicates the producing pipeline failed to generate a
	// result for this perception unit.
	StageError
)

// String returns the human-readable name of the stage.
func (s EventStage) String() string {
	switch s {
	case StagePartial:
		return "partial"
	case StageFinal:
		return "final"
	case StageError:
		return "error"
	default:
		return "unknown"
	}
}

// PerceptionEvent is a single unit of perceived input, carrying enough
// context for the trigger policy to decide whether it should provoke a
// reasoning step and for the task to fold it into its message history.
type PerceptionEvent struct {
	// EventID uniquely identifies this event within its session.
	EventID string

	// Modality is the input channel this event originated from.
	Modality ModalityType

	// Stage marks this event's position in its producing pipeline's
	// lifecycle.
	Stage EventStage

	// Content is the recognized text for this event. Empty for Stage ==
	// StageError.
	Content string

	// Confidence is the producer's confidence in Content, in [0, 1].
	// It is left at zero when the producer does not report a confidence score.
	Confidence float64

	// Timestamp marks when this event was produced.
	Timestamp time.Time

	// Metadata carries producer-specific detail (e.g. STT word timings,
	// image bounding boxes) that downstream consumers may ignore.
	Metadata map[string]any

	// RawData optionally carries the raw bytes this event was derived from
	// (e.g. the audio chunk a transcript came from), for diagnostics.
	RawData []byte
}
