// Package transcript defines the transcript correction pipeline used to fix
// STT misrecognitions of session-configured hotwords.
//
// Raw speech-to-text output frequently mishears domain-specific vocabulary
// that an STT provider's general language model has never seen — product
// names, technical terms, acronyms. The [Pipeline] applies a phonetic
// correction stage ([PhoneticMatcher]): fast, dictionary-free alignment based
// on pronunciation similarity. It runs in-process with no network calls and
// no LLM round-trips, so it can run on every final transcript without adding
// latency to the turn.
//
// Each [Correction] records which method produced the substitution and its
// confidence, so callers can audit, display, or selectively roll back changes.
//
// Implementations of both interfaces must be safe for concurrent use.
package transcript

import (
	"context"

	"github.com/MrWong99/omniagent/pkg/types"
)

// Correction captures a single word-level substitution made by the pipeline.
type Correction struct {
	// Original is the word as produced by the STT provider.
	Original string

	// Corrected is the replacement selected by the pipeline.
	Corrected string

	// Confidence is the pipeline's confidence in this substitution (0.0–1.0).
	// Values above 0.9 are considered high-confidence; values below 0.5
	// indicate the correction is speculative.
	Confidence float64

	// Method describes which correction stage produced this substitution.
	// Currently always "phonetic".
	Method string
}

// CorrectedTranscript is the output of a [Pipeline.Correct] call.
// It pairs the original [types.Transcript] with the fully corrected text and
// an itemised record of every substitution that was applied.
type CorrectedTranscript struct {
	// Original is the raw [types.Transcript] as received from the STT provider.
	Original types.Transcript

	// Corrected is the full corrected transcript text with all substitutions
	// applied. Suitable for downstream processing (session log, LLM context).
	Corrected string

	// Corrections is the ordered list of word-level substitutions applied to
	// produce Corrected. An empty (non-nil) slice means no corrections were
	// necessary.
	Corrections []Correction
}

// Pipeline applies hotword correction to a raw [types.Transcript], resolving
// STT misrecognitions of session-configured vocabulary.
//
// Implementations must be safe for concurrent use.
type Pipeline interface {
	// Correct processes transcript using the provided hotword list and
	// returns a [CorrectedTranscript] containing the corrected text and an
	// itemised record of every substitution made.
	//
	// hotwords is the list of known phrases the pipeline should recognise
	// within the transcript text, typically the same list passed to the STT
	// provider as recognition hints.
	//
	// Returns a non-nil *CorrectedTranscript on success.
	// When no corrections are needed, Corrected equals transcript.Text and
	// Corrections is an empty (non-nil) slice.
	Correct(ctx context.Context, transcript types.Transcript, hotwords []string) (*CorrectedTranscript, error)
}

// PhoneticMatcher resolves a single word to a known hotword based on
// pronunciation similarity. It is designed to be fast enough for real-time
// use on every final transcript — no network calls, no LLM round-trips.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match attempts to find the hotword from hotwords that is most
	// phonetically similar to word.
	//
	// Return values:
	//   corrected  — the best-matching hotword from hotwords.
	//   confidence — similarity score in [0.0, 1.0] where 1.0 is a perfect match.
	//   matched    — true when a sufficiently similar hotword was found.
	//
	// When matched is false, corrected must equal word unchanged and confidence
	// must be 0. Implementations define their own similarity threshold for
	// deciding when a match is "sufficient".
	Match(word string, hotwords []string) (corrected string, confidence float64, matched bool)
}
