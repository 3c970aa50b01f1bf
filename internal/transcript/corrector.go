package transcript

import (
	"context"
	"strings"

	"github.com/MrWong99/omniagent/pkg/types"
)

// PipelineOption is a functional option for configuring a [CorrectionPipeline].
type PipelineOption func(*CorrectionPipeline)

// WithPhoneticMatcher attaches a [PhoneticMatcher] as the correction stage.
// When nil (the default), the pipeline is a no-op: Correct returns the
// transcript text unchanged.
func WithPhoneticMatcher(m PhoneticMatcher) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.phonetic = m
	}
}

// CorrectionPipeline is the phonetic-matching implementation of [Pipeline].
//
// CorrectionPipeline is safe for concurrent use.
type CorrectionPipeline struct {
	phonetic PhoneticMatcher
}

// Ensure CorrectionPipeline satisfies the Pipeline interface at compile time.
var _ Pipeline = (*CorrectionPipeline)(nil)

// NewPipeline constructs a [CorrectionPipeline] with the supplied options.
// By default the phonetic stage is disabled (nil); use [WithPhoneticMatcher]
// to activate it.
func NewPipeline(opts ...PipelineOption) *CorrectionPipeline {
	p := &CorrectionPipeline{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Correct applies the configured phonetic matcher to t and returns a
// [CorrectedTranscript].
//
// Pipeline flow:
//  1. The transcript text is tokenised into whitespace-separated word tokens.
//  2. When a [PhoneticMatcher] is configured, every n-gram window (up to the
//     maximum hotword word count) is tested against the hotword list. The
//     longest matching n-gram at each position wins, so multi-word hotwords
//     take precedence over partial single-word matches.
//  3. Matched windows are replaced with the corresponding hotword and
//     recorded as a [Correction]; unmatched tokens pass through unchanged.
func (p *CorrectionPipeline) Correct(
	_ context.Context,
	t types.Transcript,
	hotwords []string,
) (*CorrectedTranscript, error) {
	result := &CorrectedTranscript{
		Original:    t,
		Corrected:   t.Text,
		Corrections: []Correction{},
	}

	if p.phonetic == nil || len(hotwords) == 0 {
		return result, nil
	}

	correctedText, corrections := p.applyPhonetic(t.Text, hotwords)
	result.Corrected = correctedText
	result.Corrections = append(result.Corrections, corrections...)

	return result, nil
}

// applyPhonetic runs the phonetic matching stage over the transcript text.
// It returns the corrected text and the list of corrections applied.
//
// The algorithm:
//  1. Tokenise the text into words.
//  2. Determine the maximum number of words in any hotword phrase.
//  3. At each token position, try n-gram windows from maxHotwordWords down to
//     1. Accept the longest n-gram match so that multi-word hotwords take
//     precedence over partial single-word matches.
//  4. Append matched (or unmatched) tokens to the output and advance the
//     cursor by the number of tokens consumed.
func (p *CorrectionPipeline) applyPhonetic(
	text string,
	hotwords []string,
) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	maxHotwordWords := maxWordCount(hotwords)
	if maxHotwordWords == 0 {
		return text, nil
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		// Clamp window size to remaining tokens.
		maxN := maxHotwordWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			hotword, conf, ok := p.phonetic.Match(window, hotwords)
			if !ok {
				continue
			}

			// Emit the hotword tokens and record the correction.
			hotwordTokens := strings.Fields(hotword)
			output = append(output, hotwordTokens...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  hotword,
				Confidence: conf,
				Method:     "phonetic",
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any hotword string. Returns 1 when hotwords is empty.
func maxWordCount(hotwords []string) int {
	max := 1
	for _, h := range hotwords {
		n := len(strings.Fields(h))
		if n > max {
			max = n
		}
	}
	return max
}
