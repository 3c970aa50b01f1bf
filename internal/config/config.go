// Package config provides the configuration schema, loader, and provider
// registry for the multimodal agent gateway.
package config

import "time"

// Config is the root configuration structure for the gateway.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Session    SessionConfig    `yaml:"session"`
	Stream     StreamConfig     `yaml:"stream"`
	Trigger    TriggerConfig    `yaml:"trigger"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// ServerConfig holds network and logging settings for the gateway server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is a validated logging verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`

	// LLMFallbacks, when non-empty, are tried in order whenever the primary
	// LLM provider fails or its circuit breaker is open. See [ResilienceConfig].
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// SttFallbacks, when non-empty, are tried in order whenever the primary
	// STT provider fails or its circuit breaker is open.
	SttFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// SessionConfig bounds the lifecycle of gateway sessions.
type SessionConfig struct {
	// MaxSessions caps the number of concurrently active sessions. Zero means
	// unbounded.
	MaxSessions int `yaml:"max_sessions"`

	// CleanupInterval is how often the session manager sweeps for expired
	// sessions.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// DefaultTimeoutSeconds is validated (it must not be negative) but is not
	// passed to the session manager, which applies its own default of 3600
	// seconds to a session whose start frame did not request a timeout.
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds"`
}

// StreamConfig tunes the bidirectional multimodal stream handler.
type StreamConfig struct {
	// OutputQueueCapacity is the buffer size of the channel merging STT, LLM,
	// and status events into a single ordered server-frame stream. A full
	// queue blocks upstream producers rather than dropping frames.
	OutputQueueCapacity int `yaml:"output_queue_capacity"`
}

// TriggerConfig selects the trigger policy used to decide when a perception
// event should invoke the LLM.
type TriggerConfig struct {
	// Mode selects the trigger policy implementation.
	Mode TriggerMode `yaml:"mode"`

	// RuleOnlyMinChars is the trimmed transcript length (in bytes) that a
	// final audio transcript must exceed to trigger invocation under the
	// rule-only policy, and the fallback threshold an LLM-judge policy uses
	// when the judge call itself fails. Zero selects the default of 5.
	RuleOnlyMinChars int `yaml:"rule_only_min_chars"`
}

// TriggerMode is a validated trigger policy selector.
type TriggerMode string

const (
	// TriggerRuleOnly triggers on a plain character-count threshold.
	TriggerRuleOnly TriggerMode = "rule-only"

	// TriggerLLMJudge asks the configured LLM whether an utterance is
	// complete and actionable, falling back to TriggerRuleOnly on failure.
	TriggerLLMJudge TriggerMode = "llm-judge"
)

// IsValid reports whether m is one of the recognised trigger modes.
func (m TriggerMode) IsValid() bool {
	switch m {
	case TriggerRuleOnly, TriggerLLMJudge:
		return true
	default:
		return false
	}
}

// ResilienceConfig tunes the circuit breaker guarding each entry of a provider
// fallback chain. Zero values fall back to the defaults documented on
// internal/resilience.CircuitBreakerConfig.
type ResilienceConfig struct {
	// MaxFailures is the number of consecutive failures before a provider's
	// breaker opens.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long a breaker stays open before probing again.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMax caps the probe calls allowed while a breaker is half-open.
	HalfOpenMax int `yaml:"half_open_max"`
}

// TranscriptConfig controls the post-recognition transcript correction
// pipeline applied to final STT transcripts.
type TranscriptConfig struct {
	// PhoneticCorrection enables the phonetic hotword-correction pass. When
	// false, transcripts pass through unchanged.
	PhoneticCorrection bool `yaml:"phonetic_correction"`

	// PhoneticThreshold is the minimum similarity score accepted for a
	// phonetically-matched hotword. See internal/transcript/phonetic.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// FuzzyThreshold is the minimum similarity score accepted when falling
	// back to plain string similarity.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}
