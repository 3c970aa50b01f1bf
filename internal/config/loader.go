package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper", "whisper-native"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; sessions will not be able to generate responses")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; audio input will not be transcribed")
	}

	// Trigger
	if cfg.Trigger.Mode != "" && !cfg.Trigger.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("trigger.mode %q is invalid; valid values: rule-only, llm-judge", cfg.Trigger.Mode))
	}
	if cfg.Trigger.RuleOnlyMinChars < 0 {
		errs = append(errs, fmt.Errorf("trigger.rule_only_min_chars %d must be >= 0", cfg.Trigger.RuleOnlyMinChars))
	}

	// Session
	if cfg.Session.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("session.max_sessions %d must be >= 0", cfg.Session.MaxSessions))
	}
	if cfg.Session.DefaultTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("session.default_timeout_seconds %d must be >= 0", cfg.Session.DefaultTimeoutSeconds))
	}

	// Stream
	if cfg.Stream.OutputQueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("stream.output_queue_capacity %d must be >= 0", cfg.Stream.OutputQueueCapacity))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must be >= 0", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("resilience.half_open_max %d must be >= 0", cfg.Resilience.HalfOpenMax))
	}

	// Transcript
	if cfg.Transcript.PhoneticThreshold < 0 || cfg.Transcript.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("transcript.phonetic_threshold %v must be between 0 and 1", cfg.Transcript.PhoneticThreshold))
	}
	if cfg.Transcript.FuzzyThreshold < 0 || cfg.Transcript.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("transcript.fuzzy_threshold %v must be between 0 and 1", cfg.Transcript.FuzzyThreshold))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
