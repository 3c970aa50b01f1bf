package main

import (
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/omniagent/internal/config"
	"github.com/MrWong99/omniagent/pkg/provider/llm"
	"github.com/MrWong99/omniagent/pkg/provider/llm/anyllm"
	llmmock "github.com/MrWong99/omniagent/pkg/provider/llm/mock"
	"github.com/MrWong99/omniagent/pkg/provider/llm/openai"
	"github.com/MrWong99/omniagent/pkg/provider/stt"
	"github.com/MrWong99/omniagent/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/omniagent/pkg/provider/stt/mock"
	"github.com/MrWong99/omniagent/pkg/provider/stt/whisper"
)

// builtinLLMProviders lists the LLM provider names this binary registers,
// for startup logging.
var builtinLLMProviders = []string{"openai", "anyllm", "mock"}

// builtinSTTProviders lists the STT provider names this binary registers,
// for startup logging.
var builtinSTTProviders = []string{"deepgram", "whisper", "mock"}

// registerBuiltinProviders wires every provider package this binary ships
// with into reg, keyed by the name a [config.ProviderEntry] selects.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		if e.APIKey == "" {
			return nil, fmt.Errorf("openai: api_key is required")
		}
		var opts []openai.Option
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		return openai.New(e.APIKey, e.Model, opts...)
	})

	reg.RegisterLLM("anyllm", func(e config.ProviderEntry) (llm.Provider, error) {
		backend, _ := e.Options["backend"].(string)
		if backend == "" {
			backend = "openai"
		}
		var opts []anyllmlib.Option
		if e.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
		}
		return anyllm.New(backend, e.Model, opts...)
	})

	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		if e.APIKey == "" {
			return nil, fmt.Errorf("deepgram: api_key is required")
		}
		var opts []deepgram.Option
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		if e.BaseURL == "" {
			return nil, fmt.Errorf("whisper: base_url is required")
		}
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	slog.Debug("provider factories registered", "llm", builtinLLMProviders, "stt", builtinSTTProviders)
}
