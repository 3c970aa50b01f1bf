// Command omniagent is the main entry point for the multimodal agent
// gateway server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/omniagent/internal/config"
	"github.com/MrWong99/omniagent/internal/health"
	"github.com/MrWong99/omniagent/internal/observe"
	"github.com/MrWong99/omniagent/internal/orchestrator"
	"github.com/MrWong99/omniagent/internal/orchestrator/session"
	"github.com/MrWong99/omniagent/internal/orchestrator/trigger"
	"github.com/MrWong99/omniagent/internal/resilience"
	"github.com/MrWong99/omniagent/internal/stream"
	httpapi "github.com/MrWong99/omniagent/internal/transport/http"
	"github.com/MrWong99/omniagent/internal/transport/ws"
	"github.com/MrWong99/omniagent/internal/transcript"
	"github.com/MrWong99/omniagent/internal/transcript/phonetic"
	"github.com/MrWong99/omniagent/pkg/provider/llm"
	"github.com/MrWong99/omniagent/pkg/provider/stt"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	levelVar := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	// sessions and policy are filled in below, once constructed; reload
	// applies to whichever of them exist at the time a reload lands.
	var sessions *session.Manager
	var policy *trigger.DynamicPolicy
	var llmProvider llm.Provider

	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		applyConfigReload(old, updated, levelVar, sessions, policy, llmProvider, logger)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "omniagent: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "omniagent: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	levelVar.Set(slogLevel(cfg.Server.LogLevel))

	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "omniagent",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer shutdownTelemetry(context.Background())
	metrics := observe.DefaultMetrics()

	slog.Info("omniagent starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	var sttProvider stt.Provider
	sttProvider, llmProvider, err = buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	sessions = session.NewManager(
		session.WithMaxSessions(cfg.Session.MaxSessions),
		session.WithCleanupInterval(cleanupIntervalOrDefault(cfg.Session.CleanupInterval)),
		session.WithMetrics(metrics),
		session.WithLogger(logger),
	)
	sessions.Start()
	defer sessions.Stop()

	policy = trigger.NewDynamicPolicy(buildTriggerPolicy(cfg, llmProvider, logger))

	orch := orchestrator.New(sttProvider, llmProvider, policy,
		orchestrator.WithMetrics(metrics),
		orchestrator.WithLogger(logger),
	)

	streamOpts := []stream.Option{
		stream.WithMetrics(metrics),
		stream.WithLogger(logger),
	}
	if cfg.Stream.OutputQueueCapacity > 0 {
		streamOpts = append(streamOpts, stream.WithQueueSize(cfg.Stream.OutputQueueCapacity))
	}
	if pipeline := buildTranscriptPipeline(cfg); pipeline != nil {
		streamOpts = append(streamOpts, stream.WithTranscriptPipeline(pipeline))
	}
	streamHandler := stream.New(sttProvider, llmProvider, streamOpts...)

	healthHandler := health.New(health.Checker{
		Name: "sessions",
		Check: func(context.Context) error {
			return nil
		},
	})

	mux := http.NewServeMux()
	httpapi.New(sessions, orch, sttProvider, llmProvider,
		httpapi.WithHealth(healthHandler),
		httpapi.WithLogger(logger),
	).Register(mux)
	ws.New(streamHandler, ws.WithLogger(logger)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server ready", "listen_addr", addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func cleanupIntervalOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}

func buildTriggerPolicy(cfg *config.Config, llmProvider llm.Provider, logger *slog.Logger) trigger.Policy {
	minChars := cfg.Trigger.RuleOnlyMinChars
	if cfg.Trigger.Mode == config.TriggerLLMJudge && llmProvider != nil {
		return trigger.NewLlmJudgePolicy(llmProvider, minChars, logger)
	}
	return trigger.NewRuleOnlyPolicy(minChars)
}

// buildProviders instantiates the configured STT and LLM providers from the
// registry, wrapping each in a [resilience.FallbackGroup] when the config
// names additional fallback entries.
func buildProviders(cfg *config.Config, reg *config.Registry) (stt.Provider, llm.Provider, error) {
	var sttProvider stt.Provider
	var llmProvider llm.Provider

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "llm", "name", name)

		if len(cfg.Providers.LLMFallbacks) > 0 {
			group := resilience.NewLLMFallback(p, name, fallbackConfig(cfg))
			for i, entry := range cfg.Providers.LLMFallbacks {
				fb, err := reg.CreateLLM(entry)
				if err != nil {
					return nil, nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
				}
				group.AddFallback(fallbackName(entry.Name, "llm", i), fb)
			}
			slog.Info("llm fallback chain configured", "fallbacks", len(cfg.Providers.LLMFallbacks))
			llmProvider = group
		} else {
			llmProvider = p
		}
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "stt", "name", name)

		if len(cfg.Providers.SttFallbacks) > 0 {
			group := resilience.NewSTTFallback(p, name, fallbackConfig(cfg))
			for i, entry := range cfg.Providers.SttFallbacks {
				fb, err := reg.CreateSTT(entry)
				if err != nil {
					return nil, nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
				}
				group.AddFallback(fallbackName(entry.Name, "stt", i), fb)
			}
			slog.Info("stt fallback chain configured", "fallbacks", len(cfg.Providers.SttFallbacks))
			sttProvider = group
		} else {
			sttProvider = p
		}
	}

	return sttProvider, llmProvider, nil
}

// fallbackConfig translates [config.ResilienceConfig] into the
// [resilience.FallbackConfig] shared by every entry of a fallback chain.
func fallbackConfig(cfg *config.Config) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
			HalfOpenMax:  cfg.Resilience.HalfOpenMax,
		},
	}
}

// fallbackName returns a human-readable breaker label for an unnamed fallback
// entry.
func fallbackName(name, kind string, index int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%s-fallback-%d", kind, index)
}

// buildTranscriptPipeline constructs the phonetic hotword-correction pipeline
// when enabled, or nil when disabled (the stream handler treats a nil
// pipeline as a pass-through).
func buildTranscriptPipeline(cfg *config.Config) transcript.Pipeline {
	if !cfg.Transcript.PhoneticCorrection {
		return nil
	}
	var opts []phonetic.Option
	if cfg.Transcript.PhoneticThreshold > 0 {
		opts = append(opts, phonetic.WithPhoneticThreshold(cfg.Transcript.PhoneticThreshold))
	}
	if cfg.Transcript.FuzzyThreshold > 0 {
		opts = append(opts, phonetic.WithFuzzyThreshold(cfg.Transcript.FuzzyThreshold))
	}
	return transcript.NewPipeline(transcript.WithPhoneticMatcher(phonetic.New(opts...)))
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      omniagent — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	fmt.Printf("║  Trigger mode    : %-19s ║\n", string(cfg.Trigger.Mode))
	fmt.Printf("║  Max sessions    : %-19d ║\n", cfg.Session.MaxSessions)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// applyConfigReload is the [config.Watcher] change callback: it applies the
// subset of configuration that [config.Diff] marks as safe to hot-reload.
// sessions and policy may be nil if the reload callback fires before the
// server has finished constructing them; both are skipped in that case.
func applyConfigReload(
	old, updated *config.Config,
	levelVar *slog.LevelVar,
	sessions *session.Manager,
	policy *trigger.DynamicPolicy,
	llmProvider llm.Provider,
	logger *slog.Logger,
) {
	diff := config.Diff(old, updated)

	if diff.LogLevelChanged {
		levelVar.Set(slogLevel(diff.NewLogLevel))
		logger.Info("config reload: log level changed", "level", diff.NewLogLevel)
	}
	if diff.SessionLimitsChanged && sessions != nil {
		sessions.SetMaxSessions(diff.NewSession.MaxSessions)
		logger.Info("config reload: session limits changed", "max_sessions", diff.NewSession.MaxSessions)
	}
	if diff.TriggerChanged && policy != nil {
		policy.Set(buildTriggerPolicy(updated, llmProvider, logger))
		logger.Info("config reload: trigger policy changed", "mode", diff.NewTrigger.Mode)
	}
}
