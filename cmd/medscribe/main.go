// Command medscribe is the main entry point for the medscribe dictation and
// translation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/MrWong99/medscribe/internal/config"
	"github.com/MrWong99/medscribe/internal/events"
	"github.com/MrWong99/medscribe/internal/observe"
	"github.com/MrWong99/medscribe/internal/resilience"
	"github.com/MrWong99/medscribe/internal/session"
	"github.com/MrWong99/medscribe/internal/transcript"
	"github.com/MrWong99/medscribe/internal/transcript/phonetic"
	"github.com/MrWong99/medscribe/internal/translate"
	"github.com/MrWong99/medscribe/internal/web"
	"github.com/MrWong99/medscribe/pkg/provider/genmodel"
	"github.com/MrWong99/medscribe/pkg/provider/genmodel/genai"
	"github.com/MrWong99/medscribe/pkg/provider/genmodel/llmmodel"
	"github.com/MrWong99/medscribe/pkg/provider/llm/anyllm"
	"github.com/MrWong99/medscribe/pkg/provider/llm/openai"
	"github.com/MrWong99/medscribe/pkg/provider/stt"
	"github.com/MrWong99/medscribe/pkg/provider/stt/deepgram"
	"github.com/MrWong99/medscribe/pkg/provider/stt/googlestt"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "medscribe: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "medscribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("medscribe starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"version", version,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelProviders, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		SetGlobal:      true,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otelProviders.MeterProvider)
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	recognizer, model, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	for _, p := range []any{model, recognizer} {
		if c, ok := p.(io.Closer); ok {
			defer c.Close()
		}
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	enhancer, err := newEnhancer(cfg.Transcript)
	if err != nil {
		slog.Error("invalid transcript rules", "err", err)
		return 1
	}

	limiter := resilience.NewRateLimiter(
		resilience.WithName("translate"),
		resilience.WithMaxRequests(cfg.Translation.MaxRequestsPerMinute),
		resilience.WithMinInterval(cfg.Translation.MinRequestInterval),
		resilience.WithBuffer(cfg.Translation.Buffer),
		resilience.WithMetrics(metrics),
	)
	client := translate.New(model, limiter,
		translate.WithTemperature(cfg.Translation.Temperature),
		translate.WithMaxOutputTokens(cfg.Translation.MaxOutputTokens),
		translate.WithBackendName(cfg.Providers.Model.Name),
		translate.WithMetrics(metrics),
	)

	publisher, err := newPublisher(cfg.Events, metrics)
	if err != nil {
		slog.Error("failed to create event publisher", "err", err)
		return 1
	}
	defer publisher.Close()

	sess, err := session.New(session.Config{
		SourceLang:   cfg.Session.SourceLanguage,
		TargetLang:   cfg.Session.TargetLanguage,
		Encoding:     cfg.Session.Encoding,
		SampleRate:   cfg.Session.SampleRate,
		Channels:     cfg.Session.Channels,
		KeywordBoost: cfg.Session.KeywordBoost,
	}, enhancer, recognizer, client, session.WithMetrics(metrics), session.WithPublisher(publisher))
	if err != nil {
		slog.Error("failed to create session", "err", err)
		return 1
	}
	defer sess.Close()

	server := web.New(sess,
		web.WithMetrics(metrics),
		web.WithMetricsHandler(otelProviders.MetricsHandler()),
		web.WithRateReporter(client),
		web.WithCheckers(web.Checker{
			Name: "config",
			Check: func(context.Context) error {
				_, err := os.Stat(*configPath)
				return err
			},
		}),
	)

	// ── Config reload ─────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(prev, next *config.Config) {
		d := config.Diff(prev, next)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config changes take effect after a restart", "fields", d.RestartRequired)
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}

	printStartupSummary(cfg)
	slog.Info("server ready, press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, cfg.Server.ListenAddr) })
	g.Go(func() error { return watcher.Run(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the implementation packages.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── Model ─────────────────────────────────────────────────────────────────

	// "genai" is kept as an alias of "gemini" for existing configs.
	geminiFactory := func(entry config.ProviderEntry) (genmodel.Model, error) {
		var opts []option.ClientOption
		if entry.BaseURL != "" {
			opts = append(opts, option.WithEndpoint(entry.BaseURL))
		}
		return genai.New(ctx, entry.APIKey, entry.Model, opts...)
	}
	reg.RegisterModel("gemini", geminiFactory)
	reg.RegisterModel("genai", geminiFactory)

	reg.RegisterModel("openai", func(entry config.ProviderEntry) (genmodel.Model, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		p, err := openai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return llmmodel.New(p), nil
	})

	// The remaining chat backends share one pattern through any-llm-go:
	// optional APIKey + optional BaseURL. ollama is local and ignores the key.
	for _, providerName := range []string{"anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.RegisterModel(providerName, func(entry config.ProviderEntry) (genmodel.Model, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && providerName != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return llmmodel.New(p), nil
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// google authenticates with an API key, a credentials file from
	// options.credentials_file, or Application Default Credentials.
	reg.RegisterSTT("google", func(entry config.ProviderEntry) (stt.Provider, error) {
		var clientOpts []option.ClientOption
		if entry.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(entry.APIKey))
		}
		if file := optString(entry.Options, "credentials_file"); file != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(file))
		}
		if entry.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithEndpoint(entry.BaseURL))
		}
		opts := []googlestt.Option{googlestt.WithClientOptions(clientOpts...)}
		if entry.Model != "" {
			opts = append(opts, googlestt.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, googlestt.WithLanguage(lang))
		}
		return googlestt.New(ctx, opts...)
	})
}

// buildProviders instantiates the providers named in cfg. The model is
// required; the recognizer is nil when none is configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (stt.Provider, genmodel.Model, error) {
	model, err := reg.CreateModel(cfg.Providers.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("create model provider %q: %w", cfg.Providers.Model.Name, err)
	}
	slog.Info("provider created", "kind", "model", "name", cfg.Providers.Model.Name)

	var recognizer stt.Provider
	if name := cfg.Providers.STT.Name; name != "" {
		recognizer, err = reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "stt", "name", name)
	}
	return recognizer, model, nil
}

func newEnhancer(tc config.TranscriptConfig) (*transcript.Enhancer, error) {
	var opts []transcript.EnhancerOption
	if tc.Phonetic.Enabled {
		var popts []phonetic.Option
		if tc.Phonetic.Threshold > 0 {
			popts = append(popts, phonetic.WithPhoneticThreshold(tc.Phonetic.Threshold))
		}
		opts = append(opts, transcript.WithPhoneticMatcher(phonetic.New(popts...)))
	}
	return transcript.NewEnhancer(tc.RuleSet(), opts...)
}

func newPublisher(ec config.EventsConfig, m *observe.Metrics) (events.Publisher, error) {
	if !ec.Enabled {
		return events.Discard, nil
	}
	return events.NewKafka(events.KafkaConfig{
		Brokers:  ec.Brokers,
		Topic:    ec.Topic,
		ClientID: ec.ClientID,
	}, events.WithMetrics(m))
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        medscribe startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Model", cfg.Providers.Model.Name, cfg.Providers.Model.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	fmt.Printf("║  Languages       : %-19s ║\n", cfg.Session.SourceLanguage+" > "+cfg.Session.TargetLanguage)
	fmt.Printf("║  Requests/min    : %-19d ║\n", cfg.Translation.MaxRequestsPerMinute)
	if cfg.Events.Enabled {
		fmt.Printf("║  Events topic    : %-19s ║\n", cfg.Events.Topic)
	} else {
		fmt.Printf("║  Events topic    : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
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

// ── Helpers ───────────────────────────────────────────────────────────────────

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

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration string (e.g. "30s") from provider Options.
// Invalid values are logged and ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid provider option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
