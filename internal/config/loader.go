package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/medscribe/internal/translate"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"deepgram", "google"},
	"model": {"gemini", "genai", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Defaults are
// expected to be applied already. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	if cfg.Providers.Model.Name == "" {
		errs = append(errs, errors.New("providers.model.name is required"))
	}
	validateProviderName("model", cfg.Providers.Model.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; dictation is disabled and only typed input is available")
	}

	// Translation
	tr := cfg.Translation
	if tr.MaxRequestsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("translation.max_requests_per_minute %d must be at least 1", tr.MaxRequestsPerMinute))
	}
	if tr.MinRequestInterval < 0 {
		errs = append(errs, fmt.Errorf("translation.min_request_interval %s must not be negative", tr.MinRequestInterval))
	}
	if tr.Buffer < 0 {
		errs = append(errs, fmt.Errorf("translation.buffer %s must not be negative", tr.Buffer))
	}
	if tr.Temperature < 0 || tr.Temperature > 2 {
		errs = append(errs, fmt.Errorf("translation.temperature %.2f is out of range [0, 2]", tr.Temperature))
	}
	if tr.MaxOutputTokens < 1 {
		errs = append(errs, fmt.Errorf("translation.max_output_tokens %d must be at least 1", tr.MaxOutputTokens))
	}

	// Transcript
	if err := cfg.Transcript.RuleSet().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("transcript: %w", err))
	}
	if th := cfg.Transcript.Phonetic.Threshold; th < 0 || th > 1 {
		errs = append(errs, fmt.Errorf("transcript.phonetic.threshold %.2f is out of range [0, 1]", th))
	}

	// Session
	s := cfg.Session
	if _, ok := translate.LookupSpeechCode(s.SourceLanguage); !ok {
		errs = append(errs, fmt.Errorf("session.source_language %q is not a supported language", s.SourceLanguage))
	}
	if _, ok := translate.LookupSpeechCode(s.TargetLanguage); !ok {
		errs = append(errs, fmt.Errorf("session.target_language %q is not a supported language", s.TargetLanguage))
	}
	if s.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("session.sample_rate %d must not be negative", s.SampleRate))
	}
	if s.Channels < 0 {
		errs = append(errs, fmt.Errorf("session.channels %d must not be negative", s.Channels))
	}
	if s.Encoding != "" && s.SampleRate == 0 {
		errs = append(errs, fmt.Errorf("session.sample_rate is required when session.encoding is %q", s.Encoding))
	}
	if s.KeywordBoost < 0 {
		errs = append(errs, fmt.Errorf("session.keyword_boost %.2f must not be negative", s.KeywordBoost))
	}

	// Events
	if ev := cfg.Events; ev.Enabled {
		if len(ev.Brokers) == 0 {
			errs = append(errs, errors.New("events.brokers is required when events are enabled"))
		}
		if ev.Topic == "" {
			errs = append(errs, errors.New("events.topic is required when events are enabled"))
		}
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
