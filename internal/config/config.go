// Package config provides the configuration schema, loader, file watcher and
// provider registry for the medscribe server.
package config

import (
	"time"

	"github.com/MrWong99/medscribe/internal/transcript"
)

// LogLevel controls log verbosity for the medscribe server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default values applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr           = ":8080"
	DefaultMaxRequestsPerMinute = 12
	DefaultMinRequestInterval   = 5 * time.Second
	DefaultBuffer               = time.Second
	DefaultTemperature          = 0.3
	DefaultMaxOutputTokens      = 1000
	DefaultSourceLanguage       = "en-US"
	DefaultTargetLanguage       = "es-ES"
	DefaultKeywordBoost         = 2
)

// Config is the root configuration structure for medscribe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Translation TranslationConfig `yaml:"translation"`
	Transcript  TranscriptConfig  `yaml:"transcript"`
	Session     SessionConfig     `yaml:"session"`
	Events      EventsConfig      `yaml:"events"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is the only setting applied on reload.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the backend for each external collaborator. Each
// field names a provider registered in the [Registry].
type ProvidersConfig struct {
	// STT is the streaming recognizer (e.g., "deepgram"). Optional: without
	// it only typed input is available.
	STT ProviderEntry `yaml:"stt"`

	// Model is the generative model used for translation (e.g., "gemini").
	Model ProviderEntry `yaml:"model"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gemini-2.0-flash-exp", "nova-3-medical").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// TranslationConfig tunes the translation client and its rate limiter.
type TranslationConfig struct {
	// MaxRequestsPerMinute caps admissions per 60 s window. Default: 12.
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`

	// MinRequestInterval is the minimum spacing between admissions.
	// Default: 5s.
	MinRequestInterval time.Duration `yaml:"min_request_interval"`

	// Buffer is added to every wait caused by a full window. Default: 1s.
	Buffer time.Duration `yaml:"buffer"`

	// Temperature is the sampling temperature. Default: 0.3.
	Temperature float64 `yaml:"temperature"`

	// MaxOutputTokens bounds the model answer. Default: 1000.
	MaxOutputTokens int `yaml:"max_output_tokens"`
}

// TranscriptConfig configures the correction rules and domain terms.
type TranscriptConfig struct {
	// UseDefaultRules keeps the built-in clinical rules ahead of Rules.
	// Default: true.
	UseDefaultRules *bool `yaml:"use_default_rules"`

	// Rules are appended after the built-in rules.
	Rules []transcript.CorrectionRule `yaml:"rules"`

	// Terms are appended after the built-in terms.
	Terms []string `yaml:"terms"`

	// Phonetic enables the phonetic correction stage.
	Phonetic PhoneticConfig `yaml:"phonetic"`
}

// PhoneticConfig configures the optional phonetic correction stage.
type PhoneticConfig struct {
	Enabled bool `yaml:"enabled"`

	// Threshold is the minimum Jaro-Winkler score for a phonetic match.
	// Zero keeps the matcher default.
	Threshold float64 `yaml:"threshold"`
}

// SessionConfig holds the initial language pair and the audio format the
// browser sends.
type SessionConfig struct {
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`

	// Encoding names raw audio (e.g., "linear16"). Leave empty for webm/ogg.
	Encoding   string `yaml:"encoding"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`

	// KeywordBoost is the recognizer boost for domain terms. Default: 2.
	KeywordBoost float64 `yaml:"keyword_boost"`
}

// EventsConfig configures publishing of session activity events to Kafka.
// Events carry metadata only, never transcript or translation text.
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// ClientID identifies this producer to the brokers. Default: "medscribe".
	ClientID string `yaml:"client_id"`
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	t := &c.Translation
	if t.MaxRequestsPerMinute == 0 {
		t.MaxRequestsPerMinute = DefaultMaxRequestsPerMinute
	}
	if t.MinRequestInterval == 0 {
		t.MinRequestInterval = DefaultMinRequestInterval
	}
	if t.Buffer == 0 {
		t.Buffer = DefaultBuffer
	}
	if t.Temperature == 0 {
		t.Temperature = DefaultTemperature
	}
	if t.MaxOutputTokens == 0 {
		t.MaxOutputTokens = DefaultMaxOutputTokens
	}
	s := &c.Session
	if s.SourceLanguage == "" {
		s.SourceLanguage = DefaultSourceLanguage
	}
	if s.TargetLanguage == "" {
		s.TargetLanguage = DefaultTargetLanguage
	}
	if s.KeywordBoost == 0 {
		s.KeywordBoost = DefaultKeywordBoost
	}
}

// RuleSet returns the effective correction rules: the built-in set (unless
// disabled) followed by the configured rules and terms.
func (t TranscriptConfig) RuleSet() transcript.RuleSet {
	custom := transcript.RuleSet{Rules: t.Rules, Terms: t.Terms}
	if t.UseDefaultRules != nil && !*t.UseDefaultRules {
		return transcript.RuleSet{}.Merge(custom)
	}
	return transcript.DefaultRules().Merge(custom)
}
