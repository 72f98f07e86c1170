package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

// Defaults applied before any file, environment or override layer.
const (
	DefaultLLMProvider      = "openai"
	DefaultLLMModel         = "gpt-4o-mini"
	DefaultLLMBaseURL       = "https://api.openai.com/v1"
	DefaultEmbeddingModel   = "text-embedding-3-small"
	DefaultLanguage         = "ru"
	DefaultTopK             = 5
	DefaultMaxRounds        = 2
	DefaultMaxTokens        = 1024
	DefaultTemperature      = 0.2
	DefaultStrategyTimeout  = 8 * time.Second
	DefaultSessionTTL       = 30 * time.Minute
	DefaultHTTPAddr         = ":8080"
	DefaultDataDir          = "~/.muza"
	defaultConfigFileName   = ".muza-config.yaml"
)

// RuntimeConfig captures user-configurable settings shared across binaries.
type RuntimeConfig struct {
	LLMProvider            string
	LLMModel               string
	APIKey                 string
	BaseURL                string
	EmbeddingModel         string
	EmbeddingBaseURL       string
	Environment            string
	Verbose                bool
	PlainOutput            bool
	Language               string
	TopK                   int
	MaxRounds              int
	MaxTokens              int
	Temperature            float64
	TemperatureProvided    bool
	StrategyTimeoutSeconds int
	SessionTTLMinutes      int
	DataDir                string
	CatalogPath            string
	HTTPAddr               string
}

// StrategyTimeout returns the per-strategy extraction deadline as a duration.
func (c RuntimeConfig) StrategyTimeout() time.Duration {
	if c.StrategyTimeoutSeconds <= 0 {
		return DefaultStrategyTimeout
	}
	return time.Duration(c.StrategyTimeoutSeconds) * time.Second
}

// SessionTTL returns how long an idle dialogue session is kept alive.
func (c RuntimeConfig) SessionTTL() time.Duration {
	if c.SessionTTLMinutes <= 0 {
		return DefaultSessionTTL
	}
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	sources  map[string]ValueSource
	loadedAt time.Time
}

// Source returns the origin for the given configuration field.
func (m Metadata) Source(field string) ValueSource {
	if m.sources == nil {
		return SourceDefault
	}
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// Overrides conveys caller-specified values that should win over env/file sources.
type Overrides struct {
	LLMProvider            *string
	LLMModel               *string
	APIKey                 *string
	BaseURL                *string
	EmbeddingModel         *string
	EmbeddingBaseURL       *string
	Environment            *string
	Verbose                *bool
	PlainOutput            *bool
	Language               *string
	TopK                   *int
	MaxRounds              *int
	MaxTokens              *int
	Temperature            *float64
	StrategyTimeoutSeconds *int
	SessionTTLMinutes      *int
	DataDir                *string
	CatalogPath            *string
	HTTPAddr               *string
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	overrides  Overrides
	configPath string
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithOverrides applies caller overrides that take highest precedence.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// WithConfigPath forces the loader to read configuration from a specific file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithFileReader injects a custom reader, used primarily for tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		o.readFile = reader
	}
}

// WithHomeDir overrides how the loader resolves the user's home directory.
func WithHomeDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = resolver
	}
}

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Load constructs the runtime configuration by merging defaults, file, env and overrides.
func Load(opts ...Option) (RuntimeConfig, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	cfg := RuntimeConfig{
		LLMProvider:            DefaultLLMProvider,
		LLMModel:               DefaultLLMModel,
		BaseURL:                DefaultLLMBaseURL,
		EmbeddingModel:         DefaultEmbeddingModel,
		Environment:            "development",
		Language:               DefaultLanguage,
		TopK:                   DefaultTopK,
		MaxRounds:              DefaultMaxRounds,
		MaxTokens:              DefaultMaxTokens,
		Temperature:            DefaultTemperature,
		StrategyTimeoutSeconds: int(DefaultStrategyTimeout.Seconds()),
		SessionTTLMinutes:      int(DefaultSessionTTL.Minutes()),
		DataDir:                DefaultDataDir,
		HTTPAddr:               DefaultHTTPAddr,
	}

	// Load from config file if present.
	if err := applyFile(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}

	// Apply environment overrides.
	if err := applyEnv(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}

	// Apply caller overrides last.
	applyOverrides(&cfg, &meta, options.overrides)

	normalizeRuntimeConfig(&cfg)

	// Without an API key the generative strategy and the embedding backend
	// have nothing to call; fall back to the deterministic mock provider.
	if cfg.APIKey == "" && cfg.LLMProvider != "mock" {
		cfg.LLMProvider = "mock"
		meta.sources["llm_provider"] = SourceDefault
	}

	return cfg, meta, nil
}

// ConfigPath resolves the runtime configuration file location.
func ConfigPath(opts ...Option) (string, error) {
	options := loadOptions{homeDir: os.UserHomeDir}
	for _, opt := range opts {
		opt(&options)
	}
	if options.configPath != "" {
		return options.configPath, nil
	}
	home, err := options.homeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, defaultConfigFileName), nil
}

// ExpandPath resolves a leading ~/ against the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}
	return path
}

type fileConfig struct {
	LLMProvider            string   `yaml:"llm_provider"`
	LLMModel               string   `yaml:"llm_model"`
	APIKey                 string   `yaml:"api_key"`
	BaseURL                string   `yaml:"base_url"`
	EmbeddingModel         string   `yaml:"embedding_model"`
	EmbeddingBaseURL       string   `yaml:"embedding_base_url"`
	Environment            string   `yaml:"environment"`
	Verbose                *bool    `yaml:"verbose"`
	PlainOutput            *bool    `yaml:"plain_output"`
	Language               string   `yaml:"language"`
	TopK                   *int     `yaml:"top_k"`
	MaxRounds              *int     `yaml:"max_rounds"`
	MaxTokens              *int     `yaml:"max_tokens"`
	Temperature            *float64 `yaml:"temperature"`
	StrategyTimeoutSeconds *int     `yaml:"strategy_timeout_seconds"`
	SessionTTLMinutes      *int     `yaml:"session_ttl_minutes"`
	DataDir                string   `yaml:"data_dir"`
	CatalogPath            string   `yaml:"catalog_path"`
	HTTPAddr               string   `yaml:"http_addr"`
}

func applyFile(cfg *RuntimeConfig, meta *Metadata, opts loadOptions) error {
	configPath := opts.configPath
	if configPath == "" {
		home, err := opts.homeDir()
		if err != nil {
			return nil
		}
		configPath = filepath.Join(home, defaultConfigFileName)
	}

	data, err := opts.readFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var parsed fileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if parsed.LLMProvider != "" {
		cfg.LLMProvider = parsed.LLMProvider
		meta.sources["llm_provider"] = SourceFile
	}
	if parsed.LLMModel != "" {
		cfg.LLMModel = parsed.LLMModel
		meta.sources["llm_model"] = SourceFile
	}
	if parsed.APIKey != "" {
		cfg.APIKey = parsed.APIKey
		meta.sources["api_key"] = SourceFile
	}
	if parsed.BaseURL != "" {
		cfg.BaseURL = parsed.BaseURL
		meta.sources["base_url"] = SourceFile
	}
	if parsed.EmbeddingModel != "" {
		cfg.EmbeddingModel = parsed.EmbeddingModel
		meta.sources["embedding_model"] = SourceFile
	}
	if parsed.EmbeddingBaseURL != "" {
		cfg.EmbeddingBaseURL = parsed.EmbeddingBaseURL
		meta.sources["embedding_base_url"] = SourceFile
	}
	if parsed.Environment != "" {
		cfg.Environment = parsed.Environment
		meta.sources["environment"] = SourceFile
	}
	if parsed.Verbose != nil {
		cfg.Verbose = *parsed.Verbose
		meta.sources["verbose"] = SourceFile
	}
	if parsed.PlainOutput != nil {
		cfg.PlainOutput = *parsed.PlainOutput
		meta.sources["plain_output"] = SourceFile
	}
	if parsed.Language != "" {
		cfg.Language = parsed.Language
		meta.sources["language"] = SourceFile
	}
	if parsed.TopK != nil {
		cfg.TopK = *parsed.TopK
		meta.sources["top_k"] = SourceFile
	}
	if parsed.MaxRounds != nil {
		cfg.MaxRounds = *parsed.MaxRounds
		meta.sources["max_rounds"] = SourceFile
	}
	if parsed.MaxTokens != nil {
		cfg.MaxTokens = *parsed.MaxTokens
		meta.sources["max_tokens"] = SourceFile
	}
	if parsed.Temperature != nil {
		cfg.Temperature = *parsed.Temperature
		cfg.TemperatureProvided = true
		meta.sources["temperature"] = SourceFile
	}
	if parsed.StrategyTimeoutSeconds != nil {
		cfg.StrategyTimeoutSeconds = *parsed.StrategyTimeoutSeconds
		meta.sources["strategy_timeout_seconds"] = SourceFile
	}
	if parsed.SessionTTLMinutes != nil {
		cfg.SessionTTLMinutes = *parsed.SessionTTLMinutes
		meta.sources["session_ttl_minutes"] = SourceFile
	}
	if parsed.DataDir != "" {
		cfg.DataDir = parsed.DataDir
		meta.sources["data_dir"] = SourceFile
	}
	if parsed.CatalogPath != "" {
		cfg.CatalogPath = parsed.CatalogPath
		meta.sources["catalog_path"] = SourceFile
	}
	if parsed.HTTPAddr != "" {
		cfg.HTTPAddr = parsed.HTTPAddr
		meta.sources["http_addr"] = SourceFile
	}

	return nil
}

func applyEnv(cfg *RuntimeConfig, meta *Metadata, opts loadOptions) error {
	lookup := opts.envLookup
	if lookup == nil {
		lookup = DefaultEnvLookup
	}

	if value, ok := lookup("OPENAI_API_KEY"); ok && value != "" {
		cfg.APIKey = value
		meta.sources["api_key"] = SourceEnv
	}
	if value, ok := lookup("MUZA_API_KEY"); ok && value != "" {
		cfg.APIKey = value
		meta.sources["api_key"] = SourceEnv
	}
	if value, ok := lookup("LLM_PROVIDER"); ok && value != "" {
		cfg.LLMProvider = value
		meta.sources["llm_provider"] = SourceEnv
	} else if value, ok := lookup("MUZA_LLM_PROVIDER"); ok && value != "" {
		cfg.LLMProvider = value
		meta.sources["llm_provider"] = SourceEnv
	}
	if value, ok := lookup("LLM_MODEL"); ok && value != "" {
		cfg.LLMModel = value
		meta.sources["llm_model"] = SourceEnv
	} else if value, ok := lookup("MUZA_LLM_MODEL"); ok && value != "" {
		cfg.LLMModel = value
		meta.sources["llm_model"] = SourceEnv
	}
	if value, ok := lookup("LLM_BASE_URL"); ok && value != "" {
		cfg.BaseURL = value
		meta.sources["base_url"] = SourceEnv
	} else if value, ok := lookup("MUZA_BASE_URL"); ok && value != "" {
		cfg.BaseURL = value
		meta.sources["base_url"] = SourceEnv
	}
	if value, ok := lookup("MUZA_EMBEDDING_MODEL"); ok && value != "" {
		cfg.EmbeddingModel = value
		meta.sources["embedding_model"] = SourceEnv
	}
	if value, ok := lookup("MUZA_EMBEDDING_BASE_URL"); ok && value != "" {
		cfg.EmbeddingBaseURL = value
		meta.sources["embedding_base_url"] = SourceEnv
	}
	if value, ok := lookup("MUZA_ENV"); ok && value != "" {
		cfg.Environment = value
		meta.sources["environment"] = SourceEnv
	}
	if value, ok := lookup("MUZA_VERBOSE"); ok && value != "" {
		parsed, err := parseBoolEnv(value)
		if err != nil {
			return fmt.Errorf("parse MUZA_VERBOSE: %w", err)
		}
		cfg.Verbose = parsed
		meta.sources["verbose"] = SourceEnv
	}
	if value, ok := lookup("MUZA_PLAIN"); ok && value != "" {
		parsed, err := parseBoolEnv(value)
		if err != nil {
			return fmt.Errorf("parse MUZA_PLAIN: %w", err)
		}
		cfg.PlainOutput = parsed
		meta.sources["plain_output"] = SourceEnv
	}
	if value, ok := lookup("MUZA_LANGUAGE"); ok && value != "" {
		cfg.Language = value
		meta.sources["language"] = SourceEnv
	}
	if value, ok := lookup("MUZA_TOP_K"); ok && value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parse MUZA_TOP_K: %w", err)
		}
		cfg.TopK = parsed
		meta.sources["top_k"] = SourceEnv
	}
	if value, ok := lookup("MUZA_MAX_ROUNDS"); ok && value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parse MUZA_MAX_ROUNDS: %w", err)
		}
		cfg.MaxRounds = parsed
		meta.sources["max_rounds"] = SourceEnv
	}
	if value, ok := lookup("LLM_MAX_TOKENS"); ok && value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parse LLM_MAX_TOKENS: %w", err)
		}
		cfg.MaxTokens = parsed
		meta.sources["max_tokens"] = SourceEnv
	}
	if value, ok := lookup("LLM_TEMPERATURE"); ok && value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("parse LLM_TEMPERATURE: %w", err)
		}
		cfg.Temperature = parsed
		cfg.TemperatureProvided = true
		meta.sources["temperature"] = SourceEnv
	}
	if value, ok := lookup("MUZA_STRATEGY_TIMEOUT_SECONDS"); ok && value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parse MUZA_STRATEGY_TIMEOUT_SECONDS: %w", err)
		}
		cfg.StrategyTimeoutSeconds = parsed
		meta.sources["strategy_timeout_seconds"] = SourceEnv
	}
	if value, ok := lookup("MUZA_SESSION_TTL_MINUTES"); ok && value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parse MUZA_SESSION_TTL_MINUTES: %w", err)
		}
		cfg.SessionTTLMinutes = parsed
		meta.sources["session_ttl_minutes"] = SourceEnv
	}
	if value, ok := lookup("MUZA_DATA_DIR"); ok && value != "" {
		cfg.DataDir = value
		meta.sources["data_dir"] = SourceEnv
	}
	if value, ok := lookup("MUZA_CATALOG"); ok && value != "" {
		cfg.CatalogPath = value
		meta.sources["catalog_path"] = SourceEnv
	}
	if value, ok := lookup("MUZA_HTTP_ADDR"); ok && value != "" {
		cfg.HTTPAddr = value
		meta.sources["http_addr"] = SourceEnv
	}

	return nil
}

func applyOverrides(cfg *RuntimeConfig, meta *Metadata, overrides Overrides) {
	if overrides.LLMProvider != nil {
		cfg.LLMProvider = *overrides.LLMProvider
		meta.sources["llm_provider"] = SourceOverride
	}
	if overrides.LLMModel != nil {
		cfg.LLMModel = *overrides.LLMModel
		meta.sources["llm_model"] = SourceOverride
	}
	if overrides.APIKey != nil {
		cfg.APIKey = *overrides.APIKey
		meta.sources["api_key"] = SourceOverride
	}
	if overrides.BaseURL != nil {
		cfg.BaseURL = *overrides.BaseURL
		meta.sources["base_url"] = SourceOverride
	}
	if overrides.EmbeddingModel != nil {
		cfg.EmbeddingModel = *overrides.EmbeddingModel
		meta.sources["embedding_model"] = SourceOverride
	}
	if overrides.EmbeddingBaseURL != nil {
		cfg.EmbeddingBaseURL = *overrides.EmbeddingBaseURL
		meta.sources["embedding_base_url"] = SourceOverride
	}
	if overrides.Environment != nil {
		cfg.Environment = *overrides.Environment
		meta.sources["environment"] = SourceOverride
	}
	if overrides.Verbose != nil {
		cfg.Verbose = *overrides.Verbose
		meta.sources["verbose"] = SourceOverride
	}
	if overrides.PlainOutput != nil {
		cfg.PlainOutput = *overrides.PlainOutput
		meta.sources["plain_output"] = SourceOverride
	}
	if overrides.Language != nil {
		cfg.Language = *overrides.Language
		meta.sources["language"] = SourceOverride
	}
	if overrides.TopK != nil {
		cfg.TopK = *overrides.TopK
		meta.sources["top_k"] = SourceOverride
	}
	if overrides.MaxRounds != nil {
		cfg.MaxRounds = *overrides.MaxRounds
		meta.sources["max_rounds"] = SourceOverride
	}
	if overrides.MaxTokens != nil {
		cfg.MaxTokens = *overrides.MaxTokens
		meta.sources["max_tokens"] = SourceOverride
	}
	if overrides.Temperature != nil {
		cfg.Temperature = *overrides.Temperature
		cfg.TemperatureProvided = true
		meta.sources["temperature"] = SourceOverride
	}
	if overrides.StrategyTimeoutSeconds != nil {
		cfg.StrategyTimeoutSeconds = *overrides.StrategyTimeoutSeconds
		meta.sources["strategy_timeout_seconds"] = SourceOverride
	}
	if overrides.SessionTTLMinutes != nil {
		cfg.SessionTTLMinutes = *overrides.SessionTTLMinutes
		meta.sources["session_ttl_minutes"] = SourceOverride
	}
	if overrides.DataDir != nil {
		cfg.DataDir = *overrides.DataDir
		meta.sources["data_dir"] = SourceOverride
	}
	if overrides.CatalogPath != nil {
		cfg.CatalogPath = *overrides.CatalogPath
		meta.sources["catalog_path"] = SourceOverride
	}
	if overrides.HTTPAddr != nil {
		cfg.HTTPAddr = *overrides.HTTPAddr
		meta.sources["http_addr"] = SourceOverride
	}
}

func normalizeRuntimeConfig(cfg *RuntimeConfig) {
	cfg.LLMProvider = strings.TrimSpace(cfg.LLMProvider)
	cfg.LLMModel = strings.TrimSpace(cfg.LLMModel)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.EmbeddingModel = strings.TrimSpace(cfg.EmbeddingModel)
	cfg.EmbeddingBaseURL = strings.TrimSpace(cfg.EmbeddingBaseURL)
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.Language = strings.TrimSpace(cfg.Language)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.CatalogPath = strings.TrimSpace(cfg.CatalogPath)
	cfg.HTTPAddr = strings.TrimSpace(cfg.HTTPAddr)

	if cfg.EmbeddingBaseURL == "" {
		cfg.EmbeddingBaseURL = cfg.BaseURL
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxRounds < 0 {
		cfg.MaxRounds = 0
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.StrategyTimeoutSeconds <= 0 {
		cfg.StrategyTimeoutSeconds = int(DefaultStrategyTimeout.Seconds())
	}
	if cfg.SessionTTLMinutes <= 0 {
		cfg.SessionTTLMinutes = int(DefaultSessionTTL.Minutes())
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
}

func parseBoolEnv(value string) (bool, error) {
	trimmed := strings.TrimSpace(value)
	lower := strings.ToLower(trimmed)
	switch lower {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", value)
	}
}
