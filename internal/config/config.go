// Package config loads BaskIt settings from defaults, an optional YAML
// file, a .env file, and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is accepted in front of every setting name.
const EnvPrefix = "BASKIT_"

// Merge overflow policies.
const (
	MergeClamp  = "clamp"
	MergeReject = "reject"
)

// Retry backoff styles.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// NLU providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Config holds every tunable of the pipeline.
type Config struct {
	// Text validation.
	MinHebrewRatio  float64 `yaml:"min_hebrew_ratio"`
	RequireHebrew   bool    `yaml:"require_hebrew"`
	NormalizeHebrew bool    `yaml:"normalize_hebrew"`
	MaxInputRunes   int     `yaml:"max_input_runes"`
	DefaultLanguage string  `yaml:"default_language"`

	// Items and lists.
	MaxQuantity         int    `yaml:"max_quantity"`
	DefaultUnit         string `yaml:"default_unit"`
	AutoMergeSimilar    bool   `yaml:"auto_merge_similar"`
	AllowDuplicateItems bool   `yaml:"allow_duplicate_items"`
	MergeOverflow       string `yaml:"merge_overflow"`
	SoftDelete          bool   `yaml:"soft_delete"`
	MaxListsPerUser     int    `yaml:"max_lists_per_user"`
	DefaultListName     string `yaml:"default_list_name"`

	// Dispatch.
	ToolConfidenceThreshold float64       `yaml:"tool_confidence_threshold"`
	ToolTimeout             time.Duration `yaml:"tool_timeout"`
	FallbackConfidence      float64       `yaml:"fallback_confidence"`

	// Undo.
	MaxUndoSteps    int           `yaml:"max_undo_steps"`
	UndoExpiryDays  int           `yaml:"undo_expiry_days"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`

	// Conversation context.
	EnableContext   bool `yaml:"enable_context"`
	ContextMaxTurns int  `yaml:"context_max_turns"`

	// NLU.
	NLUProvider       string        `yaml:"nlu_provider"`
	OpenAIAPIKey      string        `yaml:"openai_api_key"`
	OpenAIEndpoint    string        `yaml:"openai_endpoint"`
	OpenAIModel       string        `yaml:"openai_model"`
	OpenAITemperature float64       `yaml:"openai_temperature"`
	OpenAIMaxTokens   int           `yaml:"openai_max_tokens"`
	OpenAIMaxRetries  int           `yaml:"openai_max_retries"`
	OpenAITimeout     time.Duration `yaml:"openai_timeout"`
	GeminiAPIKey      string        `yaml:"gemini_api_key"`
	GeminiModel       string        `yaml:"gemini_model"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RetryBackoff      string        `yaml:"retry_backoff"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`

	// Plumbing.
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns the stock settings.
func Default() *Config {
	return &Config{
		MinHebrewRatio:  0.7,
		RequireHebrew:   true,
		NormalizeHebrew: true,
		MaxInputRunes:   500,
		DefaultLanguage: "he",

		MaxQuantity:         99,
		DefaultUnit:         "יחידה",
		AutoMergeSimilar:    true,
		AllowDuplicateItems: false,
		MergeOverflow:       MergeClamp,
		SoftDelete:          true,
		MaxListsPerUser:     10,
		DefaultListName:     "רשימת קניות",

		ToolConfidenceThreshold: 0.6,
		ToolTimeout:             5 * time.Second,
		FallbackConfidence:      0.65,

		MaxUndoSteps:    50,
		UndoExpiryDays:  7,
		JanitorInterval: time.Hour,

		EnableContext:   true,
		ContextMaxTurns: 10,

		NLUProvider:       ProviderOpenAI,
		OpenAIEndpoint:    "https://api.openai.com/v1/chat/completions",
		OpenAIModel:       "gpt-4o-mini",
		OpenAITemperature: 0.0,
		OpenAIMaxTokens:   150,
		OpenAIMaxRetries:  3,
		OpenAITimeout:     10 * time.Second,
		GeminiModel:       "gemini-2.0-flash",
		RetryDelay:        time.Second,
		RetryBackoff:      BackoffExponential,
		RetryMaxDelay:     8 * time.Second,

		DBPath:   ".baskit/baskit.db",
		LogLevel: "normal",
		LogFile:  ".baskit/baskit.log",
	}
}

// UndoExpiry returns the undo entry lifetime.
func (c *Config) UndoExpiry() time.Duration {
	return time.Duration(c.UndoExpiryDays) * 24 * time.Hour
}

// Load builds a Config. path names an optional YAML file; when empty,
// BASKIT_CONFIG is consulted. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(string) (string, bool)

// lookup tries BASKIT_<name> first, then the bare name.
func lookup(env lookupFunc, name string) (string, bool) {
	if v, ok := env(EnvPrefix + name); ok && v != "" {
		return v, true
	}
	if v, ok := env(name); ok && v != "" {
		return v, true
	}
	return "", false
}

type envBinding struct {
	name string
	set  func(string) error
}

func (c *Config) bindings() []envBinding {
	return []envBinding{
		{"MIN_HEBREW_RATIO", floatVar(&c.MinHebrewRatio)},
		{"REQUIRE_HEBREW", boolVar(&c.RequireHebrew)},
		{"NORMALIZE_HEBREW", boolVar(&c.NormalizeHebrew)},
		{"MAX_INPUT_RUNES", intVar(&c.MaxInputRunes)},
		{"DEFAULT_LANGUAGE", stringVar(&c.DefaultLanguage)},
		{"MAX_QUANTITY", intVar(&c.MaxQuantity)},
		{"DEFAULT_UNIT", stringVar(&c.DefaultUnit)},
		{"AUTO_MERGE_SIMILAR", boolVar(&c.AutoMergeSimilar)},
		{"ALLOW_DUPLICATE_ITEMS", boolVar(&c.AllowDuplicateItems)},
		{"MERGE_OVERFLOW", stringVar(&c.MergeOverflow)},
		{"SOFT_DELETE", boolVar(&c.SoftDelete)},
		{"MAX_LISTS_PER_USER", intVar(&c.MaxListsPerUser)},
		{"DEFAULT_LIST_NAME", stringVar(&c.DefaultListName)},
		{"TOOL_CONFIDENCE_THRESHOLD", floatVar(&c.ToolConfidenceThreshold)},
		{"TOOL_TIMEOUT", durationVar(&c.ToolTimeout)},
		{"FALLBACK_CONFIDENCE", floatVar(&c.FallbackConfidence)},
		{"MAX_UNDO_STEPS", intVar(&c.MaxUndoSteps)},
		{"UNDO_EXPIRY_DAYS", intVar(&c.UndoExpiryDays)},
		{"JANITOR_INTERVAL", durationVar(&c.JanitorInterval)},
		{"ENABLE_CONTEXT", boolVar(&c.EnableContext)},
		{"CONTEXT_MAX_TURNS", intVar(&c.ContextMaxTurns)},
		{"NLU_PROVIDER", stringVar(&c.NLUProvider)},
		{"OPENAI_API_KEY", stringVar(&c.OpenAIAPIKey)},
		{"OPENAI_ENDPOINT", stringVar(&c.OpenAIEndpoint)},
		{"OPENAI_MODEL", stringVar(&c.OpenAIModel)},
		{"OPENAI_TEMPERATURE", floatVar(&c.OpenAITemperature)},
		{"OPENAI_MAX_TOKENS", intVar(&c.OpenAIMaxTokens)},
		{"OPENAI_MAX_RETRIES", intVar(&c.OpenAIMaxRetries)},
		{"OPENAI_TIMEOUT", durationVar(&c.OpenAITimeout)},
		{"GEMINI_API_KEY", stringVar(&c.GeminiAPIKey)},
		{"GEMINI_MODEL", stringVar(&c.GeminiModel)},
		{"RETRY_DELAY", durationVar(&c.RetryDelay)},
		{"RETRY_BACKOFF", stringVar(&c.RetryBackoff)},
		{"RETRY_MAX_DELAY", durationVar(&c.RetryMaxDelay)},
		{"DB_PATH", stringVar(&c.DBPath)},
		{"LOG_LEVEL", stringVar(&c.LogLevel)},
		{"LOG_FILE", stringVar(&c.LogFile)},
	}
}

func (c *Config) loadEnv(env lookupFunc) error {
	var errs []error
	for _, b := range c.bindings() {
		v, ok := lookup(env, b.name)
		if !ok {
			continue
		}
		if err := b.set(strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

func stringVar(p *string) func(string) error {
	return func(v string) error {
		*p = v
		return nil
	}
}

func intVar(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func floatVar(p *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*p = f
		return nil
	}
}

func boolVar(p *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

// durationVar accepts Go durations ("1.5s") or plain seconds ("10").
func durationVar(p *time.Duration) func(string) error {
	return func(v string) error {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			*p = time.Duration(secs * float64(time.Second))
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*p = d
		return nil
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(inUnit(c.MinHebrewRatio), "MIN_HEBREW_RATIO must be in [0,1], got %v", c.MinHebrewRatio)
	check(inUnit(c.ToolConfidenceThreshold), "TOOL_CONFIDENCE_THRESHOLD must be in [0,1], got %v", c.ToolConfidenceThreshold)
	check(inUnit(c.FallbackConfidence), "FALLBACK_CONFIDENCE must be in [0,1], got %v", c.FallbackConfidence)
	check(c.OpenAITemperature >= 0 && c.OpenAITemperature <= 2, "OPENAI_TEMPERATURE must be in [0,2], got %v", c.OpenAITemperature)
	check(c.MaxInputRunes > 0, "MAX_INPUT_RUNES must be positive")
	check(c.MaxQuantity > 0, "MAX_QUANTITY must be positive")
	check(c.MaxListsPerUser > 0, "MAX_LISTS_PER_USER must be positive")
	check(c.MaxUndoSteps > 0, "MAX_UNDO_STEPS must be positive")
	check(c.UndoExpiryDays > 0, "UNDO_EXPIRY_DAYS must be positive")
	check(c.ContextMaxTurns > 0, "CONTEXT_MAX_TURNS must be positive")
	check(c.OpenAIMaxRetries > 0, "OPENAI_MAX_RETRIES must be positive")
	check(c.OpenAITimeout > 0, "OPENAI_TIMEOUT must be positive")
	check(c.ToolTimeout > 0, "TOOL_TIMEOUT must be positive")
	check(c.RetryDelay >= 0, "RETRY_DELAY must not be negative")
	check(c.JanitorInterval > 0, "JANITOR_INTERVAL must be positive")
	check(strings.TrimSpace(c.DefaultListName) != "", "DEFAULT_LIST_NAME must not be empty")
	check(c.MergeOverflow == MergeClamp || c.MergeOverflow == MergeReject,
		"MERGE_OVERFLOW must be %q or %q, got %q", MergeClamp, MergeReject, c.MergeOverflow)
	check(c.RetryBackoff == BackoffFixed || c.RetryBackoff == BackoffExponential,
		"RETRY_BACKOFF must be %q or %q, got %q", BackoffFixed, BackoffExponential, c.RetryBackoff)
	switch c.NLUProvider {
	case ProviderOpenAI, ProviderGemini, ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("NLU_PROVIDER must be openai, gemini or none, got %q", c.NLUProvider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func inUnit(f float64) bool { return f >= 0 && f <= 1 }
