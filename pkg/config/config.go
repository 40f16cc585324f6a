// Package config loads the engine's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/snow-ghost/llmbench/pkg/registry"
)

// AppConfig holds every setting of the benchmark engine
type AppConfig struct {
	AppName    string
	AppVersion string
	AppBaseURL string

	ConcurrencyLimit int           `validate:"gte=1"`
	MaxRetries       int           `validate:"gte=0"`
	RetryDelay       time.Duration `validate:"gte=0"`
	RetryJitter      bool
	MaxIterations    int           `validate:"gte=1"`
	RunTimeout       time.Duration `validate:"gt=0"`
	CallTimeout      time.Duration `validate:"gt=0"`

	ResultsDir       string `validate:"required"`
	ModelsFile       string
	CapabilitiesPath string
	ParadoxesPath    string
	LedgerPath       string // empty keeps usage in memory
	DefaultModel     string

	OpenRouterBaseURL string `validate:"omitempty,url"`
	OpenRouterAPIKey  string

	LogLevel       string `validate:"oneof=debug info warn error"`
	LogFormat      string `validate:"oneof=json console"`
	JaegerEndpoint string `validate:"omitempty,url"`
}

// Load reads the configuration from the process environment
func Load() (*AppConfig, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv. Malformed numbers and
// durations are errors rather than silently defaulted.
func LoadFrom(getenv func(string) string) (*AppConfig, error) {
	e := &env{getenv: getenv}

	cfg := &AppConfig{
		AppName:    e.str("APP_NAME", "LLM Bench"),
		AppVersion: e.str("APP_VERSION", "dev"),
		AppBaseURL: e.str("APP_BASE_URL", ""),

		ConcurrencyLimit: e.integer("AI_CONCURRENCY_LIMIT", 2),
		MaxRetries:       e.integer("AI_MAX_RETRIES", 5),
		RetryDelay:       e.duration("AI_RETRY_DELAY", 2*time.Second),
		RetryJitter:      e.boolean("AI_RETRY_JITTER", false),
		MaxIterations:    e.integer("MAX_ITERATIONS", 20),
		RunTimeout:       e.duration("RUN_TIMEOUT", 300*time.Second),
		CallTimeout:      e.duration("AI_CALL_TIMEOUT", 60*time.Second),

		ResultsDir:       e.str("RESULTS_DIR", "results"),
		ModelsFile:       e.str("MODELS_FILE", "models.yaml"),
		CapabilitiesPath: e.str("CAPABILITIES_PATH", "data/capabilities.json"),
		ParadoxesPath:    e.str("PARADOXES_PATH", "data/paradoxes.json"),
		LedgerPath:       e.str("LEDGER_PATH", ""),
		DefaultModel:     e.str("DEFAULT_MODEL", ""),

		OpenRouterBaseURL: e.str("OPENROUTER_BASE_URL", registry.DefaultOpenRouterBaseURL),
		OpenRouterAPIKey:  e.str("OPENROUTER_API_KEY", ""),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(e.str("LOG_FORMAT", "console")),
		JaegerEndpoint: e.str("JAEGER_ENDPOINT", ""),
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the bounds of every setting
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ValidateSecrets checks what commands talking to OpenRouter need.
func (c *AppConfig) ValidateSecrets() error {
	var missing []string
	if c.OpenRouterAPIKey == "" {
		missing = append(missing, "OPENROUTER_API_KEY")
	}
	if c.OpenRouterBaseURL == "" {
		missing = append(missing, "OPENROUTER_BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing environment: %s", strings.Join(missing, ", "))
	}
	return nil
}

type env struct {
	getenv func(string) string
	errs   []error
}

// str gets an environment variable with a default value
func (e *env) str(key, defaultValue string) string {
	if value := strings.TrimSpace(e.getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// integer gets an integer environment variable with a default value
func (e *env) integer(key string, defaultValue int) int {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be an integer", key))
		return defaultValue
	}
	return n
}

// duration accepts Go durations ("90s") or whole seconds ("90")
func (e *env) duration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be a duration or whole seconds", key))
		return defaultValue
	}
	return d
}

func (e *env) boolean(key string, defaultValue bool) bool {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be a boolean", key))
		return defaultValue
	}
	return b
}
