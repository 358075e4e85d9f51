package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the render server
type Config struct {
	// Template configuration
	RootDir           string        `env:"ROOT_DIR" envDefault:"views"`
	PartialsDir       string        `env:"PARTIALS_DIR"`
	OpenBracket       string        `env:"OPEN_BRACKET" envDefault:"{{"`
	CloseBracket      string        `env:"CLOSE_BRACKET" envDefault:"}}"`
	DefaultValuesFile string        `env:"DEFAULT_VALUES_FILE"`
	MaxPartialDepth   int           `env:"MAX_PARTIAL_DEPTH" envDefault:"64"`
	RenderTimeout     time.Duration `env:"RENDER_TIMEOUT" envDefault:"30s"`

	// Stylesheet configuration
	CSSStage            int      `env:"CSS_STAGE" envDefault:"0"`
	CSSDisabledFeatures []string `env:"CSS_DISABLED_FEATURES" envSeparator:","`

	// HTTP configuration
	HTTPPort      int    `env:"HTTP_PORT" envDefault:"8080"`
	RoutesFile    string `env:"ROUTES_FILE"`
	ErrorTemplate string `env:"ERROR_TEMPLATE"`
	CreatedBy     string `env:"CREATED_BY" envDefault:"Blogger Custom Templates"`

	// Health check configuration
	HealthPort int `env:"HEALTH_PORT" envDefault:"8082"`

	// Worker configuration
	WorkerEnabled bool   `env:"WORKER_ENABLED" envDefault:"false"`
	WorkerID      string `env:"WORKER_ID" envDefault:"render-1"`

	// Redis configuration
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASS" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Stream configuration
	StreamKey     string        `env:"STREAM_KEY" envDefault:"render.requests"`
	ConsumerGroup string        `env:"CONSUMER_GROUP" envDefault:"render-workers"`
	ResultStream  string        `env:"RESULT_STREAM" envDefault:"render.completed"`
	ResultTTL     time.Duration `env:"RESULT_TTL" envDefault:"1h"`
	BlockTime     time.Duration `env:"BLOCK_TIME" envDefault:"1s"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return fmt.Errorf("ROOT_DIR is required")
	}

	if c.OpenBracket == "" || c.CloseBracket == "" {
		return fmt.Errorf("OPEN_BRACKET and CLOSE_BRACKET are required")
	}

	if c.OpenBracket == c.CloseBracket {
		return fmt.Errorf("OPEN_BRACKET and CLOSE_BRACKET must differ")
	}

	if c.MaxPartialDepth <= 0 {
		return fmt.Errorf("MAX_PARTIAL_DEPTH must be positive")
	}

	if c.RenderTimeout <= 0 {
		return fmt.Errorf("RENDER_TIMEOUT must be positive")
	}

	if c.CSSStage < 0 || c.CSSStage > 4 {
		return fmt.Errorf("CSS_STAGE must be between 0 and 4")
	}

	if !isValidPort(c.HTTPPort) {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}

	if !isValidPort(c.HealthPort) {
		return fmt.Errorf("HEALTH_PORT must be between 1 and 65535")
	}

	if c.HTTPPort == c.HealthPort {
		return fmt.Errorf("HTTP_PORT and HEALTH_PORT must differ")
	}

	if c.WorkerEnabled {
		if c.WorkerID == "" {
			return fmt.Errorf("WORKER_ID is required")
		}

		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required")
		}

		if c.StreamKey == "" {
			return fmt.Errorf("STREAM_KEY is required")
		}

		if c.ConsumerGroup == "" {
			return fmt.Errorf("CONSUMER_GROUP is required")
		}

		if c.ResultStream == "" {
			return fmt.Errorf("RESULT_STREAM is required")
		}

		if c.BlockTime <= 0 {
			return fmt.Errorf("BLOCK_TIME must be positive")
		}

		if c.ResultTTL < 0 {
			return fmt.Errorf("RESULT_TTL must be non-negative")
		}
	}

	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	return validLevels[level]
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}

// Partials returns the partials directory, a sibling of the root by default
func (c *Config) Partials() string {
	if c.PartialsDir != "" {
		return c.PartialsDir
	}
	return filepath.Join(c.RootDir, "..", "partials")
}

// DefaultValues loads DEFAULT_VALUES_FILE. It returns nil when no file is
// configured, leaving the renderer's built-in defaults in place.
func (c *Config) DefaultValues() (map[string]any, error) {
	if c.DefaultValuesFile == "" {
		return nil, nil
	}
	return LoadValues(c.DefaultValuesFile)
}

// LoadValues reads a YAML (or JSON) mapping from path
func LoadValues(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read values file: %w", err)
	}

	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse values file %s: %w", path, err)
	}

	return values, nil
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{RootDir=%s, PartialsDir=%s, Brackets=%s%s, MaxPartialDepth=%d, CSSStage=%d, "+
			"HTTPPort=%d, HealthPort=%d, WorkerEnabled=%v, WorkerID=%s, RedisAddr=%s, RedisDB=%d, "+
			"StreamKey=%s, ConsumerGroup=%s, LogLevel=%s}",
		c.RootDir,
		c.Partials(),
		c.OpenBracket,
		c.CloseBracket,
		c.MaxPartialDepth,
		c.CSSStage,
		c.HTTPPort,
		c.HealthPort,
		c.WorkerEnabled,
		c.WorkerID,
		c.RedisAddr,
		c.RedisDB,
		c.StreamKey,
		c.ConsumerGroup,
		c.LogLevel,
	)
}
