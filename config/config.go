// Package config loads engine configuration with the priority
// defaults -> YAML file -> environment overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTCHAIN").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server" env:"SERVER"`
	Log          LogConfig          `yaml:"log" env:"LOG"`
	Checkpoint   CheckpointConfig   `yaml:"checkpoint" env:"CHECKPOINT"`
	Redis        RedisConfig        `yaml:"redis" env:"REDIS"`
	Database     DatabaseConfig     `yaml:"database" env:"DATABASE"`
	LLM          LLMConfig          `yaml:"llm" env:"LLM"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`
	HITL         HITLConfig         `yaml:"hitl" env:"HITL"`
	Auth         AuthConfig         `yaml:"auth" env:"AUTH"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// LogConfig configures zap.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format       string `yaml:"format" env:"FORMAT"`
	EnableCaller bool   `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// CheckpointConfig selects and tunes the checkpoint backend.
type CheckpointConfig struct {
	// Backend: memory, redis, sql.
	Backend   string `yaml:"backend" env:"BACKEND"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// TTL expires redis checkpoints; zero keeps them forever.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// SweepMaxAge drives the periodic retention sweep; zero disables it.
	SweepMaxAge time.Duration `yaml:"sweep_max_age" env:"SWEEP_MAX_AGE"`
}

// RedisConfig configures the redis client.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	PoolSize int    `yaml:"pool_size" env:"POOL_SIZE"`
}

// DatabaseConfig configures the SQL checkpoint backend.
type DatabaseConfig struct {
	// Driver: postgres, sqlite.
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

// LLMConfig configures the model provider.
type LLMConfig struct {
	Provider       string        `yaml:"provider" env:"PROVIDER"`
	Model          string        `yaml:"model" env:"MODEL"`
	APIKey         string        `yaml:"api_key" env:"API_KEY"`
	BaseURL        string        `yaml:"base_url" env:"BASE_URL"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// OrchestratorConfig tunes workflow execution.
type OrchestratorConfig struct {
	MaxSteps             int `yaml:"max_steps" env:"MAX_STEPS"`
	ModelCallLimit       int `yaml:"model_call_limit" env:"MODEL_CALL_LIMIT"`
	ToolCallLimit        int `yaml:"tool_call_limit" env:"TOOL_CALL_LIMIT"`
	SummaryTriggerTokens int `yaml:"summary_trigger_tokens" env:"SUMMARY_TRIGGER_TOKENS"`
	SummaryKeepMessages  int `yaml:"summary_keep_messages" env:"SUMMARY_KEEP_MESSAGES"`
	// MemoryMaxAge bounds stale active-workflow entries before cleanup.
	MemoryMaxAge time.Duration `yaml:"memory_max_age" env:"MEMORY_MAX_AGE"`
}

// HITLConfig tunes the permission flow.
type HITLConfig struct {
	// DenialResponse is the fallback answer after a denied permission.
	DenialResponse string `yaml:"denial_response" env:"DENIAL_RESPONSE"`
}

// AuthConfig configures API authentication.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// TelemetryConfig configures the OTel exporters.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration with the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the AGENTCHAIN env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTCHAIN"}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration: defaults, then file, then env.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		// A missing file falls back to defaults.
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// Validate checks the loaded configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []string
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid server http_port")
	}
	switch c.Checkpoint.Backend {
	case "memory", "redis", "sql":
	default:
		errs = append(errs, "checkpoint backend must be memory, redis, or sql")
	}
	if c.Checkpoint.Backend == "sql" {
		switch c.Database.Driver {
		case "postgres", "sqlite":
		default:
			errs = append(errs, "database driver must be postgres or sqlite")
		}
	}
	if c.Orchestrator.MaxSteps <= 0 {
		errs = append(errs, "orchestrator max_steps must be positive")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, "auth enabled but jwt_secret is empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MustLoad loads configuration or panics. For main() only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}
