package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode `yaml:"mode"`

	Port string `yaml:"port"`

	// LLM backend: "mock", "vertex" or "openai"
	LLMProvider         string        `yaml:"llm_provider"`
	GCPProjectID        string        `yaml:"gcp_project"`
	GCPLocation         string        `yaml:"gcp_location"`
	ModelName           string        `yaml:"model_name"`
	OpenAIAPIKey        string        `yaml:"-"`
	OpenAIBaseURL       string        `yaml:"openai_base_url"`
	MaxCompletionTokens int           `yaml:"max_completion_tokens"`
	GenerationTimeout   time.Duration `yaml:"generation_timeout"`

	StorageBackend string `yaml:"storage_backend"` // "memory", "sqlite", "postgres" or "firestore"
	SQLiteDir      string `yaml:"sqlite_dir"`
	DatabaseURL    string `yaml:"-"`

	// Response pipeline tuning
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	CacheMaxAge        time.Duration `yaml:"cache_max_age"`
	CacheLockTimeout   time.Duration `yaml:"cache_lock_timeout"`
	CacheSweepInterval time.Duration `yaml:"cache_sweep_interval"`
	ProtocolMaxIdle    time.Duration `yaml:"protocol_max_idle"`
	MaxHistory         int           `yaml:"max_history"`
	MaxMessageLength   int           `yaml:"max_message_length"`
	MaxResponseLength  int           `yaml:"max_response_length"`
	TaskQueueSize      int           `yaml:"task_queue_size"`
	TaskWorkers        int           `yaml:"task_workers"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure"`
	ServiceName  string `yaml:"service_name"`
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Mode:                ModeLocal,
		Port:                "8080",
		LLMProvider:         "mock",
		GCPLocation:         "us-central1",
		ModelName:           "gemini-2.5-flash-lite",
		OpenAIBaseURL:       "https://api.openai.com/v1",
		MaxCompletionTokens: 800,
		GenerationTimeout:   30 * time.Second,
		StorageBackend:      "memory",
		SQLiteDir:           ".farum",
		CacheTTL:            30 * time.Minute,
		CacheMaxAge:         2 * time.Hour,
		CacheLockTimeout:    5 * time.Second,
		CacheSweepInterval:  time.Minute,
		ProtocolMaxIdle:     24 * time.Hour,
		MaxHistory:          10,
		MaxMessageLength:    2000,
		MaxResponseLength:   1200,
		TaskQueueSize:       256,
		TaskWorkers:         2,
		LogLevel:            "info",
		LogFormat:           "json",
		ServiceName:         "farum",
	}
}

// Load reads all env vars and builds the config. When FARUM_CONFIG_FILE
// points to a YAML file, its values are applied first and env vars win.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("FARUM_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	modeStr := getEnv("FARUM_MODE", string(cfg.Mode))
	switch modeStr {
	case "gcp":
		cfg.Mode = ModeGCP
	default:
		cfg.Mode = ModeLocal
	}

	cfg.Port = getEnv("FARUM_PORT", getEnv("PORT", cfg.Port))

	defaultProvider := cfg.LLMProvider
	if cfg.Mode == ModeGCP && defaultProvider == "mock" {
		defaultProvider = "vertex"
	}
	cfg.LLMProvider = strings.ToLower(getEnv("FARUM_LLM_PROVIDER", defaultProvider))
	if getBoolEnv("FARUM_USE_MOCK_LLM", false) {
		cfg.LLMProvider = "mock"
	}

	cfg.GCPProjectID = getEnv("FARUM_GCP_PROJECT", cfg.GCPProjectID)
	cfg.GCPLocation = getEnv("FARUM_GCP_LOCATION", cfg.GCPLocation)
	cfg.ModelName = getEnv("FARUM_MODEL_NAME", cfg.ModelName)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("FARUM_OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.MaxCompletionTokens = getIntEnv("FARUM_MAX_COMPLETION_TOKENS", cfg.MaxCompletionTokens)
	cfg.GenerationTimeout = getDurationEnv("FARUM_GENERATION_TIMEOUT", cfg.GenerationTimeout)

	cfg.StorageBackend = strings.ToLower(getEnv("FARUM_STORAGE_BACKEND", cfg.StorageBackend))
	cfg.SQLiteDir = getEnv("FARUM_SQLITE_DIR", cfg.SQLiteDir)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	cfg.CacheTTL = getDurationEnv("FARUM_CACHE_TTL", cfg.CacheTTL)
	cfg.CacheMaxAge = getDurationEnv("FARUM_CACHE_MAX_AGE", cfg.CacheMaxAge)
	cfg.CacheLockTimeout = getDurationEnv("FARUM_CACHE_LOCK_TIMEOUT", cfg.CacheLockTimeout)
	cfg.CacheSweepInterval = getDurationEnv("FARUM_CACHE_SWEEP_INTERVAL", cfg.CacheSweepInterval)
	cfg.ProtocolMaxIdle = getDurationEnv("FARUM_PROTOCOL_MAX_IDLE", cfg.ProtocolMaxIdle)
	cfg.MaxHistory = getIntEnv("FARUM_MAX_HISTORY", cfg.MaxHistory)
	cfg.MaxMessageLength = getIntEnv("FARUM_MAX_MESSAGE_LENGTH", cfg.MaxMessageLength)
	cfg.MaxResponseLength = getIntEnv("FARUM_MAX_RESPONSE_LENGTH", cfg.MaxResponseLength)
	cfg.TaskQueueSize = getIntEnv("FARUM_TASK_QUEUE_SIZE", cfg.TaskQueueSize)
	cfg.TaskWorkers = getIntEnv("FARUM_TASK_WORKERS", cfg.TaskWorkers)

	cfg.LogLevel = getEnv("FARUM_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("FARUM_LOG_FORMAT", cfg.LogFormat)

	cfg.OTELEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTELEndpoint)
	cfg.OTELInsecure = getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", cfg.OTELInsecure)
	cfg.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.ServiceName)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLMProvider {
	case "mock":
	case "vertex":
		if c.GCPProjectID == "" {
			errs = append(errs, errors.New("config: FARUM_GCP_PROJECT is required for the vertex provider"))
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("config: OPENAI_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown FARUM_LLM_PROVIDER %q", c.LLMProvider))
	}

	switch c.StorageBackend {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required for the postgres backend"))
		}
	case "firestore":
		if c.GCPProjectID == "" {
			errs = append(errs, errors.New("config: FARUM_GCP_PROJECT is required for the firestore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown FARUM_STORAGE_BACKEND %q", c.StorageBackend))
	}

	if c.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("config: FARUM_MAX_MESSAGE_LENGTH must be positive"))
	}
	if c.MaxResponseLength <= 0 {
		errs = append(errs, errors.New("config: FARUM_MAX_RESPONSE_LENGTH must be positive"))
	}
	if c.CacheLockTimeout <= 0 {
		errs = append(errs, errors.New("config: FARUM_CACHE_LOCK_TIMEOUT must be positive"))
	}
	if c.TaskQueueSize <= 0 {
		errs = append(errs, errors.New("config: FARUM_TASK_QUEUE_SIZE must be positive"))
	}

	return errors.Join(errs...)
}
