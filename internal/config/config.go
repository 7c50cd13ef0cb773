// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.docsage/config.yaml)
//  3. Default values
//
// Security: sensitive fields (passwords) are masked in MarshalJSON and
// never logged. Validation runs immediately after loading (fail-fast) with
// sentinel errors for errors.Is checks.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Defaults for the retrieval pipeline.
const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDimension matches the default embedder's output width.
	DefaultEmbedderDimension = 768
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// HTTP server
	Host           string `mapstructure:"host" json:"host"`
	Port           int    `mapstructure:"port" json:"port"`
	RateLimitRPS   int    `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int    `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`       // "gemini" (default), "ollama", "openai"
	ModelName     string `mapstructure:"model_name" json:"model_name"`   // e.g. "gemini-2.5-flash", "llama3.3", "gpt-4o"
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDim   int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	OllamaHost    string `mapstructure:"ollama_host" json:"ollama_host"` // only used when provider is "ollama"

	// PostgreSQL
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Redis (retrieval cache); empty address falls back to in-memory caching
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE: masked in MarshalJSON
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`

	// Storage paths
	UploadDir string `mapstructure:"upload_dir" json:"upload_dir"`
	IndexDir  string `mapstructure:"index_dir" json:"index_dir"`

	// Chunking
	ChunkStrategy     string `mapstructure:"chunk_strategy" json:"chunk_strategy"` // "recursive" (default) or "semantic"
	ChunkSize         int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap      int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	ChunkMinSentences int    `mapstructure:"chunk_min_sentences" json:"chunk_min_sentences"` // semantic strategy only

	// Retrieval
	RetrievalTopK int `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Observability (OTLP trace export); empty endpoint disables tracing
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".docsage")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the discrete postgres fields.
	if err := cfg.parseDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("host", "0.0.0.0")
	viper.SetDefault("port", 8000)
	viper.SetDefault("rate_limit_rps", 10)
	viper.SetDefault("rate_limit_burst", 20)

	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "docsage")
	viper.SetDefault("postgres_password", "docsage_dev_password")
	viper.SetDefault("postgres_db_name", "docsage")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Redis defaults (empty address = in-memory cache)
	viper.SetDefault("redis_addr", "")
	viper.SetDefault("redis_db", 0)

	// Storage defaults
	viper.SetDefault("upload_dir", "data/uploads")
	viper.SetDefault("index_dir", "data/indexes")

	// Chunking defaults
	viper.SetDefault("chunk_strategy", "recursive")
	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("chunk_overlap", 200)
	viper.SetDefault("chunk_min_sentences", 2)

	// Retrieval defaults
	viper.SetDefault("retrieval_top_k", 4)

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", true)
}

// bindEnvVariables binds environment overrides explicitly.
// API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the
// Genkit plugins, not via Viper; validation checks their presence.
func bindEnvVariables() {
	// Hardcoded strings can't fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("host", "DOCSAGE_HOST")
	mustBind("port", "DOCSAGE_PORT")
	mustBind("provider", "DOCSAGE_PROVIDER")
	mustBind("model_name", "DOCSAGE_MODEL_NAME")
	mustBind("embedder_model", "DOCSAGE_EMBEDDER_MODEL")
	mustBind("embedder_dimension", "DOCSAGE_EMBEDDER_DIMENSION")
	mustBind("ollama_host", "DOCSAGE_OLLAMA_HOST")
	mustBind("redis_addr", "DOCSAGE_REDIS_ADDR")
	mustBind("redis_password", "DOCSAGE_REDIS_PASSWORD")
	mustBind("upload_dir", "DOCSAGE_UPLOAD_DIR")
	mustBind("index_dir", "DOCSAGE_INDEX_DIR")
	mustBind("log_level", "DOCSAGE_LOG_LEVEL")
	mustBind("otlp_endpoint", "DOCSAGE_OTLP_ENDPOINT")
}

// parseDatabaseURL overrides the discrete postgres fields from a
// postgres:// URL. An empty input leaves the config untouched.
func (c *Config) parseDatabaseURL(raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", port, err)
		}
		c.PostgresPort = p
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		c.PostgresDBName = name
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}

	return nil
}

// PostgresURL returns the connection URL used by migrations and the pool.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost, c.PostgresPort, c.PostgresDBName, c.PostgresSSLMode)
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.RedisPassword = maskSecret(a.RedisPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return "config{marshal error}"
	}
	return string(data)
}
