// Package config loads the service configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"legal-analyzer/logic/chat"
	"legal-analyzer/pkg/logger"
	"legal-analyzer/storage/es"
	"legal-analyzer/storage/objectstore"
	"legal-analyzer/storage/postgres"
)

// EnvPrefix prefixes every environment override, e.g. ANALYZER_SERVER_PORT.
const EnvPrefix = "ANALYZER"

var (
	// ErrMissingAPIKey is the chat client's sentinel, so errors.Is matches
	// whichever layer reports it.
	ErrMissingAPIKey   = chat.ErrMissingAPIKey
	ErrMissingDatabase = postgres.ErrMissingURL
	ErrInvalidConfig   = errors.New("invalid configuration")
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Upload   UploadConfig   `mapstructure:"upload" yaml:"upload"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Reaper   ReaperConfig   `mapstructure:"reaper" yaml:"reaper"`
}

type ServerConfig struct {
	Host        string        `mapstructure:"host" yaml:"host"`
	Port        int           `mapstructure:"port" yaml:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	// WriteTimeout of zero is derived from the LLM retry budget.
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type LLMConfig struct {
	// Provider is groq (any OpenAI-compatible endpoint), openai or ollama.
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Model       string        `mapstructure:"model" yaml:"model"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`

	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RateLimitStep time.Duration `mapstructure:"rate_limit_step" yaml:"rate_limit_step"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// Budget is the longest a single analysis can wait on the model: every attempt
// timing out plus the sleeps between them.
func (c LLMConfig) Budget() time.Duration {
	budget := time.Duration(c.MaxAttempts) * c.Timeout
	for attempt := 1; attempt < c.MaxAttempts; attempt++ {
		budget += max(time.Duration(attempt)*c.RateLimitStep, c.RetryDelay)
	}
	return budget
}

// writeHeadroom covers extraction, database writes and the response itself.
const writeHeadroom = time.Minute

type DatabaseConfig struct {
	URL             string        `mapstructure:"url" yaml:"url"`
	ServiceKey      string        `mapstructure:"service_key" yaml:"service_key"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// SearchConfig enables the Elasticsearch clause index.
type SearchConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Addresses []string `mapstructure:"addresses" yaml:"addresses"`
	Username  string   `mapstructure:"username" yaml:"username"`
	Password  string   `mapstructure:"password" yaml:"password"`
	APIKey    string   `mapstructure:"api_key" yaml:"api_key"`
	Index     string   `mapstructure:"index" yaml:"index"`
}

// StorageConfig enables keeping uploaded originals in MinIO/S3.
type StorageConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey     string        `mapstructure:"access_key" yaml:"access_key"`
	SecretKey     string        `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket        string        `mapstructure:"bucket" yaml:"bucket"`
	Region        string        `mapstructure:"region" yaml:"region"`
	UseSSL        bool          `mapstructure:"use_ssl" yaml:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry" yaml:"presign_expiry"`
}

type UploadConfig struct {
	MaxSize int64 `mapstructure:"max_size" yaml:"max_size"`
}

type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens; empty leaves every request anonymous.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Required  bool   `mapstructure:"required" yaml:"required"`
}

// ReaperConfig drives the job that fails documents stuck in processing.
type ReaperConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Schedule   string        `mapstructure:"schedule" yaml:"schedule"`
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
}

// envAliases are environment names accepted besides the ANALYZER_ ones,
// checked after them in order.
var envAliases = map[string][]string{
	"llm.api_key":          {"OPENAI_API_KEY", "GROQ_API_KEY"},
	"database.url":         {"SUPABASE_DB_URL", "DATABASE_URL"},
	"database.service_key": {"SUPABASE_SERVICE_ROLE_KEY"},
	"auth.jwt_secret":      {"SUPABASE_JWT_SECRET"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 5)
	v.SetDefault("server.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("llm.provider", chat.ProviderGroq)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", chat.DefaultBaseURL)
	v.SetDefault("llm.model", chat.DefaultModel)
	v.SetDefault("llm.max_tokens", chat.DefaultMaxTokens)
	v.SetDefault("llm.temperature", chat.DefaultTemperature)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.rate_limit_step", "2s")
	v.SetDefault("llm.retry_delay", "1s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.service_key", "")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.slow_threshold", "500ms")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("search.enabled", false)
	v.SetDefault("search.addresses", []string{"http://localhost:9200"})
	v.SetDefault("search.username", "")
	v.SetDefault("search.password", "")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.index", es.DefaultIndex)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "documents")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.presign_expiry", "15m")

	v.SetDefault("upload.max_size", 10<<20)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.required", false)

	v.SetDefault("reaper.enabled", true)
	v.SetDefault("reaper.schedule", "@every 5m")
	v.SetDefault("reaper.stale_after", "15m")
}

// Load reads configuration from configPath, if given, and the environment.
// A missing file is not an error; any other read failure is.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var (
				parseErr viper.ConfigParseError
				notFound viper.ConfigFileNotFoundError
			)
			switch {
			case errors.As(err, &parseErr):
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			case errors.As(err, &notFound), errors.Is(err, fs.ErrNotExist):
			default:
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks everything serve needs before any external call is made.
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.Provider != chat.ProviderOllama && c.LLM.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if err := c.ValidateDatabase(); err != nil {
		errs = append(errs, err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port))
	}
	if c.Upload.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: upload.max_size must be positive", ErrInvalidConfig))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%w: llm.max_attempts must be at least 1", ErrInvalidConfig))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%w: llm.temperature must be between 0 and 2", ErrInvalidConfig))
	}
	if w := c.Server.WriteTimeout; w > 0 && w < c.LLM.Budget() {
		errs = append(errs, fmt.Errorf("%w: server.write_timeout %s is shorter than the llm budget %s",
			ErrInvalidConfig, w, c.LLM.Budget()))
	}
	if c.Search.Enabled && len(c.Search.Addresses) == 0 {
		errs = append(errs, fmt.Errorf("%w: search.addresses is empty", ErrInvalidConfig))
	}
	if c.Storage.Enabled && (c.Storage.Endpoint == "" || c.Storage.Bucket == "") {
		errs = append(errs, fmt.Errorf("%w: storage.endpoint and storage.bucket are required", ErrInvalidConfig))
	}
	if c.Reaper.Enabled && c.Reaper.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("%w: reaper.stale_after must be positive", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// HTTPWriteTimeout is server.write_timeout, or when unset the LLM budget plus
// headroom so a failed analysis can still answer.
func (c *Config) HTTPWriteTimeout() time.Duration {
	if c.Server.WriteTimeout > 0 {
		return c.Server.WriteTimeout
	}
	return c.LLM.Budget() + writeHeadroom
}

// ValidateDatabase checks only what commands touching the database need.
func (c *Config) ValidateDatabase() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return ErrMissingDatabase
	}
	return nil
}

const redacted = "****"

func redact(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	c.LLM.APIKey = redact(c.LLM.APIKey)
	c.Database.ServiceKey = redact(c.Database.ServiceKey)
	c.Database.URL = postgres.RedactURL(c.Database.URL)
	c.Search.Password = redact(c.Search.Password)
	c.Search.APIKey = redact(c.Search.APIKey)
	c.Storage.SecretKey = redact(c.Storage.SecretKey)
	c.Auth.JWTSecret = redact(c.Auth.JWTSecret)
	c.Search.Addresses = append([]string(nil), c.Search.Addresses...)
	return c
}

// YAML renders the redacted configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

func (c *Config) Logger() logger.Config {
	return logger.Config{Level: c.Log.Level, Format: c.Log.Format}
}

func (c *Config) Chat() chat.Config {
	temperature := c.LLM.Temperature
	return chat.Config{
		Provider:      c.LLM.Provider,
		APIKey:        c.LLM.APIKey,
		BaseURL:       c.LLM.BaseURL,
		Model:         c.LLM.Model,
		MaxTokens:     c.LLM.MaxTokens,
		Temperature:   &temperature,
		Timeout:       c.LLM.Timeout,
		MaxAttempts:   c.LLM.MaxAttempts,
		RateLimitStep: c.LLM.RateLimitStep,
		RetryDelay:    c.LLM.RetryDelay,
	}
}

func (c *Config) Postgres() postgres.Config {
	return postgres.Config{
		URL:             c.Database.URL,
		ServiceKey:      c.Database.ServiceKey,
		MaxIdleConns:    c.Database.MaxIdleConns,
		MaxOpenConns:    c.Database.MaxOpenConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		LogLevel:        c.Database.LogLevel,
		SlowThreshold:   c.Database.SlowThreshold,
	}
}

func (c *Config) Elasticsearch() es.Config {
	return es.Config{
		Addresses: c.Search.Addresses,
		Username:  c.Search.Username,
		Password:  c.Search.Password,
		APIKey:    c.Search.APIKey,
		Index:     c.Search.Index,
	}
}

func (c *Config) ObjectStore() objectstore.Config {
	return objectstore.Config{
		Endpoint:      c.Storage.Endpoint,
		AccessKey:     c.Storage.AccessKey,
		SecretKey:     c.Storage.SecretKey,
		Bucket:        c.Storage.Bucket,
		Region:        c.Storage.Region,
		UseSSL:        c.Storage.UseSSL,
		PresignExpiry: c.Storage.PresignExpiry,
	}
}
