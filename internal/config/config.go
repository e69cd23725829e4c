package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for the client CLI and the
// workflow backend. Both binaries read the same file and only look at the
// sections they need.
type Config struct {
	Client        ClientConfig        `yaml:"client"`
	Server        ServerConfig        `yaml:"server"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Summary       SummaryConfig       `yaml:"summary"`
	Mail          MailConfig          `yaml:"mail"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ClientConfig contains the workflow client configuration
type ClientConfig struct {
	BaseURL         string  `yaml:"base_url"`
	Email           string  `yaml:"email"`
	AccessKey       string  `yaml:"access_key"`
	PollInterval    float64 `yaml:"poll_interval"`     // seconds
	MaxPollAttempts int     `yaml:"max_poll_attempts"` // 0 = unbounded
	CaptureURL      string  `yaml:"capture_url"`       // microphone bridge websocket
	WatchDir        string  `yaml:"watch_dir"`         // optional input directory
	RequestTimeout  int     `yaml:"request_timeout"`   // seconds
}

// ServerConfig contains the workflow backend configuration
type ServerConfig struct {
	Address        string `yaml:"address"`
	Port           int    `yaml:"port"`
	StaticKey      string `yaml:"static_key"`
	SessionCookie  string `yaml:"session_cookie"`
	UploadMaxBytes int64  `yaml:"upload_max_bytes"`
	StoragePath    string `yaml:"storage_path"`
	DailyLimit     int    `yaml:"daily_limit"`
}

// TranscriptionConfig contains the speech-to-text API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// SummaryConfig contains the LLM configuration for summaries and email drafts
type SummaryConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// MailConfig contains the outgoing SMTP configuration
type MailConfig struct {
	Server        string `yaml:"server"`
	Port          int    `yaml:"port"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	DefaultSender string `yaml:"default_sender"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads the configuration file, applies environment overrides for
// secrets, and validates every section. Binaries that use only part of the
// file should call LoadClient or LoadServer instead.
func Load(path string) (*Config, error) {
	config, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadClient reads the configuration and validates only the sections the
// client CLI uses, so a client config does not need the backend's secrets.
func LoadClient(path string) (*Config, error) {
	config, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := config.Client.Validate(); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}
	if err := config.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}

	return config, nil
}

// LoadServer reads the configuration and validates the backend sections
func LoadServer(path string) (*Config, error) {
	config, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := config.Server.Validate(); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	if err := config.Transcription.Validate(); err != nil {
		return nil, fmt.Errorf("transcription config: %w", err)
	}
	if err := config.Summary.Validate(); err != nil {
		return nil, fmt.Errorf("summary config: %w", err)
	}
	if err := config.Mail.Validate(); err != nil {
		return nil, fmt.Errorf("mail config: %w", err)
	}
	if err := config.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}

	return config, nil
}

// load parses the file and applies environment overrides and defaults. A
// .env file in the working directory is honored when present.
func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	return &config, nil
}

// applyEnvOverrides fills secret-bearing fields from the environment. The
// variable names follow the original deployment (.env) of the service.
func (c *Config) applyEnvOverrides() {
	_ = godotenv.Load()

	if v := os.Getenv("GROQ_API"); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.Summary.APIKey = v
	}
	if v := os.Getenv("STATIC_KEY"); v != "" {
		c.Server.StaticKey = v
	}
	if v := os.Getenv("MAIL_SERVER"); v != "" {
		c.Mail.Server = v
	}
	if v := os.Getenv("MAIL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Mail.Port = port
		}
	}
	if v := os.Getenv("MAIL_USERNAME"); v != "" {
		c.Mail.Username = v
	}
	if v := os.Getenv("MAIL_PASSWORD"); v != "" {
		c.Mail.Password = v
	}
	if v := os.Getenv("MAIL_DEFAULT_SENDER"); v != "" {
		c.Mail.DefaultSender = v
	}
}

func (c *Config) applyDefaults() {
	if c.Client.PollInterval == 0 {
		c.Client.PollInterval = 2.0
	}
	if c.Client.RequestTimeout == 0 {
		c.Client.RequestTimeout = 60
	}
	if c.Server.SessionCookie == "" {
		c.Server.SessionCookie = "voxmail_session"
	}
	if c.Server.UploadMaxBytes == 0 {
		c.Server.UploadMaxBytes = 32 << 20
	}
	if c.Server.DailyLimit == 0 {
		c.Server.DailyLimit = 5
	}
	if c.Transcription.Timeout == 0 {
		c.Transcription.Timeout = 60
	}
	if c.Transcription.MaxConcurrent == 0 {
		c.Transcription.MaxConcurrent = 3
	}
	if c.Summary.Model == "" {
		c.Summary.Model = "gpt-4o-mini"
	}
	if c.Summary.MaxTokens == 0 {
		c.Summary.MaxTokens = 500
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 465
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate performs validation of all configuration sections
func (c *Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Summary.Validate(); err != nil {
		return fmt.Errorf("summary config: %w", err)
	}

	if err := c.Mail.Validate(); err != nil {
		return fmt.Errorf("mail config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates the client configuration
func (cl *ClientConfig) Validate() error {
	if cl.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if cl.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %f", cl.PollInterval)
	}

	if cl.MaxPollAttempts < 0 {
		return fmt.Errorf("max_poll_attempts cannot be negative, got %d", cl.MaxPollAttempts)
	}

	if cl.RequestTimeout < 1 {
		return fmt.Errorf("request_timeout must be at least 1 second, got %d", cl.RequestTimeout)
	}

	return nil
}

// Validate validates the server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.StaticKey == "" {
		return fmt.Errorf("static_key cannot be empty")
	}

	if s.UploadMaxBytes < 1024 {
		return fmt.Errorf("upload_max_bytes must be at least 1024, got %d", s.UploadMaxBytes)
	}

	if s.StoragePath == "" {
		return fmt.Errorf("storage_path cannot be empty")
	}

	if s.DailyLimit < 1 {
		return fmt.Errorf("daily_limit must be at least 1, got %d", s.DailyLimit)
	}

	return nil
}

// Validate validates the transcription API configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates the summary configuration
func (s *SummaryConfig) Validate() error {
	if s.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if s.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", s.MaxTokens)
	}

	return nil
}

// Validate validates the mail configuration
func (m *MailConfig) Validate() error {
	if m.Server == "" {
		return fmt.Errorf("server cannot be empty")
	}

	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", m.Port)
	}

	if m.DefaultSender == "" {
		return fmt.Errorf("default_sender cannot be empty")
	}

	return nil
}

// Validate validates the logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetPollInterval returns the polling interval as a time.Duration
func (cl *ClientConfig) GetPollInterval() time.Duration {
	return time.Duration(cl.PollInterval * float64(time.Second))
}

// GetRequestTimeout returns the HTTP request timeout as a time.Duration
func (cl *ClientConfig) GetRequestTimeout() time.Duration {
	return time.Duration(cl.RequestTimeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// ListenAddr returns the server listen address in host:port form
func (s *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}
