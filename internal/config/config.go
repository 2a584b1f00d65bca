package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Live      LiveConfig      `yaml:"live"`
	Providers ProvidersConfig `yaml:"providers"`
	CredSync  CredSyncConfig  `yaml:"credsync"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // "1.2" or "1.3"
}

// APIConfig contains API-related configuration.
type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	BasePath  string          `yaml:"base_path"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

// AuthConfig contains authentication configuration.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// StorageConfig contains storage backend configuration.
type StorageConfig struct {
	Backend   string          `yaml:"backend"` // "memory" or "sqlite"
	Path      string          `yaml:"path"`
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig contains retention cleanup configuration.
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	MaxAge   time.Duration `yaml:"max_age"`
	Interval time.Duration `yaml:"interval"`
}

// LiveConfig contains live update session configuration.
type LiveConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchLimit int           `yaml:"batch_limit"`
}

// ProvidersConfig contains per-provider generation configuration.
type ProvidersConfig struct {
	Gemini   GeminiConfig   `yaml:"gemini"`
	Qwen     QwenConfig     `yaml:"qwen"`
	Wardrobe WardrobeConfig `yaml:"wardrobe"`
}

// GeminiConfig contains Gemini provider configuration.
type GeminiConfig struct {
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// QwenConfig contains Qwen provider configuration.
type QwenConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// WardrobeConfig contains wardrobe try-on provider configuration.
type WardrobeConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	ItemCacheTTL time.Duration `yaml:"item_cache_ttl"`
}

// CredSyncConfig contains credential file auto-import configuration.
type CredSyncConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
}

// TelegramConfig contains Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := c.Live.Validate(); err != nil {
		return fmt.Errorf("live: %w", err)
	}

	if err := c.Providers.Validate(); err != nil {
		return fmt.Errorf("providers: %w", err)
	}

	if err := c.CredSync.Validate(); err != nil {
		return fmt.Errorf("credsync: %w", err)
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host is required")
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.LogFormat == "" {
		s.LogFormat = "json"
	}
	if s.TLS.Enabled {
		if s.TLS.CertFile == "" {
			return fmt.Errorf("tls cert_file is required when TLS is enabled")
		}
		if s.TLS.KeyFile == "" {
			return fmt.Errorf("tls key_file is required when TLS is enabled")
		}
		if s.TLS.MinVersion != "" && s.TLS.MinVersion != "1.2" && s.TLS.MinVersion != "1.3" {
			return fmt.Errorf("tls min_version must be either \"1.2\" or \"1.3\"")
		}
		if s.TLS.MinVersion == "" {
			s.TLS.MinVersion = "1.3"
		}
	}
	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.BasePath == "" {
		a.BasePath = "/api/v1"
	}
	if a.Auth.Enabled && len(a.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth: api_keys is required when auth is enabled")
	}
	if a.Auth.HeaderName == "" {
		a.Auth.HeaderName = "X-API-Key"
	}
	if a.RateLimit.RequestsPerMinute <= 0 {
		a.RateLimit.RequestsPerMinute = 1000
	}
	// Cap rate limit to prevent abuse
	if a.RateLimit.RequestsPerMinute > 100000 {
		a.RateLimit.RequestsPerMinute = 100000
	}
	if a.RateLimit.Burst <= 0 {
		a.RateLimit.Burst = 100
	}
	if a.RateLimit.Burst > 10000 {
		a.RateLimit.Burst = 10000
	}
	return nil
}

// Validate validates storage configuration.
func (s *StorageConfig) Validate() error {
	if s.Backend == "" {
		s.Backend = "sqlite"
	}
	if s.Backend != "memory" && s.Backend != "sqlite" {
		return fmt.Errorf("backend must be one of: memory, sqlite")
	}
	if s.Backend == "sqlite" && s.Path == "" {
		s.Path = "adatry.db"
	}
	if s.Retention.MaxAge <= 0 {
		s.Retention.MaxAge = 90 * 24 * time.Hour
	}
	if s.Retention.Interval <= 0 {
		s.Retention.Interval = time.Hour
	}
	return nil
}

// Validate validates live session configuration.
func (l *LiveConfig) Validate() error {
	if l.Interval <= 0 {
		l.Interval = 10 * time.Second
	}
	if l.BatchLimit <= 0 {
		l.BatchLimit = 3
	}
	return nil
}

// Validate validates provider configuration.
func (p *ProvidersConfig) Validate() error {
	if p.Gemini.Model == "" {
		p.Gemini.Model = "gemini-2.0-flash-exp"
	}
	if p.Gemini.Timeout <= 0 {
		p.Gemini.Timeout = 60 * time.Second
	}
	if p.Qwen.Endpoint == "" {
		p.Qwen.Endpoint = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text2image/image-synthesis"
	}
	if p.Qwen.Model == "" {
		p.Qwen.Model = "wanx-v1"
	}
	if p.Qwen.Timeout <= 0 {
		p.Qwen.Timeout = 60 * time.Second
	}
	if p.Wardrobe.Timeout <= 0 {
		p.Wardrobe.Timeout = 120 * time.Second
	}
	if p.Wardrobe.ItemCacheTTL <= 0 {
		p.Wardrobe.ItemCacheTTL = 5 * time.Minute
	}
	return nil
}

// Validate validates credential sync configuration.
func (c *CredSyncConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Dir == "" {
		return fmt.Errorf("dir is required when credsync is enabled")
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	return nil
}
