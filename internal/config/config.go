// Package config loads the application configuration.
//
// Configuration is layered: built-in defaults first, then environment
// variables prefixed with GRIMOIRE_ (GRIMOIRE_SERVER_PORT → server.port).
// The resulting Config is constructed once in main and passed down
// explicitly — no package reads the environment on its own.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variable names before they are
// mapped onto config paths.
const EnvPrefix = "GRIMOIRE_"

// Config is the complete application configuration.
type Config struct {
	Server ServerConfig `koanf:"server"`
	DB     DBConfig     `koanf:"db"`
	Auth   AuthConfig   `koanf:"auth"`
	Image  ImageConfig  `koanf:"image"`
	Log    LogConfig    `koanf:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	BaseURL         string   `koanf:"base_url"` // public URL prefix used to build image links
	ShutdownTimeout int      `koanf:"shutdown_timeout"` // seconds to drain in-flight requests
	CORSOrigins     []string `koanf:"cors_origins"`
}

// DBConfig controls the SQLite database.
type DBConfig struct {
	Path string `koanf:"path"`
}

// AuthConfig controls token issuing and password hashing.
type AuthConfig struct {
	JWTSecret  string `koanf:"jwt_secret"`
	TokenTTL   int    `koanf:"token_ttl"` // hours
	BcryptCost int    `koanf:"bcrypt_cost"`
}

// ImageConfig controls the cover image pipeline.
type ImageConfig struct {
	Dir            string `koanf:"dir"`
	MaxWidth       int    `koanf:"max_width"`
	Quality        int    `koanf:"quality"`
	MaxUploadBytes int64  `koanf:"max_upload_bytes"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

// defaultConfig returns a Config with all defaults applied. Env vars
// override these values.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			BaseURL:         "", // derived from host:port when empty
			ShutdownTimeout: 30,
			CORSOrigins:     []string{"*"},
		},
		DB: DBConfig{
			Path: "data/grimoire.db",
		},
		Auth: AuthConfig{
			JWTSecret:  "",
			TokenTTL:   24,
			BcryptCost: 12,
		},
		Image: ImageConfig{
			Dir:            "images",
			MaxWidth:       800,
			Quality:        80,
			MaxUploadBytes: 5 << 20, // 5 MiB, matches the upload limit advertised to clients
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults and environment variables.
//
// Precedence: env > defaults. Returns an error if the result fails
// validation — the server refuses to start with a broken config rather
// than limping along.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	// GRIMOIRE_AUTH_JWT_SECRET → auth.jwt_secret. Only the first
	// underscore separates the section from the key; the rest stay as-is
	// because key names themselves contain underscores.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(s, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	// CORS origins arrive from the environment as a comma-separated string.
	if v := k.Get("server.cors_origins"); v != nil {
		if s, ok := v.(string); ok {
			k.Set("server.cors_origins", splitAndTrim(s))
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth jwt_secret must be at least 16 characters (set GRIMOIRE_AUTH_JWT_SECRET)")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token_ttl must be positive, got %d", c.Auth.TokenTTL)
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth bcrypt_cost %d outside bcrypt's supported range", c.Auth.BcryptCost)
	}
	if c.Image.MaxWidth <= 0 {
		return fmt.Errorf("image max_width must be positive, got %d", c.Image.MaxWidth)
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("image quality %d outside 1-100", c.Image.Quality)
	}
	if c.Image.MaxUploadBytes <= 0 {
		return fmt.Errorf("image max_upload_bytes must be positive, got %d", c.Image.MaxUploadBytes)
	}
	if c.DB.Path == "" {
		return errors.New("db path must not be empty")
	}
	return nil
}

// PublicBaseURL returns the URL prefix under which the server is reachable.
// Falls back to http://localhost:<port> when no explicit base URL is set.
func (c *Config) PublicBaseURL() string {
	if c.Server.BaseURL != "" {
		return strings.TrimRight(c.Server.BaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.Port)
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
