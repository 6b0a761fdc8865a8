// Package config reads and writes ~/.quickchat/config.toml, shared by chatd and chatctl.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the whole configuration file.
type Config struct {
	DefaultProfile string       `toml:"default_profile"`
	Server         ServerConfig `toml:"server"`
	Client         ClientConfig `toml:"client"`
}

// ServerConfig configures chatd. Empty paths fall back to locations under the
// quickchat home directory.
type ServerConfig struct {
	// Listen is "unix:///path/to.sock" or "host:port". Empty means the socket in DataDir.
	Listen        string  `toml:"listen"`
	AdminListen   string  `toml:"admin_listen"`
	DataDir       string  `toml:"data_dir"`
	RedisURL      string  `toml:"redis_url"`
	SendRate      float64 `toml:"send_rate"`
	SendBurst     int     `toml:"send_burst"`
	TokenTTLHours int     `toml:"token_ttl_hours"`
	LogLevel      string  `toml:"log_level"`
}

// ClientConfig configures chatctl.
type ClientConfig struct {
	// Address is a gRPC target. Empty means the local chatd socket.
	Address        string `toml:"address"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Server: ServerConfig{
			AdminListen:   "127.0.0.1:9464",
			SendRate:      5,
			SendBurst:     20,
			TokenTTLHours: 24 * 30,
			LogLevel:      "info",
		},
		Client: ClientConfig{TimeoutSeconds: 10},
	}
}

// Load reads config from path on top of the defaults. A missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate rejects values chatd or chatctl cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.SendRate < 0:
		return errors.New("server.send_rate must not be negative")
	case c.Server.SendBurst < 0:
		return errors.New("server.send_burst must not be negative")
	case c.Server.TokenTTLHours < 0:
		return errors.New("server.token_ttl_hours must not be negative")
	case c.Client.TimeoutSeconds < 0:
		return errors.New("client.timeout_seconds must not be negative")
	}
	return nil
}

// TokenTTL returns the lifetime of issued tokens.
func (s ServerConfig) TokenTTL() time.Duration {
	return time.Duration(s.TokenTTLHours) * time.Hour
}

// Timeout returns the per-call timeout.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
