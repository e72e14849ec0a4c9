// Package config loads and validates the service configuration file.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the parsed configuration. Everything the listener and its
// collaborators need is resolved here once at startup; no package reads
// configuration files on its own.
type Config struct {
	// Host and Port bind the vote listener
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Debug enables debug-level logging
	Debug bool `yaml:"debug"`
	// RSADir holds the host key pair PEM files
	RSADir string `yaml:"rsa_dir"`
	// Tokens maps site identifiers to their shared-secret tokens for the
	// structured protocol. Legacy sites need no entry; they authenticate
	// with the host public key alone.
	Tokens map[string]string `yaml:"tokens"`
	// ReadTimeout bounds how long a connection may take to deliver a
	// complete vote
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// DispatchTimeout bounds consumer processing per vote
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	// AdminAddr enables the admin HTTP API when non-empty
	AdminAddr string `yaml:"admin_addr"`
	// GeoIPDB enables source annotation when pointed at a MaxMind database
	GeoIPDB string `yaml:"geoip_db"`
	// Forward configures built-in vote forwarding consumers
	Forward ForwardConfig `yaml:"forward"`
}

// ForwardConfig selects optional built-in consumers.
type ForwardConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis vote forwarder.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	// Key is the list the forwarder pushes vote JSON onto
	Key string `yaml:"key"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8192,
		Debug:           false,
		RSADir:          "rsa",
		Tokens:          map[string]string{},
		ReadTimeout:     5 * time.Second,
		DispatchTimeout: 10 * time.Second,
		Forward: ForwardConfig{
			Redis: RedisConfig{
				Addr: "127.0.0.1:6379",
				Key:  "votegate:votes",
			},
		},
	}
}

// Load reads and validates a configuration file. Missing keys keep their
// defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrCreate loads the configuration, writing the defaults first if the
// file does not exist yet. The second return reports whether it was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		raw, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, false, fmt.Errorf("marshal default config: %w", err)
		}
		if err := os.WriteFile(path, raw, 0o600); err != nil {
			return nil, false, fmt.Errorf("write default config: %w", err)
		}
		return cfg, true, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("stat config: %w", err)
	}

	cfg, err := Load(path)
	return cfg, false, err
}

// Validate checks the configuration for startup-fatal mistakes.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.RSADir == "" {
		return fmt.Errorf("rsa_dir must not be empty")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("dispatch_timeout must be positive")
	}
	for site, token := range c.Tokens {
		if site == "" {
			return fmt.Errorf("tokens: empty site identifier")
		}
		if token == "" {
			return fmt.Errorf("tokens: site %q has an empty token", site)
		}
	}
	if c.Forward.Redis.Enabled {
		if c.Forward.Redis.Addr == "" {
			return fmt.Errorf("forward.redis.addr must be set when enabled")
		}
		if c.Forward.Redis.Key == "" {
			return fmt.Errorf("forward.redis.key must be set when enabled")
		}
	}
	return nil
}

// ListenAddr returns the host:port the listener binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
