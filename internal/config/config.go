package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/msgpipe/internal/transport"
	"github.com/pelletier/go-toml/v2"
)

const (
	TransportUnix   = "unix"
	TransportMemory = "memory"
)

// ChannelConfig is the on-disk description of one pipectl channel.
type ChannelConfig struct {
	Name      string        `toml:"name"`
	Role      string        `toml:"role"`
	Transport string        `toml:"transport"`
	SocketDir string        `toml:"socket_dir"`
	Timeout   string        `toml:"timeout"`
	Session   SessionConfig `toml:"session"`
	Admin     AdminConfig   `toml:"admin"`
}

type SessionConfig struct {
	RetryInterval    string `toml:"retry_interval"`
	PollInterval     string `toml:"poll_interval"`
	ReadBufferSize   int    `toml:"read_buffer_size"`
	QueueCapacity    int    `toml:"queue_capacity"`
	QueuePolicy      string `toml:"queue_policy"`
	MaxPayloadBytes  int64  `toml:"max_payload_bytes"`
	MaxRearmFailures int    `toml:"max_rearm_failures"`
}

type AdminConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

func LoadChannelConfig(path string) (ChannelConfig, error) {
	var cfg ChannelConfig
	if err := loadToml(path, &cfg); err != nil {
		return ChannelConfig{}, err
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportUnix
	}
	if cfg.Transport == TransportUnix && cfg.SocketDir == "" {
		cfg.SocketDir = os.TempDir()
	}
	if err := ValidateChannelConfig(cfg); err != nil {
		return ChannelConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateChannelConfig(cfg ChannelConfig) error {
	if err := transport.ValidateName(cfg.Name); err != nil {
		return fmt.Errorf("channel config name: %w", err)
	}
	switch strings.TrimSpace(cfg.Role) {
	case "", "listen", "connect":
	default:
		return fmt.Errorf("channel config role must be listen or connect, got %q", cfg.Role)
	}
	switch cfg.Transport {
	case TransportUnix:
		if strings.TrimSpace(cfg.SocketDir) == "" {
			return fmt.Errorf("channel config socket_dir required for unix transport")
		}
	case TransportMemory:
	default:
		return fmt.Errorf("channel config unknown transport %q", cfg.Transport)
	}
	if err := validateDuration("timeout", cfg.Timeout); err != nil {
		return err
	}
	if err := validateDuration("session.retry_interval", cfg.Session.RetryInterval); err != nil {
		return err
	}
	if err := validateDuration("session.poll_interval", cfg.Session.PollInterval); err != nil {
		return err
	}
	if _, err := ParsePolicy(cfg.Session.QueuePolicy); err != nil {
		return err
	}
	if cfg.Session.ReadBufferSize < 0 || cfg.Session.QueueCapacity < 0 || cfg.Session.MaxRearmFailures < 0 {
		return fmt.Errorf("channel config session sizes must not be negative")
	}
	if cfg.Session.MaxPayloadBytes < 0 || cfg.Session.MaxPayloadBytes > int64(^uint32(0)) {
		return fmt.Errorf("channel config session.max_payload_bytes out of range: %d", cfg.Session.MaxPayloadBytes)
	}
	return nil
}

func validateDuration(key, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("channel config %s: %w", key, err)
	}
	if d < 0 {
		return fmt.Errorf("channel config %s must not be negative", key)
	}
	return nil
}
