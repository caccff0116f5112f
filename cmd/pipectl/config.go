package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/msgpipe/internal/config"
)

type fileConfig struct {
	Name      string `toml:"name"`
	Role      string `toml:"role"`
	Transport string `toml:"transport"`
	SocketDir string `toml:"socket_dir"`
	Timeout   string `toml:"timeout"`
	LogLevel  string `toml:"log_level"`
	Session   struct {
		RetryInterval    string `toml:"retry_interval"`
		PollInterval     string `toml:"poll_interval"`
		ReadBufferSize   int    `toml:"read_buffer_size"`
		QueueCapacity    int    `toml:"queue_capacity"`
		QueuePolicy      string `toml:"queue_policy"`
		MaxPayloadBytes  int64  `toml:"max_payload_bytes"`
		MaxRearmFailures int    `toml:"max_rearm_failures"`
	} `toml:"session"`
	Admin struct {
		Addr        string   `toml:"addr"`
		CorsOrigins []string `toml:"cors_origins"`
	} `toml:"admin"`
}

func defaultChannelConfig() config.ChannelConfig {
	return config.ChannelConfig{
		Name:      "pipe.local",
		Role:      "listen",
		Transport: config.TransportUnix,
		SocketDir: "/tmp/msgpipe",
	}
}

// loadPipeConfig overlays the keys present in path onto the defaults. It
// returns the configured log level separately since it is not channel state.
func loadPipeConfig(path string) (config.ChannelConfig, string, error) {
	cfg := defaultChannelConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.ChannelConfig{}, "", fmt.Errorf("load pipectl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config.ChannelConfig{}, "", fmt.Errorf("load pipectl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("role") {
		cfg.Role = strings.TrimSpace(raw.Role)
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.TrimSpace(raw.Transport)
	}
	if meta.IsDefined("socket_dir") {
		cfg.SocketDir = strings.TrimSpace(raw.SocketDir)
	}
	if meta.IsDefined("timeout") {
		cfg.Timeout = strings.TrimSpace(raw.Timeout)
	}

	if meta.IsDefined("session", "retry_interval") {
		cfg.Session.RetryInterval = strings.TrimSpace(raw.Session.RetryInterval)
	}
	if meta.IsDefined("session", "poll_interval") {
		cfg.Session.PollInterval = strings.TrimSpace(raw.Session.PollInterval)
	}
	if meta.IsDefined("session", "read_buffer_size") {
		cfg.Session.ReadBufferSize = raw.Session.ReadBufferSize
	}
	if meta.IsDefined("session", "queue_capacity") {
		cfg.Session.QueueCapacity = raw.Session.QueueCapacity
	}
	if meta.IsDefined("session", "queue_policy") {
		cfg.Session.QueuePolicy = strings.TrimSpace(raw.Session.QueuePolicy)
	}
	if meta.IsDefined("session", "max_payload_bytes") {
		cfg.Session.MaxPayloadBytes = raw.Session.MaxPayloadBytes
	}
	if meta.IsDefined("session", "max_rearm_failures") {
		cfg.Session.MaxRearmFailures = raw.Session.MaxRearmFailures
	}

	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = raw.Admin.CorsOrigins
	}

	level := ""
	if meta.IsDefined("log_level") {
		level = strings.TrimSpace(raw.LogLevel)
	}
	return cfg, level, nil
}
