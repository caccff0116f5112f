package session

import (
	"time"

	"github.com/danmuck/msgpipe/internal/protocol/frame"
	"github.com/danmuck/msgpipe/internal/queue"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines connection and session reliability defaults for a channel.
type Config struct {
	// ConnectTimeout is used by callers that do not pass an explicit timeout.
	ConnectTimeout time.Duration
	// RetryInterval is the fixed delay between client open attempts.
	RetryInterval time.Duration
	// PollInterval bounds how long transport calls block between stop checks.
	PollInterval   time.Duration
	ReadBufferSize int
	Queue          queue.Options
	Limits         frame.Limits

	// MaxRearmFailures caps consecutive failed sessions before Listen gives up.
	MaxRearmFailures int
	Backoff          BackoffConfig
}

// DefaultConfig returns the channel defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		RetryInterval:    50 * time.Millisecond,
		PollInterval:     50 * time.Millisecond,
		ReadBufferSize:   64 * 1024,
		Queue:            queue.DefaultOptions(),
		Limits:           frame.DefaultLimits(),
		MaxRearmFailures: 5,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills every zero field from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = d.Queue.Capacity
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = d.Limits
	}
	if c.MaxRearmFailures <= 0 {
		c.MaxRearmFailures = d.MaxRearmFailures
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}
