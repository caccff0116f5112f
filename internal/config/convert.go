package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/msgpipe/internal/protocol/frame"
	"github.com/danmuck/msgpipe/internal/protocol/session"
	"github.com/danmuck/msgpipe/internal/queue"
	"github.com/danmuck/msgpipe/internal/transport"
)

// ParsePolicy maps a config policy name onto a queue policy. Empty means wait.
func ParsePolicy(name string) (queue.Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "wait":
		return queue.PolicyWait, nil
	case "drop", "drop-new":
		return queue.PolicyDrop, nil
	default:
		return queue.PolicyWait, fmt.Errorf("unknown queue policy: %s", name)
	}
}

// SessionConfig converts the file form into channel settings. Unset fields
// keep session.DefaultConfig values.
func (c ChannelConfig) SessionConfig() (session.Config, error) {
	out := session.DefaultConfig()
	if d, ok, err := parseDuration(c.Session.RetryInterval); err != nil {
		return session.Config{}, err
	} else if ok {
		out.RetryInterval = d
	}
	if d, ok, err := parseDuration(c.Session.PollInterval); err != nil {
		return session.Config{}, err
	} else if ok {
		out.PollInterval = d
	}
	if d, ok, err := parseDuration(c.Timeout); err != nil {
		return session.Config{}, err
	} else if ok {
		out.ConnectTimeout = d
	}
	if c.Session.ReadBufferSize > 0 {
		out.ReadBufferSize = c.Session.ReadBufferSize
	}
	if c.Session.QueueCapacity > 0 {
		out.Queue.Capacity = c.Session.QueueCapacity
	}
	policy, err := ParsePolicy(c.Session.QueuePolicy)
	if err != nil {
		return session.Config{}, err
	}
	out.Queue.Policy = policy
	if c.Session.MaxPayloadBytes > 0 {
		out.Limits = frame.Limits{MaxPayloadBytes: uint32(c.Session.MaxPayloadBytes)}
	}
	if c.Session.MaxRearmFailures > 0 {
		out.MaxRearmFailures = c.Session.MaxRearmFailures
	}
	return out.WithDefaults(), nil
}

// Provider builds the transport named by the config.
func (c ChannelConfig) Provider(poll time.Duration) (transport.Provider, error) {
	switch c.Transport {
	case TransportUnix, "":
		p := transport.NewUnixProvider(c.SocketDir)
		p.PollInterval = poll
		return p, nil
	case TransportMemory:
		p := transport.NewMemoryProvider()
		if poll > 0 {
			p.PollInterval = poll
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown transport: %s", c.Transport)
	}
}

func parseDuration(value string) (time.Duration, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, err
	}
	return d, true, nil
}
