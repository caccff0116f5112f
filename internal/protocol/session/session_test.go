package session

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/msgpipe/internal/queue"
	"github.com/danmuck/msgpipe/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	for attempt := 1; attempt <= 3; attempt++ {
		base := NextBackoffDelay(BackoffConfig{
			InitialDelay: cfg.InitialDelay,
			Multiplier:   cfg.Multiplier,
			MaxDelay:     cfg.MaxDelay,
		}, attempt, nil)
		got := NextBackoffDelay(cfg, attempt, rng)
		if got < base/2 || got > base*3/2 {
			t.Fatalf("attempt%d jitter out of range: %v (base %v)", attempt, got, base)
		}
	}
}

func TestSleepHonorsContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancelled sleep blocked")
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{RetryInterval: 10 * time.Millisecond, Queue: queue.Options{Policy: queue.PolicyDrop}}.WithDefaults()
	def := DefaultConfig()
	if cfg.RetryInterval != 10*time.Millisecond {
		t.Fatalf("explicit RetryInterval overwritten: %v", cfg.RetryInterval)
	}
	if cfg.Queue.Capacity != def.Queue.Capacity || cfg.Queue.Policy != queue.PolicyDrop {
		t.Fatalf("unexpected queue options: %+v", cfg.Queue)
	}
	if cfg.PollInterval != def.PollInterval || cfg.MaxRearmFailures != def.MaxRearmFailures {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Limits.MaxPayloadBytes != def.Limits.MaxPayloadBytes {
		t.Fatalf("limits not defaulted: %+v", cfg.Limits)
	}
}

func TestOutboxDrainKeepsOrder(t *testing.T) {
	testlog.Start(t)
	o := NewOutbox[uint8]()
	o.Append(2, []byte("a"))
	o.Append(3, []byte("b"))
	o.Append(4, []byte("c"))
	if o.Len() != 3 {
		t.Fatalf("unexpected len=%d", o.Len())
	}

	var got []uint8
	n, err := o.Drain(func(m PendingMessage[uint8]) error {
		got = append(got, m.Type)
		return nil
	})
	if err != nil || n != 3 {
		t.Fatalf("drain n=%d err=%v", n, err)
	}
	if len(got) != 3 || got[0] != 2 || got[1] != 3 || got[2] != 4 {
		t.Fatalf("drain order mismatch: %v", got)
	}
	if o.Len() != 0 {
		t.Fatalf("outbox should be empty after drain")
	}
}

func TestOutboxDrainStopsAtFirstError(t *testing.T) {
	testlog.Start(t)
	o := NewOutbox[uint8]()
	for i := uint8(2); i < 6; i++ {
		o.Append(i, nil)
	}
	boom := errors.New("boom")
	n, err := o.Drain(func(m PendingMessage[uint8]) error {
		if m.Type == 4 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) || n != 2 {
		t.Fatalf("drain n=%d err=%v", n, err)
	}
	rest := o.List()
	if len(rest) != 2 || rest[0].Type != 4 || rest[1].Type != 5 {
		t.Fatalf("unexpected remaining items: %+v", rest)
	}
	if o.Clear() != 2 || o.Len() != 0 {
		t.Fatalf("clear failed")
	}
}
