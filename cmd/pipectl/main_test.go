package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/msgpipe/internal/channel"
	"github.com/danmuck/msgpipe/internal/config"
	"github.com/danmuck/msgpipe/internal/logging"
	"github.com/danmuck/msgpipe/internal/protocol/session"
	"github.com/danmuck/msgpipe/internal/testutil/testlog"
	"github.com/danmuck/msgpipe/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func memoryConfig(role string) config.ChannelConfig {
	cfg := defaultChannelConfig()
	cfg.Transport = config.TransportMemory
	cfg.Role = role
	cfg.Session.RetryInterval = "5ms"
	return cfg
}

func TestRunEchoRoundTrip(t *testing.T) {
	testlog.Start(t)
	p := transport.NewMemoryProvider()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listenDone := make(chan error, 1)
	go func() {
		listenDone <- run(ctx, runOptions{cfg: memoryConfig("listen"), provider: p})
	}()

	var out bytes.Buffer
	clientCtx, clientCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer clientCancel()
	err := run(clientCtx, runOptions{
		cfg:      memoryConfig("connect"),
		provider: p,
		send:     []string{"hello", "world"},
		out:      &out,
	})
	if err != nil {
		t.Fatalf("client run: %v", err)
	}
	if got := out.String(); got != "< hello\n< world\n" {
		t.Fatalf("client output %q", got)
	}

	cancel()
	select {
	case err := <-listenDone:
		if err != nil {
			t.Fatalf("listener run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("listener did not stop on cancel")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	testlog.Start(t)
	cfg := memoryConfig("broadcast")
	if err := run(context.Background(), runOptions{cfg: cfg}); err == nil {
		t.Fatalf("expected invalid role error")
	}
}

type recordWriter struct {
	msgs []channel.Message[pipeMsg]
}

func (w *recordWriter) Write(t pipeMsg, payload []byte) error {
	w.msgs = append(w.msgs, channel.Message[pipeMsg]{Type: t, Payload: payload})
	return nil
}

func TestEchoHandler(t *testing.T) {
	testlog.Start(t)
	w := &recordWriter{}
	if !echoHandler(channel.Message[pipeMsg]{Type: msgConnect}, w) {
		t.Fatalf("connect should keep the session")
	}
	if !echoHandler(channel.Message[pipeMsg]{Type: msgText, Payload: []byte("ping")}, w) {
		t.Fatalf("text should keep the session")
	}
	if echoHandler(channel.Message[pipeMsg]{Type: msgBye}, w) {
		t.Fatalf("bye should end the session")
	}
	if len(w.msgs) != 2 || w.msgs[0].Type != msgEcho || string(w.msgs[0].Payload) != "ping" || w.msgs[1].Type != msgBye {
		t.Fatalf("unexpected replies %+v", w.msgs)
	}
	if msgText != 2 || msgEcho != 3 || msgBye != 4 || msgConnect != channel.Connect {
		t.Fatalf("message numbering changed")
	}
	if !strings.Contains(msgBye.String(), "bye") {
		t.Fatalf("unexpected name %s", msgBye)
	}
}

func TestPumpEndsWithBye(t *testing.T) {
	testlog.Start(t)
	ch := channel.New[pipeMsg](transport.NewMemoryProvider(), memorySession(t))
	defer ch.StopChannel()
	if err := pump(ch, newSliceSource([]string{"a", "/quit", "never"})); err != nil {
		t.Fatalf("pump: %v", err)
	}
	if got := ch.Stats().Pending; got != 2 {
		t.Fatalf("pending=%d want 2 (a, bye)", got)
	}
}

func memorySession(t *testing.T) session.Config {
	t.Helper()
	sc, err := memoryConfig("connect").SessionConfig()
	if err != nil {
		t.Fatalf("session config: %v", err)
	}
	return sc
}

func TestConfigureLoggingHonorsEnvOverrides(t *testing.T) {
	testlog.Start(t)
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	defer func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	}()
	t.Setenv(logging.EnvLogLevel, "error")
	t.Setenv(logging.EnvLogBypass, "true")

	var buf bytes.Buffer
	configureLogging(&buf, "debug")
	log.Info().Msg("chatty")
	log.Error().Msg("loud")

	out := buf.String()
	if strings.Contains(out, "chatty") {
		t.Fatalf("env level should filter info lines: %q", out)
	}
	if !strings.Contains(out, `"message":"loud"`) || !strings.Contains(out, `"app":"pipectl"`) {
		t.Fatalf("expected raw JSON error line tagged with app: %q", out)
	}
}
