package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/msgpipe/internal/logging"
	"github.com/danmuck/msgpipe/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordAdminRequest("pipectl", "GET", "/health", 200, 12*time.Millisecond)
	RecordFrameSent("chan.a", "client", 12)
	RecordFrameReceived("chan.a", "listener", 12)
	RecordQueueDrop("chan.a", "listener")
	RecordSessionStart("chan.a", "client")
	RecordSessionEnd("chan.a", "client", "handler", 40*time.Millisecond)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"msgpipe_channel_frames_total",
		"msgpipe_channel_sessions_total",
		"msgpipe_queue_dropped_total",
		"msgpipe_admin_requests_total",
	} {
		if !found[name] {
			t.Fatalf("metric %s not registered", name)
		}
	}
	log.Debug().Msg("observability/metrics: registration idempotent and recording paths executed")
}

func TestInitLoggerTagsApp(t *testing.T) {
	testlog.Start(t)
	t.Setenv(logging.EnvLogLevel, "")
	t.Setenv(logging.EnvLogBypass, "")
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	defer func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	}()

	var buf bytes.Buffer
	logger := InitLoggerTo(&buf, "pipectl", zerolog.InfoLevel)
	logger.Debug().Msg("hidden")
	log.Warn().Msg("visible")
	out := buf.String()
	if !strings.Contains(out, "pipectl") || !strings.Contains(out, "visible") || strings.Contains(out, "hidden") {
		t.Fatalf("unexpected logger output %q", out)
	}
}
