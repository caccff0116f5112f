package observability

import (
	"io"
	"os"

	"github.com/danmuck/msgpipe/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs the runtime logger tagged with app on stderr, leaving
// stdout to the command's own output. MSGPIPE_LOG_* variables override level.
func InitLogger(app string, level zerolog.Level) zerolog.Logger {
	return InitLoggerTo(os.Stderr, app, level)
}

func InitLoggerTo(out io.Writer, app string, level zerolog.Level) zerolog.Logger {
	cfg := logging.RuntimeConfig(level)
	cfg.App = app
	cfg.Out = out
	logging.Apply(cfg)
	return log.Logger
}
