package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/msgpipe/internal/channel"
	"github.com/danmuck/msgpipe/internal/config"
	"github.com/danmuck/msgpipe/internal/lifecycle"
	"github.com/danmuck/msgpipe/internal/logging"
	"github.com/danmuck/msgpipe/internal/observability"
	"github.com/danmuck/msgpipe/internal/server"
	"github.com/danmuck/msgpipe/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type sendFlags []string

func (s *sendFlags) String() string { return strings.Join(*s, ",") }

func (s *sendFlags) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	configPath := flag.String("config", "", "pipectl TOML config path")
	role := flag.String("role", "", "listen|connect")
	name := flag.String("name", "", "endpoint name")
	dir := flag.String("dir", "", "socket directory for the unix transport")
	timeout := flag.Duration("timeout", 0, "listen/connect timeout (0 = config or default)")
	admin := flag.String("admin", "", "admin HTTP listen address (empty disables)")
	interactive := flag.Bool("interactive", false, "connect role: read lines from the terminal")
	level := flag.String("log-level", "", "trace|debug|info|warn|error")
	var send sendFlags
	flag.Var(&send, "send", "connect role: message to send (repeatable)")
	flag.Parse()

	cfg := defaultChannelConfig()
	fileLevel := ""
	if *configPath != "" {
		var err error
		cfg, fileLevel, err = loadPipeConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pipectl: %v\n", err)
			os.Exit(1)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "role":
			cfg.Role = *role
		case "name":
			cfg.Name = *name
		case "dir":
			cfg.SocketDir = *dir
		case "timeout":
			cfg.Timeout = timeout.String()
		case "admin":
			cfg.Admin.Addr = *admin
		case "log-level":
			fileLevel = *level
		}
	})

	configureLogging(os.Stderr, fileLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := runOptions{
		cfg:         cfg,
		interactive: *interactive,
		send:        send,
		in:          os.Stdin,
		out:         os.Stdout,
	}
	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "pipectl: %v\n", err)
		os.Exit(1)
	}
}

// configureLogging installs the pipectl logger. level comes from -log-level or
// the config file; MSGPIPE_LOG_* variables take precedence over both.
func configureLogging(out io.Writer, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if parsed, ok := logging.ParseLevel(level); ok {
		lvl = parsed
	}
	return observability.InitLoggerTo(out, "pipectl", lvl)
}

type runOptions struct {
	cfg         config.ChannelConfig
	provider    transport.Provider
	interactive bool
	send        []string
	in          io.ReadCloser
	out         io.Writer
}

func run(ctx context.Context, opts runOptions) error {
	if err := config.ValidateChannelConfig(opts.cfg); err != nil {
		return err
	}
	sessCfg, err := opts.cfg.SessionConfig()
	if err != nil {
		return err
	}
	provider := opts.provider
	if provider == nil {
		if opts.cfg.Transport == config.TransportUnix {
			if err := os.MkdirAll(opts.cfg.SocketDir, 0o700); err != nil {
				return fmt.Errorf("socket dir: %w", err)
			}
		}
		if provider, err = opts.cfg.Provider(sessCfg.PollInterval); err != nil {
			return err
		}
	}

	ch := channel.New[pipeMsg](provider, sessCfg)
	shutdown := lifecycle.New()
	shutdown.PerComponent = 5 * time.Second

	if addr := strings.TrimSpace(opts.cfg.Admin.Addr); addr != "" {
		adm := server.New(server.Config{
			Name:        "pipectl." + opts.cfg.Name,
			Addr:        addr,
			CorsOrigins: opts.cfg.Admin.CorsOrigins,
		}, ch)
		go func() {
			if err := adm.ListenAndServe(); err != nil {
				log.Error().Err(err).Str("addr", addr).Msg("pipectl.admin serve failed")
			}
		}()
		_ = shutdown.Add("admin", adm)
	}
	_ = shutdown.Add("channel", ch)

	go func() {
		<-ctx.Done()
		ch.Cancel()
	}()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdown.Run(stopCtx); err != nil {
			log.Warn().Err(err).Msg("pipectl.shutdown")
		}
	}()

	timeout := sessCfg.ConnectTimeout
	if strings.TrimSpace(opts.cfg.Timeout) != "" {
		timeout, _ = time.ParseDuration(opts.cfg.Timeout)
	}

	switch opts.cfg.Role {
	case "", "listen":
		if strings.TrimSpace(opts.cfg.Timeout) == "" {
			timeout = 0
		}
		return ignoreStopped(ch.Listen(opts.cfg.Name, echoHandler, timeout))
	case "connect":
		return runClient(ctx, ch, opts, timeout)
	default:
		return fmt.Errorf("unknown role %q", opts.cfg.Role)
	}
}

func runClient(ctx context.Context, ch *channel.Channel[pipeMsg], opts runOptions, timeout time.Duration) error {
	connected := make(chan struct{})
	ch.SetOnConnected(func() { close(connected) })
	ch.SetOnInterrupted(func() {
		log.Info().Str("endpoint", opts.cfg.Name).Msg("pipectl.client session ended")
	})

	out := opts.out
	var lines lineSource
	if opts.interactive {
		rl, err := newReadlineSource(opts.cfg.Name, opts.in, opts.out)
		if err != nil {
			return err
		}
		defer rl.Close()
		lines = rl
		out = rl.Stdout()
	} else {
		lines = newSliceSource(opts.send)
	}

	p := &printer{out: out}
	done := make(chan error, 1)
	go func() { done <- ch.Connect(opts.cfg.Name, p.handle, timeout) }()

	select {
	case <-connected:
	case err := <-done:
		return ignoreStopped(err)
	case <-ctx.Done():
		return ignoreStopped(<-done)
	}

	if err := pump(ch, lines); err != nil {
		log.Warn().Err(err).Msg("pipectl.client send failed")
	}
	select {
	case err := <-done:
		return ignoreStopped(err)
	case <-ctx.Done():
		return ignoreStopped(<-done)
	}
}

// pump sends every line as a text message and finishes with bye.
func pump(ch *channel.Channel[pipeMsg], lines lineSource) error {
	for {
		line, err := lines.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if line == "/quit" {
			break
		}
		if err := ch.Write(msgText, []byte(line)); err != nil {
			return err
		}
	}
	return ch.Write(msgBye, nil)
}

func ignoreStopped(err error) error {
	if errors.Is(err, channel.ErrStopped) {
		return nil
	}
	return err
}
