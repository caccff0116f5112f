// Package server owns the admin HTTP surface of a pipectl process: health,
// channel status and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/msgpipe/internal/channel"
	"github.com/danmuck/msgpipe/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// StatusSource reports the live state of one channel.
type StatusSource interface {
	Stats() channel.Stats
}

type Config struct {
	Name        string
	Addr        string
	CorsOrigins []string
}

type Admin struct {
	name     string
	addr     string
	source   StatusSource
	appeared time.Time
	router   *gin.Engine

	mu   sync.Mutex
	http *http.Server
}

func New(cfg Config, source StatusSource) *Admin {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminAccessLog(log.Logger, cfg.Name))
	r.Use(observability.AdminMetrics(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		name:     cfg.Name,
		addr:     cfg.Addr,
		source:   source,
		appeared: time.Now(),
		router:   r,
	}
	a.registerRoutes()
	return a
}

func (a *Admin) Router() *gin.Engine {
	return a.router
}

// Serve accepts admin requests on ln until Stop is called.
func (a *Admin) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.mu.Lock()
	a.http = srv
	a.mu.Unlock()

	log.Info().Str("admin", a.name).Str("addr", ln.Addr().String()).Msg("server.Admin.Serve listening")
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe binds the configured address and serves.
func (a *Admin) ListenAndServe() error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	return a.Serve(ln)
}

// Stop shuts the HTTP server down gracefully.
func (a *Admin) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.http
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if v := strings.TrimSpace(origin); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
