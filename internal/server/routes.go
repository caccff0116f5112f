package server

import (
	"net/http"
	"time"

	"github.com/danmuck/msgpipe/internal/channel"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

type statusView struct {
	Endpoint         string `json:"endpoint"`
	Role             string `json:"role"`
	State            string `json:"state"`
	Connected        bool   `json:"connected"`
	SessionID        string `json:"session_id,omitempty"`
	Sessions         uint64 `json:"sessions"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`
	BytesSent        uint64 `json:"bytes_sent"`
	BytesReceived    uint64 `json:"bytes_received"`
	Dropped          uint64 `json:"dropped"`
	Pending          int    `json:"pending"`
	Queued           int    `json:"queued"`
	QueuePolicy      string `json:"queue_policy"`
}

func newStatusView(s channel.Stats) statusView {
	return statusView{
		Endpoint:         s.Endpoint,
		Role:             string(s.Role),
		State:            s.State.String(),
		Connected:        s.Connected,
		SessionID:        s.SessionID,
		Sessions:         s.Sessions,
		MessagesSent:     s.MessagesSent,
		MessagesReceived: s.MessagesReceived,
		BytesSent:        s.BytesSent,
		BytesReceived:    s.BytesReceived,
		Dropped:          s.Dropped,
		Pending:          s.Pending,
		Queued:           s.Queued,
		QueuePolicy:      s.QueuePolicy.String(),
	}
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(a.appeared).String(),
			"component": a.name,
			"version":   version,
		})
	})

	a.router.GET("/ready", func(c *gin.Context) {
		stats := a.source.Stats()
		status := http.StatusOK
		if !stats.Connected {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":     stats.Connected,
			"state":     stats.State.String(),
			"component": a.name,
		})
	})

	a.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, newStatusView(a.source.Stats()))
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
