// Package watchhttp exposes the watch registry and event stream over a
// small JSON API: schedule and cancel watches, inspect entries, query
// recent decisions.
package watchhttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"anchorwatch/internal/logger"
	"anchorwatch/internal/market"
	"anchorwatch/internal/sink"
	"anchorwatch/internal/watcher"
	"anchorwatch/internal/watcher/registry"
)

// WatchRegistry is the subset of the registry the API needs.
type WatchRegistry interface {
	Schedule(req registry.ScheduleRequest) error
	List() []watcher.Entry
	Get(symbol string) (watcher.Entry, bool)
	Remove(symbol string) error
}

// EventReader serves the decision history endpoint.
type EventReader interface {
	Recent(symbol string, limit int) ([]sink.Event, error)
}

// StatsProvider reports market source health.
type StatsProvider interface {
	Stats() market.SourceStats
}

type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr          string
	Watches       WatchRegistry
	Events        EventReader
	Source        StatsProvider
	DefaultLimits watcher.Limits
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Watches == nil {
		return nil, errors.New("watch http server requires a registry")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9984"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{
		watches:       cfg.Watches,
		events:        cfg.Events,
		source:        cfg.Source,
		defaultLimits: cfg.DefaultLimits,
	}
	h.register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}
