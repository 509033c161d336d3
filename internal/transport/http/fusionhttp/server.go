package fusionhttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/WilliamsMiao/Quant-Banana/internal/config/loader"
	"github.com/WilliamsMiao/Quant-Banana/internal/logger"
	"github.com/WilliamsMiao/Quant-Banana/internal/orchestrator"
	"github.com/WilliamsMiao/Quant-Banana/internal/performance"
	"github.com/WilliamsMiao/Quant-Banana/internal/store/auditlog"
	"github.com/WilliamsMiao/Quant-Banana/internal/store/gormstore"
)

// Server exposes the fusion HTTP surface: signal ingest, decision archive
// queries, source weight introspection and the weight history chart.
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig describes the server dependencies.
type ServerConfig struct {
	Addr      string
	Ingest    Ingestor
	Decisions *gormstore.Store
	Audit     *auditlog.Store
	Tracker   *performance.Tracker
	Orch      *orchestrator.Orchestrator
	Sources   *loader.SourceLoader

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// NewServer builds the fusion HTTP server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Ingest == nil {
		return nil, errors.New("fusion http server requires an ingestor")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	fusionRouter := NewRouter(cfg)
	fusionRouter.Register(router.Group("/api/fusion"))
	router.GET("/chart/weights", fusionRouter.handleWeightChart)

	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger traces manual API calls for later debugging.
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

func ingestLimiter(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		perSecond = 50
	}
	if burst <= 0 {
		burst = 100
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "ingest rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the underlying mux, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled or the listener fails.
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
