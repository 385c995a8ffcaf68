// Package player serves the web player for issued media links.
package player

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"github.com/withObsrvr/obsrvr-media-relay/internal/links"
	"github.com/withObsrvr/obsrvr-media-relay/internal/logging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/metrics"
)

// Config controls the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ServeMetrics exposes /metrics on the same listener.
	ServeMetrics bool
}

// Media is what the player page renders. It is also the JSON body returned
// for ?format=json.
type Media struct {
	Kind links.Kind `json:"kind"`
	Name string     `json:"name"`
	URL  string     `json:"url"`
}

type errorPage struct {
	Title   string
	Message string
}

// Server hosts the player route, health check and optional metrics.
type Server struct {
	cfg    Config
	engine *gin.Engine
	files  *fileRoute
	log    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithFiles serves signed /files links from objects. Use it with the local
// backend, whose signed URLs point back at this server.
func WithFiles(verifier KeyVerifier, objects PathOpener) Option {
	return func(s *Server) {
		s.files = &fileRoute{verifier: verifier, objects: objects}
	}
}

// New builds the gin engine and registers all routes.
func New(cfg Config, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	s := &Server{cfg: cfg, log: logging.Component("player")}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())
	engine.SetHTMLTemplate(pages)

	engine.GET("/player/:kind/:token", s.handlePlayer)
	engine.GET("/health", handleHealth)
	if s.files != nil {
		s.files.log = s.log
		engine.GET("/files", s.files.serve)
		engine.GET("/files/*path", s.files.serve)
	}
	if cfg.ServeMetrics {
		engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	engine.NoRoute(func(c *gin.Context) {
		c.HTML(http.StatusNotFound, "error", errorPage{Title: "Not found", Message: "Page not found."})
	})

	s.engine = engine
	return s
}

// Handler returns the engine wrapped in gzip compression.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.engine)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("player server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("player server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("served request",
			"method", c.Request.Method,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client", c.ClientIP(),
			"path", c.Request.URL.Path,
		)
	}
}

func (s *Server) handlePlayer(c *gin.Context) {
	kind, err := links.ParseKind(c.Param("kind"))
	if err != nil {
		s.reject(c, "unknown", "Unknown media type", "This link points to an unsupported media type.")
		return
	}

	mediaURL, err := links.Decode(c.Param("token"))
	if err != nil {
		s.log.Warn("rejected player token", "kind", kind, "error", err)
		s.reject(c, string(kind), "Invalid link", "This media link is invalid or corrupted. Ask for a new one.")
		return
	}

	u, err := url.Parse(mediaURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		s.reject(c, string(kind), "Invalid link", "This media link does not point to a web address.")
		return
	}

	m := Media{Kind: kind, Name: path.Base(u.Path), URL: mediaURL}
	countRequest(string(kind), http.StatusOK)
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, m)
		return
	}
	c.HTML(http.StatusOK, "player", m)
}

func (s *Server) reject(c *gin.Context, kind, title, msg string) {
	countRequest(kind, http.StatusBadRequest)
	if c.Query("format") == "json" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	c.HTML(http.StatusBadRequest, "error", errorPage{Title: title, Message: msg})
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "media-relay"})
}

func countRequest(kind string, status int) {
	if m := metrics.Get(); m != nil {
		m.IncPlayerRequests(metrics.Labels{Kind: kind, Status: strconv.Itoa(status)})
	}
}
