package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/session"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr         string
	Username         string
	Password         string
	ProgressInterval time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:         "127.0.0.1:8765",
		ProgressInterval: 250 * time.Millisecond,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		IdleTimeout:      60 * time.Second,
	}
}

// Server is the local control API of a browsing session
type Server struct {
	config  *Config
	session *session.Context
	logger  *zap.Logger
	server  *http.Server
	handler http.Handler

	apiHandler   *APIHandler
	debugHandler *DebugHandler
	hub          *EventHub
}

// New creates a new HTTP server for sess
func New(cfg *Config, sess *session.Context, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:  cfg,
		session: sess,
		logger:  logger,
	}

	s.hub = NewEventHub(cfg.ProgressInterval, logger.Named("events"))
	sess.Dispatcher.Subscribe(s.hub)

	s.apiHandler = NewAPIHandler(sess, sess.Downloads, sess.Cookies, sess.Proxy, sess.Tabs, logger)
	s.debugHandler = NewDebugHandler(sess.Downloads, sess.Cookies, sess.Proxy, sess.Tabs, sess.FileSystem, s.hub, logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Downloads
	mux.HandleFunc("GET /downloads", s.apiHandler.HandleListDownloads)
	mux.HandleFunc("POST /downloads", s.apiHandler.HandleStartDownload)
	mux.HandleFunc("POST /downloads/clear", s.apiHandler.HandleClearDownloads)
	mux.HandleFunc("GET /downloads/folder", s.apiHandler.HandleDownloadFolder)
	mux.HandleFunc("POST /downloads/{key}/{action}", s.apiHandler.HandleDownloadAction)

	// Cookies
	mux.HandleFunc("GET /cookies", s.apiHandler.HandleListCookies)
	mux.HandleFunc("DELETE /cookies", s.apiHandler.HandleDeleteCookie)

	// Proxy
	mux.HandleFunc("GET /proxy", s.apiHandler.HandleProxyStatus)
	mux.HandleFunc("POST /proxy/enable", s.apiHandler.HandleProxyEnable)
	mux.HandleFunc("POST /proxy/disable", s.apiHandler.HandleProxyDisable)

	// Tabs
	mux.HandleFunc("GET /tabs", s.apiHandler.HandleListTabs)
	mux.HandleFunc("POST /tabs", s.apiHandler.HandleOpenTab)
	mux.HandleFunc("POST /tabs/{n}/navigate", s.apiHandler.HandleNavigateTab)
	mux.HandleFunc("DELETE /tabs/{n}", s.apiHandler.HandleCloseTab)

	// Live events
	mux.Handle("GET /events", s.hub)

	// Debug endpoints
	mux.HandleFunc("GET /debug/stats", s.debugHandler.HandleStats)
	mux.Handle("GET /metrics", promhttp.HandlerFor(sess.Registry, promhttp.HandlerOpts{}))

	var handler http.Handler = mux
	if cfg.Username != "" && cfg.Password != "" {
		handler = BasicAuthMiddleware(cfg.Username, cfg.Password, logger)(handler)
	}
	s.handler = LoggingMiddleware(logger)(handler)

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	s.session.Dispatcher.Unsubscribe(s.hub)
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"session": s.session.ID,
		"time":    time.Now().Format(time.RFC3339),
	})
}
