package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"AlphaNebula/pkg/http/middleware"
	"AlphaNebula/pkg/logger"
)

type ServerOption func(*ServerConfig)

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SlowThreshold   time.Duration
	BodyLimit       string
	CORSOrigins     []string
	MetricsPath     string
	Logger          *logger.Logger
	Middleware      []echo.MiddlewareFunc
}

// Server owns the echo instance and its listener.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	log    *logger.Logger
	addr   net.Addr
}

// NewServer builds the middleware stack and registers handler's routes.
// Order: recover, request id, tracing, logging, metrics, CORS, caller middleware.
func NewServer(handler Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SlowThreshold:   500 * time.Millisecond,
		BodyLimit:       "1M",
		CORSOrigins:     []string{"*"},
		MetricsPath:     "/metrics",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	l := cfg.Logger
	if l == nil {
		l = logger.Nop()
	}
	l = l.Component("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover(l))
	e.Use(middleware.RequestID())
	e.Use(middleware.Trace("alphanebula.http"))
	e.Use(middleware.RequestLogging(l))
	e.Use(middleware.Metrics(l, cfg.SlowThreshold))
	if cfg.BodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.BodyLimit))
	}
	if len(cfg.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
		}))
	}
	e.Use(cfg.Middleware...)

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	if cfg.MetricsPath != "" {
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	return &Server{echo: e, config: cfg, log: l}
}

// errorHandler renders router and binder errors in the standard envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = Respond(c, he.Code, fmt.Sprintf("%v", he.Message))
		return
	}
	_ = Fail(c, err)
}

// Start listens in the background. A bind failure is returned synchronously.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.echo.Listener = ln
	s.addr = ln.Addr()

	go func() {
		s.log.Info("listening", logger.String("addr", s.addr.String()))
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", logger.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address once Start returned, nil before.
func (s *Server) Addr() net.Addr { return s.addr }

// Stop drains in-flight requests within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("stopped gracefully")
	return nil
}

func (s *Server) Echo() *echo.Echo { return s.echo }

func WithHost(host string) ServerOption {
	return func(c *ServerConfig) { c.Host = host }
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) { c.Port = port }
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

// WithCORS sets the allowed origins. No origins disables CORS handling.
func WithCORS(origins ...string) ServerOption {
	return func(c *ServerConfig) { c.CORSOrigins = origins }
}

func WithBodyLimit(limit string) ServerOption {
	return func(c *ServerConfig) { c.BodyLimit = limit }
}

// WithMetricsPath moves the Prometheus endpoint. Empty disables it.
func WithMetricsPath(path string) ServerOption {
	return func(c *ServerConfig) { c.MetricsPath = path }
}

func WithLogger(l *logger.Logger) ServerOption {
	return func(c *ServerConfig) { c.Logger = l }
}

func WithSlowThreshold(d time.Duration) ServerOption {
	return func(c *ServerConfig) { c.SlowThreshold = d }
}

// WithMiddleware appends middleware after the built-in stack.
func WithMiddleware(mw ...echo.MiddlewareFunc) ServerOption {
	return func(c *ServerConfig) { c.Middleware = append(c.Middleware, mw...) }
}
