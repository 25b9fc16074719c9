// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

// Package web serves the credential API over HTTP.
//
// POST /register and POST /login accept {"username": ..., "password": ...}
// and answer with a status code and an empty body.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authkv/authkv/internal/auth"
	"github.com/authkv/authkv/internal/logging"
)

// CredentialService is the credential operations the API exposes.
type CredentialService interface {
	Register(ctx context.Context, creds auth.Credentials) (auth.Outcome, error)
	Authenticate(ctx context.Context, creds auth.Credentials) (auth.Outcome, error)
}

// RequestRecorder observes finished requests.
type RequestRecorder interface {
	RecordRequest(route, status string, elapsed time.Duration)
	RecordStoreError(code string)
}

type nopRequestRecorder struct{}

func (nopRequestRecorder) RecordRequest(string, string, time.Duration) {}
func (nopRequestRecorder) RecordStoreError(string)                     {}

// Config configures the API server.
type Config struct {
	Addr string
	// BodyLimit caps request bodies, e.g. "4KiB".
	BodyLimit string
}

// DefaultBodyLimit applies when Config.BodyLimit is empty.
const DefaultBodyLimit = "4KiB"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder reports request metrics to r.
func WithRecorder(r RequestRecorder) Option {
	return func(s *Server) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Server is the credential API server.
type Server struct {
	cfg      Config
	echo     *echo.Echo
	svc      CredentialService
	logger   *slog.Logger
	recorder RequestRecorder
	started  atomic.Bool
}

// NewServer builds the API routes around svc.
func NewServer(cfg Config, svc CredentialService, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("SERVICE_INVALID").Errorf("credential service is required")
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = DefaultBodyLimit
	}
	if _, err := compileCredentialsSchema(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		svc:      svc,
		logger:   slog.Default(),
		recorder: nopRequestRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return ulid.Make().String() },
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(s.accessLog)
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	e.POST("/register", s.handleRegister)
	e.POST("/login", s.handleLogin)

	s.echo = e
	return s, nil
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start binds the API address and serves in the background through echo.
// The returned channel carries a serve failure and closes once echo stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, oops.Code("API_ALREADY_STARTED").Errorf("api server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.started.Store(false)
		return nil, oops.Code("API_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.echo.Listener = ln

	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := s.echo.Start("")
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		s.logger.Error("api serve failed", "addr", ln.Addr().String(), "error", err)
		done <- err
	}()

	s.logger.Info("api listening", "addr", ln.Addr().String(), "body_limit", s.cfg.BodyLimit)
	return done, nil
}

// Stop waits for in-flight requests, bounded by ctx, then closes the
// listener. Calling it on a server that is not serving is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}

	if err := s.echo.Shutdown(ctx); err != nil {
		s.started.Store(true)
		return oops.Code("API_SHUTDOWN_FAILED").With("operation", "drain api").Wrap(err)
	}

	s.logger.Info("api drained")
	return nil
}

// Addr reports the bound address, or "" before Start.
func (s *Server) Addr() string {
	if addr := s.echo.ListenerAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
