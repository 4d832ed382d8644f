// Package http serves the login endpoints: server lifecycle, health check
// and request middleware.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"socialauth/logger"
)

// Config holds the listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// CertFile and KeyFile enable TLS when both are set
	CertFile string
	KeyFile  string
}

// NewDefaultConfig returns a default configuration
func NewDefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

type healthStatus struct {
	healthy atomic.Bool
}

func (hs *healthStatus) setHealth(healthy bool) {
	hs.healthy.Store(healthy)
}

func (hs *healthStatus) isHealthy() bool {
	return hs.healthy.Load()
}

func (hs *healthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !hs.isHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// Server is an HTTP server with a health endpoint and graceful shutdown.
type Server struct {
	config Config
	server *http.Server
	health *healthStatus
	log    *logger.Logger
}

// NewServer wraps handler with the health endpoint and OpenTelemetry server
// instrumentation.
func NewServer(config Config, handler http.Handler, log *logger.Logger) *Server {
	health := &healthStatus{}

	mux := http.NewServeMux()
	mux.Handle("GET /health", health)
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:         config.Addr,
		Handler:      otelhttp.NewHandler(mux, "socialauth"),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	if config.CertFile != "" && config.KeyFile != "" {
		server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
			CurvePreferences: []tls.CurveID{
				tls.X25519,
				tls.CurveP256,
			},
		}
	}

	return &Server{
		config: config,
		server: server,
		health: health,
		log:    log,
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. The health endpoint reports unhealthy while draining.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.health.setHealth(true)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "server starting", logger.F("addr", ln.Addr().String()))
		var err error
		if s.server.TLSConfig != nil {
			err = s.server.ServeTLS(ln, s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.server.Serve(ln)
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.health.setHealth(false)
	s.log.Info(ctx, "server shutting down")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info(ctx, "server exited properly")
	return nil
}
