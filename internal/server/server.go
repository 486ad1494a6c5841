// Package server provides the quantd HTTP server implementation.
//
// The server owns the listener lifecycle, request logging, and rate
// limiting of failed authentication attempts; request semantics live
// in the handler package.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/quantio/quantd/config"
	"github.com/quantio/quantd/internal/handler"
	"github.com/quantio/quantd/internal/logging"
)

var log = logging.Component("server")

// =============================================================================
// Rate Limiter for Failed Authentication Attempts
// =============================================================================

// RateLimiter implements rate limiting for FAILED authentication
// attempts per client IP per time window. Successful requests are not
// counted and reset the failure counter.
type RateLimiter struct {
	mu       sync.RWMutex
	failures map[string]*rateLimitEntry
	limit    int
	window   time.Duration
}

type rateLimitEntry struct {
	count     int
	resetTime time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		failures: make(map[string]*rateLimitEntry),
		limit:    limit,
		window:   window,
	}

	go rl.cleanupLoop()

	return rl
}

// IsBlocked returns true if the IP has exceeded the failure limit.
func (rl *RateLimiter) IsBlocked(ip string) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	entry, ok := rl.failures[ip]
	if !ok {
		return false
	}

	if time.Now().After(entry.resetTime) {
		return false
	}

	return entry.count >= rl.limit
}

// RecordFailure records a failed authentication attempt.
func (rl *RateLimiter) RecordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.failures[ip]

	if !ok || now.After(entry.resetTime) {
		rl.failures[ip] = &rateLimitEntry{
			count:     1,
			resetTime: now.Add(rl.window),
		}
		return
	}

	entry.count++
}

// Reset clears the failure count for an IP.
func (rl *RateLimiter) Reset(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.failures, ip)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, entry := range rl.failures {
		if now.After(entry.resetTime) {
			delete(rl.failures, ip)
		}
	}
}

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Handler is the API handler (required).
	Handler *handler.Handler

	// Listen is the address to listen on (e.g., "0.0.0.0:8080").
	Listen string

	// Timeouts. Zero values take the defaults.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// AuthFailureLimit is how many failed auth attempts per minute an
	// IP gets before being blocked.
	AuthFailureLimit int
}

// =============================================================================
// Server
// =============================================================================

// Server is the quantd HTTP server.
type Server struct {
	cfg  *Config
	http *http.Server

	authRateLimiter *RateLimiter
}

// New creates a new server.
func New(cfg *Config) *Server {
	if cfg.Listen == "" {
		cfg.Listen = config.DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = config.DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = config.DefaultWriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	if cfg.AuthFailureLimit == 0 {
		cfg.AuthFailureLimit = 5
	}

	s := &Server{
		cfg:             cfg,
		authRateLimiter: NewRateLimiter(cfg.AuthFailureLimit, time.Minute),
	}

	mux := http.NewServeMux()
	cfg.Handler.Routes(mux)

	s.http = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.middleware(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Run starts the server and blocks until the listener closes.
func (s *Server) Run() error {
	log.Info("listening", "address", s.cfg.Listen)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully, draining in-flight requests
// for up to the shutdown timeout.
func (s *Server) Shutdown() {
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
	log.Info("shutdown complete")
}

// =============================================================================
// Middleware
// =============================================================================

// statusRecorder captures the response status for logging and auth
// failure accounting.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// middleware wraps the mux with request logging and failed-auth rate
// limiting.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remoteIP := extractIP(r.RemoteAddr)

		if s.authRateLimiter.IsBlocked(remoteIP) {
			log.Warn("blocked due to too many failed auth attempts", "remote", r.RemoteAddr)
			http.Error(w, "too many failed authentication attempts", http.StatusTooManyRequests)
			return
		}

		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status == http.StatusUnauthorized {
			s.authRateLimiter.RecordFailure(remoteIP)
		} else {
			s.authRateLimiter.Reset(remoteIP)
		}

		log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", remoteIP,
			"duration_ms", time.Since(started).Milliseconds())
	})
}

// extractIP extracts the IP address from a remote address string.
func extractIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
