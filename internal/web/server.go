// Package web serves the wallet API, the live SSE streams and the bridge endpoint.
package web

import (
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

const (
	apiTimeout           = 90 * time.Second
	defaultPingInterval  = 30 * time.Second
	historyPollInterval  = 2 * time.Second
	shutdownTimeout      = 5 * time.Second
	maxConcurrentActions = 16
	defaultCertCache     = "cert-cache"
)

//go:embed static/index.html
var staticFS embed.FS

type walletService interface {
	Chains() []domain.Chain
	Current(chain domain.Chain) domain.WalletSnapshot
	Portfolio() domain.Portfolio
	Synced(chain domain.Chain) bool
	Stream(buffer int) (<-chan domain.WalletSnapshot, func())
	Connect(ctx context.Context, chain domain.Chain) (domain.ConnectionAttempt, error)
	Disconnect(ctx context.Context, chain domain.Chain) (domain.ConnectionAttempt, error)
	Refresh(ctx context.Context, chain domain.Chain) (domain.ConnectionAttempt, error)
}

type attemptSource interface {
	Subscribe() chan domain.ConnectionAttempt
	Unsubscribe(ch chan domain.ConnectionAttempt)
}

type bridgeEndpoint interface {
	http.Handler
	Connected() bool
}

type historyReader interface {
	SnapshotsAfter(index uint64, limit int) ([]domain.WalletSnapshotRecord, error)
}

// Config holds the listener settings.
type Config struct {
	Addr           string
	AllowedOrigins []string
	// RatePerMinute zero disables per-IP rate limiting of the API.
	RatePerMinute int
	// TLSDomain set enables ACME certificates for that host.
	TLSDomain    string
	CertCacheDir string
}

// Server exposes the wallet engine over HTTP.
type Server struct {
	cfg          Config
	wallets      walletService
	attempts     attemptSource
	history      historyReader
	bridge       bridgeEndpoint
	metrics      http.Handler
	pingInterval time.Duration
	l            *zap.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithAttempts streams connection attempts to SSE clients.
func WithAttempts(a attemptSource) Option {
	return func(s *Server) { s.attempts = a }
}

// WithHistory serves the snapshot journal.
func WithHistory(h historyReader) Option {
	return func(s *Server) { s.history = h }
}

// WithBridge mounts the wallet provider bridge on /bridge.
func WithBridge(b bridgeEndpoint) Option {
	return func(s *Server) { s.bridge = b }
}

// WithMetrics mounts the metrics handler on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithPingInterval sets the SSE heartbeat period.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// NewServer creates a new web server instance.
func NewServer(cfg Config, wallets walletService, l *zap.Logger, opts ...Option) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	s := &Server{
		cfg:          cfg,
		wallets:      wallets,
		pingInterval: defaultPingInterval,
		l:            l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	mux := chi.NewMux()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(newCORS(s.cfg.AllowedOrigins).Handler)

	mux.Get("/health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	if s.bridge != nil {
		mux.Handle("/bridge", s.bridge)
	}

	// long-lived streams stay outside the timeout and compression middleware
	mux.Get("/api/wallets/stream", s.handleWalletStream)
	mux.Get("/api/history/stream", s.handleHistoryStream)

	mux.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(middleware.Timeout(apiTimeout))
		if s.cfg.RatePerMinute > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RatePerMinute, time.Minute))
		}

		r.Get("/", s.handleIndex)
		r.Get("/api/wallets", s.handlePortfolio)
		r.Get("/api/history", s.handleHistory)

		r.Route("/api/wallets/{chain}", func(r chi.Router) {
			r.Get("/", s.handleWallet)
			r.Group(func(r chi.Router) {
				r.Use(middleware.Throttle(maxConcurrentActions))
				r.Post("/connect", s.handleAction(s.wallets.Connect))
				r.Post("/disconnect", s.handleAction(s.wallets.Disconnect))
				r.Post("/refresh", s.handleAction(s.wallets.Refresh))
			})
		})
	})

	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
// A configured TLS domain switches to automatic certificates.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.TLSDomain != "" {
		return s.StartWithAutoTLS(ctx, []string{s.cfg.TLSDomain}, s.cfg.CertCacheDir)
	}

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("Starting web server", zap.String("addr", s.cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS serves HTTPS with Let's Encrypt certificates for domains.
// Port 80 answers ACME challenges and redirects to HTTPS.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = defaultCertCache
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("http (acme) server error", zap.Error(err))
		}
	}()

	s.l.Info("Starting web server with automatic TLS",
		zap.String("addr", s.cfg.Addr),
		zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newCORS(allowedOrigins []string) *cors.Cors {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// wildcard origins cannot be combined with credentials
	allowCredentials := !(len(allowedOrigins) == 1 && allowedOrigins[0] == "*")

	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Last-Event-ID"},
		AllowCredentials: allowCredentials,
		MaxAge:           7200,
	})
}
