package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/atomic"
)

// RouteRegistrar is implemented by components that serve routes through a BaseServer.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// HTTPServerConfig contains the configuration of a BaseServer.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the HTTP server listens on.
	ListenAddr string

	// EnablePprof mounts the pprof debugging API under /debug.
	EnablePprof bool

	// AllowedOrigins lists the origins allowed by CORS. Empty disables CORS.
	AllowedOrigins []string

	// Log is the structured logger for server operations.
	Log *slog.Logger

	// DrainDuration is how long /drain keeps the server not-ready before
	// logging that the drain period has completed.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds the wait for in-flight requests on shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// BaseServer serves the routes of its registrars next to the standard
// health and drain endpoints.
type BaseServer struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	handler http.Handler
	srv     *http.Server
}

// New creates a BaseServer. The server starts out ready.
func New(cfg *HTTPServerConfig, routeRegistrars ...RouteRegistrar) *BaseServer {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	srv := &BaseServer{
		cfg: cfg,
		log: log,
	}

	srv.handler = srv.createRouter(routeRegistrars)
	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	srv.isReady.Store(true)
	return srv
}

func (srv *BaseServer) createRouter(routeRegistrars []RouteRegistrar) http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	if len(srv.cfg.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   srv.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	mux.Group(func(r chi.Router) {
		r.Use(srv.httpLogger)
		for _, registrar := range routeRegistrars {
			registrar.RegisterRoutes(r)
		}
	})

	mux.With(srv.httpLogger).Get("/livez", srv.handleLivenessCheck)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadinessCheck)
	mux.With(srv.httpLogger).Get("/drain", srv.handleDrain)
	mux.With(srv.httpLogger).Get("/undrain", srv.handleUndrain)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}

	return mux
}

func (srv *BaseServer) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

// Handler returns the server's router.
func (srv *BaseServer) Handler() http.Handler {
	return srv.handler
}

// IsReady reports whether the server accepts new work.
func (srv *BaseServer) IsReady() bool {
	return srv.isReady.Load()
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"status":"` + status + `"}`))
}

func (srv *BaseServer) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

func (srv *BaseServer) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func (srv *BaseServer) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Swap(false) {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}

	srv.log.Info("Server marked as not ready")
	go func() {
		time.Sleep(srv.cfg.DrainDuration)
		srv.log.Info("Drain period completed")
	}()

	writeStatus(w, http.StatusOK, "draining")
}

func (srv *BaseServer) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Swap(true) {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}

	srv.log.Info("Server marked as ready")
	writeStatus(w, http.StatusOK, "ready")
}

// RunInBackground starts the HTTP server in a goroutine.
func (srv *BaseServer) RunInBackground() {
	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

// Shutdown marks the server not ready and waits for in-flight requests.
func (srv *BaseServer) Shutdown() {
	srv.isReady.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("Graceful HTTP server shutdown failed", "err", err)
		return
	}
	srv.log.Info("HTTP server gracefully stopped")
}
