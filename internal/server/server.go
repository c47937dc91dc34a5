// Package server exposes the tracker over HTTP: a JSON API, the websocket
// scene stream, Prometheus metrics and the admin dashboard API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/unklstewy/vatscope/internal/admin"
	"github.com/unklstewy/vatscope/internal/auth"
	"github.com/unklstewy/vatscope/internal/db"
	"github.com/unklstewy/vatscope/internal/metrics"
	"github.com/unklstewy/vatscope/internal/tracker"
	"github.com/unklstewy/vatscope/pkg/config"
	"github.com/unklstewy/vatscope/pkg/vatsim"
)

// Tracker is the part of tracker.Tracker the API reads.
type Tracker interface {
	Stats() tracker.Stats
	Notices() *tracker.Notices
	Pilots() []vatsim.Pilot
	Pilot(callsign string) (vatsim.Pilot, error)
	Search(ctx context.Context, callsign string) (tracker.SearchResult, error)
	AirportInfo(ctx context.Context, icao string) (tracker.AirportInfo, error)
}

// AirportDirectory is the airport reference database, when one is configured.
type AirportDirectory interface {
	Search(ctx context.Context, query string, limit int) ([]db.Airport, error)
	Health(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
}

// Options wires the server's collaborators. WS, Auth, Visitors, Activity
// and Airports are optional; admin routes exist only when Auth is set.
type Options struct {
	Config   config.ServerConfig
	Map      config.MapConfig
	Tracker  Tracker
	WS       http.Handler
	Auth     *auth.Service
	Visitors *admin.Visitors
	Activity *admin.ActivityLog
	Airports AirportDirectory
	Logger   zerolog.Logger
}

// Server holds the HTTP router and its dependencies.
type Server struct {
	cfg      config.ServerConfig
	mapCfg   config.MapConfig
	tracker  Tracker
	ws       http.Handler
	auth     *auth.Service
	visitors *admin.Visitors
	activity *admin.ActivityLog
	airports AirportDirectory
	log      zerolog.Logger
	router   *chi.Mux
}

// New creates a server and sets up its routes.
func New(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		mapCfg:   opts.Map,
		tracker:  opts.Tracker,
		ws:       opts.WS,
		auth:     opts.Auth,
		visitors: opts.Visitors,
		activity: opts.Activity,
		airports: opts.Airports,
		log:      opts.Logger,
		router:   chi.NewRouter(),
	}
	if s.activity == nil {
		s.activity = admin.NewActivityLog(0)
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured address until ctx is done, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("HTTP server forced to shut down")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) String() string { return "http" }

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.ws != nil {
			r.Get("/ws", s.ws.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.instrument)
			r.Use(middleware.Compress(5))
			if s.cfg.RateLimitPerMinute > 0 {
				r.Use(httprate.LimitByIP(s.cfg.RateLimitPerMinute, time.Minute))
			}

			r.Get("/map", s.handleMap)
			r.Get("/stats", s.handleStats)
			r.Get("/notice", s.handleNotice)
			r.Get("/aircraft", s.handleAircraftList)
			r.Get("/aircraft/{callsign}", s.handleAircraft)
			r.Post("/aircraft/{callsign}/select", s.handleSelect)
			r.Get("/airports/{icao}", s.handleAirport)
			if s.airports != nil {
				r.Get("/airports", s.handleAirportSearch)
			}

			if s.auth != nil {
				r.Route("/admin", func(r chi.Router) {
					r.With(httprate.LimitByIP(10, time.Minute)).Post("/login", s.handleAdminLogin)
					r.With(s.requireRole(auth.RoleAdmin)).Get("/stats", s.handleAdminStats)
				})
			}
		})
	})

	if s.cfg.StaticDir != "" {
		s.log.Info().Str("dir", s.cfg.StaticDir).Msg("Serving static files")
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
}

// requestLogger logs each request through zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		event := s.log.Debug()
		if status >= http.StatusInternalServerError {
			event = s.log.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// instrument records request metrics labelled by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordAPIRequest(r.Method, route, status, time.Since(start))
	})
}

// respondJSON writes data as JSON with status.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes {"error": message}.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
