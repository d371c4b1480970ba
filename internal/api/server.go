package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/oishii-app/oishii/internal/auth"
	"github.com/oishii-app/oishii/internal/files"
	"github.com/oishii-app/oishii/internal/flow"
	"github.com/oishii-app/oishii/internal/notify"
	"github.com/oishii-app/oishii/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Deps bundles the services the HTTP layer dispatches to.
type Deps struct {
	Store    store.Store
	Auth     *auth.Client
	Verifier *auth.Verifier
	Flow     *flow.Client
	Files    *files.Service
	Broker   *notify.Broker
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router   *chi.Mux
	store    store.Store
	auth     *auth.Client
	verifier *auth.Verifier
	flow     *flow.Client
	files    *files.Service
	broker   *notify.Broker
	logger   *slog.Logger
	addr     string
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	srv := &Server{
		router:   chi.NewRouter(),
		store:    deps.Store,
		auth:     deps.Auth,
		verifier: deps.Verifier,
		flow:     deps.Flow,
		files:    deps.Files,
		broker:   deps.Broker,
		logger:   logger,
		addr:     addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/verify", s.handleVerify)
		r.With(s.verifier.Require).Post("/logout", s.handleLogout)
	})

	s.router.Route("/v1/users", func(r chi.Router) {
		r.With(s.verifier.Require).Get("/me", s.handleGetMe)
		r.With(s.verifier.Require).Patch("/me", s.handleUpdateMe)
		r.Get("/{id}", s.handleGetUser)
		r.Get("/{id}/foods", s.handleListUserFoods)
		r.Get("/{id}/ratings", s.handleListUserRatings)
		r.Get("/{id}/ratings/summary", s.handleRatingSummary)
	})

	s.router.Route("/v1/foods", func(r chi.Router) {
		r.Get("/", s.handleListFoods)
		r.Get("/nearby", s.handleListFoodsNearby)
		r.Get("/{id}", s.handleGetFood)
		r.Group(func(r chi.Router) {
			r.Use(s.verifier.Require)
			r.Post("/", s.handleCreateFood)
			r.Put("/{id}", s.handleUpdateFood)
			r.Delete("/{id}", s.handleDeleteFood)
			r.Post("/{id}/claim", s.handleClaimFood)
		})
	})

	s.router.Route("/v1/swaps", func(r chi.Router) {
		r.Use(s.verifier.Require)
		r.Post("/", s.handleCreateSwap)
		r.Get("/", s.handleListSwaps)
		r.Get("/{id}", s.handleGetSwap)
		r.Patch("/{id}", s.handleUpdateSwapStatus)
		r.Post("/{id}/ratings", s.handleCreateRating)
		r.Get("/{id}/ratings", s.handleListSwapRatings)
	})

	s.router.Route("/v1/notifications", func(r chi.Router) {
		r.Use(s.verifier.Require)
		r.Get("/", s.handleListNotifications)
		r.Post("/", s.handleCreateNotification)
		r.Get("/stream", s.handleStreamNotifications)
		r.Post("/read-all", s.handleMarkAllNotifications)
		r.Patch("/{id}", s.handleSetNotificationRead)
		r.Delete("/{id}", s.handleDeleteNotification)
	})

	s.router.Route("/v1/tickets", func(r chi.Router) {
		r.Use(s.verifier.Require)
		r.Get("/balance", s.handleTicketBalance)
		r.Get("/transactions", s.handleTicketTransactions)
	})

	s.router.Route("/v1/recommendations", func(r chi.Router) {
		r.With(s.verifier.Optional).Post("/search", s.handleRecommendationSearch)
		r.With(s.verifier.Require).Get("/preferences", s.handleGetPreferences)
		r.With(s.verifier.Require).Put("/preferences", s.handleUpsertPreferences)
	})

	s.router.Route("/v1/uploads", func(r chi.Router) {
		r.Get("/{folder}/{name}", s.handleServeUpload)
		r.Group(func(r chi.Router) {
			r.Use(s.verifier.Require)
			r.Post("/", s.handleUpload)
			r.Delete("/{folder}/{name}", s.handleDeleteUpload)
		})
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseFloatQuery parses a float query parameter, reporting whether it was set
// and valid.
func parseFloatQuery(r *http.Request, key string) (float64, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseBoolQuery parses an optional boolean query parameter, returning nil
// when absent or malformed.
func parseBoolQuery(r *http.Request, key string) *bool {
	s := r.URL.Query().Get(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &v
}
