package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/panopticon/internal/cache"
	"github.com/jonathan/panopticon/internal/config"
	"github.com/jonathan/panopticon/internal/lead"
	"github.com/jonathan/panopticon/internal/syncer"
)

// Refresher runs refresh cycles on behalf of API handlers.
type Refresher interface {
	Cycle(ctx context.Context) (*syncer.Result, error)
	ForceRefresh(ctx context.Context) (*syncer.Result, error)
}

// DashboardStore is the slice of the cache store the API reads directly.
type DashboardStore interface {
	StageHistory(ctx context.Context, leadID string) ([]lead.StageTransition, error)
	AllTransitions(ctx context.Context) ([]lead.StageTransition, error)
	StatusSnapshots(ctx context.Context, days int) ([]cache.StatusCounts, error)
	LeadsSnapshotAge(ctx context.Context) (*time.Time, error)
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	refresher  Refresher
	store      DashboardStore
	jwtService *JWTService
	passwords  *config.PasswordConfig
}

// Config holds server configuration.
type Config struct {
	Port int
}

// New creates a new server instance.
func New(cfg Config, refresher Refresher, store DashboardStore) (*Server, error) {
	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}

	s := &Server{
		refresher:  refresher,
		store:      store,
		jwtService: NewJWTService(jwtConfig),
		passwords:  passwordConfig,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.withCORS(s.routes())),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // A cold refresh cycle can take minutes.
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// routes builds the request router. Split out so tests can exercise the
// handler stack without binding a socket.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", s.handleLogin)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("GET /api/leads", s.requireAuth(http.HandlerFunc(s.handleLeads)))
	mux.Handle("GET /api/leads/{id}/history", s.requireAuth(http.HandlerFunc(s.handleLeadHistory)))
	mux.Handle("GET /api/transitions", s.requireAuth(http.HandlerFunc(s.handleTransitions)))
	mux.Handle("GET /api/snapshots", s.requireAuth(http.HandlerFunc(s.handleSnapshots)))
	mux.Handle("POST /api/refresh", s.requireAuth(http.HandlerFunc(s.handleRefresh)))

	return mux
}

// Start begins listening for requests and blocks until shutdown.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			s.errorResponse(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := s.jwtService.ValidateToken(header[len(prefix):]); err != nil {
			s.errorResponse(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withCORS adds CORS headers for the browser dashboard.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
