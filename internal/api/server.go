// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vault-scanner/internal/config"
	"github.com/vault-scanner/internal/job"
	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/models"
)

// Store interfaces for dependency injection and testing

// SnapshotStoreInterface defines the snapshot reads the API serves
type SnapshotStoreInterface interface {
	ListByVault(ctx context.Context, vault string) ([]models.VaultSnapshot, error)
}

// DepositorStoreInterface defines the depositor record reads the API serves
type DepositorStoreInterface interface {
	ListByDepositor(ctx context.Context, depositorAuthority, vault string) ([]models.DepositorRecord, error)
}

// MetricsReaderInterface defines the metrics cache reads the API serves
type MetricsReaderInterface interface {
	ReadAll(ctx context.Context) (map[string]models.VaultMetrics, error)
}

// BackfillRunnerInterface triggers a depositor record backfill
type BackfillRunnerInterface interface {
	Run(ctx context.Context, vaultPubkeys []string, fullBackfill bool) (*job.BackfillResult, error)
}

// SnapshotRunnerInterface triggers a snapshot capture cycle
type SnapshotRunnerInterface interface {
	Run(ctx context.Context, vaultPubkeys []string) (*job.SnapshotResult, error)
}

// MetricsRunnerInterface triggers a metrics recompute cycle
type MetricsRunnerInterface interface {
	Run(ctx context.Context) (*job.MetricsResult, error)
}

// Server represents the HTTP API server.
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	snapshots     SnapshotStoreInterface
	depositors    DepositorStoreInterface
	metricsReader MetricsReaderInterface
	backfillJob   BackfillRunnerInterface
	snapshotJob   SnapshotRunnerInterface
	metricsJob    MetricsRunnerInterface
	config        *config.ServerConfig
	cronSecret    string
	logger        *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(
	cfg *config.ServerConfig,
	cronSecret string,
	snapshots SnapshotStoreInterface,
	depositors DepositorStoreInterface,
	metricsReader MetricsReaderInterface,
	backfillJob BackfillRunnerInterface,
	snapshotJob SnapshotRunnerInterface,
	metricsJob MetricsRunnerInterface,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		snapshots:     snapshots,
		depositors:    depositors,
		metricsReader: metricsReader,
		backfillJob:   backfillJob,
		snapshotJob:   snapshotJob,
		metricsJob:    metricsJob,
		config:        cfg,
		cronSecret:    cronSecret,
		logger:        logger,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Middleware order matters
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Read endpoints
	vaults := s.router.PathPrefix("/api/vaults").Subrouter()
	vaults.HandleFunc("/apy-returns", s.handleApyReturns).Methods("GET")
	vaults.HandleFunc("/vault-snapshots", s.handleVaultSnapshots).Methods("GET")
	vaults.HandleFunc("/vault-depositor", s.handleVaultDepositor).Methods("GET")

	// Scheduled trigger endpoints, bearer-token guarded
	cron := s.router.PathPrefix("/api/cron/vaults").Subrouter()
	cron.Use(BearerAuthMiddleware(s.cronSecret))
	cron.HandleFunc("/backfill-vault-depositor-records", s.handleCronBackfill).Methods("GET")
	cron.HandleFunc("/vault-snapshots", s.handleCronSnapshots).Methods("GET")
	cron.HandleFunc("/update-apy-returns", s.handleCronMetrics).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "vault-scanner",
	})
}

// Router exposes the configured router, used by tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Infof("starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
