package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/elys-network/lpm/internal/logger"
	"github.com/elys-network/lpm/internal/state"
	"github.com/elys-network/lpm/internal/types"
)

const healthCheckInterval = 15 * time.Second

// Store is the read side of the manager store served by the dashboard.
type Store interface {
	Get(ctx context.Context, id solana.PublicKey) (types.Manager, error)
	ListManagers(ctx context.Context) ([]types.Manager, error)
	RecentReceipts(ctx context.Context, managerID string, limit int, ops ...types.OperationType) ([]types.OperationReceipt, error)
	Summary(ctx context.Context) (state.Summary, error)
	Ping(ctx context.Context) error
}

// BalanceReader reads vault balances for the manager view. Vaults that do not exist are
// left out of the result.
type BalanceReader interface {
	VaultBalances(ctx context.Context, vaults ...solana.PublicKey) ([]types.VaultBalance, error)
}

// Config holds the dashboard dependencies. Balances and Metrics are optional.
type Config struct {
	Port     string
	GRPCPort string
	Store    Store
	Balances BalanceReader
	Metrics  http.Handler
}

// WebServer serves the read-only dashboard and the gRPC health service.
type WebServer struct {
	logger   zerolog.Logger
	router   *mux.Router
	port     string
	grpcPort string
	store    Store
	balances BalanceReader
	health   *health.Server
	started  time.Time
}

func NewWebServer(cfg Config) (*WebServer, error) {
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	server := &WebServer{
		logger:   logger.GetForComponent("web_server"),
		router:   mux.NewRouter(),
		port:     cfg.Port,
		grpcPort: cfg.GRPCPort,
		store:    cfg.Store,
		balances: cfg.Balances,
		health:   health.NewServer(),
		started:  time.Now(),
	}

	server.setupRoutes(cfg.Metrics)
	return server, nil
}

func (ws *WebServer) setupRoutes(metrics http.Handler) {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if metrics != nil {
		ws.router.Handle("/metrics", metrics).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")
	api.HandleFunc("/managers", ws.handleListManagers).Methods("GET")
	api.HandleFunc("/managers/{id}", ws.handleGetManager).Methods("GET")
	api.HandleFunc("/managers/{id}/receipts", ws.handleGetReceipts).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves HTTP, and gRPC health when a gRPC port is configured, until ctx is done.
func (ws *WebServer) Start(ctx context.Context) error {
	ws.logger.Info().Str("port", ws.port).Str("grpcPort", ws.grpcPort).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcServer *grpc.Server
	if ws.grpcPort != "" {
		lis, err := net.Listen("tcp", ":"+ws.grpcPort)
		if err != nil {
			_ = server.Close()
			return err
		}
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, ws.health)
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	go ws.watchHealth(ctx)

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		ws.logger.Error().Err(err).Msg("Web server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if grpcServer != nil {
		ws.health.Shutdown()
		grpcServer.GracefulStop()
	}
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

func (ws *WebServer) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	ws.RefreshHealth(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ws.RefreshHealth(ctx)
		}
	}
}

// RefreshHealth sets the gRPC serving status from a store ping.
func (ws *WebServer) RefreshHealth(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := ws.store.Ping(ctx); err != nil {
		ws.logger.Warn().Err(err).Msg("Store ping failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	ws.health.SetServingStatus("", status)
	return status
}

// HealthServer is the gRPC health implementation backing Start.
func (ws *WebServer) HealthServer() healthpb.HealthServer {
	return ws.health
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := ws.store.Ping(r.Context()); err != nil {
		dbHealthy = false
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "lpm-liquidity-position-manager",
			"version": "1.0.0",
		},
		"database_healthy": dbHealthy,
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.store.Summary(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) handleListManagers(w http.ResponseWriter, r *http.Request) {
	records, err := ws.store.ListManagers(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to list managers")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve managers")
		return
	}

	views := make([]types.ManagerView, 0, len(records))
	for _, rec := range records {
		views = append(views, rec.View())
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"managers": views,
		"count":    len(views),
	})
}

func (ws *WebServer) handleGetManager(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.managerID(w, r)
	if !ok {
		return
	}

	rec, err := ws.store.Get(r.Context(), id)
	if err != nil {
		ws.writeStoreError(w, err, "manager")
		return
	}

	response := map[string]interface{}{
		"manager": rec.View(),
	}
	if ws.balances != nil {
		response["balances"] = ws.vaultBalances(r.Context(), rec)
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) vaultBalances(ctx context.Context, rec types.Manager) []types.VaultBalance {
	balances, err := ws.balances.VaultBalances(ctx, rec.VaultA, rec.VaultB)
	if err != nil {
		ws.logger.Warn().Err(err).Str("managerId", rec.ID.String()).Msg("Failed to read vault balances")
		return []types.VaultBalance{}
	}
	return balances
}

func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.managerID(w, r)
	if !ok {
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	var ops []types.OperationType
	for _, op := range r.URL.Query()["operation"] {
		ops = append(ops, types.OperationType(strings.ToUpper(op)))
	}

	receipts, err := ws.store.RecentReceipts(r.Context(), id.String(), limit, ops...)
	if err != nil {
		ws.logger.Error().Err(err).Str("managerId", id.String()).Msg("Failed to get receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
	})
}

func (ws *WebServer) managerID(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	id, err := solana.PublicKeyFromBase58(mux.Vars(r)["id"])
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid manager ID")
		return solana.PublicKey{}, false
	}
	return id, true
}

func (ws *WebServer) writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, types.ErrAccountNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, what+" not found")
		return
	}
	ws.logger.Error().Err(err).Msg("Store read failed")
	ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve "+what)
}

func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper captures the status code for request logging.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
