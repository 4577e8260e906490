package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/adapters/datasource"
	"github.com/ekaya-inc/datagenie/pkg/config"
	"github.com/ekaya-inc/datagenie/pkg/logging"
)

const pingTimeout = 2 * time.Second

// Pinger checks the engine store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStatter reports the cached tenant pools.
type PoolStatter interface {
	Stats() datasource.PoolStats
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status string                `json:"status"`
	Pools  *datasource.PoolStats `json:"pools,omitempty"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	Database    string `json:"database"`

	Adapters []datasource.AdapterInfo `json:"adapters"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     Pinger
	pools  PoolStatter
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler. db and pools may be nil.
func NewHealthHandler(cfg *config.Config, db Pinger, pools PoolStatter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, pools: pools, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health. It is a liveness check and touches nothing
// outside the process.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok"}
	if h.pools != nil {
		stats := h.pools.Stats()
		response.Pools = &stats
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping. It reports version information and whether the
// engine store answers; an unreachable store yields 503.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "datagenie",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Database:    "ok",
		Adapters:    datasource.RegisteredAdapters(),
	}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("Engine store ping failed", zap.String("error", logging.SanitizeError(err)))
			response.Status = "degraded"
			response.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
