package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/models"
	"github.com/ekaya-inc/datagenie/pkg/services"
)

// SQLHandler serves question answering and SQL execution.
type SQLHandler struct {
	generator services.SQLGenerator
	gateway   services.ExecutionGateway
	logger    *zap.Logger
}

// NewSQLHandler creates a new SQL handler.
func NewSQLHandler(generator services.SQLGenerator, gateway services.ExecutionGateway, logger *zap.Logger) *SQLHandler {
	return &SQLHandler{
		generator: generator,
		gateway:   gateway,
		logger:    logger.Named("sql-handler"),
	}
}

// RegisterRoutes registers the SQL handler's routes on the given mux.
func (h *SQLHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /generate-sql", h.GenerateSQL)
	mux.HandleFunc("POST /execute-sql", h.ExecuteSQL)
}

// GenerateSQL handles POST /generate-sql.
// Blocked and rejected generations are successful responses; the outcome
// field tells the caller what happened.
func (h *SQLHandler) GenerateSQL(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		WriteServiceError(w, err, h.logger.With(zap.String("user_id", req.UserID)))
		return
	}

	writeData(w, result, h.logger)
}

// ExecuteSQL handles POST /execute-sql.
func (h *SQLHandler) ExecuteSQL(w http.ResponseWriter, r *http.Request) {
	var req models.ExecuteRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.gateway.Execute(r.Context(), req)
	if err != nil {
		WriteServiceError(w, err, h.logger.With(zap.String("user_id", req.UserID)))
		return
	}

	writeData(w, result, h.logger)
}
