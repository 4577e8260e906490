package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/apperrors"
	"github.com/ekaya-inc/datagenie/pkg/audit"
	"github.com/ekaya-inc/datagenie/pkg/logging"
	"github.com/ekaya-inc/datagenie/pkg/metrics"
	"github.com/ekaya-inc/datagenie/pkg/models"
	sqlutil "github.com/ekaya-inc/datagenie/pkg/sql"
)

// ExecutionGateway runs caller-supplied SQL against the caller's tenant.
// The SQL may have been edited after generation, so the mutation gate is
// applied again here.
type ExecutionGateway interface {
	Execute(ctx context.Context, req models.ExecuteRequest) (*models.ExecutionResult, error)
}

// ExecutionConfig bounds a single execution.
type ExecutionConfig struct {
	QueryTimeout time.Duration
	MaxRows      int
}

type executionGateway struct {
	router  ConnectionRouter
	history QueryHistoryService
	auditor *audit.SecurityAuditor
	cfg     ExecutionConfig
	logger  *zap.Logger
}

// NewExecutionGateway creates the gateway. history may be nil, in which case
// executions are not recorded.
func NewExecutionGateway(
	router ConnectionRouter,
	history QueryHistoryService,
	auditor *audit.SecurityAuditor,
	cfg ExecutionConfig,
	logger *zap.Logger,
) ExecutionGateway {
	return &executionGateway{
		router:  router,
		history: history,
		auditor: auditor,
		cfg:     cfg,
		logger:  logger.Named("execution-gateway"),
	}
}

var _ ExecutionGateway = (*executionGateway)(nil)

func (g *executionGateway) Execute(ctx context.Context, req models.ExecuteRequest) (*models.ExecutionResult, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, fmt.Errorf("%w: sql is required", apperrors.ErrInvalidRequest)
	}

	// Gate before routing: a blocked statement never reaches a tenant database.
	if keyword, hit := sqlutil.CheckMutation(req.SQL); hit {
		metrics.BlockedQueries.WithLabelValues(audit.StageExecute, keyword).Inc()
		metrics.Executions.WithLabelValues("blocked").Inc()
		g.auditor.LogBlockedQuery(uuid.Nil, req.UserID, audit.BlockedQueryDetails{
			Stage:   audit.StageExecute,
			Keyword: keyword,
			SQL:     req.SQL,
		})
		return nil, &apperrors.BlockedQueryError{Keyword: keyword}
	}

	tenantID, err := g.router.TenantForUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	conn, err := g.router.ResolveForTenant(ctx, tenantID)
	if err != nil {
		metrics.Executions.WithLabelValues("error").Inc()
		return nil, err
	}
	defer conn.Close()

	queryCtx := ctx
	if g.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, g.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := conn.Query(queryCtx, req.SQL, g.cfg.MaxRows)
	if err != nil {
		metrics.Executions.WithLabelValues("error").Inc()
		g.record(ctx, tenantID, req, models.HistoryExecutionFailed)
		g.logger.Warn("Query execution failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("user_id", req.UserID),
			zap.String("sql", logging.SanitizeQuery(req.SQL)),
			zap.String("error", logging.SanitizeError(err)))

		if errors.Is(err, apperrors.ErrConnection) {
			return nil, err
		}
		return nil, &apperrors.ExecutionError{Message: logging.SanitizeError(err), Cause: err}
	}

	metrics.Executions.WithLabelValues("success").Inc()
	g.record(ctx, tenantID, req, models.HistoryExecuted)
	g.logger.Info("Query executed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", req.UserID),
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

func (g *executionGateway) record(ctx context.Context, tenantID uuid.UUID, req models.ExecuteRequest, outcome string) {
	if g.history == nil {
		return
	}
	g.history.Record(ctx, &models.QueryHistoryEntry{
		TenantID:     tenantID,
		UserID:       req.UserID,
		GeneratedSQL: req.SQL,
		Outcome:      outcome,
	})
}
