package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/logging"
	"github.com/ekaya-inc/datagenie/pkg/models"
	"github.com/ekaya-inc/datagenie/pkg/repositories"
)

// historyWriteTimeout bounds a history insert that outlives the request.
const historyWriteTimeout = 5 * time.Second

// QueryHistoryService records generated and executed SQL.
// Recording is best effort: failures are logged and never reach the caller.
type QueryHistoryService interface {
	Record(ctx context.Context, entry *models.QueryHistoryEntry)
	Enabled() bool
}

type queryHistoryService struct {
	repo      repositories.QueryHistoryRepository
	tenantCtx TenantContextFunc
	enabled   bool
	logger    *zap.Logger
}

func NewQueryHistoryService(
	repo repositories.QueryHistoryRepository,
	tenantCtx TenantContextFunc,
	enabled bool,
	logger *zap.Logger,
) QueryHistoryService {
	return &queryHistoryService{
		repo:      repo,
		tenantCtx: tenantCtx,
		enabled:   enabled,
		logger:    logger.Named("query-history-service"),
	}
}

var _ QueryHistoryService = (*queryHistoryService)(nil)

func (s *queryHistoryService) Enabled() bool { return s.enabled }

func (s *queryHistoryService) Record(ctx context.Context, entry *models.QueryHistoryEntry) {
	if !s.enabled {
		return
	}

	// A client disconnect after the outcome is decided should not lose the record.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()

	tenantCtx, cleanup, err := s.tenantCtx(ctx, entry.TenantID)
	if err != nil {
		s.logFailure(entry, err)
		return
	}
	defer cleanup()

	if err := s.repo.Create(tenantCtx, entry); err != nil {
		s.logFailure(entry, err)
	}
}

func (s *queryHistoryService) logFailure(entry *models.QueryHistoryEntry, err error) {
	s.logger.Error("Failed to record query history entry",
		zap.String("tenant_id", entry.TenantID.String()),
		zap.String("user_id", entry.UserID),
		zap.String("outcome", entry.Outcome),
		zap.String("error", logging.SanitizeError(err)))
}
