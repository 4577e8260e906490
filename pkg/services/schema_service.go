package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/apperrors"
	"github.com/ekaya-inc/datagenie/pkg/audit"
	"github.com/ekaya-inc/datagenie/pkg/models"
	"github.com/ekaya-inc/datagenie/pkg/repositories"
	sqlutil "github.com/ekaya-inc/datagenie/pkg/sql"
)

// EndpointResolver picks the endpoint a tenant currently generates against.
// ConnectionRouter satisfies it.
type EndpointResolver interface {
	ActiveEndpoint(ctx context.Context, tenantID uuid.UUID) (*models.Endpoint, error)
}

// SchemaService exposes the schema mirror to operators.
type SchemaService interface {
	// GetSchema returns the active mirror of the tenant's current endpoint,
	// which is the text generation is grounded on.
	GetSchema(ctx context.Context, tenantID uuid.UUID) (*models.SchemaView, error)
	// UpdateDescriptions attaches human descriptions to mirrored tables and
	// columns. Descriptions survive refreshes. Updates naming rows that do not
	// exist are counted as skipped.
	UpdateDescriptions(ctx context.Context, tenantID uuid.UUID, updates []models.DescriptionUpdate) (*models.DescriptionResult, error)
}

type schemaService struct {
	schema    repositories.SchemaRepository
	formatter SchemaFormatter
	endpoints EndpointResolver
	tenantCtx TenantContextFunc
	cache     SchemaTextCache
	auditor   *audit.SecurityAuditor
	logger    *zap.Logger
}

// NewSchemaService creates the operator-facing schema service. cache may be nil.
func NewSchemaService(
	schema repositories.SchemaRepository,
	formatter SchemaFormatter,
	endpoints EndpointResolver,
	tenantCtx TenantContextFunc,
	cache SchemaTextCache,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) SchemaService {
	if cache == nil {
		cache = NoopSchemaCache{}
	}
	return &schemaService{
		schema:    schema,
		formatter: formatter,
		endpoints: endpoints,
		tenantCtx: tenantCtx,
		cache:     cache,
		auditor:   auditor,
		logger:    logger.Named("schema-service"),
	}
}

var _ SchemaService = (*schemaService)(nil)

func (s *schemaService) GetSchema(ctx context.Context, tenantID uuid.UUID) (*models.SchemaView, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant is required", apperrors.ErrInvalidRequest)
	}

	view := &models.SchemaView{TenantID: tenantID, Columns: []models.ActiveColumn{}}

	endpoint, err := s.endpoints.ActiveEndpoint(ctx, tenantID)
	if errors.Is(err, apperrors.ErrTenantNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	columns, err := s.formatter.ActiveColumns(ctx, tenantID, endpoint.ID)
	if err != nil {
		return nil, err
	}
	if columns != nil {
		view.Columns = columns
	}
	view.EndpointID = &endpoint.ID
	view.Text = FormatSchema(view.Columns)
	return view, nil
}

func (s *schemaService) UpdateDescriptions(ctx context.Context, tenantID uuid.UUID, updates []models.DescriptionUpdate) (*models.DescriptionResult, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant is required", apperrors.ErrInvalidRequest)
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: at least one description is required", apperrors.ErrInvalidRequest)
	}

	// Descriptions are pasted into model prompts, so they are screened first.
	for i, u := range updates {
		if strings.TrimSpace(u.Database) == "" || strings.TrimSpace(u.Table) == "" {
			return nil, fmt.Errorf("%w: update %d needs database and table", apperrors.ErrInvalidRequest, i)
		}
		field := u.Database + "." + u.Table
		if u.Column != "" {
			field += "." + u.Column
		}
		if hit := sqlutil.CheckForInjection(field, u.Description); hit != nil {
			s.auditor.LogInjectionAttempt(tenantID, "", audit.InjectionDetails{
				Field:       hit.Field,
				Value:       hit.Value,
				Fingerprint: hit.Fingerprint,
			})
			return nil, fmt.Errorf("%w: description for %s was rejected", apperrors.ErrInvalidRequest, field)
		}
	}

	tenantCtx, cleanup, err := s.tenantCtx(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire tenant connection: %w", err)
	}
	defer cleanup()

	result := &models.DescriptionResult{}
	for _, u := range updates {
		u.Description = strings.TrimSpace(u.Description)
		ok, err := s.schema.UpdateDescription(tenantCtx, tenantID, u)
		if err != nil {
			return nil, fmt.Errorf("failed to update description: %w", err)
		}
		if ok {
			result.Updated++
		} else {
			result.Skipped++
		}
	}

	if result.Updated > 0 {
		s.cache.Invalidate(ctx, tenantID)
	}

	s.logger.Info("Updated schema descriptions",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped))
	return result, nil
}
