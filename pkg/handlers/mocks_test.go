package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/datagenie/pkg/adapters/datasource"
	"github.com/ekaya-inc/datagenie/pkg/models"
)

type mockSyncService struct {
	result    *models.RefreshResult
	err       error
	refreshed []uuid.UUID
}

func (m *mockSyncService) Refresh(ctx context.Context, endpointID uuid.UUID) (*models.RefreshResult, error) {
	m.refreshed = append(m.refreshed, endpointID)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockSchemaService struct {
	view    *models.SchemaView
	result  *models.DescriptionResult
	err     error
	updates []models.DescriptionUpdate
}

func (m *mockSchemaService) GetSchema(ctx context.Context, tenantID uuid.UUID) (*models.SchemaView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

func (m *mockSchemaService) UpdateDescriptions(ctx context.Context, tenantID uuid.UUID, updates []models.DescriptionUpdate) (*models.DescriptionResult, error) {
	m.updates = updates
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockGenerator struct {
	result *models.GenerationResult
	err    error
	got    models.GenerateRequest
}

func (m *mockGenerator) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerationResult, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockGateway struct {
	result *models.ExecutionResult
	err    error
	got    models.ExecuteRequest
}

func (m *mockGateway) Execute(ctx context.Context, req models.ExecuteRequest) (*models.ExecutionResult, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

type mockPools struct {
	stats datasource.PoolStats
}

func (m *mockPools) Stats() datasource.PoolStats { return m.stats }
