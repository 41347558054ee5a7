package mocks

import (
	"context"

	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockToolRepository is a mock implementation of persistence.ToolRepository.
type MockToolRepository struct {
	mock.Mock
}

func (m *MockToolRepository) GetAll(ctx context.Context) ([]*models.Tool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Tool), args.Error(1)
}

func (m *MockToolRepository) GetByID(ctx context.Context, id string) (*models.Tool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Tool), args.Error(1)
}

func (m *MockToolRepository) Save(ctx context.Context, tool *models.Tool) error {
	args := m.Called(ctx, tool)

	return args.Error(0)
}

func (m *MockToolRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence.
type MockPersistence struct {
	mock.Mock

	toolRepo     *MockToolRepository
	workflowRepo *MockWorkflowRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		toolRepo:     &MockToolRepository{},
		workflowRepo: &MockWorkflowRepository{},
	}
}

func (m *MockPersistence) GetMockToolRepository() *MockToolRepository {
	return m.toolRepo
}

func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) ToolRepository() persistence.ToolRepository {
	return m.toolRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
