package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wso2/bookstore-consent-api/internal/models"
)

// MockConsentChecker is a mock implementation of ConsentChecker
type MockConsentChecker struct {
	mock.Mock
}

func (m *MockConsentChecker) ConsentStatus(ctx context.Context, subjectID, tenantID string) (*models.ConsentStatusResponse, error) {
	args := m.Called(ctx, subjectID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsentStatusResponse), args.Error(1)
}

// MockDelegationSource is a mock implementation of DelegationSource
type MockDelegationSource struct {
	mock.Mock
}

func (m *MockDelegationSource) RequestDelegation(ctx context.Context, subjectID, tenantID string) (*models.DelegatedCredential, error) {
	args := m.Called(ctx, subjectID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DelegatedCredential), args.Error(1)
}

// MockOrderDispatcher is a mock implementation of OrderDispatcher
type MockOrderDispatcher struct {
	mock.Mock
}

func (m *MockOrderDispatcher) Dispatch(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}
