package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/service/mocks"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
	"github.com/wso2/bookstore-consent-api/internal/utils"
)

func newOrderServiceFixture() (*OrderService, *mocks.MockOrderRepository, *mocks.MockAuditRepository) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	orders := &mocks.MockOrderRepository{}
	audits := &mocks.MockAuditRepository{}
	return NewOrderService(orders, audits, logger), orders, audits
}

func TestListOrders_Pagination(t *testing.T) {
	svc, orders, _ := newOrderServiceFixture()
	orders.On("ListByUser", context.Background(), "customer-1", 20, 0).
		Return([]models.Order{{OrderID: "ORDER-1"}, {OrderID: "ORDER-2"}}, 45, nil).Once()

	response, err := svc.ListOrders(context.Background(), "customer-1", 0, -5)
	require.NoError(t, err)

	assert.Len(t, response.Data, 2)
	metadata, ok := response.Metadata.(*utils.PaginationMetadata)
	require.True(t, ok)
	assert.Equal(t, 45, metadata.Total)
	assert.Equal(t, 3, metadata.TotalPages)
	assert.True(t, metadata.HasMore)
	orders.AssertExpectations(t)
}

func TestListOrders_EmptyIsNotNull(t *testing.T) {
	svc, orders, _ := newOrderServiceFixture()
	orders.On("ListByUser", context.Background(), "customer-1", 100, 0).Return(nil, 0, nil).Once()

	response, err := svc.ListOrders(context.Background(), "customer-1", 500, 0)
	require.NoError(t, err)
	assert.Equal(t, []models.Order{}, response.Data)
}

func TestListOrders_StoreError(t *testing.T) {
	svc, orders, _ := newOrderServiceFixture()
	orders.On("ListByUser", context.Background(), "customer-1", 20, 0).Return(nil, 0, errors.New("db down")).Once()

	_, err := svc.ListOrders(context.Background(), "customer-1", 0, 0)
	assert.Error(t, err)
}

func TestGetOrder(t *testing.T) {
	svc, orders, audits := newOrderServiceFixture()
	order := &models.Order{OrderID: "ORDER-1", UserID: "customer-1"}
	orders.On("GetByID", context.Background(), "ORDER-1", "customer-1").Return(order, nil).Once()
	audits.On("GetByOrderID", context.Background(), "ORDER-1").
		Return([]models.CheckoutAudit{{AuditID: "AUDIT-1", CurrentState: string(models.CheckoutStateDispatched)}}, nil).Once()

	detail, err := svc.GetOrder(context.Background(), "ORDER-1", "customer-1")
	require.NoError(t, err)

	assert.Same(t, order, detail.Order)
	assert.Len(t, detail.History, 1)
}

func TestGetOrder_HistoryFailureStillReturnsOrder(t *testing.T) {
	svc, orders, audits := newOrderServiceFixture()
	orders.On("GetByID", context.Background(), "ORDER-1", "customer-1").Return(&models.Order{OrderID: "ORDER-1"}, nil).Once()
	audits.On("GetByOrderID", context.Background(), "ORDER-1").Return(nil, errors.New("db down")).Once()

	detail, err := svc.GetOrder(context.Background(), "ORDER-1", "customer-1")
	require.NoError(t, err)
	assert.Empty(t, detail.History)
	assert.NotNil(t, detail.History)
}

func TestGetOrder_NotFound(t *testing.T) {
	svc, orders, audits := newOrderServiceFixture()
	orders.On("GetByID", context.Background(), "ORDER-9", "customer-1").
		Return(nil, fmt.Errorf("%w: ORDER-9", serviceerror.ErrOrderNotFound)).Once()

	_, err := svc.GetOrder(context.Background(), "ORDER-9", "customer-1")
	assert.ErrorIs(t, err, serviceerror.ErrOrderNotFound)
	audits.AssertNotCalled(t, "GetByOrderID")
}
