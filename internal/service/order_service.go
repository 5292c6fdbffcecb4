package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/utils"
)

// OrderService serves order history
type OrderService struct {
	orders OrderRepository
	audits AuditRepository
	logger *logrus.Logger
}

// NewOrderService creates a new order service instance
func NewOrderService(orders OrderRepository, audits AuditRepository, logger *logrus.Logger) *OrderService {
	return &OrderService{
		orders: orders,
		audits: audits,
		logger: logger,
	}
}

// ListOrders returns a page of the user's orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID string, limit, offset int) (*models.ListResponse, error) {
	params := utils.NewPaginationParams(limit, offset)

	orders, total, err := s.orders.ListByUser(ctx, userID, params.Limit, params.Offset)
	if err != nil {
		s.logger.WithError(err).WithField("userId", userID).Error("Failed to list orders")
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}

	return &models.ListResponse{
		Data:     orders,
		Metadata: utils.CalculatePaginationMetadata(total, params.Limit, params.Offset),
	}, nil
}

// GetOrder returns one of the user's orders with its checkout history
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID string) (*models.OrderDetailResponse, error) {
	order, err := s.orders.GetByID(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	history, err := s.audits.GetByOrderID(ctx, orderID)
	if err != nil {
		s.logger.WithError(err).WithField("orderId", orderID).Warn("Failed to load checkout history")
		history = nil
	}
	if history == nil {
		history = []models.CheckoutAudit{}
	}

	return &models.OrderDetailResponse{Order: order, History: history}, nil
}
