package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wso2/bookstore-consent-api/internal/database"
	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

const orderColumns = `ORDER_ID, USER_ID, SUBJECT_ID, TENANT_ID, TOTAL_AMOUNT, STATUS,
		       DELIVERY_STATUS, DELIVERY_MEMO, DELEGATED_CREDENTIAL, CREATED_TIME, UPDATED_TIME`

// OrderDAO handles database operations for orders and their items
type OrderDAO struct {
	db *database.DB
}

// NewOrderDAO creates a new OrderDAO instance
func NewOrderDAO(db *database.DB) *OrderDAO {
	return &OrderDAO{db: db}
}

// CreateWithTx inserts an order and its items using a transaction
func (dao *OrderDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, order *models.Order) error {
	query := `
		INSERT INTO STOREFRONT_ORDER (
			ORDER_ID, USER_ID, SUBJECT_ID, TENANT_ID, TOTAL_AMOUNT, STATUS,
			DELIVERY_STATUS, DELIVERY_MEMO, DELEGATED_CREDENTIAL, CREATED_TIME, UPDATED_TIME
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(
		ctx,
		query,
		order.OrderID,
		order.UserID,
		order.SubjectID,
		order.TenantID,
		order.TotalAmount,
		order.Status,
		order.DeliveryStatus,
		order.DeliveryMemo,
		order.StoredCredential,
		order.CreatedTime,
		order.UpdatedTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create order with transaction: %w", err)
	}

	itemQuery := `
		INSERT INTO STOREFRONT_ORDER_ITEM (
			ORDER_ID, LINE_NO, PRODUCT_ID, TITLE, QUANTITY, PRICE
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.OrderID
		item.LineNo = i + 1

		if _, err := tx.ExecContext(ctx, itemQuery,
			item.OrderID, item.LineNo, item.ProductID, item.Title, item.Quantity, item.Price,
		); err != nil {
			return fmt.Errorf("failed to create order item %d: %w", item.LineNo, err)
		}
	}

	return nil
}

// GetByID retrieves a user's order with its items
func (dao *OrderDAO) GetByID(ctx context.Context, orderID, userID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM STOREFRONT_ORDER
		WHERE ORDER_ID = ? AND USER_ID = ?
	`

	var order models.Order
	if err := dao.db.GetContext(ctx, &order, query, orderID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", serviceerror.ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := dao.GetItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

// GetOrderWithItems retrieves an order with its items regardless of owner
func (dao *OrderDAO) GetOrderWithItems(ctx context.Context, orderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM STOREFRONT_ORDER
		WHERE ORDER_ID = ?
	`

	var order models.Order
	if err := dao.db.GetContext(ctx, &order, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", serviceerror.ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := dao.GetItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}

// GetItems retrieves the lines of an order in line order
func (dao *OrderDAO) GetItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	query := `
		SELECT ORDER_ID, LINE_NO, PRODUCT_ID, TITLE, QUANTITY, PRICE
		FROM STOREFRONT_ORDER_ITEM
		WHERE ORDER_ID = ?
		ORDER BY LINE_NO
	`

	var items []models.OrderItem
	if err := dao.db.SelectContext(ctx, &items, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}

	return items, nil
}

// ListByUser retrieves a page of a user's orders, newest first, with the total count
func (dao *OrderDAO) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Order, int, error) {
	var total int
	if err := dao.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM STOREFRONT_ORDER WHERE USER_ID = ?`, userID); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + `
		FROM STOREFRONT_ORDER
		WHERE USER_ID = ?
		ORDER BY CREATED_TIME DESC
		LIMIT ? OFFSET ?
	`

	var orders []models.Order
	if err := dao.db.SelectContext(ctx, &orders, query, userID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, total, nil
}

// UpdateDeliveryStatus records the outcome of a dispatch attempt. A
// dispatched order no longer needs a stored credential, so it is cleared.
func (dao *OrderDAO) UpdateDeliveryStatus(ctx context.Context, orderID string, status models.DeliveryStatus, updatedTime int64) error {
	query := `UPDATE STOREFRONT_ORDER SET DELIVERY_STATUS = ?, UPDATED_TIME = ? WHERE ORDER_ID = ?`
	args := []interface{}{status, updatedTime, orderID}
	if status == models.DeliveryStatusDispatched {
		query = `UPDATE STOREFRONT_ORDER SET DELIVERY_STATUS = ?, DELEGATED_CREDENTIAL = NULL, UPDATED_TIME = ? WHERE ORDER_ID = ?`
	}

	result, err := dao.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", serviceerror.ErrOrderNotFound, orderID)
	}

	return nil
}
