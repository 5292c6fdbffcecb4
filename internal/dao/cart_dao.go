package dao

import (
	"context"
	"fmt"

	"github.com/wso2/bookstore-consent-api/internal/database"
	"github.com/wso2/bookstore-consent-api/internal/models"
)

// CartDAO handles database operations for cart lines
type CartDAO struct {
	db *database.DB
}

// NewCartDAO creates a new CartDAO instance
func NewCartDAO(db *database.DB) *CartDAO {
	return &CartDAO{db: db}
}

// ListByUser retrieves the cart lines of a user
func (dao *CartDAO) ListByUser(ctx context.Context, userID string) ([]models.CartItem, error) {
	query := `
		SELECT USER_ID, PRODUCT_ID, QUANTITY
		FROM STOREFRONT_CART_ITEM
		WHERE USER_ID = ?
		ORDER BY PRODUCT_ID
	`

	var items []models.CartItem
	if err := dao.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}

	return items, nil
}

// ClearWithTx removes every cart line of a user using a transaction
func (dao *CartDAO) ClearWithTx(ctx context.Context, tx *database.Transaction, userID string) error {
	query := `DELETE FROM STOREFRONT_CART_ITEM WHERE USER_ID = ?`

	if _, err := tx.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to clear cart with transaction: %w", err)
	}

	return nil
}
