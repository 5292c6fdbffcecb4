package dao

import (
	"context"
	"fmt"

	"github.com/wso2/bookstore-consent-api/internal/database"
	"github.com/wso2/bookstore-consent-api/internal/models"
)

// CheckoutAuditDAO records checkout state transitions
type CheckoutAuditDAO struct {
	db *database.DB
}

// NewCheckoutAuditDAO creates a new CheckoutAuditDAO instance
func NewCheckoutAuditDAO(db *database.DB) *CheckoutAuditDAO {
	return &CheckoutAuditDAO{db: db}
}

// Create inserts a new checkout audit record
func (dao *CheckoutAuditDAO) Create(ctx context.Context, audit *models.CheckoutAudit) error {
	query := `
		INSERT INTO CHECKOUT_AUDIT (
			AUDIT_ID, ATTEMPT_ID, USER_ID, ORDER_ID,
			PREVIOUS_STATE, CURRENT_STATE, REASON, ACTION_TIME
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := dao.db.ExecContext(
		ctx,
		query,
		audit.AuditID,
		audit.AttemptID,
		audit.UserID,
		audit.OrderID,
		audit.PreviousState,
		audit.CurrentState,
		audit.Reason,
		audit.ActionTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create checkout audit: %w", err)
	}

	return nil
}

// GetByAttemptID retrieves the transitions of one checkout attempt in order
func (dao *CheckoutAuditDAO) GetByAttemptID(ctx context.Context, attemptID, userID string) ([]models.CheckoutAudit, error) {
	query := `
		SELECT AUDIT_ID, ATTEMPT_ID, USER_ID, ORDER_ID,
		       PREVIOUS_STATE, CURRENT_STATE, REASON, ACTION_TIME
		FROM CHECKOUT_AUDIT
		WHERE ATTEMPT_ID = ? AND USER_ID = ?
		ORDER BY ACTION_TIME ASC
	`

	var audits []models.CheckoutAudit
	if err := dao.db.SelectContext(ctx, &audits, query, attemptID, userID); err != nil {
		return nil, fmt.Errorf("failed to get checkout audits by attempt ID: %w", err)
	}

	return audits, nil
}

// GetByOrderID retrieves the transitions recorded against an order
func (dao *CheckoutAuditDAO) GetByOrderID(ctx context.Context, orderID string) ([]models.CheckoutAudit, error) {
	query := `
		SELECT AUDIT_ID, ATTEMPT_ID, USER_ID, ORDER_ID,
		       PREVIOUS_STATE, CURRENT_STATE, REASON, ACTION_TIME
		FROM CHECKOUT_AUDIT
		WHERE ORDER_ID = ?
		ORDER BY ACTION_TIME ASC
	`

	var audits []models.CheckoutAudit
	if err := dao.db.SelectContext(ctx, &audits, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to get checkout audits by order ID: %w", err)
	}

	return audits, nil
}
