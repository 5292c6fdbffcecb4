package handlers

import (
	"context"

	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/negotiator"
)

// TokenAPI is the storefront-internal token surface
type TokenAPI interface {
	IssueAuthorizationToken(ctx context.Context, subjectID, tenantID string) (*models.IssuedToken, error)
	VerifyPartnerToken(partnerToken string) (*models.VerifyPartnerTokenResponse, error)
	ConsentStatus(ctx context.Context, subjectID, tenantID string) (*models.ConsentStatusResponse, error)
}

// CheckoutAPI is the checkout state machine
type CheckoutAPI interface {
	EnterCheckout(ctx context.Context, userID, subjectID, tenantID string) (*models.CheckoutView, error)
	RecordDecision(ctx context.Context, userID, subjectID, tenantID string, result negotiator.Result) (*models.ConsentDecision, error)
	SubmitOrder(ctx context.Context, userID string, request *models.SubmitOrderRequest) (*models.SubmitOrderResponse, error)
	GetAttempt(ctx context.Context, attemptID, userID string) ([]models.CheckoutAudit, error)
}

// OrderAPI serves order history
type OrderAPI interface {
	ListOrders(ctx context.Context, userID string, limit, offset int) (*models.ListResponse, error)
	GetOrder(ctx context.Context, orderID, userID string) (*models.OrderDetailResponse, error)
}

// HealthChecker reports backing store health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
