package service

import (
	"context"

	"github.com/wso2/bookstore-consent-api/internal/database"
	"github.com/wso2/bookstore-consent-api/internal/keys"
	"github.com/wso2/bookstore-consent-api/internal/models"
)

// OrderRepository persists orders
type OrderRepository interface {
	CreateWithTx(ctx context.Context, tx *database.Transaction, order *models.Order) error
	GetByID(ctx context.Context, orderID, userID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Order, int, error)
	UpdateDeliveryStatus(ctx context.Context, orderID string, status models.DeliveryStatus, updatedTime int64) error
}

// CartRepository clears a shopper's cart once the order exists
type CartRepository interface {
	ClearWithTx(ctx context.Context, tx *database.Transaction, userID string) error
}

// AuditRepository records checkout state transitions
type AuditRepository interface {
	Create(ctx context.Context, audit *models.CheckoutAudit) error
	GetByAttemptID(ctx context.Context, attemptID, userID string) ([]models.CheckoutAudit, error)
	GetByOrderID(ctx context.Context, orderID string) ([]models.CheckoutAudit, error)
}

// Transactor runs work inside a database transaction
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(*database.Transaction) error) error
}

// KeySource supplies the storefront key material
type KeySource interface {
	StorefrontKeyPair() (*keys.KeyPair, error)
	SharedAPIKey() ([]byte, error)
}

// BrokerClient is the Consent Broker HTTP contract
type BrokerClient interface {
	ConsentStatus(ctx context.Context, sharedAPIKey []byte, subjectID, tenantID string) (*models.ConsentStatusResponse, error)
	IssuePartnerToken(ctx context.Context, authorizationToken string) (string, error)
}

// PartnerTokenVerifier validates partner tokens
type PartnerTokenVerifier interface {
	VerifyPartnerToken(partnerToken string) (*models.DelegatedCredential, error)
}

// ConsentChecker asks the Consent Broker for the current decision
type ConsentChecker interface {
	ConsentStatus(ctx context.Context, subjectID, tenantID string) (*models.ConsentStatusResponse, error)
}

// DelegationSource obtains a verified delegated credential
type DelegationSource interface {
	RequestDelegation(ctx context.Context, subjectID, tenantID string) (*models.DelegatedCredential, error)
}

// OrderDispatcher forwards orders to the delivery partner
type OrderDispatcher interface {
	Dispatch(ctx context.Context, order *models.Order) error
}
