package service

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/consentcache"
	"github.com/wso2/bookstore-consent-api/internal/database"
	"github.com/wso2/bookstore-consent-api/internal/keys"
	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/service/mocks"
	"github.com/wso2/bookstore-consent-api/internal/token"
)

var fixtureNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

// checkoutFixture contains common checkout test dependencies
type checkoutFixture struct {
	Orders     *mocks.MockOrderRepository
	Carts      *mocks.MockCartRepository
	Audits     *mocks.MockAuditRepository
	Consent    *mocks.MockConsentChecker
	Delegation *mocks.MockDelegationSource
	Dispatcher *mocks.MockOrderDispatcher
	Cache      *consentcache.MemoryStore
	SQL        sqlmock.Sqlmock
	DB         *database.DB
	Logger     *logrus.Logger
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	mockDB, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	logger := newTestLogger()
	audits := &mocks.MockAuditRepository{}
	audits.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()

	return &checkoutFixture{
		Orders:     &mocks.MockOrderRepository{},
		Carts:      &mocks.MockCartRepository{},
		Audits:     audits,
		Consent:    &mocks.MockConsentChecker{},
		Delegation: &mocks.MockDelegationSource{},
		Dispatcher: &mocks.MockOrderDispatcher{},
		Cache:      consentcache.NewMemoryStore(time.Hour).WithClock(func() time.Time { return fixtureNow }),
		SQL:        sqlMock,
		DB:         database.NewDB(sqlx.NewDb(mockDB, "sqlmock"), logger),
		Logger:     logger,
	}
}

func (f *checkoutFixture) service(retainCredential bool) *CheckoutService {
	deps := CheckoutDependencies{
		Orders:     f.Orders,
		Carts:      f.Carts,
		Audits:     f.Audits,
		DB:         f.DB,
		Consent:    f.Consent,
		Delegation: f.Delegation,
		Dispatcher: f.Dispatcher,
		Cache:      f.Cache,
	}
	return NewCheckoutService(deps, "mall001", retainCredential, f.Logger).
		WithClock(func() time.Time { return fixtureNow })
}

func (f *checkoutFixture) assertExpectations(t *testing.T) {
	t.Helper()
	f.Orders.AssertExpectations(t)
	f.Carts.AssertExpectations(t)
	f.Consent.AssertExpectations(t)
	f.Delegation.AssertExpectations(t)
	f.Dispatcher.AssertExpectations(t)
	require.NoError(t, f.SQL.ExpectationsWereMet())
}

func cacheKey(subjectID string) consentcache.Key {
	return consentcache.Key{SessionKey: "customer-1", SubjectID: subjectID, TenantID: "mall001"}
}

func newSubmitRequest() *models.SubmitOrderRequest {
	return &models.SubmitOrderRequest{
		SubjectID: "user123",
		Items: []models.OrderItem{
			{ProductID: "book-1", Title: "The Left Hand of Darkness", Quantity: 2, Price: 1500},
			{ProductID: "book-2", Title: "Kindred", Quantity: 1, Price: 1800},
		},
		DeliveryMemo: "Leave at the front desk",
	}
}

func connectedStatus(consentType string, expiresAt time.Time) *models.ConsentStatusResponse {
	ts := models.Timestamp(expiresAt)
	return &models.ConsentStatusResponse{
		Status:      models.BrokerStatusConnected,
		ConsentType: consentType,
		ExpiresAt:   &ts,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

const testSharedAPIKey = "storefront-shared-api-key"

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

// newTestKeyProvider returns a provider holding one RSA key pair generated per
// test binary, plus the shared API key
func newTestKeyProvider(t *testing.T) (*keys.Provider, *rsa.PrivateKey) {
	t.Helper()
	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, testKeyErr)

	publicPEM, err := keys.EncodePublicKeyPEM(&testKey.PublicKey)
	require.NoError(t, err)
	privatePEM, err := keys.EncodePrivateKeyPEM(testKey)
	require.NoError(t, err)

	return keys.NewProvider(config.KeyMaterialConfig{
		PublicKey:    publicPEM,
		PrivateKey:   privatePEM,
		SharedAPIKey: testSharedAPIKey,
	}), testKey
}

// signPartnerToken mints a partner token the way the Consent Broker does
func signPartnerToken(t *testing.T, claims jwt.MapClaims, validity time.Duration) string {
	t.Helper()
	signed, _, err := token.NewSharedSecretCodec().Issue(claims, []byte(testSharedAPIKey), validity)
	require.NoError(t, err)
	return signed
}
