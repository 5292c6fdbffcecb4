package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
	"github.com/wso2/bookstore-consent-api/internal/token"
	"github.com/wso2/bookstore-consent-api/pkg/utils"
)

// TokenService issues storefront authorization tokens and exchanges them for
// verified delegations. It is the only holder of the signing key.
type TokenService struct {
	keys          KeySource
	broker        BrokerClient
	verifier      PartnerTokenVerifier
	codec         *token.Codec
	tokens        config.TokensConfig
	defaultTenant string
	logger        *logrus.Logger
}

// NewTokenService creates a new token service instance
func NewTokenService(
	keySource KeySource,
	broker BrokerClient,
	verifier PartnerTokenVerifier,
	tokens config.TokensConfig,
	defaultTenant string,
	logger *logrus.Logger,
) *TokenService {
	if tokens.AuthorizationValidity <= 0 {
		tokens.AuthorizationValidity = config.DefaultAuthorizationTokenValidity
	}
	return &TokenService{
		keys:          keySource,
		broker:        broker,
		verifier:      verifier,
		codec:         token.NewAsymmetricCodec(),
		tokens:        tokens,
		defaultTenant: defaultTenant,
		logger:        logger,
	}
}

// WithClock returns a copy of the service issuing tokens at now
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	clone := *s
	clone.codec = s.codec.WithClock(now)
	return &clone
}

// ResolveTenant falls back to the configured tenant when tenantID is empty
func (s *TokenService) ResolveTenant(tenantID string) string {
	if tenantID = strings.TrimSpace(tenantID); tenantID != "" {
		return tenantID
	}
	return s.defaultTenant
}

// IssueAuthorizationToken signs an authorization claim for the subject with
// the storefront private key. The public key travels in the token so the
// Consent Broker can verify it.
func (s *TokenService) IssueAuthorizationToken(ctx context.Context, subjectID, tenantID string) (*models.IssuedToken, error) {
	tenantID = s.ResolveTenant(tenantID)
	if err := validateSubject(subjectID, tenantID); err != nil {
		return nil, err
	}

	pair, err := s.keys.StorefrontKeyPair()
	if err != nil {
		s.logger.WithError(err).Error("Storefront key pair unavailable")
		return nil, err
	}

	claims := &models.AuthorizationClaims{
		SubjectID: subjectID,
		TenantID:  tenantID,
		PublicKey: pair.PublicKeyPEM,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  s.tokens.Issuer,
			Subject: subjectID,
			ID:      uuid.New().String(),
		},
	}

	signed, expiresAt, err := s.codec.Issue(claims, pair.PrivateKey, s.tokens.AuthorizationValidity)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign authorization token")
		return nil, fmt.Errorf("%w: %w", serviceerror.ErrTokenIssuanceFailed, err)
	}

	s.logger.WithFields(logrus.Fields{
		"subjectId": subjectID,
		"tenantId":  tenantID,
		"expiresAt": expiresAt,
	}).Debug("Authorization token issued")

	return &models.IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// VerifyPartnerToken verifies a partner token and returns its embedded token
func (s *TokenService) VerifyPartnerToken(partnerToken string) (*models.VerifyPartnerTokenResponse, error) {
	credential, err := s.verifier.VerifyPartnerToken(partnerToken)
	if err != nil {
		return nil, err
	}
	return &models.VerifyPartnerTokenResponse{
		Valid:       true,
		DelegateJWT: credential.EmbeddedToken,
	}, nil
}

// ConsentStatus asks the Consent Broker for the subject's consent status
func (s *TokenService) ConsentStatus(ctx context.Context, subjectID, tenantID string) (*models.ConsentStatusResponse, error) {
	tenantID = s.ResolveTenant(tenantID)
	if err := validateSubject(subjectID, tenantID); err != nil {
		return nil, err
	}

	secret, err := s.keys.SharedAPIKey()
	if err != nil {
		return nil, err
	}
	return s.broker.ConsentStatus(ctx, secret, subjectID, tenantID)
}

// RequestDelegation runs the delegation exchange: a fresh authorization token
// is traded for a partner token, which must verify before its embedded token
// is returned.
func (s *TokenService) RequestDelegation(ctx context.Context, subjectID, tenantID string) (*models.DelegatedCredential, error) {
	issued, err := s.IssueAuthorizationToken(ctx, subjectID, tenantID)
	if err != nil {
		return nil, err
	}

	partnerToken, err := s.broker.IssuePartnerToken(ctx, issued.Token)
	if err != nil {
		return nil, err
	}

	credential, err := s.verifier.VerifyPartnerToken(partnerToken)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"subjectId": subjectID,
		"tenantId":  s.ResolveTenant(tenantID),
	}).Info("Delegated credential verified")
	return credential, nil
}

func validateSubject(subjectID, tenantID string) error {
	if err := utils.ValidateSubjectID(subjectID); err != nil {
		return fmt.Errorf("%w: %v", serviceerror.ErrInvalidRequest, err)
	}
	if err := utils.ValidateTenantID(tenantID); err != nil {
		return fmt.Errorf("%w: %v", serviceerror.ErrInvalidRequest, err)
	}
	return nil
}
