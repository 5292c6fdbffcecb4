// Package delegation verifies partner tokens issued by the Consent Broker and
// extracts the credential addressed to the delivery partner.
package delegation

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
	"github.com/wso2/bookstore-consent-api/internal/token"
)

// SecretSource supplies the API key shared with the Consent Broker
type SecretSource interface {
	SharedAPIKey() ([]byte, error)
}

// Verifier validates partner tokens with the shared-secret profile
type Verifier struct {
	secrets     SecretSource
	codec       *token.Codec
	maxLifetime time.Duration
	logger      *logrus.Logger
}

// NewVerifier creates a partner token verifier. maxLifetime bounds exp-iat of
// accepted tokens.
func NewVerifier(secrets SecretSource, maxLifetime time.Duration, logger *logrus.Logger) *Verifier {
	return &Verifier{
		secrets:     secrets,
		codec:       token.NewSharedSecretCodec(),
		maxLifetime: maxLifetime,
		logger:      logger,
	}
}

// WithClock returns a copy of the verifier reading time from now
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	return &Verifier{
		secrets:     v.secrets,
		codec:       v.codec.WithClock(now),
		maxLifetime: v.maxLifetime,
		logger:      v.logger,
	}
}

// VerifyPartnerToken checks the partner token signature and expiry against
// the shared API key and returns the embedded credential. The embedded token
// is opaque and only checked for presence.
//
// Errors: ErrConfigurationMissing when no shared key is configured,
// ErrVerificationFailed (also wrapping ErrTokenExpired or ErrTokenInvalid)
// when the token does not verify, ErrMissingDelegation when it verifies but
// carries no embedded token.
func (v *Verifier) VerifyPartnerToken(partnerToken string) (*models.DelegatedCredential, error) {
	secret, err := v.secrets.SharedAPIKey()
	if err != nil {
		return nil, err
	}

	claims, err := v.codec.Verify(strings.TrimSpace(partnerToken), secret)
	if err != nil {
		v.logger.WithError(err).Warn("Partner token verification failed")
		return nil, fmt.Errorf("%w: %w", serviceerror.ErrVerificationFailed, err)
	}

	expiresAt, err := claims.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return nil, fmt.Errorf("%w: partner token has no usable expiry", serviceerror.ErrVerificationFailed)
	}

	if err := v.checkLifetime(claims, expiresAt.Time); err != nil {
		v.logger.WithError(err).Warn("Partner token lifetime rejected")
		return nil, err
	}

	embedded, _ := claims[models.DelegateTokenClaim].(string)
	if strings.TrimSpace(embedded) == "" {
		v.logger.Warn("Partner token verified but carries no delegated token")
		return nil, fmt.Errorf("%w: partner token has no %s claim", serviceerror.ErrMissingDelegation, models.DelegateTokenClaim)
	}

	exp := expiresAt.Time
	return &models.DelegatedCredential{
		EmbeddedToken: embedded,
		ExpiresAt:     &exp,
	}, nil
}

// checkLifetime rejects partner tokens minted with a lifetime above the
// delegation maximum. Tokens without iat are bounded by exp alone.
func (v *Verifier) checkLifetime(claims jwt.MapClaims, expiresAt time.Time) error {
	if v.maxLifetime <= 0 {
		return nil
	}
	issuedAt, err := claims.GetIssuedAt()
	if err != nil {
		return fmt.Errorf("%w: %w: invalid iat claim", serviceerror.ErrVerificationFailed, serviceerror.ErrTokenInvalid)
	}
	if issuedAt == nil {
		return nil
	}
	if lifetime := expiresAt.Sub(issuedAt.Time); lifetime > v.maxLifetime {
		return fmt.Errorf("%w: %w: partner token lifetime %s exceeds %s",
			serviceerror.ErrVerificationFailed, serviceerror.ErrTokenInvalid, lifetime, v.maxLifetime)
	}
	return nil
}
