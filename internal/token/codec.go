// Package token issues and verifies compact signed tokens (JWS/JWT).
//
// Two profiles exist. The asymmetric profile (RS256) is used when the
// storefront asserts its identity to the Consent Broker. The shared-secret
// profile (HS256) is used when the Consent Broker asserts identity back to the
// storefront with the pre-shared API key as the verification secret.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

// Stampable is implemented by typed claims that can receive iat/exp
type Stampable interface {
	jwt.Claims
	Stamp(issuedAt, expiresAt time.Time)
}

// Codec signs and verifies tokens with a single signing method
type Codec struct {
	method jwt.SigningMethod
	now    func() time.Time
}

// NewCodec creates a codec for the given signing method
func NewCodec(method jwt.SigningMethod) *Codec {
	return &Codec{
		method: method,
		now:    time.Now,
	}
}

// NewAsymmetricCodec creates an RS256 codec
func NewAsymmetricCodec() *Codec {
	return NewCodec(jwt.SigningMethodRS256)
}

// NewSharedSecretCodec creates an HS256 codec
func NewSharedSecretCodec() *Codec {
	return NewCodec(jwt.SigningMethodHS256)
}

// WithClock returns a copy of the codec reading time from now
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{
		method: c.method,
		now:    now,
	}
}

// Algorithm returns the JWS algorithm name
func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

// Issue stamps claims with iat and exp = iat + validity and signs them.
// claims must be jwt.MapClaims or implement Stampable.
func (c *Codec) Issue(claims jwt.Claims, signingKey any, validity time.Duration) (string, time.Time, error) {
	if validity <= 0 {
		return "", time.Time{}, fmt.Errorf("token validity must be positive, got %s", validity)
	}
	if signingKey == nil {
		return "", time.Time{}, fmt.Errorf("signing key is required: %w", serviceerror.ErrConfigurationMissing)
	}

	issuedAt := c.now().Truncate(jwt.TimePrecision)
	expiresAt := issuedAt.Add(validity)

	switch typed := claims.(type) {
	case jwt.MapClaims:
		stamped := make(jwt.MapClaims, len(typed)+2)
		for k, v := range typed {
			stamped[k] = v
		}
		stamped["iat"] = jwt.NewNumericDate(issuedAt)
		stamped["exp"] = jwt.NewNumericDate(expiresAt)
		claims = stamped
	case Stampable:
		typed.Stamp(issuedAt, expiresAt)
	default:
		return "", time.Time{}, fmt.Errorf("unsupported claims type %T", claims)
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of tokenString and returns its claims.
// Failures are ErrTokenExpired or ErrTokenInvalid.
func (c *Codec) Verify(tokenString string, verificationKey any) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if err := c.VerifyInto(tokenString, verificationKey, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyInto is Verify decoding into caller-supplied typed claims
func (c *Codec) VerifyInto(tokenString string, verificationKey any, claims jwt.Claims) error {
	if tokenString == "" {
		return fmt.Errorf("%w: token is empty", serviceerror.ErrTokenInvalid)
	}
	if verificationKey == nil {
		return fmt.Errorf("verification key is required: %w", serviceerror.ErrConfigurationMissing)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return verificationKey, nil
	})
	if err != nil {
		return classify(err)
	}

	return nil
}

// classify maps library errors onto the token error kinds
func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %v", serviceerror.ErrTokenExpired, err)
	}
	return fmt.Errorf("%w: %v", serviceerror.ErrTokenInvalid, err)
}
