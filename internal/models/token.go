package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthorizationClaims is signed by the storefront and presented to the Consent
// Broker. It only lives in transit.
type AuthorizationClaims struct {
	SubjectID string `json:"subjectId"`
	TenantID  string `json:"tenantId"`
	PublicKey string `json:"publicKey,omitempty"`
	jwt.RegisteredClaims
}

// Stamp sets the issued-at and expiry claims
func (c *AuthorizationClaims) Stamp(issuedAt, expiresAt time.Time) {
	c.IssuedAt = jwt.NewNumericDate(issuedAt)
	c.ExpiresAt = jwt.NewNumericDate(expiresAt)
}

// IssuedToken is an encoded token with its expiry
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Partner token claim carrying the sub-token addressed to the delivery partner
const DelegateTokenClaim = "delegateJwt"

// DelegatedCredential is the delivery partner's credential extracted from a
// verified partner token. It must not outlive the order it was requested for.
type DelegatedCredential struct {
	EmbeddedToken  string           `json:"delegateJwt"`
	SourceDecision *ConsentDecision `json:"sourceDecision,omitempty"`
	ExpiresAt      *time.Time       `json:"expiresAt,omitempty"`
}

// IsPresent reports whether a usable credential exists
func (c *DelegatedCredential) IsPresent() bool {
	return c != nil && c.EmbeddedToken != ""
}

// IssueAuthorizationTokenRequest is the body of the storefront token endpoint
type IssueAuthorizationTokenRequest struct {
	SubjectID string `json:"subjectId"`
	TenantID  string `json:"tenantId"`
}

// VerifyPartnerTokenRequest is the body of the partner token verification endpoint
type VerifyPartnerTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyPartnerTokenResponse is returned when a partner token verifies
type VerifyPartnerTokenResponse struct {
	Valid       bool   `json:"valid"`
	DelegateJWT string `json:"delegateJwt"`
}
