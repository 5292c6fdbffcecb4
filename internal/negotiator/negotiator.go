// Package negotiator drives the consent handshake with the Consent Broker's
// presentation surface.
//
// A negotiation issues an authorization token, opens the surface, waits for
// the surface to report readiness, posts the token to the broker origin and
// then waits for the first decision. Messages from origins outside the exact
// allow-list are dropped. The Session returned by Start owns the surface for
// its whole life.
package negotiator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

// Negotiation paths on the Consent Broker
const (
	PathConsent = "consent"
	PathPreview = "preview"
)

// Envelope is a message received from the surface together with the origin
// it was sent from
type Envelope struct {
	Origin string
	Data   json.RawMessage
}

// Surface is an opened presentation surface
type Surface interface {
	// Post sends data to the surface, restricted to targetOrigin
	Post(ctx context.Context, targetOrigin string, data any) error
	// Inbound delivers messages received from the surface
	Inbound() <-chan Envelope
	// Done is closed when the surface goes away
	Done() <-chan struct{}
	Close() error
}

// Opener opens presentation surfaces. A surface the user agent refuses to
// open is reported as serviceerror.ErrPresentationBlocked.
type Opener interface {
	Open(ctx context.Context, url string) (Surface, error)
}

// TokenIssuer issues storefront authorization tokens
type TokenIssuer interface {
	IssueAuthorizationToken(ctx context.Context, subjectID, tenantID string) (*models.IssuedToken, error)
}

// Request starts a negotiation
type Request struct {
	SubjectID string
	TenantID  string
	// Path is PathConsent (default) or PathPreview
	Path string
	// Callback receives the decision at most once. Abandoned and expired
	// negotiations never invoke it.
	Callback func(Result)
}

// Result is the decision reported by the surface
type Result struct {
	Agreed        bool   `json:"agreed"`
	ConsentType   string `json:"consentType,omitempty"`
	EmbeddedToken string `json:"embeddedToken,omitempty"`
}

// Negotiator starts consent sessions
type Negotiator struct {
	issuer       TokenIssuer
	brokerCfg    *config.ConsentBrokerConfig
	targetOrigin string
	trusted      map[string]struct{}
	now          func() time.Time
	logger       *logrus.Logger
}

// New creates a negotiator for the configured Consent Broker
func New(issuer TokenIssuer, brokerCfg *config.ConsentBrokerConfig, logger *logrus.Logger) *Negotiator {
	trusted := make(map[string]struct{})
	for _, origin := range brokerCfg.TrustedOrigins() {
		trusted[origin] = struct{}{}
	}

	return &Negotiator{
		issuer:       issuer,
		brokerCfg:    brokerCfg,
		targetOrigin: brokerCfg.TargetOrigin(),
		trusted:      trusted,
		now:          time.Now,
		logger:       logger,
	}
}

// WithClock sets the clock used for token expiry
func (n *Negotiator) WithClock(now func() time.Time) *Negotiator {
	n.now = now
	return n
}

// Start issues an authorization token, opens the surface and begins listening.
// It returns once the surface is open; the decision arrives through
// req.Callback and the Session.
func (n *Negotiator) Start(ctx context.Context, opener Opener, req Request) (*Session, error) {
	if strings.TrimSpace(req.SubjectID) == "" {
		return nil, fmt.Errorf("%w: subjectId is required", serviceerror.ErrInvalidRequest)
	}

	path := req.Path
	if path == "" {
		path = PathConsent
	}
	surfacePath, initType, err := n.resolvePath(path)
	if err != nil {
		return nil, err
	}

	logger := n.logger.WithFields(logrus.Fields{
		"subjectId": req.SubjectID,
		"tenantId":  req.TenantID,
		"path":      path,
	})

	issued, err := n.issuer.IssueAuthorizationToken(ctx, req.SubjectID, req.TenantID)
	if err != nil {
		logger.WithError(err).Error("Failed to issue authorization token for negotiation")
		if errors.Is(err, serviceerror.ErrConfigurationMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", serviceerror.ErrTokenIssuanceFailed, err)
	}

	surface, err := opener.Open(ctx, n.brokerCfg.GetSurfaceURL(surfacePath))
	if err != nil {
		if errors.Is(err, serviceerror.ErrPresentationBlocked) {
			logger.Warn("Presentation surface was blocked")
			return nil, err
		}
		logger.WithError(err).Error("Failed to open presentation surface")
		return nil, fmt.Errorf("failed to open presentation surface: %w", err)
	}

	session := newSession(n, surface, req.Callback, initType, issued)
	logger.WithFields(logrus.Fields{
		"sessionId": session.ID,
		"expiresAt": issued.ExpiresAt,
	}).Info("Consent negotiation started")

	go session.run(ctx)
	return session, nil
}

func (n *Negotiator) resolvePath(path string) (string, string, error) {
	switch path {
	case PathConsent:
		return n.brokerCfg.ConsentPath, MessageTypeInitConsent, nil
	case PathPreview:
		return n.brokerCfg.PreviewPath, MessageTypeInitPreview, nil
	default:
		return "", "", fmt.Errorf("%w: unknown negotiation path %q", serviceerror.ErrInvalidRequest, path)
	}
}

func (n *Negotiator) isTrusted(origin string) bool {
	_, ok := n.trusted[origin]
	return ok
}

func newSessionID() string {
	return uuid.New().String()
}
