// Package broker is the HTTP client for the Consent Broker.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/system/constants"
	"github.com/wso2/bookstore-consent-api/internal/system/correlation"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

// maximum response body read from the broker
const maxBodyBytes = 1 << 20

// Client calls the Consent Broker status and partner-token endpoints
type Client struct {
	httpClient *http.Client
	config     *config.ConsentBrokerConfig
	logger     *logrus.Logger
}

// NewClient creates a new Consent Broker client
func NewClient(cfg *config.ConsentBrokerConfig, logger *logrus.Logger) *Client {
	timeout := 10 * time.Second
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config: cfg,
		logger: logger,
	}
}

// ConsentStatus asks the broker whether the subject has a connected consent.
// The call is authorized with the shared API key. Any transport or protocol
// failure is reported as ErrConsentStatusUnavailable.
func (c *Client) ConsentStatus(ctx context.Context, sharedAPIKey []byte, subjectID, tenantID string) (*models.ConsentStatusResponse, error) {
	if len(sharedAPIKey) == 0 {
		return nil, fmt.Errorf("%w: shared API key is not configured", serviceerror.ErrConfigurationMissing)
	}

	payload, err := json.Marshal(models.ConsentStatusRequest{SubjectID: subjectID, TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %v", serviceerror.ErrConsentStatusUnavailable, err)
	}

	url := c.config.GetEndpointURL(c.config.StatusEndpoint)
	resp, body, err := c.post(ctx, url, string(sharedAPIKey), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", serviceerror.ErrConsentStatusUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithFields(logrus.Fields{
			"statusCode": resp.StatusCode,
			"subjectId":  subjectID,
			"tenantId":   tenantID,
		}).Warn("Consent Broker status call returned non-success status")
		return nil, fmt.Errorf("%w: broker returned status %d: %s",
			serviceerror.ErrConsentStatusUnavailable, resp.StatusCode, brokerErrorMessage(body))
	}

	var status models.ConsentStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		c.logger.WithError(err).Error("Failed to unmarshal consent status response")
		return nil, fmt.Errorf("%w: failed to unmarshal response: %v", serviceerror.ErrConsentStatusUnavailable, err)
	}

	switch status.Status {
	case models.BrokerStatusConnected, models.BrokerStatusNeedConnect:
	default:
		return nil, fmt.Errorf("%w: unknown consent status %q", serviceerror.ErrConsentStatusUnavailable, status.Status)
	}

	c.logger.WithFields(logrus.Fields{
		"subjectId":   subjectID,
		"tenantId":    tenantID,
		"status":      status.Status,
		"consentType": status.ConsentType,
	}).Debug("Consent status received")

	return &status, nil
}

// IssuePartnerToken exchanges a storefront authorization token for a partner
// token. The partner token is carried in the Authorization response header,
// not the body. Refusals are reported as ErrDelegationMissing; transport
// failures and 5xx answers as ErrBrokerUnavailable.
func (c *Client) IssuePartnerToken(ctx context.Context, authorizationToken string) (string, error) {
	if authorizationToken == "" {
		return "", fmt.Errorf("%w: authorization token is empty", serviceerror.ErrTokenInvalid)
	}

	url := c.config.GetEndpointURL(c.config.PartnerTokenEndpoint)
	resp, body, err := c.post(ctx, url, authorizationToken, []byte("{}"))
	if err != nil {
		return "", fmt.Errorf("%w: partner token request failed: %v", serviceerror.ErrBrokerUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		c.logger.WithField("statusCode", resp.StatusCode).Warn("Consent Broker failed to issue a partner token")
		return "", fmt.Errorf("%w: broker returned status %d: %s",
			serviceerror.ErrBrokerUnavailable, resp.StatusCode, brokerErrorMessage(body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithField("statusCode", resp.StatusCode).Warn("Consent Broker refused to issue a partner token")
		return "", fmt.Errorf("%w: broker returned status %d: %s",
			serviceerror.ErrDelegationMissing, resp.StatusCode, brokerErrorMessage(body))
	}

	partnerToken, ok := bearerToken(resp.Header.Get(constants.AuthorizationHeaderName))
	if !ok {
		return "", fmt.Errorf("%w: partner token response has no bearer authorization header", serviceerror.ErrDelegationMissing)
	}

	c.logger.WithField("tokenLength", len(partnerToken)).Debug("Partner token received")
	return partnerToken, nil
}

// Close closes idle HTTP connections
func (c *Client) Close() {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
}

func (c *Client) post(ctx context.Context, url, bearer string, payload []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		c.logger.WithError(err).Error("Failed to create Consent Broker request")
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(constants.ContentTypeHeaderName, constants.ContentTypeJSON)
	req.Header.Set("Accept", constants.ContentTypeJSON)
	req.Header.Set(constants.AuthorizationHeaderName, constants.TokenTypeBearer+" "+bearer)
	if correlationID := correlation.FromContext(ctx); correlationID != "" {
		req.Header.Set(constants.CorrelationIDHeaderName, correlationID)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url":      url,
			"duration": duration,
		}).Error("Consent Broker call failed")
		return nil, nil, fmt.Errorf("consent broker call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logger.WithError(err).Error("Failed to read Consent Broker response")
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"statusCode": resp.StatusCode,
		"duration":   duration,
		"url":        url,
	}).Debug("Consent Broker response received")

	return resp, body, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" value
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, constants.TokenTypeBearer) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func brokerErrorMessage(body []byte) string {
	var errResp models.BrokerErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}
