package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/system/constants"
	"github.com/wso2/bookstore-consent-api/internal/system/correlation"
)

// PartnerClient posts delivery requests to the delivery partner intake endpoint
type PartnerClient struct {
	httpClient *http.Client
	config     *config.DeliveryConfig
	logger     *logrus.Logger
}

// NewPartnerClient creates a delivery partner client
func NewPartnerClient(cfg *config.DeliveryConfig, logger *logrus.Logger) *PartnerClient {
	timeout := 10 * time.Second
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	return &PartnerClient{
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

// Send posts the delivery request. Any non-2xx answer is an error.
func (c *PartnerClient) Send(ctx context.Context, request *models.DeliveryRequest) error {
	if c.config.BaseURL == "" {
		return fmt.Errorf("delivery partner base URL is not configured")
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery request: %w", err)
	}

	url := c.config.GetIntakeURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create delivery request: %w", err)
	}
	req.Header.Set(constants.ContentTypeHeaderName, constants.ContentTypeJSON)
	req.Header.Set("Accept", constants.ContentTypeJSON)
	if correlationID := correlation.FromContext(ctx); correlationID != "" {
		req.Header.Set(constants.CorrelationIDHeaderName, correlationID)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		return fmt.Errorf("delivery partner call failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	c.logger.WithFields(logrus.Fields{
		"orderNumber": request.OrderNumber,
		"statusCode":  resp.StatusCode,
		"duration":    duration,
	}).Debug("Delivery partner response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery partner returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close closes idle HTTP connections
func (c *PartnerClient) Close() {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
}
