package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

// TypeDeliveryRetry re-sends an order to the delivery partner
const TypeDeliveryRetry = "delivery:retry"

// DeliveryRetryPayload identifies the order to re-send
type DeliveryRetryPayload struct {
	OrderID string `json:"order_id"`
}

// NewDeliveryRetryTask creates a delivery retry task
func NewDeliveryRetryTask(orderID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DeliveryRetryPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeliveryRetry, payload), nil
}

// OrderStore is what the retry task needs from order persistence
type OrderStore interface {
	GetOrderWithItems(ctx context.Context, orderID string) (*models.Order, error)
	UpdateDeliveryStatus(ctx context.Context, orderID string, status models.DeliveryStatus, updatedTime int64) error
}

// CredentialSource obtains a fresh delegated credential for an order
type CredentialSource interface {
	RequestDelegation(ctx context.Context, subjectID, tenantID string) (*models.DelegatedCredential, error)
}

// AsynqScheduler enqueues delivery retries on an asynq queue
type AsynqScheduler struct {
	client   *asynq.Client
	maxRetry int
	delay    time.Duration
}

// NewAsynqScheduler creates a scheduler
func NewAsynqScheduler(client *asynq.Client, maxRetry int, delay time.Duration) *AsynqScheduler {
	return &AsynqScheduler{client: client, maxRetry: maxRetry, delay: delay}
}

// ScheduleRetry enqueues one retry task per order; a task already queued for
// the order is left in place.
func (s *AsynqScheduler) ScheduleRetry(ctx context.Context, orderID string) error {
	task, err := NewDeliveryRetryTask(orderID)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.TaskID(TypeDeliveryRetry+":"+orderID),
		asynq.MaxRetry(s.maxRetry),
		asynq.ProcessIn(s.delay),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// RetryProcessor implements asynq.Handler for TypeDeliveryRetry
type RetryProcessor struct {
	orders           OrderStore
	credentials      CredentialSource
	dispatcher       *Dispatcher
	retainCredential bool
	now              func() time.Time
	logger           *logrus.Logger
}

// NewRetryProcessor creates a retry processor. With retainCredential the
// credential stored on the order is reused; otherwise a fresh one is
// requested for every attempt.
func NewRetryProcessor(orders OrderStore, credentials CredentialSource, dispatcher *Dispatcher, retainCredential bool, logger *logrus.Logger) *RetryProcessor {
	return &RetryProcessor{
		orders:           orders,
		credentials:      credentials,
		dispatcher:       dispatcher,
		retainCredential: retainCredential,
		now:              time.Now,
		logger:           logger,
	}
}

// ProcessTask re-sends one order. Missing consent or delegation ends the task
// without further retries and marks the order blocked.
func (p *RetryProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload DeliveryRetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	logger := p.logger.WithField("orderId", payload.OrderID)

	order, err := p.orders.GetOrderWithItems(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, serviceerror.ErrOrderNotFound) {
			return fmt.Errorf("order %s: %v: %w", payload.OrderID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to load order %s: %w", payload.OrderID, err)
	}
	if order.DeliveryStatus == models.DeliveryStatusDispatched {
		logger.Debug("Order already dispatched; retry skipped")
		return nil
	}

	credential, err := p.credentialFor(ctx, order)
	if err != nil {
		if permanent(err) {
			logger.WithError(err).Warn("Delivery retry blocked: no delegation available")
			p.setStatus(ctx, order.OrderID, models.DeliveryStatusBlocked)
			return fmt.Errorf("order %s: %v: %w", order.OrderID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to obtain delegation for order %s: %w", order.OrderID, err)
	}
	order.DelegatedCredential = credential

	if err := p.dispatcher.Deliver(ctx, order); err != nil {
		if errors.Is(err, serviceerror.ErrDelegationMissing) {
			p.setStatus(ctx, order.OrderID, models.DeliveryStatusBlocked)
			return fmt.Errorf("order %s: %v: %w", order.OrderID, err, asynq.SkipRetry)
		}
		return err
	}

	p.setStatus(ctx, order.OrderID, models.DeliveryStatusDispatched)
	return nil
}

func (p *RetryProcessor) credentialFor(ctx context.Context, order *models.Order) (*models.DelegatedCredential, error) {
	if p.retainCredential && order.StoredCredential != nil && *order.StoredCredential != "" {
		return &models.DelegatedCredential{EmbeddedToken: *order.StoredCredential}, nil
	}
	if p.credentials == nil {
		return nil, fmt.Errorf("%w: no credential source", serviceerror.ErrDelegationMissing)
	}
	return p.credentials.RequestDelegation(ctx, order.SubjectID, order.TenantID)
}

func (p *RetryProcessor) setStatus(ctx context.Context, orderID string, status models.DeliveryStatus) {
	if err := p.orders.UpdateDeliveryStatus(ctx, orderID, status, p.now().UnixMilli()); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"orderId": orderID,
			"status":  status,
		}).Error("Failed to update delivery status")
	}
}

// permanent reports errors another attempt cannot fix without the customer.
// A broker outage is not one of them.
func permanent(err error) bool {
	if errors.Is(err, serviceerror.ErrBrokerUnavailable) {
		return false
	}
	return errors.Is(err, serviceerror.ErrDelegationMissing) ||
		errors.Is(err, serviceerror.ErrVerificationFailed) ||
		errors.Is(err, serviceerror.ErrConsentRequired) ||
		errors.Is(err, serviceerror.ErrConsentDenied) ||
		errors.Is(err, serviceerror.ErrConfigurationMissing)
}
