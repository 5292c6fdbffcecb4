// Package dispatch forwards completed orders to the delivery partner with the
// delegated credential attached.
//
// A dispatch failure never touches the order itself. Failures are logged and
// handed to the retry queue when one is configured.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

// Sender delivers a request to the delivery partner
type Sender interface {
	Send(ctx context.Context, request *models.DeliveryRequest) error
}

// RetryScheduler queues an out-of-band dispatch retry for an order
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, orderID string) error
}

// Dispatcher builds and sends delivery requests
type Dispatcher struct {
	sender       Sender
	scheduler    RetryScheduler
	merchantName string
	now          func() time.Time
	logger       *logrus.Logger
}

// NewDispatcher creates a dispatcher. scheduler may be nil, in which case
// failures are only logged.
func NewDispatcher(sender Sender, scheduler RetryScheduler, merchantName string, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		sender:       sender,
		scheduler:    scheduler,
		merchantName: merchantName,
		now:          time.Now,
		logger:       logger,
	}
}

// WithClock sets the clock used for the request date and credential expiry
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch forwards order to the delivery partner. Without a usable
// credential it fails closed with ErrDelegationMissing and sends nothing.
// Send failures schedule a retry and return ErrDispatchFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, order *models.Order) error {
	err := d.Deliver(ctx, order)
	if err == nil || !errors.Is(err, serviceerror.ErrDispatchFailed) {
		return err
	}

	if d.scheduler != nil {
		if schedErr := d.scheduler.ScheduleRetry(ctx, order.OrderID); schedErr != nil {
			d.logger.WithError(schedErr).WithField("orderId", order.OrderID).Error("Failed to schedule delivery retry")
		} else {
			d.logger.WithField("orderId", order.OrderID).Info("Delivery retry scheduled")
		}
	}
	return err
}

// Deliver sends once without scheduling a retry
func (d *Dispatcher) Deliver(ctx context.Context, order *models.Order) error {
	logger := d.logger.WithField("orderId", order.OrderID)

	if !d.usable(order.DelegatedCredential) {
		logger.Warn("Order has no usable delegated credential; delivery request not sent")
		return fmt.Errorf("%w: order %s has no delegated credential", serviceerror.ErrDelegationMissing, order.OrderID)
	}

	request := BuildDeliveryRequest(order, d.merchantName, d.now())
	if err := d.sender.Send(ctx, request); err != nil {
		logger.WithError(err).Error("Delivery request failed")
		return fmt.Errorf("%w: %w", serviceerror.ErrDispatchFailed, err)
	}

	logger.WithField("items", len(request.Items)).Info("Delivery request sent")
	return nil
}

func (d *Dispatcher) usable(credential *models.DelegatedCredential) bool {
	if !credential.IsPresent() {
		return false
	}
	return credential.ExpiresAt == nil || d.now().Before(*credential.ExpiresAt)
}

// BuildDeliveryRequest reduces an order to the delivery partner payload. The
// delegated credential is copied verbatim.
func BuildDeliveryRequest(order *models.Order, merchantName string, requestDate time.Time) *models.DeliveryRequest {
	items := make([]models.DeliveryRequestItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.DeliveryRequestItem{
			Title:    item.Title,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}

	memo := ""
	if order.DeliveryMemo != nil {
		memo = *order.DeliveryMemo
	}

	credential := ""
	if order.DelegatedCredential != nil {
		credential = order.DelegatedCredential.EmbeddedToken
	}

	return &models.DeliveryRequest{
		OrderNumber:         order.OrderID,
		MerchantName:        merchantName,
		RequestDate:         requestDate.UTC().Format(time.RFC3339),
		TotalAmount:         order.TotalAmount,
		Items:               items,
		DeliveryMemo:        memo,
		DelegatedCredential: credential,
	}
}
