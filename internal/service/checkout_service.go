package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/consentcache"
	"github.com/wso2/bookstore-consent-api/internal/database"
	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/negotiator"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
	"github.com/wso2/bookstore-consent-api/pkg/utils"
)

// CheckoutDependencies groups the collaborators of CheckoutService
type CheckoutDependencies struct {
	Orders     OrderRepository
	Carts      CartRepository
	Audits     AuditRepository
	DB         Transactor
	Consent    ConsentChecker
	Delegation DelegationSource
	Dispatcher OrderDispatcher
	Cache      consentcache.Store
}

// CheckoutService drives a checkout attempt through
// NoConsent → Negotiating → Decided → DelegationRequested → DelegationVerified → Dispatched.
// Every transition is written to the checkout audit trail.
type CheckoutService struct {
	deps             CheckoutDependencies
	defaultTenant    string
	retainCredential bool
	now              func() time.Time
	logger           *logrus.Logger
}

// NewCheckoutService creates a new checkout service instance
func NewCheckoutService(deps CheckoutDependencies, defaultTenant string, retainCredential bool, logger *logrus.Logger) *CheckoutService {
	return &CheckoutService{
		deps:             deps,
		defaultTenant:    defaultTenant,
		retainCredential: retainCredential,
		now:              time.Now,
		logger:           logger,
	}
}

// WithClock returns a copy of the service reading time from now
func (s *CheckoutService) WithClock(now func() time.Time) *CheckoutService {
	clone := *s
	clone.now = now
	return &clone
}

// EnterCheckout evaluates the consent gate for a new checkout attempt. The
// cached decision is re-checked on every entry; an expired or inactive one is
// dropped and the Consent Broker is asked again.
func (s *CheckoutService) EnterCheckout(ctx context.Context, userID, subjectID, tenantID string) (*models.CheckoutView, error) {
	tenantID = s.resolveTenant(tenantID)
	if err := validateSubject(subjectID, tenantID); err != nil {
		return nil, err
	}

	attemptID := utils.GenerateAttemptID()
	view := &models.CheckoutView{AttemptID: attemptID, State: models.CheckoutStateNoConsent}

	decision, err := s.currentDecision(ctx, userID, subjectID, tenantID)
	if err != nil {
		s.recordTransition(ctx, attemptID, userID, nil, models.CheckoutStateNoConsent, models.CheckoutStateNoConsent, err.Error())
		return nil, err
	}

	switch {
	case decision.Permits(s.now()):
		view.State = models.CheckoutStateDecidedGranted
		view.Decision = decision
	case decision.IsDenied() && decision.Active:
		view.State = models.CheckoutStateDecidedDenied
		view.Decision = decision
	default:
		view.NegotiationRequired = true
	}

	s.recordTransition(ctx, attemptID, userID, nil, models.CheckoutStateNoConsent, view.State, "checkout entered")
	return view, nil
}

// RecordDecision stores the outcome of a consent negotiation. A rejection is
// cached as denied so that later submissions stay blocked until the customer
// negotiates again. An extended grant is confirmed with the Consent Broker to
// learn its expiry; without confirmation it is kept as a one-time grant.
func (s *CheckoutService) RecordDecision(ctx context.Context, userID, subjectID, tenantID string, result negotiator.Result) (*models.ConsentDecision, error) {
	tenantID = s.resolveTenant(tenantID)
	if err := validateSubject(subjectID, tenantID); err != nil {
		return nil, err
	}

	now := s.now()
	decision := &models.ConsentDecision{
		DecisionType: models.DecisionDenied,
		GrantedAt:    now,
		Active:       true,
	}
	if result.Agreed {
		decision.DecisionType = models.DecisionOneTimeAllow
		if models.ParseDecisionType(result.ConsentType) == models.DecisionExtendedAllow {
			if confirmed := s.confirmExtended(ctx, subjectID, tenantID, now); confirmed != nil {
				decision = confirmed
			}
		}
	}

	key := s.cacheKey(userID, subjectID, tenantID)
	if err := s.deps.Cache.Put(ctx, key, decision); err != nil {
		return nil, fmt.Errorf("failed to cache consent decision: %w", err)
	}

	state := models.CheckoutStateDecidedGranted
	if !result.Agreed {
		state = models.CheckoutStateDecidedDenied
	}
	s.recordTransition(ctx, utils.GenerateAttemptID(), userID, nil, models.CheckoutStateNegotiating, state,
		fmt.Sprintf("negotiation decided: %s", decision.DecisionType))

	s.logger.WithFields(logrus.Fields{
		"userId":       userID,
		"subjectId":    subjectID,
		"tenantId":     tenantID,
		"decisionType": decision.DecisionType,
	}).Info("Consent decision recorded")
	return decision, nil
}

// SubmitOrder creates an order behind the consent gate. Consent and a
// verified delegation are both required before anything is persisted. Once
// the order exists, dispatch failures are logged and never undo it.
func (s *CheckoutService) SubmitOrder(ctx context.Context, userID string, request *models.SubmitOrderRequest) (*models.SubmitOrderResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", serviceerror.ErrInvalidRequest, err)
	}
	if err := utils.ValidateUserID(userID); err != nil {
		return nil, fmt.Errorf("%w: %v", serviceerror.ErrInvalidRequest, err)
	}
	subjectID := request.SubjectID
	tenantID := s.resolveTenant(request.TenantID)
	if err := validateSubject(subjectID, tenantID); err != nil {
		return nil, err
	}

	attemptID := utils.GenerateAttemptID()
	logger := s.logger.WithFields(logrus.Fields{
		"attemptId": attemptID,
		"userId":    userID,
		"subjectId": subjectID,
		"tenantId":  tenantID,
	})

	decision, err := s.currentDecision(ctx, userID, subjectID, tenantID)
	if err != nil {
		s.recordTransition(ctx, attemptID, userID, nil, models.CheckoutStateNoConsent, models.CheckoutStateNoConsent, err.Error())
		return nil, err
	}
	if !decision.Permits(s.now()) {
		if decision.IsDenied() && decision.Active {
			s.recordTransition(ctx, attemptID, userID, nil, models.CheckoutStateNoConsent, models.CheckoutStateDecidedDenied, "order blocked: consent denied")
			logger.Info("Order blocked: consent denied")
			return nil, fmt.Errorf("%w: subject %s", serviceerror.ErrConsentDenied, subjectID)
		}
		s.recordTransition(ctx, attemptID, userID, nil, models.CheckoutStateNoConsent, models.CheckoutStateNoConsent, "order blocked: no consent")
		logger.Info("Order blocked: consent required")
		return nil, fmt.Errorf("%w: subject %s", serviceerror.ErrConsentRequired, subjectID)
	}

	s.recordTransition(ctx, attemptID, userID, nil, models.CheckoutStateDecidedGranted, models.CheckoutStateDelegationRequested, "delegation requested")
	credential, err := s.deps.Delegation.RequestDelegation(ctx, subjectID, tenantID)
	if err != nil {
		s.recordTransition(ctx, attemptID, userID, nil, models.CheckoutStateDelegationRequested, models.CheckoutStateNoConsent, err.Error())
		logger.WithError(err).Warn("Order blocked: delegation not available")
		return nil, err
	}
	if !credential.IsPresent() {
		s.recordTransition(ctx, attemptID, userID, nil, models.CheckoutStateDelegationRequested, models.CheckoutStateNoConsent, "empty delegation")
		return nil, fmt.Errorf("%w: empty delegated credential", serviceerror.ErrDelegationMissing)
	}
	credential.SourceDecision = decision
	s.recordTransition(ctx, attemptID, userID, nil, models.CheckoutStateDelegationRequested, models.CheckoutStateDelegationVerified, "delegation verified")

	order := s.buildOrder(userID, subjectID, tenantID, request, credential)
	if err := s.persistOrder(ctx, order); err != nil {
		logger.WithError(err).Error("Failed to persist order")
		return nil, err
	}
	logger = logger.WithField("orderId", order.OrderID)
	logger.Info("Order created")

	if decision.DecisionType == models.DecisionOneTimeAllow {
		if err := s.deps.Cache.Invalidate(ctx, s.cacheKey(userID, subjectID, tenantID)); err != nil {
			logger.WithError(err).Warn("Failed to consume one-time consent")
		}
	}

	state := s.dispatch(ctx, attemptID, order, logger)
	return &models.SubmitOrderResponse{
		AttemptID: attemptID,
		State:     state,
		Order:     order,
	}, nil
}

// GetAttempt returns the recorded transitions of one checkout attempt
func (s *CheckoutService) GetAttempt(ctx context.Context, attemptID, userID string) ([]models.CheckoutAudit, error) {
	audits, err := s.deps.Audits.GetByAttemptID(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if len(audits) == 0 {
		return nil, fmt.Errorf("%w: checkout attempt %s", serviceerror.ErrInvalidRequest, attemptID)
	}
	return audits, nil
}

// currentDecision returns the cached decision when it still permits a
// checkout or records an explicit denial. Anything else is dropped and
// replaced by the Consent Broker's answer. A nil decision means no consent.
func (s *CheckoutService) currentDecision(ctx context.Context, userID, subjectID, tenantID string) (*models.ConsentDecision, error) {
	key := s.cacheKey(userID, subjectID, tenantID)
	now := s.now()

	cached, err := s.deps.Cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).Warn("Consent cache read failed; asking the Consent Broker")
		cached = nil
	}
	if cached.Permits(now) || (cached.IsDenied() && cached.Active) {
		return cached, nil
	}
	if cached != nil {
		if err := s.deps.Cache.Invalidate(ctx, key); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate stale consent decision")
		}
	}

	status, err := s.deps.Consent.ConsentStatus(ctx, subjectID, tenantID)
	if err != nil {
		return nil, err
	}

	fresh := status.ToDecision(now)
	if !fresh.Permits(now) {
		return nil, nil
	}
	if err := s.deps.Cache.Put(ctx, key, fresh); err != nil {
		s.logger.WithError(err).Warn("Failed to cache consent decision")
	}
	return fresh, nil
}

// confirmExtended asks the Consent Broker for the expiry of an extended grant
func (s *CheckoutService) confirmExtended(ctx context.Context, subjectID, tenantID string, now time.Time) *models.ConsentDecision {
	status, err := s.deps.Consent.ConsentStatus(ctx, subjectID, tenantID)
	if err != nil {
		s.logger.WithError(err).Warn("Could not confirm extended consent; keeping it as one-time")
		return nil
	}
	confirmed := status.ToDecision(now)
	if !confirmed.Permits(now) {
		return nil
	}
	return confirmed
}

func (s *CheckoutService) buildOrder(userID, subjectID, tenantID string, request *models.SubmitOrderRequest, credential *models.DelegatedCredential) *models.Order {
	now := s.now().UnixMilli()
	items := make([]models.OrderItem, len(request.Items))
	for i, item := range request.Items {
		items[i] = models.OrderItem{
			ProductID: item.ProductID,
			Title:     utils.SanitizeString(item.Title),
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	order := &models.Order{
		OrderID:             utils.GenerateOrderID(),
		UserID:              userID,
		SubjectID:           subjectID,
		TenantID:            tenantID,
		TotalAmount:         models.CalculateTotal(items),
		Status:              models.OrderStatusCompleted,
		DeliveryStatus:      models.DeliveryStatusPending,
		CreatedTime:         now,
		UpdatedTime:         now,
		Items:               items,
		DelegatedCredential: credential,
	}
	if memo := utils.SanitizeString(request.DeliveryMemo); memo != "" {
		order.DeliveryMemo = &memo
	}
	if s.retainCredential {
		stored := credential.EmbeddedToken
		order.StoredCredential = &stored
	}
	return order
}

// persistOrder creates the order and clears the cart in one transaction
func (s *CheckoutService) persistOrder(ctx context.Context, order *models.Order) error {
	return s.deps.DB.WithTransaction(ctx, func(tx *database.Transaction) error {
		if err := s.deps.Orders.CreateWithTx(ctx, tx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if err := s.deps.Carts.ClearWithTx(ctx, tx, order.UserID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return nil
	})
}

// dispatch forwards the order and records the delivery outcome. The order
// stays completed whatever happens here.
func (s *CheckoutService) dispatch(ctx context.Context, attemptID string, order *models.Order, logger *logrus.Entry) models.CheckoutState {
	status := models.DeliveryStatusDispatched
	state := models.CheckoutStateDispatched
	reason := "delivery request sent"

	if err := s.deps.Dispatcher.Dispatch(ctx, order); err != nil {
		state = models.CheckoutStateDelegationVerified
		reason = err.Error()
		status = models.DeliveryStatusFailed
		if errors.Is(err, serviceerror.ErrDelegationMissing) {
			status = models.DeliveryStatusBlocked
		}
		logger.WithError(err).Error("Order dispatch failed; order stands")
	}

	if err := s.deps.Orders.UpdateDeliveryStatus(ctx, order.OrderID, status, s.now().UnixMilli()); err != nil {
		logger.WithError(err).Error("Failed to update delivery status")
	}
	order.DeliveryStatus = status
	if status == models.DeliveryStatusDispatched {
		order.StoredCredential = nil
	}

	orderID := order.OrderID
	s.recordTransition(ctx, attemptID, order.UserID, &orderID, models.CheckoutStateDelegationVerified, state, reason)
	return state
}

// recordTransition writes one audit row. Audit failures are logged only.
func (s *CheckoutService) recordTransition(ctx context.Context, attemptID, userID string, orderID *string, from, to models.CheckoutState, reason string) {
	audit := &models.CheckoutAudit{
		AuditID:       utils.GenerateAuditID(),
		AttemptID:     attemptID,
		UserID:        userID,
		OrderID:       orderID,
		PreviousState: string(from),
		CurrentState:  string(to),
		Reason:        &reason,
		ActionTime:    s.now().UnixMilli(),
	}
	if err := s.deps.Audits.Create(ctx, audit); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"attemptId": attemptID,
			"state":     to,
		}).Warn("Failed to record checkout transition")
	}
}

func (s *CheckoutService) cacheKey(userID, subjectID, tenantID string) consentcache.Key {
	return consentcache.Key{SessionKey: userID, SubjectID: subjectID, TenantID: tenantID}
}

func (s *CheckoutService) resolveTenant(tenantID string) string {
	if tenantID != "" {
		return tenantID
	}
	return s.defaultTenant
}
