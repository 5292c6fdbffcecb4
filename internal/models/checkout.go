package models

// CheckoutState is the position of one checkout attempt in the consent and
// delegation flow
type CheckoutState string

const (
	CheckoutStateNoConsent           CheckoutState = "NO_CONSENT"
	CheckoutStateNegotiating         CheckoutState = "NEGOTIATING"
	CheckoutStateDecidedGranted      CheckoutState = "DECIDED_GRANTED"
	CheckoutStateDecidedDenied       CheckoutState = "DECIDED_DENIED"
	CheckoutStateDelegationRequested CheckoutState = "DELEGATION_REQUESTED"
	CheckoutStateDelegationVerified  CheckoutState = "DELEGATION_VERIFIED"
	CheckoutStateDispatched          CheckoutState = "DISPATCHED"
)

// IsTerminal reports whether the attempt can make no further progress
func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateDecidedDenied || s == CheckoutStateDispatched
}

// EnterCheckoutRequest is the body of the checkout entry endpoint
type EnterCheckoutRequest struct {
	SubjectID string `json:"subjectId"`
	TenantID  string `json:"tenantId"`
}

// CheckoutView describes where a checkout attempt stands
type CheckoutView struct {
	AttemptID           string           `json:"attemptId"`
	State               CheckoutState    `json:"state"`
	Decision            *ConsentDecision `json:"decision,omitempty"`
	NegotiationRequired bool             `json:"negotiationRequired"`
}

// SubmitOrderResponse is returned after an order is created. Delivery status
// is informational; a failed dispatch does not fail the order.
type SubmitOrderResponse struct {
	AttemptID string        `json:"attemptId"`
	State     CheckoutState `json:"state"`
	Order     *Order        `json:"order"`
}

// OrderDetailResponse is an order with its checkout transitions
type OrderDetailResponse struct {
	Order   *Order          `json:"order"`
	History []CheckoutAudit `json:"history"`
}
