package serviceerror

import (
	"errors"
	"net/http"
)

type ServiceErrorType string

const (
	ClientErrorType ServiceErrorType = "client_error"
	ServerErrorType ServiceErrorType = "server_error"
)

// Error kinds shared by the token, negotiation, delegation and dispatch paths.
// Callers classify with errors.Is; wrapped errors keep their kind.
var (
	ErrConfigurationMissing     = errors.New("configuration missing")
	ErrTokenInvalid             = errors.New("token invalid")
	ErrTokenExpired             = errors.New("token expired")
	ErrVerificationFailed       = errors.New("verification failed")
	ErrPresentationBlocked      = errors.New("presentation surface blocked")
	ErrDelegationMissing        = errors.New("delegation missing")
	ErrDispatchFailed           = errors.New("dispatch failed")
	ErrTokenIssuanceFailed      = errors.New("token issuance failed")
	ErrConsentRequired          = errors.New("consent required")
	ErrConsentDenied            = errors.New("consent denied")
	ErrConsentStatusUnavailable = errors.New("consent status unavailable")
	ErrBrokerUnavailable        = errors.New("consent broker unavailable")
	ErrOrderNotFound            = errors.New("order not found")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrSubjectMismatch          = errors.New("subject does not match signed-in user")
)

// ErrMissingDelegation is the name the delegation verifier contract uses.
var ErrMissingDelegation = ErrDelegationMissing

type ServiceError struct {
	Code             string           `json:"code"`
	Type             ServiceErrorType `json:"type"`
	Error            string           `json:"error"`
	ErrorDescription string           `json:"error_description,omitempty"`
	StatusCode       int              `json:"-"`
}

var (
	InternalServerError = ServiceError{
		Type:             ServerErrorType,
		Code:             "SSE-5000",
		Error:            "internal_server_error",
		ErrorDescription: "An unexpected error occurred",
		StatusCode:       http.StatusInternalServerError,
	}

	ConfigurationMissingError = ServiceError{
		Type:             ServerErrorType,
		Code:             "SSE-5002",
		Error:            "configuration_missing",
		ErrorDescription: "The storefront is not configured for consent delegation",
		StatusCode:       http.StatusInternalServerError,
	}

	InvalidRequestError = ServiceError{
		Type:             ClientErrorType,
		Code:             "CSE-4000",
		Error:            "invalid_request",
		ErrorDescription: "The request is invalid",
		StatusCode:       http.StatusBadRequest,
	}

	TokenInvalidError = ServiceError{
		Type:             ClientErrorType,
		Code:             "CSE-4010",
		Error:            "token_invalid",
		ErrorDescription: "The token could not be verified. Please start the consent process again",
		StatusCode:       http.StatusUnauthorized,
	}

	TokenExpiredError = ServiceError{
		Type:             ClientErrorType,
		Code:             "CSE-4011",
		Error:            "token_expired",
		ErrorDescription: "Your consent session has expired. Please start the consent process again",
		StatusCode:       http.StatusUnauthorized,
	}

	VerificationFailedError = ServiceError{
		Type:             ClientErrorType,
		Code:             "CSE-4012",
		Error:            "verification_failed",
		ErrorDescription: "The delivery authorization could not be verified. Please start the consent process again",
		StatusCode:       http.StatusUnauthorized,
	}

	PresentationBlockedError = ServiceError{
		Type:             ClientErrorType,
		Code:             "CSE-4020",
		Error:            "presentation_blocked",
		ErrorDescription: "The consent window was blocked. Please allow pop-ups for this site and try again",
		StatusCode:       http.StatusConflict,
	}

	ConsentRequiredError = ServiceError{
		Type:             ClientErrorType,
		Code:             "CSE-4030",
		Error:            "consent_required",
		ErrorDescription: "Please connect your delivery information before placing an order",
		StatusCode:       http.StatusForbidden,
	}

	ConsentDeniedError = ServiceError{
		Type:             ClientErrorType,
		Code:             "CSE-4031",
		Error:            "consent_denied",
		ErrorDescription: "Delivery information sharing was declined. The order cannot be placed",
		StatusCode:       http.StatusForbidden,
	}

	DelegationMissingError = ServiceError{
		Type:             ClientErrorType,
		Code:             "CSE-4032",
		Error:            "delegation_missing",
		ErrorDescription: "Delivery authorization is not available. Please start the consent process again",
		StatusCode:       http.StatusForbidden,
	}

	SubjectMismatchError = ServiceError{
		Type:             ClientErrorType,
		Code:             "CSE-4033",
		Error:            "subject_mismatch",
		ErrorDescription: "Consent can only be requested for the signed-in customer",
		StatusCode:       http.StatusForbidden,
	}

	TokenIssuanceFailedError = ServiceError{
		Type:             ServerErrorType,
		Code:             "SSE-5030",
		Error:            "token_issuance_failed",
		ErrorDescription: "The consent process could not be started. Please try again later",
		StatusCode:       http.StatusBadGateway,
	}

	ConsentStatusUnavailableError = ServiceError{
		Type:             ServerErrorType,
		Code:             "SSE-5031",
		Error:            "consent_status_unavailable",
		ErrorDescription: "Consent status could not be checked. Please try again later",
		StatusCode:       http.StatusBadGateway,
	}

	BrokerUnavailableError = ServiceError{
		Type:             ServerErrorType,
		Code:             "SSE-5032",
		Error:            "broker_unavailable",
		ErrorDescription: "Delivery authorization could not be obtained right now. Please try again later",
		StatusCode:       http.StatusBadGateway,
	}

	DispatchFailedError = ServiceError{
		Type:             ServerErrorType,
		Code:             "SSE-5040",
		Error:            "dispatch_failed",
		ErrorDescription: "The delivery request could not be sent",
		StatusCode:       http.StatusBadGateway,
	}

	OrderNotFoundError = ServiceError{
		Type:             ClientErrorType,
		Code:             "CSE-4004",
		Error:            "resource_not_found",
		ErrorDescription: "Order not found",
		StatusCode:       http.StatusNotFound,
	}
)

func CustomServiceError(baseError ServiceError, description string) *ServiceError {
	return &ServiceError{
		Type:             baseError.Type,
		Code:             baseError.Code,
		Error:            baseError.Error,
		ErrorDescription: description,
		StatusCode:       baseError.StatusCode,
	}
}

// Describe maps an error to the descriptor sent to clients. Order matters:
// an expired partner token is also a verification failure, and expiry is the
// more useful message.
func Describe(err error) *ServiceError {
	var described ServiceError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConfigurationMissing):
		described = ConfigurationMissingError
	case errors.Is(err, ErrBrokerUnavailable):
		described = BrokerUnavailableError
	case errors.Is(err, ErrTokenExpired):
		described = TokenExpiredError
	case errors.Is(err, ErrDelegationMissing):
		described = DelegationMissingError
	case errors.Is(err, ErrVerificationFailed):
		described = VerificationFailedError
	case errors.Is(err, ErrTokenInvalid):
		described = TokenInvalidError
	case errors.Is(err, ErrPresentationBlocked):
		described = PresentationBlockedError
	case errors.Is(err, ErrConsentDenied):
		described = ConsentDeniedError
	case errors.Is(err, ErrConsentRequired):
		described = ConsentRequiredError
	case errors.Is(err, ErrTokenIssuanceFailed):
		described = TokenIssuanceFailedError
	case errors.Is(err, ErrConsentStatusUnavailable):
		described = ConsentStatusUnavailableError
	case errors.Is(err, ErrDispatchFailed):
		described = DispatchFailedError
	case errors.Is(err, ErrSubjectMismatch):
		described = SubjectMismatchError
	case errors.Is(err, ErrOrderNotFound):
		described = OrderNotFoundError
	case errors.Is(err, ErrInvalidRequest):
		described = *CustomServiceError(InvalidRequestError, err.Error())
	default:
		described = InternalServerError
	}
	return &described
}
