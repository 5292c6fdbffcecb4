package constants

const (
	AuthorizationHeaderName = "Authorization"
	ContentTypeHeaderName   = "Content-Type"
	CorrelationIDHeaderName = "X-Correlation-ID"
	UserIDHeaderName        = "X-User-ID"
	UserEmailHeaderName     = "X-User-Email"
	ContentTypeJSON         = "application/json"
	TokenTypeBearer         = "Bearer"
	APIBasePath             = "/api/v1"

	// Context keys set by middleware
	ContextKeyCorrelationID = "correlation_id"
	ContextKeyUserID        = "userID"
	ContextKeyUserEmail     = "userEmail"
)
