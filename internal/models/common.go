package models

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Common error codes
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeValidationError = "VALIDATION_ERROR"
)

// ListResponse wraps a page of results with pagination metadata
type ListResponse struct {
	Data     interface{} `json:"data"`
	Metadata interface{} `json:"metadata"`
}
