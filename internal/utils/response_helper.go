package utils

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/system/constants"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
	pkgutils "github.com/wso2/bookstore-consent-api/pkg/utils"
)

// SendErrorResponse sends an error JSON response
func SendErrorResponse(c *gin.Context, statusCode int, errCode, message, details string) {
	c.JSON(statusCode, models.ErrorResponse{
		Code:    errCode,
		Message: message,
		Details: details,
	})
}

// SendServiceError maps err onto its descriptor and sends it. The raw error
// text is never sent, except for invalid request details.
func SendServiceError(c *gin.Context, err error) {
	desc := serviceerror.Describe(err)
	if desc == nil {
		desc = &serviceerror.InternalServerError
	}
	c.JSON(desc.StatusCode, models.ErrorResponse{
		Code:    desc.Code,
		Message: desc.Error,
		Details: desc.ErrorDescription,
	})
}

// SendCreatedResponse sends a 201 Created response
func SendCreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// SendOKResponse sends a 200 OK response
func SendOKResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// SendBadRequestError sends a 400 Bad Request error
func SendBadRequestError(c *gin.Context, message, details string) {
	SendErrorResponse(c, http.StatusBadRequest, models.ErrCodeBadRequest, message, details)
}

// SendUnauthorizedError sends a 401 Unauthorized error
func SendUnauthorizedError(c *gin.Context, message string) {
	SendErrorResponse(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, message, "")
}

// SendValidationError sends a validation error response
func SendValidationError(c *gin.Context, details string) {
	SendErrorResponse(c, http.StatusBadRequest, models.ErrCodeValidationError, "Validation failed", details)
}

// GetUserIDFromContext extracts the authenticated user ID from context
func GetUserIDFromContext(c *gin.Context) string {
	return c.GetString(constants.ContextKeyUserID)
}

// ResolveSubject binds a requested subject to the signed-in user. An empty
// request means the user itself; any other subject is refused.
func ResolveSubject(c *gin.Context, requested string) (string, error) {
	userID := GetUserIDFromContext(c)
	if requested == "" || requested == userID {
		return userID, nil
	}
	return "", fmt.Errorf("%w: subject %q requested by user %q", serviceerror.ErrSubjectMismatch, requested, userID)
}

// GetCorrelationIDFromContext extracts correlation ID from context
func GetCorrelationIDFromContext(c *gin.Context) string {
	if correlationID := c.GetString(constants.ContextKeyCorrelationID); correlationID != "" {
		return correlationID
	}
	return pkgutils.GenerateID()
}
