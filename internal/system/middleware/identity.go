package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wso2/bookstore-consent-api/internal/system/constants"
	"github.com/wso2/bookstore-consent-api/internal/utils"
	pkgutils "github.com/wso2/bookstore-consent-api/pkg/utils"
)

// RequireUser reads the shopper identity asserted by the identity provider
// gateway and rejects requests without one.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := pkgutils.SanitizeString(c.GetHeader(constants.UserIDHeaderName))
		if err := pkgutils.ValidateUserID(userID); err != nil {
			utils.SendUnauthorizedError(c, "A signed-in user is required")
			c.Abort()
			return
		}
		c.Set(constants.ContextKeyUserID, userID)

		if email := pkgutils.SanitizeString(c.GetHeader(constants.UserEmailHeaderName)); email != "" {
			if pkgutils.ValidateEmail(email) == nil {
				c.Set(constants.ContextKeyUserEmail, email)
			}
		}
		c.Next()
	}
}
