package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/bookstore-consent-api/internal/system/constants"
	"github.com/wso2/bookstore-consent-api/internal/system/error/serviceerror"
)

func signedInContext(userID string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(constants.ContextKeyUserID, userID)
	return c
}

func TestResolveSubject(t *testing.T) {
	c := signedInContext("user123")

	subjectID, err := ResolveSubject(c, "")
	require.NoError(t, err)
	assert.Equal(t, "user123", subjectID)

	subjectID, err = ResolveSubject(c, "user123")
	require.NoError(t, err)
	assert.Equal(t, "user123", subjectID)

	_, err = ResolveSubject(c, "user456")
	assert.ErrorIs(t, err, serviceerror.ErrSubjectMismatch)
}

func TestSendServiceError_SubjectMismatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(constants.ContextKeyUserID, "user123")

	_, err := ResolveSubject(c, "user456")
	SendServiceError(c, err)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), serviceerror.SubjectMismatchError.Code)
	assert.NotContains(t, w.Body.String(), "user456")
}
