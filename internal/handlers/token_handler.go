package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/utils"
)

// TokenHandler handles the storefront-internal token endpoints. The signing
// key never leaves the server.
type TokenHandler struct {
	tokens TokenAPI
}

// NewTokenHandler creates a new token handler instance
func NewTokenHandler(tokens TokenAPI) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// IssueAuthorizationToken handles POST /tokens/authorization
func (h *TokenHandler) IssueAuthorizationToken(c *gin.Context) {
	var request models.IssueAuthorizationTokenRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	subjectID, err := utils.ResolveSubject(c, request.SubjectID)
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	issued, err := h.tokens.IssueAuthorizationToken(c.Request.Context(), subjectID, request.TenantID)
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	utils.SendOKResponse(c, issued)
}

// VerifyPartnerToken handles POST /tokens/partner/verify
func (h *TokenHandler) VerifyPartnerToken(c *gin.Context) {
	var request models.VerifyPartnerTokenRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	response, err := h.tokens.VerifyPartnerToken(request.Token)
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	utils.SendOKResponse(c, response)
}

// ConsentStatus handles POST /consent/status
func (h *TokenHandler) ConsentStatus(c *gin.Context) {
	var request models.ConsentStatusRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	subjectID, err := utils.ResolveSubject(c, request.SubjectID)
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	status, err := h.tokens.ConsentStatus(c.Request.Context(), subjectID, request.TenantID)
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	utils.SendOKResponse(c, status)
}
