package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wso2/bookstore-consent-api/internal/models"
	"github.com/wso2/bookstore-consent-api/internal/utils"
)

// CheckoutHandler handles checkout requests
type CheckoutHandler struct {
	checkout CheckoutAPI
}

// NewCheckoutHandler creates a new checkout handler instance
func NewCheckoutHandler(checkout CheckoutAPI) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

// EnterCheckout handles POST /checkout/enter
func (h *CheckoutHandler) EnterCheckout(c *gin.Context) {
	var request models.EnterCheckoutRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	subjectID, err := utils.ResolveSubject(c, request.SubjectID)
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	view, err := h.checkout.EnterCheckout(c.Request.Context(), utils.GetUserIDFromContext(c), subjectID, request.TenantID)
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	utils.SendOKResponse(c, view)
}

// SubmitOrder handles POST /checkout/orders
func (h *CheckoutHandler) SubmitOrder(c *gin.Context) {
	var request models.SubmitOrderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	subjectID, err := utils.ResolveSubject(c, request.SubjectID)
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}
	request.SubjectID = subjectID

	response, err := h.checkout.SubmitOrder(c.Request.Context(), utils.GetUserIDFromContext(c), &request)
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	utils.SendCreatedResponse(c, response)
}

// GetAttempt handles GET /checkout/attempts/:attemptId
func (h *CheckoutHandler) GetAttempt(c *gin.Context) {
	audits, err := h.checkout.GetAttempt(c.Request.Context(), c.Param("attemptId"), utils.GetUserIDFromContext(c))
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	utils.SendOKResponse(c, gin.H{"attemptId": c.Param("attemptId"), "transitions": audits})
}
