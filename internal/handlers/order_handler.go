package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wso2/bookstore-consent-api/internal/utils"
)

// OrderHandler handles order history requests
type OrderHandler struct {
	orders OrderAPI
}

// NewOrderHandler creates a new order handler instance
func NewOrderHandler(orders OrderAPI) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// ListOrders handles GET /orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	response, err := h.orders.ListOrders(c.Request.Context(), utils.GetUserIDFromContext(c), limit, offset)
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	utils.SendOKResponse(c, response)
}

// GetOrder handles GET /orders/:orderId
func (h *OrderHandler) GetOrder(c *gin.Context) {
	response, err := h.orders.GetOrder(c.Request.Context(), c.Param("orderId"), utils.GetUserIDFromContext(c))
	if err != nil {
		utils.SendServiceError(c, err)
		return
	}

	utils.SendOKResponse(c, response)
}
