package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/handlers"
	"github.com/wso2/bookstore-consent-api/internal/negotiator"
	"github.com/wso2/bookstore-consent-api/internal/system/constants"
	"github.com/wso2/bookstore-consent-api/internal/system/middleware"
)

// Dependencies holds what the routes are served by
type Dependencies struct {
	Tokens     handlers.TokenAPI
	Checkout   handlers.CheckoutAPI
	Orders     handlers.OrderAPI
	Negotiator *negotiator.Negotiator
	Health     handlers.HealthChecker
	CORS       config.CORSConfig
	Logger     *logrus.Logger
}

// SetupRouter configures all API routes
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationIDMiddleware())
	if deps.CORS.Enabled {
		router.Use(middleware.CORSMiddleware(deps.CORS))
	}

	// Health check
	healthHandler := handlers.NewHealthHandler(deps.Health)
	router.GET("/health", healthHandler.Health)

	// Create handlers
	tokenHandler := handlers.NewTokenHandler(deps.Tokens)
	checkoutHandler := handlers.NewCheckoutHandler(deps.Checkout)
	orderHandler := handlers.NewOrderHandler(deps.Orders)

	var allowedOrigins []string
	if deps.CORS.Enabled {
		allowedOrigins = deps.CORS.AllowedOrigins
	}
	negotiationHandler := handlers.NewNegotiationHandler(deps.Negotiator, deps.Checkout, allowedOrigins, deps.Logger)

	// API v1 routes, all behind the identity provider gateway
	v1 := router.Group(constants.APIBasePath)
	v1.Use(middleware.RequireUser())
	{
		tokens := v1.Group("/tokens")
		{
			tokens.POST("/authorization", tokenHandler.IssueAuthorizationToken)
			tokens.POST("/partner/verify", tokenHandler.VerifyPartnerToken)
		}

		consent := v1.Group("/consent")
		{
			consent.POST("/status", tokenHandler.ConsentStatus)
			consent.GET("/negotiations", negotiationHandler.Negotiate)
		}

		checkout := v1.Group("/checkout")
		{
			checkout.POST("/enter", checkoutHandler.EnterCheckout)
			checkout.POST("/orders", checkoutHandler.SubmitOrder)
			checkout.GET("/attempts/:attemptId", checkoutHandler.GetAttempt)
		}

		orders := v1.Group("/orders")
		{
			orders.GET("", orderHandler.ListOrders)
			orders.GET("/:orderId", orderHandler.GetOrder)
		}
	}

	return router
}
