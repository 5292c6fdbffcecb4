package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/wso2/bookstore-consent-api/internal/broker"
	"github.com/wso2/bookstore-consent-api/internal/config"
	"github.com/wso2/bookstore-consent-api/internal/consentcache"
	"github.com/wso2/bookstore-consent-api/internal/dao"
	"github.com/wso2/bookstore-consent-api/internal/database"
	"github.com/wso2/bookstore-consent-api/internal/delegation"
	"github.com/wso2/bookstore-consent-api/internal/dispatch"
	"github.com/wso2/bookstore-consent-api/internal/keys"
	"github.com/wso2/bookstore-consent-api/internal/negotiator"
	"github.com/wso2/bookstore-consent-api/internal/queue"
	"github.com/wso2/bookstore-consent-api/internal/router"
	"github.com/wso2/bookstore-consent-api/internal/service"
)

// Version information (set by build script)
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	// Set Gin to release mode by default (can be overridden by GIN_MODE env var)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	logger.WithFields(logrus.Fields{
		"version":    version,
		"build_date": buildDate,
	}).Info("Starting Bookstore Storefront API Server...")

	// Load configuration. CONFIG_PATH wins; otherwise configs/config.yaml is searched for.
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger.WithFields(logrus.Fields{
		"config_path": configPath,
		"log_level":   logger.GetLevel().String(),
	}).Info("Configuration loaded successfully")

	// Initialize database
	db, err := database.Initialize(&cfg.Database.Store, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		logger.WithError(err).Fatal("Database health check failed")
	}

	logger.Info("Database connection established successfully")

	// Initialize DAOs
	orderDAO := dao.NewOrderDAO(db)
	cartDAO := dao.NewCartDAO(db)
	auditDAO := dao.NewCheckoutAuditDAO(db)

	// Token issuance and partner token verification
	keyProvider := keys.NewProvider(cfg.Keys)
	brokerClient := broker.NewClient(&cfg.ConsentBroker, logger)
	defer brokerClient.Close()

	verifier := delegation.NewVerifier(keyProvider, cfg.Tokens.DelegationMaxLifetime, logger)
	tokenService := service.NewTokenService(keyProvider, brokerClient, verifier, cfg.Tokens, cfg.Storefront.TenantID, logger)

	consentCache, err := consentcache.New(cfg.Cache, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize consent cache")
	}

	// Delivery dispatch, with out-of-band retries when the queue is enabled
	partnerClient := dispatch.NewPartnerClient(&cfg.Delivery, logger)
	defer partnerClient.Close()

	var scheduler dispatch.RetryScheduler
	var queueClient *asynq.Client
	if cfg.Queue.Enabled {
		queueClient = queue.NewClient(&cfg.Queue)
		defer queueClient.Close()
		scheduler = dispatch.NewAsynqScheduler(queueClient, cfg.Queue.MaxRetry, cfg.Queue.RetryDelay)
	}
	dispatcher := dispatch.NewDispatcher(partnerClient, scheduler, cfg.Storefront.MerchantName, logger)

	// Initialize services
	checkoutService := service.NewCheckoutService(service.CheckoutDependencies{
		Orders:     orderDAO,
		Carts:      cartDAO,
		Audits:     auditDAO,
		DB:         db,
		Consent:    tokenService,
		Delegation: tokenService,
		Dispatcher: dispatcher,
		Cache:      consentCache,
	}, cfg.Storefront.TenantID, cfg.Delivery.RetainCredential, logger)
	orderService := service.NewOrderService(orderDAO, auditDAO, logger)
	consentNegotiator := negotiator.New(tokenService, &cfg.ConsentBroker, logger)

	logger.Info("Services initialized successfully")

	var queueManager *queue.QueueManager
	if cfg.Queue.Enabled {
		queueManager = queue.NewQueueManager(&cfg.Queue, map[string]asynq.Handler{
			dispatch.TypeDeliveryRetry: dispatch.NewRetryProcessor(orderDAO, tokenService, dispatcher, cfg.Delivery.RetainCredential, logger),
		}, logger)
		if err := queueManager.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start task queue worker")
		}
	}

	// Setup router
	ginRouter := router.SetupRouter(router.Dependencies{
		Tokens:     tokenService,
		Checkout:   checkoutService,
		Orders:     orderService,
		Negotiator: consentNegotiator,
		Health:     db,
		CORS:       cfg.CORS,
		Logger:     logger,
	})

	// Configure HTTP server
	serverAddr := cfg.Server.GetServerAddress()
	server := &http.Server{
		Addr:           serverAddr,
		Handler:        ginRouter,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"hostname": cfg.Server.Hostname,
			"port":     cfg.Server.Port,
			"addr":     serverAddr,
		}).Info("Starting HTTP server...")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	logger.WithField("address", serverAddr).Info("Server is running")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if queueManager != nil {
		queueManager.Shutdown()
	}

	logger.Info("Server exited gracefully")
}
