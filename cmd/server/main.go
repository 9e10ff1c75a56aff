package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-payment-service/config"
	"course-payment-service/internal/api"
	"course-payment-service/internal/broker"
	"course-payment-service/internal/gateway"
	"course-payment-service/internal/redisclient"
	"course-payment-service/internal/service"
	"course-payment-service/internal/store"
	"course-payment-service/internal/util"
	"course-payment-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "course-payment-service"

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting course payment service")

	tp, err := util.InitTracer(serviceName, cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.RunMigrations {
		if err := db.Migrate(); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	if cfg.Razorpay.KeyID == "" || cfg.Razorpay.KeySecret == "" {
		logger.Warn("Razorpay credentials missing, order creation will fail")
	}
	if cfg.Razorpay.WebhookSecret == "" {
		logger.Warn("RAZORPAY_WEBHOOK_SECRET not set, webhook endpoint disabled")
	}
	razorpay := gateway.NewRazorpayClient(cfg.Razorpay.BaseURL, cfg.Razorpay.KeyID,
		cfg.Razorpay.KeySecret, cfg.Razorpay.Timeout)

	enroller := service.NewEnroller(db, eventPublisher)
	paymentService, err := service.NewPaymentService(db, db, enroller, razorpay, eventPublisher, redisClient,
		service.PaymentSettings{
			Currency:      cfg.Razorpay.Currency,
			WebhookSecret: cfg.Razorpay.WebhookSecret,
		})
	if err != nil {
		logger.Fatal("Failed to create payment service", zap.Error(err))
	}
	invoiceService, err := service.NewInvoiceService(db, db)
	if err != nil {
		logger.Fatal("Failed to create invoice service", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	invoiceConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments, cfg.Kafka.InvoiceGroup)
	invoiceWorker := worker.NewInvoiceWorker(invoiceConsumer, invoiceService)
	go func() {
		if err := invoiceWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Invoice worker error", zap.Error(err))
		}
	}()

	retryConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments, cfg.Kafka.EnrollmentRetryGroup)
	retryWorker := worker.NewEnrollmentRetryWorker(retryConsumer, enroller)
	go func() {
		if err := retryWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Enrollment retry worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router, err := api.NewEngine(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Fatal("Failed to configure router", zap.Error(err))
	}
	handler := api.NewHandler(paymentService, enroller, invoiceService, api.Options{
		JWTSecret:  cfg.Auth.JWTSecret,
		Limiter:    redisClient,
		RateLimit:  cfg.RateLimit.Limit,
		RateWindow: cfg.RateLimit.Window,
		Readiness: map[string]api.Pinger{
			"database": db,
			"redis":    redisClient,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := invoiceWorker.Stop(); err != nil {
		logger.Warn("Error stopping invoice worker", zap.Error(err))
	}
	if err := retryWorker.Stop(); err != nil {
		logger.Warn("Error stopping enrollment retry worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
