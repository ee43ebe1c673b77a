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

	"starshop/config"
	"starshop/internal/api"
	"starshop/internal/broker"
	"starshop/internal/delivery"
	"starshop/internal/notify"
	"starshop/internal/payment"
	"starshop/internal/pricing"
	"starshop/internal/redisclient"
	"starshop/internal/service"
	"starshop/internal/session"
	"starshop/internal/store"
	"starshop/internal/util"
	"starshop/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting starshop coordinator")

	tp, err := util.InitTracer("starshop", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	notifier := notify.NewBestEffort(notify.NewHTTPNotifier(cfg.Notify.BaseURL))
	paymentClient := payment.NewClient(cfg.Payment.BaseURL, cfg.Payment.APIToken)
	deliveryClient := delivery.NewClient(cfg.Delivery.BaseURL, cfg.Delivery.APIToken)

	gateway := service.NewPaymentGateway(db, paymentClient, notifier, eventPublisher, service.GatewayConfig{
		ProviderName:    cfg.Payment.ProviderName,
		WebhookSecret:   cfg.Payment.WebhookSecret,
		CallbackURL:     cfg.Payment.CallbackURL,
		FirstCheckDelay: cfg.Payment.FirstCheckDelay,
		RearmDelay:      cfg.Payment.RearmDelay,
	})

	calc := pricing.NewCalculator(cfg.Business.RubPerStar, cfg.Business.UsdtPerStar)
	orderService := service.NewOrderService(db, gateway, calc, notifier, eventPublisher,
		cfg.Business.MinQuantity, cfg.Business.MaxQuantity)

	flow := session.NewFlow(redisClient, cfg.Business.SessionTTL,
		cfg.Business.MinQuantity, cfg.Business.MaxQuantity)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	deliveryWorker := worker.NewDeliveryWorker(db, deliveryClient, notifier, eventPublisher,
		cfg.Delivery.Interval, cfg.Delivery.MaxRetries)
	go deliveryWorker.Run(workerCtx)

	paymentWatcher := worker.NewPaymentWatcher(db, gateway, worker.WatchConfig{
		Interval:   cfg.Payment.WatchInterval,
		Batch:      cfg.Payment.WatchBatch,
		MaxTries:   cfg.Payment.WatchMaxTries,
		StepDelay:  cfg.Payment.WatchStepDelay,
		CapDelay:   cfg.Payment.WatchCapDelay,
		ErrorDelay: cfg.Payment.WatchErrorDelay,
	})
	go paymentWatcher.Run(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, gateway, flow, cfg.Server.AdminToken)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()

	log.Println("Server exited")
}
