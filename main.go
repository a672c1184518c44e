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

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/revitek/scheduling-engine/internal/availability"
	"github.com/revitek/scheduling-engine/internal/booking"
	"github.com/revitek/scheduling-engine/internal/chatfsm"
	"github.com/revitek/scheduling-engine/internal/client"
	"github.com/revitek/scheduling-engine/internal/config"
	"github.com/revitek/scheduling-engine/internal/database"
	"github.com/revitek/scheduling-engine/internal/dispatch"
	"github.com/revitek/scheduling-engine/internal/handlers"
	"github.com/revitek/scheduling-engine/internal/lifecycle"
	"github.com/revitek/scheduling-engine/internal/middleware"
	"github.com/revitek/scheduling-engine/internal/realtime"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/internal/subscribers"
	"github.com/revitek/scheduling-engine/pkg/events"
	"github.com/revitek/scheduling-engine/pkg/logger"
	"github.com/revitek/scheduling-engine/pkg/scheduler"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	loc := cfg.Business.Location()

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("Failed to run database migrations", "error", err)
	}

	// Initialize Redis (optional for development)
	var redisClient *redis.Client
	redisClient, err = database.ConnectRedis(cfg.Redis)
	if err != nil {
		if cfg.Environment == "development" {
			logger.Warn("Failed to connect to Redis, continuing without Redis", "error", err)
			redisClient = nil
		} else {
			logger.Fatal("Failed to connect to Redis", "error", err)
		}
	}

	// Initialize NATS (optional for development)
	var natsConn *nats.Conn
	var eventPublisher *events.Publisher

	natsConn, err = events.Connect(cfg.NATS)
	if err != nil {
		if cfg.Environment == "development" {
			logger.Warn("Failed to connect to NATS, continuing without NATS", "error", err)
			natsConn = nil
			eventPublisher = events.NewNullPublisher(logger)
		} else {
			logger.Fatal("Failed to connect to NATS", "error", err)
		}
	} else {
		defer natsConn.Close()
		eventPublisher = events.NewPublisher(natsConn, logger)
	}

	// Repositories
	clientRepo := repository.NewClientRepository(db)
	profRepo := repository.NewProfessionalRepository(db)
	svcRepo := repository.NewServiceRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	resRepo := repository.NewReservationRepository(db)
	schedRepo := repository.NewScheduleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	sessionRepo := repository.NewChatSessionRepository(redisClient, db)

	// Core services
	generator := availability.NewGenerator(db, profRepo, schedRepo, slotRepo, eventPublisher, logger,
		cfg.Business.SlotLengthMinutes, loc)
	calculator := availability.NewCalculator(profRepo, svcRepo, slotRepo, resRepo, logger, loc)
	transactor := booking.NewTransactor(db, clientRepo, profRepo, svcRepo, slotRepo, resRepo, logger,
		booking.Config{
			LeadTimeDays:       cfg.Business.BookingLeadTimeDays,
			PhoneCountryPrefix: cfg.Business.PhoneCountryPrefix,
			Location:           loc,
		})
	dispatcher := dispatch.NewDispatcher(eventPublisher, logger)
	controller := lifecycle.NewController(db, resRepo, slotRepo, generator, dispatcher, logger,
		lifecycle.Config{
			ConfirmationTTLEmail: cfg.Business.ConfirmationTTLEmail,
			ConfirmationTTLChat:  cfg.Business.ConfirmationTTLChat,
			Location:             loc,
		})

	// Outbound ports
	mailer := client.NewNotificationServiceClient(cfg.Notifications, logger)
	chatClient := client.NewChatClient(cfg.Chat, logger)

	// Chat session machine
	chatMachine := chatfsm.NewMachine(sessionRepo, svcRepo, clientRepo, profRepo, resRepo,
		calculator, transactor, chatClient, logger, chatfsm.Config{
			Location:           loc,
			MaxFutureDays:      cfg.Business.MaxFutureBookingDays,
			PhoneCountryPrefix: cfg.Business.PhoneCountryPrefix,
			SessionTTL:         24 * time.Hour,
		})

	// Background scheduler: expiry sweeps and the nightly slot horizon.
	cronScheduler := scheduler.New(controller, generator, profRepo, logger)
	cronScheduler.Start()
	defer cronScheduler.Stop()

	// Handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient, natsConn, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(calculator, logger, loc)
	bookingHandler := handlers.NewBookingHandler(transactor, controller, resRepo, logger, loc)
	lifecycleHandler := handlers.NewLifecycleHandler(controller, bookingHandler, resRepo, logger)
	scheduleHandler := handlers.NewScheduleHandler(generator, schedRepo, auditRepo, logger, loc)
	chatWebhookHandler := handlers.NewChatWebhookHandler(eventPublisher, cfg.Chat.WebhookVerifyToken, logger)

	// Bus consumers: notifications, the chat worker, realtime fan-out.
	var subscriptionManager *realtime.SubscriptionManager
	if natsConn != nil {
		eventSubscriber := events.NewSubscriber(natsConn, logger)

		notificationHandlers := subscribers.NewNotificationHandlers(resRepo, profRepo, mailer, chatClient,
			logger, cfg.Notifications.ConfirmBaseURL)
		if err := notificationHandlers.Subscribe(eventSubscriber); err != nil {
			logger.Fatal("Failed to subscribe notification handlers", "error", err)
		}

		chatWorker := chatfsm.NewWorker(chatMachine, logger)
		if err := chatWorker.Start(eventSubscriber); err != nil {
			logger.Fatal("Failed to start chat worker", "error", err)
		}

		subscriptionManager = realtime.NewSubscriptionManager(logger, eventSubscriber)
		go subscriptionManager.Run()
		subscriptionManager.StartEventSubscriptions()
	} else {
		logger.Warn("Skipping bus consumers (no NATS connection)")
	}

	// Router
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.RequestLogging(logger, middleware.DefaultLoggingConfig()))

	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/health/live", healthHandler.Live)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/availability", availabilityHandler.GetAvailability)

		v1.POST("/reservations", bookingHandler.CreateReservation)
		v1.GET("/reservations/:id", bookingHandler.GetReservation)
		v1.GET("/reservations/:id/history", bookingHandler.GetReservationHistory)
		v1.POST("/reservations/:id/approve", lifecycleHandler.Approve)
		v1.POST("/reservations/:id/cancel", lifecycleHandler.Cancel)
		v1.POST("/reservations/:id/start", lifecycleHandler.Start)
		v1.POST("/reservations/:id/complete", lifecycleHandler.Complete)
		v1.POST("/reservations/:id/no-show", lifecycleHandler.NoShow)
		v1.POST("/reservations/:id/reconfirm", lifecycleHandler.Reconfirm)

		v1.GET("/confirm/:token", lifecycleHandler.ShowConfirmation)
		v1.POST("/confirm/:token", lifecycleHandler.ConfirmByToken)

		v1.POST("/professionals/:id/slots/regenerate", scheduleHandler.Regenerate)
		v1.POST("/professionals/:id/blocks", scheduleHandler.CreateBlock)
		v1.DELETE("/professionals/:id/blocks/:blockId", scheduleHandler.DeleteBlock)

		v1.GET("/chat/webhook", chatWebhookHandler.Verify)
		v1.POST("/chat/webhook", chatWebhookHandler.Receive)
	}

	if subscriptionManager != nil {
		wsHandler := handlers.NewWebSocketHandler(subscriptionManager, logger)
		router.GET("/ws", wsHandler.HandleConnections)
	}

	// HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting scheduling engine", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}
	logger.Info("Server exited")
}
