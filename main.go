package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/events"
	"messaging-service/internal/fanout"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/sanitize"
	"messaging-service/internal/service"
	"messaging-service/internal/spamgate"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "messaging-service", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode: %s", rabbitmq.PublisherMode(publisher))

	if cfg.AMQPURL != "" {
		amqpPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("amqp event publisher unavailable: %v", err)
		} else {
			observability.SetPublisher(amqpPublisher)
			defer amqpPublisher.Close()
		}
	}

	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.messaging", "messaging-service", cfg.Environment)

	threadRepo := repositories.NewThreadRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	operationRepo := repositories.NewOperationRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)

	sanitizer := sanitize.New()
	gate := spamgate.New(spamgate.Policy{
		RateLimit:    cfg.SpamRateLimit,
		RateWindow:   cfg.SpamRateWindow,
		DuplicateGap: cfg.SpamDuplicateGap,
		MaxLinks:     cfg.SpamMaxLinks,
		Blacklist:    cfg.SpamBlacklist,
	})
	stopJanitor := make(chan struct{})
	defer close(stopJanitor)
	go gate.StartJanitor(time.Minute, stopJanitor)

	bus := events.NewBus(1024)
	defer bus.Close()

	hub := ws.NewHub(cfg.TypingTimeout)

	svc := service.New(threadRepo, messageRepo, operationRepo, sanitizer, gate, bus, hub, service.Policy{
		EditWindow:          cfg.EditWindow,
		UndoWindow:          cfg.UndoWindow,
		PinLimit:            cfg.PinLimit,
		ReadReceiptSelfEcho: cfg.ReadReceiptSelfEcho,
	})
	hub.SetContactSource(svc)

	fan := fanout.New(notificationRepo, bus, hub)
	go fan.Run(ctx)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	threadHandler := handlers.NewThreadHandler(svc)
	messageHandler := handlers.NewMessageHandler(svc)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo)
	wsHandler := ws.NewHandler(hub, svc, verifier)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware("messaging-service"))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(middleware.RateLimit(cfg.HTTPRateLimit, cfg.HTTPRateBurst))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	authMiddleware := middleware.AuthMiddleware(verifier)

	api := router.Group("/", authMiddleware)
	{
		api.GET("/threads", threadHandler.ListThreads)
		api.POST("/threads", threadHandler.StartThread)
		api.GET("/threads/:thread_id/messages", threadHandler.GetThreadMessages)
		api.POST("/threads/:thread_id/messages", threadHandler.PostMessage)
		api.POST("/threads/:thread_id/read", threadHandler.MarkRead)
		api.POST("/threads/:thread_id/messages/bulk-delete", messageHandler.BulkDelete)
		api.POST("/threads/:thread_id/pin", threadHandler.PinThread)
		api.DELETE("/threads/:thread_id/pin", threadHandler.UnpinThread)
		api.POST("/threads/:thread_id/mute", threadHandler.MuteThread)
		api.DELETE("/threads/:thread_id/mute", threadHandler.UnmuteThread)
		api.POST("/threads/:thread_id/archive", threadHandler.ArchiveThread)
		api.DELETE("/threads/:thread_id/archive", threadHandler.UnarchiveThread)

		api.PATCH("/messages/:message_id", messageHandler.EditMessage)
		api.POST("/messages/:message_id/flag", messageHandler.FlagMessage)
		api.POST("/messages/:message_id/archive", messageHandler.ArchiveMessage)
		api.POST("/messages/:message_id/star", messageHandler.StarMessage)

		api.POST("/operations/:operation_id/undo", messageHandler.Undo)

		api.GET("/notifications", notificationHandler.List)
		api.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		api.POST("/notifications/read", notificationHandler.MarkRead)
		api.POST("/notifications/read-all", notificationHandler.MarkAllRead)
	}

	router.GET("/ws", wsHandler.Handle)

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	// Expired undo operations are unreachable; sweep them in the background.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := operationRepo.DeleteExpired(ctx, time.Now().Add(-24*time.Hour)); err != nil {
					log.Printf("operation gc failed: %v", err)
				}
			}
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("shutting down")
		cancel()
	}()

	log.Printf("messaging-service listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
