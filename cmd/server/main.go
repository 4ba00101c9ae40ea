package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/internal/database"
	"github.com/docshare/conduit/internal/events"
	"github.com/docshare/conduit/internal/handlers"
	"github.com/docshare/conduit/internal/middleware"
	"github.com/docshare/conduit/internal/resolver"
	"github.com/docshare/conduit/internal/services"
	"github.com/docshare/conduit/internal/storage"
	"github.com/docshare/conduit/internal/txn"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/docshare/conduit/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	// Records without inline metadata are skipped when no object store is configured.
	var metadataSource handlers.MetadataSource
	if cfg.MinIO.Endpoint != "" {
		storageClient, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("minio initialization failed: %v", err)
		}
		if err := storageClient.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("failed ensuring minio bucket: %v", err)
		}
		metadataSource = storageClient
	}

	notificationService := services.NewNotificationService(db, cfg.Worker)
	driveService := services.NewDriveService(db, cfg.Tree)

	pool := txn.NewSessionPool(db, cfg.Lock)
	pathResolver := resolver.New(pool, notificationService, cfg.Tree)

	dispatcher := events.NewDispatcher(func(ctx context.Context, ev events.UploadEvent) error {
		_, err := pathResolver.Resolve(ctx, ev)
		return err
	}, cfg.Worker)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := dispatcher.Run(workerCtx); err != nil {
			logger.Error("dispatcher_stopped", err, nil)
		}
	}()

	app := fiber.New(fiber.Config{BodyLimit: 4 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.RequestLogger())

	handlers.Routes{
		Auth:          middleware.NewAuthMiddleware(db),
		WebhookSecret: cfg.Webhook.AuthToken,
		Webhook:       handlers.NewWebhookHandler(metadataSource, dispatcher),
		Drives:        handlers.NewDrivesHandler(driveService),
		Notifications: handlers.NewNotificationsHandler(notificationService),
	}.Register(app)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":          cfg.Server.Port,
		"address":       listenAddr,
		"workers":       cfg.Worker.Count,
		"max_sessions":  cfg.Lock.MaxSessions,
		"lock_timeout":  cfg.Lock.Timeout.String(),
		"object_lookup": metadataSource != nil,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			dispatcher.Close()
			<-workersDone
			notificationService.Close()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
			stopWorkers()
		}
	case err := <-errCh:
		stopWorkers()
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
	stopWorkers()
}
