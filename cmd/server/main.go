package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/condoadmin/backend/internal/config"
	"github.com/condoadmin/backend/internal/database"
	"github.com/condoadmin/backend/internal/handlers"
	"github.com/condoadmin/backend/internal/middleware"
	"github.com/condoadmin/backend/internal/services"
	"github.com/condoadmin/backend/internal/storage"
	"github.com/condoadmin/backend/pkg/logger"
	"github.com/condoadmin/backend/pkg/utils"
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

	store := storage.NewLocalStorage(cfg.Upload.Dir)
	registry := services.NewFileRegistry(db, store)
	auditService := services.NewAuditService(db)

	filesHandler := handlers.NewFilesHandler(registry, store, auditService, cfg.Upload)

	var janitor *services.Janitor
	if cfg.Cleanup.Enabled {
		janitor, err = services.NewJanitor(registry)
		if err != nil {
			log.Fatalf("janitor initialization failed: %v", err)
		}
		if err := janitor.Start(cfg.Cleanup.Interval); err != nil {
			log.Fatalf("janitor start failed: %v", err)
		}
	}

	bodyLimit := int(cfg.Upload.MaxFileSizeBytes)*cfg.Upload.MaxFilesPerRequest + 1024*1024

	app := fiber.New(fiber.Config{BodyLimit: bodyLimit})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	fileRoutes := api.Group("/files", middleware.RequireAuth)
	fileRoutes.Post("/upload", filesHandler.UploadFiles)
	fileRoutes.Get("/stats", filesHandler.Stats)
	fileRoutes.Post("/cleanup", middleware.AdminOnly, filesHandler.Cleanup)
	fileRoutes.Get("/", filesHandler.List)
	fileRoutes.Get("/:id", filesHandler.Download)
	fileRoutes.Delete("/:id/permanent", middleware.AdminOnly, filesHandler.PermanentDelete)
	fileRoutes.Delete("/:id", filesHandler.Delete)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":       cfg.Server.Port,
		"address":    listenAddr,
		"upload_dir": cfg.Upload.Dir,
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
		if janitor != nil {
			_ = janitor.Stop()
		}
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
