package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/skyfare/internal/config"
	"github.com/example/skyfare/internal/database"
	"github.com/example/skyfare/internal/routes"
	"github.com/example/skyfare/internal/storage"
	"github.com/example/skyfare/internal/worker"
)

func main() {
	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL)

	app := fiber.New(fiber.Config{
		AppName: "Skyfare Backend",
	})

	app.Use(recover.New())
	app.Use(logger.New())

	paymentService := routes.Register(app, db, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconciler := worker.NewReconciler(paymentService, storage.NewPaymentStore(db), cfg.ReconcileInterval, cfg.ReconcileAfter)
	go func() {
		if err := reconciler.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("reconciler stopped: %v", err)
		}
	}()

	log.Printf("Starting server on :%s (paymob mode: %s)", cfg.AppPort, cfg.PaymobMode)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
