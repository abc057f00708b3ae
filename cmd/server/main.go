package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/seludoto/dolesecommerce/internal/cache"
	"github.com/seludoto/dolesecommerce/internal/config"
	"github.com/seludoto/dolesecommerce/internal/database"
	"github.com/seludoto/dolesecommerce/internal/routes"
)

func main() {
	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL)

	redisCache, err := cache.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisCache.Close()

	app := fiber.New(fiber.Config{
		AppName: "Doles Payments",
	})

	app.Use(recover.New())
	app.Use(logger.New())

	expiry := routes.Register(app, db, redisCache, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go expiry.Run(ctx)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down")
		if err := app.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
