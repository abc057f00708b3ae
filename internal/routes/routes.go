package routes

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/seludoto/dolesecommerce/internal/cache"
	"github.com/seludoto/dolesecommerce/internal/config"
	"github.com/seludoto/dolesecommerce/internal/handlers"
	"github.com/seludoto/dolesecommerce/internal/metrics"
	"github.com/seludoto/dolesecommerce/internal/middleware"
	"github.com/seludoto/dolesecommerce/internal/models"
	"github.com/seludoto/dolesecommerce/internal/services"
)

// Register wires up all HTTP routes and returns the expiry worker for the
// caller to run.
func Register(app *fiber.App, db *gorm.DB, c *cache.Cache, cfg *config.Config) *services.ExpiryWorker {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)

	ledger := services.NewLedgerService(db)
	orders := services.NewOrderService(db)
	rates := services.NewRatesService(db, c)
	reconciler := services.NewReconciler(db, orders, telegramService)

	darajaClient := services.NewDarajaClient(cfg, c)
	mpesaService := services.NewMpesaService(darajaClient, ledger, cfg)

	piClient := services.NewPiClient(cfg.PiAPIKey, cfg.PiSandbox)
	piService := services.NewPiService(piClient, rates, ledger, reconciler, cfg)

	registry := services.Registry{
		models.ProviderMpesa: mpesaService,
		models.ProviderPi:    piService,
	}

	callbackService := services.NewCallbackService(ledger, reconciler, c)

	authHandler := handlers.NewAuthHandler(db, cfg)
	orderHandler := handlers.NewOrderHandler(db)
	paymentHandler := handlers.NewPaymentHandler(mpesaService, registry, ledger, orders, callbackService)
	piHandler := handlers.NewPiHandler(piService, orders)
	rateHandler := handlers.NewRateHandler(rates)
	callbackHandler := handlers.NewCallbackHandler(callbackService)
	adminHandler := handlers.NewAdminHandler(ledger, reconciler, piService)

	app.Get("/health", func(fc *fiber.Ctx) error {
		return fc.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")

	// Provider callbacks. The secret path segment is the credential;
	// providers cannot send custom headers.
	callbacks := api.Group("/callbacks/:secret", middleware.WebhookAuthMiddleware(cfg))
	callbacks.Post("/mpesa/stk", callbackHandler.MpesaStk)
	callbacks.Post("/mpesa/b2c-result", callbackHandler.MpesaB2CResult)
	callbacks.Post("/mpesa/b2c-timeout", callbackHandler.MpesaB2CTimeout)
	callbacks.Post("/pi", callbackHandler.Pi)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Payment routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Post("/orders", orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)

	payments := protected.Group("/payments")
	payments.Post("/stk-push", paymentHandler.StkPush)
	payments.Post("/payout", paymentHandler.Payout)
	payments.Get("/", paymentHandler.List)
	payments.Get("/:id", paymentHandler.Get)
	payments.Post("/:id/query", paymentHandler.Query)

	pi := protected.Group("/pi")
	pi.Get("/quote", piHandler.Quote)
	pi.Post("/payments", piHandler.Create)
	pi.Post("/payments/:id/approve", piHandler.Approve)
	pi.Post("/payments/:id/complete", piHandler.Complete)
	pi.Post("/payments/:id/cancel", piHandler.Cancel)

	ratesGroup := protected.Group("/rates")
	ratesGroup.Get("/", rateHandler.Latest)
	ratesGroup.Get("/history", rateHandler.List)

	// Admin surface
	admin := api.Group("/admin", middleware.AdminKeyMiddleware(cfg))
	admin.Post("/rates", rateHandler.Create)
	admin.Post("/payments/:id/override", adminHandler.Override)
	admin.Get("/pi/incomplete", adminHandler.IncompletePiPayments)

	return services.NewExpiryWorker(ledger, reconciler, cfg)
}
