package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/skyfare/internal/config"
	"github.com/example/skyfare/internal/handlers"
	"github.com/example/skyfare/internal/middleware"
	"github.com/example/skyfare/internal/services"
	"github.com/example/skyfare/internal/storage"
)

// Register wires up all HTTP routes and returns the payment service for
// background consumers (the reconciliation worker).
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) *services.PaymentService {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	paymobClient := services.NewPaymobClient(cfg)
	paymentStore := storage.NewPaymentStore(db)
	paymentService := services.NewPaymentService(paymobClient, paymentStore, telegramService, cfg.PaymobHMACSecret)
	flightService := services.NewFlightService(cfg)

	authHandler := handlers.NewAuthHandler(db, cfg)
	bookingHandler := handlers.NewBookingHandler(db)
	flightHandler := handlers.NewFlightHandler(flightService)
	paymentHandler := handlers.NewPaymentHandler(db, paymentService, cfg)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Flight search
	api.Get("/flights/search", flightHandler.Search)

	// Payment routes. The callback is authenticated only by HMAC; the
	// redirect target is hit by the user's browser after hosted checkout.
	payment := api.Group("/payment")
	payment.Post("/callback", paymentHandler.Callback)
	payment.Get("/callback-redirect", paymentHandler.CallbackRedirect)
	payment.Get("/status/:orderId", paymentHandler.Status)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Post("/bookings", bookingHandler.CreateBooking)
	protected.Get("/bookings", bookingHandler.ListBookings)
	protected.Get("/bookings/:id", bookingHandler.GetBooking)

	protected.Post("/payment/create-intent", paymentHandler.CreateIntent)
	protected.Post("/payment/refund", paymentHandler.Refund)

	return paymentService
}
