package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-api/internal/config"
	"marketplace-api/internal/db"
	"marketplace-api/internal/events"
	"marketplace-api/internal/handlers"
	"marketplace-api/internal/logger"
	"marketplace-api/internal/router"
	"marketplace-api/internal/services"
	"marketplace-api/internal/storage"

	"github.com/shopspring/decimal"
	stripeclient "github.com/stripe/stripe-go/v81/client"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.InitLogger(cfg.LogLevel, cfg.LogPretty)
	log.Info().Msg("Starting marketplace API")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.JWTSecret == config.DefaultJWTSecret {
		log.Warn().Msg("Using the default JWT secret; development only")
	}

	decimal.MarshalJSONWithoutQuotes = true

	database, err := db.InitDB(cfg.DBUrl)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer database.Close()

	if err := db.RunMigrations(database, log); err != nil {
		log.Fatal().Err(err).Msg("Migrations failed")
	}

	ctx := context.Background()

	images, closeImages, err := storage.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Image store initialisation failed")
	}
	defer closeImages()

	publisher, err := events.New(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Event publisher initialisation failed")
	}
	defer publisher.Close()

	authService := services.NewAuthService(cfg.JWTSecret, cfg.TokenTTL, log)
	userService := services.NewUserService(database, log)
	productService := services.NewProductService(database, images, log)
	cartService := services.NewCartService(database, log)
	orderService := services.NewOrderService(database, publisher, log)

	var intents services.PaymentIntentCreator
	if cfg.StripeSecretKey != "" {
		intents = stripeclient.New(cfg.StripeSecretKey, nil).PaymentIntents
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, payment intents are disabled")
	}
	paymentService := services.NewPaymentService(intents, orderService, cfg.PaymentCurrency, cfg.StripeWebhookSecret, log)

	h := router.Handlers{
		Auth:     handlers.NewAuthHandler(userService, authService, log),
		Products: handlers.NewProductHandler(productService, cfg.MaxUploadBytes, log),
		Carts:    handlers.NewCartHandler(cartService, log),
		Orders:   handlers.NewOrderHandler(orderService, log),
		Payments: handlers.NewPaymentHandler(paymentService, log),
	}

	opts := router.Options{
		RateLimit: rate.Limit(cfg.RateLimitRPS),
		RateBurst: cfg.RateLimitBurst,
	}
	if cfg.ImageBackend == config.ImageBackendLocal {
		opts.UploadDir = cfg.UploadDir
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.SetupRouter(h, authService, opts, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Msgf("Server listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
