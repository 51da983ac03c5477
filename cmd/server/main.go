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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/shuleplus/backend/internal/cache"
	"github.com/shuleplus/backend/internal/config"
	"github.com/shuleplus/backend/internal/handler"
	appMiddleware "github.com/shuleplus/backend/internal/middleware"
	"github.com/shuleplus/backend/internal/repository"
	"github.com/shuleplus/backend/internal/service"
	"github.com/shuleplus/backend/internal/ws"
	"github.com/shuleplus/backend/pkg/crypto"
	"github.com/shuleplus/backend/pkg/payment"
)

func main() {
	// Load .env file if present (for local development)
	_ = godotenv.Load()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize database
	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Database error: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := repository.RunMigrations(ctx, db); err != nil {
		log.Fatalf("❌ Migration error: %v", err)
	}
	log.Println("✅ Database connected & migrated")

	// Initialize encryptor (phone numbers at rest)
	enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("❌ Encryption error: %v", err)
	}

	// Subscription cache: Redis when configured, in-process otherwise
	var subCache cache.Cache
	var redisCache *cache.Redis
	if cfg.RedisURL != "" {
		redisCache, err = cache.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Redis error: %v", err)
		}
		if err := redisCache.Ping(ctx); err != nil {
			log.Fatalf("❌ Redis error: %v", err)
		}
		subCache = redisCache
		log.Println("✅ Redis connected")
	} else {
		subCache = cache.NewMemory()
		log.Println("⚠️  REDIS_URL not set, using in-process subscription cache")
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	// Auth
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPassword, userRepo)
	if err := authSvc.SeedAdmin(ctx); err != nil {
		log.Fatalf("❌ Admin seed error: %v", err)
	}

	// Payment gateway: real client when configured, mock otherwise
	var gateway payment.Gateway
	if cfg.GatewayBaseURL != "" {
		gateway = payment.NewZenoPayClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
		log.Println("✅ Payment gateway configured")
	} else {
		gateway = payment.NewMockGateway()
		log.Println("⚠️  GATEWAY_BASE_URL not set, using mock payment gateway")
	}

	// Subscription state + confirmation polling
	store := service.NewStateStore()
	subSvc := service.NewSubscriptionService(subRepo, orderRepo, subCache, store)
	poller := service.NewPoller(ctx, gateway, subSvc, service.DefaultPollConfig())
	paySvc := service.NewPaymentService(gateway, orderRepo, userRepo, subSvc, poller, enc)

	// Background expiry sweep
	service.NewSweeper(subRepo, time.Hour).Start(ctx)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authSvc, subSvc)
	healthHandler := handler.NewHealthHandler(db, redisCache)
	plansHandler := handler.NewPlansHandler()
	paymentHandler := handler.NewPaymentHandler(paySvc, poller, cfg.WebhookSecret)
	subHandler := handler.NewSubscriptionHandler(subSvc)
	contentHandler := handler.NewContentHandler()
	userHandler := handler.NewUserHandler(authSvc)
	adminHandler := handler.NewAdminHandler(db, authSvc)
	eventsHandler := ws.NewEventsHandler(poller, authSvc)

	// Build router
	r := chi.NewRouter()

	// Global middleware
	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limiter (20 req/sec per IP, burst of 40)
	globalRL := appMiddleware.NewRateLimiter(20, 40)
	r.Use(globalRL.Middleware())

	// Health check and public routes (no auth)
	r.Get("/health", healthHandler.Check)
	r.Get("/api/plans", plansHandler.List)
	r.Post("/api/payments/webhook", paymentHandler.Webhook) // Public gateway callback

	// Auth routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.StrictRateLimiter())
		r.Post("/api/auth/login", authHandler.Login)
	})

	// Protected API routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(authSvc))

		// Auth
		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/auth/me", authHandler.Me)

		// Payments
		r.Post("/api/payments", paymentHandler.Initiate)
		r.Get("/api/payments/{orderId}/status", paymentHandler.Status)
		r.Post("/api/payments/{orderId}/resume", paymentHandler.Resume)
		r.Post("/api/payments/{orderId}/cancel", paymentHandler.Cancel)
		r.Post("/api/payments/{orderId}/retry", paymentHandler.Retry)

		// Subscription
		r.Get("/api/subscription", subHandler.Get)

		// Subscription-gated content
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.AccessGate(subSvc))
			r.Get("/api/quizzes", contentHandler.Quizzes)
			r.Get("/api/lessons", contentHandler.Lessons)
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.AdminOnly)
			r.Get("/api/admin/stats", adminHandler.GetStats)
			r.Get("/api/admin/users", adminHandler.ListUsers)
			r.Get("/api/users", userHandler.List)
			r.Post("/api/users", userHandler.Create)
			r.Delete("/api/users/{id}", userHandler.Delete)
			r.Post("/api/payments/simulate", paymentHandler.Simulate) // Admin-only: dev payment simulation
		})
	})

	// WebSocket payment events (auth via query param)
	r.Get("/payments/{orderId}/events", eventsHandler.Handle)

	// Start server
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout must be 0 for WebSocket connections (they are long-lived)
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("🛑 Shutting down...")
		stop() // stops poll sessions and the sweeper
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("🚀 ShulePlus Backend listening at http://%s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("❌ Server error: %v", err)
	}
}
