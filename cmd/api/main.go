package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/inventory-api/internal/config"
	"github.com/yourusername/inventory-api/internal/handler"
	"github.com/yourusername/inventory-api/internal/middleware"
	pgRepo "github.com/yourusername/inventory-api/internal/repository/postgres"
	"github.com/yourusername/inventory-api/internal/service"
	"github.com/yourusername/inventory-api/pkg/auth"
	"github.com/yourusername/inventory-api/pkg/database"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("loading configuration from %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		os.Exit(1)
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("failed to connect to database: %v", err)
		os.Exit(1)
	}

	if err := database.MigrateDB(db); err != nil {
		log.Printf("failed to migrate database: %v", err)
		os.Exit(1)
	}

	redisClient, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("successfully connected to Redis")

	// Repositories.
	userRepo := pgRepo.NewUserRepo(db)
	otpRepo := pgRepo.NewOtpChallengeRepo(db)

	// Token services.
	accessExpiry := time.Duration(cfg.JWT.AccessExpiryMin) * time.Minute
	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, accessExpiry)
	if err != nil {
		log.Printf("failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	resetTokenTTL := time.Duration(cfg.JWT.ResetTokenTTLMin) * time.Minute
	resetTokens, err := auth.NewResetTokenService(cfg.JWT.Secret, resetTokenTTL)
	if err != nil {
		log.Printf("failed to initialize ResetTokenService: %v", err)
		os.Exit(1)
	}

	// Outbound email.
	var emailService service.EmailService
	if cfg.Email.Enabled {
		emailService, err = service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From, cfg.PasswordReset.CodeTTL())
		if err != nil {
			log.Printf("failed to initialize ResendEmailService: %v", err)
			os.Exit(1)
		}
	} else {
		log.Println("email disabled, reset codes will not be delivered")
		emailService = &service.NoopEmailService{}
	}

	// Services.
	authService, err := service.NewAuthService(userRepo, jwtService)
	if err != nil {
		log.Printf("failed to initialize AuthService: %v", err)
		os.Exit(1)
	}

	resetService, err := service.NewPasswordResetService(
		userRepo,
		otpRepo,
		emailService,
		resetTokens,
		cfg.PasswordReset.CodeTTL(),
		cfg.PasswordReset.MaxAttempts,
	)
	if err != nil {
		log.Printf("failed to initialize PasswordResetService: %v", err)
		os.Exit(1)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authService, jwtService)
	resetHandler := handler.NewPasswordResetHandler(resetService)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	router := gin.Default()
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	authGroup := router.Group("/api/auth")
	authGroup.Use(rateLimiter.Limit(middleware.DefaultAuthRateLimitConfig()))
	{
		strict := rateLimiter.Limit(middleware.StrictAuthRateLimitConfig())

		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", strict, authHandler.Login)
		authGroup.POST("/forgot-password", strict, resetHandler.ForgotPassword)
		authGroup.POST("/verify-otp", strict, resetHandler.VerifyOtp)
		authGroup.POST("/reset-password", strict, resetHandler.ResetPassword)
		authGroup.GET("/me", authHandler.GetMe)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic purge of dead challenge rows. Reads already treat expired rows
	// as nonexistent; this keeps the table small.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-cfg.PasswordReset.CodeTTL())
				if removed, err := otpRepo.PurgeExpired(cutoff); err != nil {
					log.Printf("[main] failed to purge expired challenges: %v", err)
				} else if removed > 0 {
					log.Printf("[main] purged %d expired otp challenges", removed)
				}
			}
		}
	}()

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Println("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("failed to close redis client: %v", err)
	}
	log.Println("server stopped")
}
