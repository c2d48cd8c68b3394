package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/backup"
	"github.com/dukerupert/homeguard/internal/database"
	"github.com/dukerupert/homeguard/internal/email"
	"github.com/dukerupert/homeguard/internal/logging"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/push"
	"github.com/dukerupert/homeguard/internal/release"
	"github.com/dukerupert/homeguard/internal/server"
	"github.com/dukerupert/homeguard/internal/store"
	"github.com/dukerupert/homeguard/internal/stripe"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := logging.Setup(os.Getenv("HOMEGUARD_LOG_LEVEL"), os.Getenv("HOMEGUARD_LOG_FORMAT"))

	port := envOr("HOMEGUARD_PORT", "8080")
	dbPath := envOr("HOMEGUARD_DB_PATH", "homeguard.db")
	baseURL := envOr("HOMEGUARD_BASE_URL", "http://localhost:"+port)

	jwtSecret := os.Getenv("HOMEGUARD_JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("HOMEGUARD_JWT_SECRET is required")
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	emailClient := email.NewClient(
		os.Getenv("POSTMARK_SERVER_TOKEN"),
		envOr("HOMEGUARD_FROM_EMAIL", "noreply@homeguard.app"),
		baseURL,
	)
	if !emailClient.Configured() {
		logger.Warn("POSTMARK_SERVER_TOKEN not set, emails disabled")
	}

	stripeClient := stripe.NewClient(stripe.Config{
		SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		BasicPriceID:  os.Getenv("STRIPE_BASIC_PRICE_ID"),
		ProPriceID:    os.Getenv("STRIPE_PRO_PRICE_ID"),
		SuccessURL:    baseURL + "/billing/success",
		CancelURL:     baseURL + "/pricing",
	})

	pushSvc := push.NewService(
		os.Getenv("HOMEGUARD_VAPID_PUBLIC_KEY"),
		os.Getenv("HOMEGUARD_VAPID_PRIVATE_KEY"),
	)
	if !pushSvc.Configured() {
		logger.Warn("VAPID keys not set, browser push disabled")
	}

	releaseSvc := release.NewService(release.S3Config{
		Endpoint:  os.Getenv("HOMEGUARD_S3_ENDPOINT"),
		Bucket:    os.Getenv("HOMEGUARD_S3_BUCKET"),
		Region:    envOr("HOMEGUARD_S3_REGION", "auto"),
		AccessKey: os.Getenv("HOMEGUARD_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("HOMEGUARD_S3_SECRET_KEY"),
	}, envOr("HOMEGUARD_APP_VERSION", "dev"))
	if !releaseSvc.Configured() {
		logger.Warn("S3 credentials not set, installer downloads disabled")
	}

	backupHour := 0
	if h, err := strconv.Atoi(os.Getenv("HOMEGUARD_BACKUP_HOUR")); err == nil {
		backupHour = h
	}
	retentionDays := 0
	if d, err := strconv.Atoi(os.Getenv("HOMEGUARD_BACKUP_RETENTION_DAYS")); err == nil {
		retentionDays = d
	}
	backupMgr := backup.NewManager(backup.Config{
		S3: release.S3Config{
			Endpoint:  os.Getenv("HOMEGUARD_S3_ENDPOINT"),
			Bucket:    os.Getenv("HOMEGUARD_S3_BUCKET"),
			Region:    envOr("HOMEGUARD_S3_REGION", "auto"),
			AccessKey: os.Getenv("HOMEGUARD_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("HOMEGUARD_S3_SECRET_KEY"),
		},
		DBPath:        dbPath,
		Passphrase:    os.Getenv("HOMEGUARD_BACKUP_PASSPHRASE"),
		Hour:          backupHour,
		RetentionDays: retentionDays,
	}, db, logger.With("component", "backup"))
	backupMgr.Start(context.Background())

	issuer := auth.NewTokenIssuer(jwtSecret)

	if err := bootstrapAdmin(db, logger); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}

	srv := server.New(db, emailClient, stripeClient, pushSvc, releaseSvc, backupMgr, issuer, baseURL+"/account", logger)

	// Expired tokens and pairing codes accumulate; sweep them periodically.
	cleanupDone := make(chan struct{})
	go runCleanup(srv, logger.With("component", "cleanup"), cleanupDone)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("HomeGuard API running at %s\n", baseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	close(cleanupDone)
	backupMgr.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

// bootstrapAdmin creates the first admin account from the environment. New
// deployments have no other way in. A no-op when the variables are unset or
// the account already exists.
func bootstrapAdmin(db *sql.DB, logger *slog.Logger) error {
	adminEmail := os.Getenv("HOMEGUARD_ADMIN_EMAIL")
	adminPassword := os.Getenv("HOMEGUARD_ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	users := store.NewUserStore(db)
	existing, err := users.GetByEmail(adminEmail)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if err := auth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("HOMEGUARD_ADMIN_PASSWORD: %w", err)
	}
	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return err
	}
	admin, err := users.Create(adminEmail, hash, "Admin", "", model.RoleAdmin)
	if err != nil {
		return err
	}
	if err := users.SetVerified(admin.ID); err != nil {
		return err
	}
	if _, err := store.NewSubscriptionStore(db).CreateTrial(admin.ID); err != nil {
		return err
	}
	if _, err := store.NewSettingsStore(db).GetOrCreate(admin.ID); err != nil {
		return err
	}

	logger.Info("created admin account", "email", adminEmail)
	return nil
}

func runCleanup(srv *server.Server, logger *slog.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if n, err := srv.RefreshTokenStore().DeleteExpired(); err != nil {
				logger.Error("cleanup refresh tokens", "error", err)
			} else if n > 0 {
				logger.Debug("cleaned refresh tokens", "deleted", n)
			}
			if n, err := srv.EmailTokenStore().DeleteExpired(); err != nil {
				logger.Error("cleanup email tokens", "error", err)
			} else if n > 0 {
				logger.Debug("cleaned email tokens", "deleted", n)
			}
			if n, err := srv.PairingStore().DeleteExpired(); err != nil {
				logger.Error("cleanup pairing codes", "error", err)
			} else if n > 0 {
				logger.Debug("cleaned pairing codes", "deleted", n)
			}
			srv.RateLimiter().Cleanup()
		}
	}
}
