// Package server wires stores, services, and handlers into the HTTP API.
package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/homeguard/internal/auth"
	"github.com/dukerupert/homeguard/internal/backup"
	"github.com/dukerupert/homeguard/internal/email"
	"github.com/dukerupert/homeguard/internal/handler"
	"github.com/dukerupert/homeguard/internal/middleware"
	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/push"
	"github.com/dukerupert/homeguard/internal/release"
	"github.com/dukerupert/homeguard/internal/store"
	"github.com/dukerupert/homeguard/internal/stripe"
	"github.com/dukerupert/homeguard/internal/syncsvc"
)

type Server struct {
	db     *sql.DB
	logger *slog.Logger

	userStore         *store.UserStore
	apiKeyStore       *store.APIKeyStore
	refreshTokenStore *store.RefreshTokenStore
	emailTokenStore   *store.EmailTokenStore
	pairingStore      *store.PairingStore
	rateLimiter       *middleware.RateLimiter
	issuer            *auth.TokenIssuer

	authH     *handler.AuthHandler
	accountH  *handler.AccountHandler
	billingH  *handler.BillingHandler
	apiKeyH   *handler.APIKeyHandler
	deviceH   *handler.DeviceHandler
	controlsH *handler.ControlsHandler
	pairingH  *handler.PairingHandler
	appH      *handler.AppHandler
	alertH    *handler.AlertHandler
	pushH     *handler.PushHandler
	webhookH  *handler.WebhookHandler
	publicH   *handler.PublicHandler
	adminH    *handler.AdminHandler
}

func New(
	db *sql.DB,
	emailClient *email.Client,
	stripeClient *stripe.Client,
	pushSvc *push.Service,
	releaseSvc *release.Service,
	backupMgr *backup.Manager,
	issuer *auth.TokenIssuer,
	portalReturnURL string,
	logger *slog.Logger,
) *Server {
	userStore := store.NewUserStore(db)
	refreshTokenStore := store.NewRefreshTokenStore(db)
	emailTokenStore := store.NewEmailTokenStore(db)
	subscriptionStore := store.NewSubscriptionStore(db)
	transactionStore := store.NewTransactionStore(db)
	downloadStore := store.NewDownloadStore(db)
	installationStore := store.NewInstallationStore(db)
	screenTimeStore := store.NewScreenTimeStore(db)
	blockedAppStore := store.NewBlockedAppStore(db)
	webFilterStore := store.NewWebFilterStore(db)
	alertStore := store.NewAlertStore(db)
	settingsStore := store.NewSettingsStore(db)
	apiKeyStore := store.NewAPIKeyStore(db)
	pairingStore := store.NewPairingStore(db)
	pushStore := store.NewPushStore(db)

	syncService := syncsvc.New(db, logger.With("component", "sync"))
	notifier := push.NewNotifier(pushSvc, pushStore, settingsStore, logger.With("component", "notifier"))

	return &Server{
		db:     db,
		logger: logger,

		userStore:         userStore,
		apiKeyStore:       apiKeyStore,
		refreshTokenStore: refreshTokenStore,
		emailTokenStore:   emailTokenStore,
		pairingStore:      pairingStore,
		rateLimiter:       middleware.NewRateLimiter(),
		issuer:            issuer,

		authH: handler.NewAuthHandler(userStore, subscriptionStore, settingsStore,
			refreshTokenStore, emailTokenStore, emailClient, issuer, logger.With("component", "auth")),
		accountH: handler.NewAccountHandler(userStore, settingsStore, refreshTokenStore,
			subscriptionStore, stripeClient, logger.With("component", "account")),
		billingH: handler.NewBillingHandler(userStore, subscriptionStore, transactionStore,
			stripeClient, portalReturnURL, logger.With("component", "billing")),
		apiKeyH: handler.NewAPIKeyHandler(apiKeyStore, logger.With("component", "apikey")),
		deviceH: handler.NewDeviceHandler(installationStore, downloadStore, subscriptionStore,
			releaseSvc, logger.With("component", "device")),
		controlsH: handler.NewControlsHandler(installationStore, screenTimeStore, blockedAppStore,
			webFilterStore, logger.With("component", "controls")),
		pairingH: handler.NewPairingHandler(pairingStore, userStore, installationStore,
			subscriptionStore, refreshTokenStore, issuer, logger.With("component", "pairing")),
		appH: handler.NewAppHandler(userStore, subscriptionStore, installationStore, alertStore,
			settingsStore, syncService, notifier, emailClient, logger.With("component", "app")),
		alertH: handler.NewAlertHandler(alertStore, logger.With("component", "alert")),
		pushH:  handler.NewPushHandler(pushSvc, pushStore, logger.With("component", "push")),
		webhookH: handler.NewWebhookHandler(stripeClient, userStore, subscriptionStore,
			transactionStore, emailClient, logger.With("component", "webhook")),
		publicH: handler.NewPublicHandler(userStore, downloadStore, installationStore,
			logger.With("component", "public")),
		adminH: handler.NewAdminHandler(userStore, subscriptionStore, transactionStore,
			downloadStore, installationStore, backupMgr, logger.With("component", "admin")),
	}
}

// RefreshTokenStore returns the refresh token store for cleanup tasks.
func (s *Server) RefreshTokenStore() *store.RefreshTokenStore {
	return s.refreshTokenStore
}

// EmailTokenStore returns the email token store for cleanup tasks.
func (s *Server) EmailTokenStore() *store.EmailTokenStore {
	return s.emailTokenStore
}

// PairingStore returns the pairing code store for cleanup tasks.
func (s *Server) PairingStore() *store.PairingStore {
	return s.pairingStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.publicH.Health)
	mux.HandleFunc("GET /api/v1/plans", s.publicH.Plans)
	mux.HandleFunc("GET /api/v1/stats", s.publicH.Stats)

	// Auth endpoints are rate limited per client IP.
	mux.HandleFunc("POST /api/v1/auth/signup", s.rateLimited(s.authH.Signup))
	mux.HandleFunc("POST /api/v1/auth/login", s.rateLimited(s.authH.Login))
	mux.HandleFunc("POST /api/v1/auth/refresh", s.authH.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", s.authH.Logout)
	mux.HandleFunc("POST /api/v1/auth/verify-email", s.authH.VerifyEmail)
	mux.HandleFunc("POST /api/v1/auth/resend-verification", s.rateLimited(s.authH.ResendVerification))
	mux.HandleFunc("POST /api/v1/auth/forgot-password", s.rateLimited(s.authH.ForgotPassword))
	mux.HandleFunc("POST /api/v1/auth/reset-password", s.rateLimited(s.authH.ResetPassword))

	optionalAuth := middleware.OptionalAuth(s.issuer, s.userStore)
	mux.Handle("POST /api/v1/downloads", optionalAuth(http.HandlerFunc(s.deviceH.RequestDownload)))
	mux.HandleFunc("POST /api/v1/webhooks/stripe", s.webhookH.HandleStripeWebhook)

	// Agents check their registration with only their device_id in hand.
	mux.HandleFunc("GET /api/v1/devices/{deviceID}/status", s.rateLimited(s.deviceH.Status))

	// Device-side pairing endpoints run before the device has credentials.
	mux.HandleFunc("POST /api/v1/pairing/activation/claim", s.rateLimited(s.pairingH.ConsumeActivation))
	mux.HandleFunc("POST /api/v1/pairing/link", s.rateLimited(s.pairingH.CreateLink))
	mux.HandleFunc("GET /api/v1/pairing/link/{code}", s.pairingH.PollLink)
	mux.HandleFunc("POST /api/v1/pairing/link/{code}/tokens", s.rateLimited(s.pairingH.CollectLinkTokens))

	protected := http.NewServeMux()
	s.registerProtectedRoutes(protected)
	requireAuth := middleware.RequireAuth(s.issuer, s.userStore, s.apiKeyStore)
	mux.Handle("/api/v1/", requireAuth(protected))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}

// scoped gates a route on an API key scope. JWT callers always pass.
func scoped(scope string, h http.HandlerFunc) http.Handler {
	return middleware.RequireScope(scope)(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Account
	mux.HandleFunc("GET /api/v1/account", s.accountH.GetProfile)
	mux.HandleFunc("PUT /api/v1/account", s.accountH.UpdateProfile)
	mux.HandleFunc("POST /api/v1/account/password", s.accountH.ChangePassword)
	mux.HandleFunc("DELETE /api/v1/account", s.accountH.CloseAccount)
	mux.HandleFunc("GET /api/v1/account/settings", s.accountH.GetSettings)
	mux.HandleFunc("PUT /api/v1/account/settings", s.accountH.UpdateSettings)

	// Billing
	mux.HandleFunc("GET /api/v1/billing/subscription", s.billingH.GetSubscription)
	mux.HandleFunc("GET /api/v1/billing/transactions", s.billingH.ListTransactions)
	mux.HandleFunc("GET /api/v1/billing/transactions/export", s.billingH.ExportTransactionsCSV)
	mux.HandleFunc("POST /api/v1/billing/checkout", s.billingH.CreateCheckout)
	mux.HandleFunc("POST /api/v1/billing/portal", s.billingH.CreatePortal)
	mux.HandleFunc("POST /api/v1/billing/cancel", s.billingH.CancelSubscription)

	// API keys
	mux.HandleFunc("POST /api/v1/apikeys", s.apiKeyH.Create)
	mux.HandleFunc("GET /api/v1/apikeys", s.apiKeyH.List)
	mux.HandleFunc("POST /api/v1/apikeys/{id}/revoke", s.apiKeyH.Revoke)
	mux.HandleFunc("DELETE /api/v1/apikeys/{id}", s.apiKeyH.Delete)

	// Devices
	mux.Handle("POST /api/v1/devices/register", scoped(model.ScopeDevices, s.deviceH.Register))
	mux.Handle("GET /api/v1/devices", scoped(model.ScopeRead, s.deviceH.List))
	mux.Handle("GET /api/v1/devices/{installationID}", scoped(model.ScopeRead, s.deviceH.Get))
	mux.Handle("POST /api/v1/devices/{deviceID}/heartbeat", scoped(model.ScopeDevices, s.deviceH.Heartbeat))
	mux.Handle("DELETE /api/v1/devices/{deviceID}", scoped(model.ScopeDevices, s.deviceH.Unregister))

	// Parental controls, keyed by the installation's public ID
	mux.Handle("GET /api/v1/devices/{installationID}/screen-time", scoped(model.ScopeRead, s.controlsH.GetScreenTime))
	mux.Handle("PUT /api/v1/devices/{installationID}/screen-time", scoped(model.ScopeWrite, s.controlsH.PutScreenTime))
	mux.Handle("GET /api/v1/devices/{installationID}/blocked-apps", scoped(model.ScopeRead, s.controlsH.ListBlockedApps))
	mux.Handle("POST /api/v1/devices/{installationID}/blocked-apps", scoped(model.ScopeWrite, s.controlsH.CreateBlockedApp))
	mux.Handle("PUT /api/v1/devices/{installationID}/blocked-apps/{appID}", scoped(model.ScopeWrite, s.controlsH.SetBlockedAppEnabled))
	mux.Handle("DELETE /api/v1/devices/{installationID}/blocked-apps/{appID}", scoped(model.ScopeWrite, s.controlsH.DeleteBlockedApp))
	mux.Handle("GET /api/v1/devices/{installationID}/web-filter", scoped(model.ScopeRead, s.controlsH.GetWebFilter))
	mux.Handle("PUT /api/v1/devices/{installationID}/web-filter", scoped(model.ScopeWrite, s.controlsH.PutWebFilter))
	mux.Handle("POST /api/v1/devices/{installationID}/web-filter/rules", scoped(model.ScopeWrite, s.controlsH.CreateFilterRule))
	mux.Handle("DELETE /api/v1/devices/{installationID}/web-filter/rules/{ruleID}", scoped(model.ScopeWrite, s.controlsH.DeleteFilterRule))

	// User-side pairing
	mux.HandleFunc("POST /api/v1/pairing/activation", s.pairingH.CreateActivation)
	mux.HandleFunc("POST /api/v1/pairing/link/{code}/claim", s.pairingH.ClaimLink)

	// Client app API
	mux.HandleFunc("GET /api/v1/app/license", s.appH.License)
	mux.HandleFunc("GET /api/v1/app/features", s.appH.Features)
	mux.Handle("POST /api/v1/app/sync/{deviceID}/push", scoped(model.ScopeSync, s.appH.SyncPush))
	mux.Handle("GET /api/v1/app/sync/{deviceID}/pull", scoped(model.ScopeSync, s.appH.SyncPull))
	mux.Handle("GET /api/v1/app/sync/{deviceID}/status", scoped(model.ScopeSync, s.appH.SyncStatus))
	mux.Handle("POST /api/v1/app/alerts", scoped(model.ScopeAlerts, s.appH.ReportAlert))

	// Dashboard alerts
	mux.Handle("GET /api/v1/alerts", scoped(model.ScopeAlerts, s.alertH.List))
	mux.Handle("POST /api/v1/alerts/read-all", scoped(model.ScopeAlerts, s.alertH.MarkAllRead))
	mux.Handle("POST /api/v1/alerts/{id}/read", scoped(model.ScopeAlerts, s.alertH.MarkRead))
	mux.Handle("POST /api/v1/alerts/{id}/dismiss", scoped(model.ScopeAlerts, s.alertH.Dismiss))

	// Browser push
	mux.HandleFunc("GET /api/v1/push/vapid-key", s.pushH.VAPIDPublicKey)
	mux.HandleFunc("POST /api/v1/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/v1/push/subscribe", s.pushH.Unsubscribe)

	// Admin
	admin := http.NewServeMux()
	admin.HandleFunc("GET /api/v1/admin/stats", s.adminH.Stats)
	admin.HandleFunc("GET /api/v1/admin/stats/series", s.adminH.StatsSeries)
	admin.HandleFunc("GET /api/v1/admin/downloads", s.adminH.ListDownloads)
	admin.HandleFunc("GET /api/v1/admin/users", s.adminH.ListUsers)
	admin.HandleFunc("POST /api/v1/admin/users/{id}/active", s.adminH.SetUserActive)
	admin.HandleFunc("GET /api/v1/admin/subscriptions", s.adminH.ListSubscriptions)
	admin.HandleFunc("GET /api/v1/admin/transactions", s.adminH.ListTransactions)
	admin.HandleFunc("GET /api/v1/admin/transactions/export", s.adminH.ExportTransactionsCSV)
	admin.HandleFunc("GET /api/v1/admin/installations", s.adminH.ListInstallations)
	admin.HandleFunc("POST /api/v1/admin/installations/{id}/block", s.adminH.SetInstallationBlocked)
	admin.HandleFunc("GET /api/v1/admin/backup", s.adminH.BackupStatus)
	admin.HandleFunc("POST /api/v1/admin/backup/run", s.adminH.RunBackup)
	mux.Handle("/api/v1/admin/", middleware.RequireAdmin(admin))
}
