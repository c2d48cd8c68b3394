package push

import (
	"errors"
	"log/slog"

	"github.com/dukerupert/homeguard/internal/model"
	"github.com/dukerupert/homeguard/internal/store"
)

// Notifier fans device alerts out to the parent's browsers, respecting
// their per-category preferences and pruning dead subscriptions.
type Notifier struct {
	service  *Service
	push     *store.PushStore
	settings *store.SettingsStore
	logger   *slog.Logger
}

func NewNotifier(svc *Service, pushStore *store.PushStore, settingsStore *store.SettingsStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		service:  svc,
		push:     pushStore,
		settings: settingsStore,
		logger:   logger.With("component", "push"),
	}
}

// wantsAlert maps an alert type onto the matching user preference.
func wantsAlert(settings *model.UserSettings, alertType string) bool {
	switch alertType {
	case model.AlertBlockedSite:
		return settings.AlertBlockedSites
	case model.AlertBlockedApp, model.AlertNewAppInstalled:
		return settings.AlertBlockedApps
	case model.AlertScreenTimeLimit:
		return settings.AlertScreenTime
	case model.AlertTamperAttempt:
		return settings.AlertTamperAttempts
	default:
		return true
	}
}

// NotifyAlert sends the alert to every browser the user subscribed, if
// their preferences allow this alert category. Best effort: failures
// are logged, expired endpoints are deleted, and nothing blocks the
// alert from being recorded.
func (n *Notifier) NotifyAlert(alert *model.Alert) {
	if !n.service.Configured() {
		return
	}

	settings, err := n.settings.GetOrCreate(alert.UserID)
	if err != nil {
		n.logger.Error("load alert preferences", "error", err, "user_id", alert.UserID)
		return
	}
	if !wantsAlert(settings, alert.Type) {
		return
	}

	subs, err := n.push.ListByUser(alert.UserID)
	if err != nil {
		n.logger.Error("list push subscriptions", "error", err, "user_id", alert.UserID)
		return
	}

	payload := Payload{
		Title: alert.Title,
		Body:  alert.Message,
		URL:   "/dashboard/alerts",
		Tag:   alert.Type,
	}
	for _, sub := range subs {
		if err := n.service.Send(sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := n.push.DeleteByEndpoint(sub.Endpoint); err != nil {
					n.logger.Error("prune expired subscription", "error", err)
				}
				continue
			}
			n.logger.Error("send push", "error", err, "user_id", alert.UserID)
		}
	}
}
