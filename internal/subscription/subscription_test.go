package subscription

import (
	"testing"
	"time"

	"github.com/dukerupert/homeguard/internal/model"
)

func sub(status string, end *time.Time) *model.Subscription {
	return &model.Subscription{Status: status, CurrentPeriodEnd: end}
}

func TestReconcile(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		sub  *model.Subscription
		want string
	}{
		{"nil sub", nil, ""},
		{"trial not started has no period", sub(model.SubStatusTrialing, nil), model.SubStatusTrialing},
		{"trial still running", sub(model.SubStatusTrialing, &future), model.SubStatusTrialing},
		{"trial expired", sub(model.SubStatusTrialing, &past), model.SubStatusIncomplete},
		{"active in period", sub(model.SubStatusActive, &future), model.SubStatusActive},
		{"active lapsed", sub(model.SubStatusActive, &past), model.SubStatusPastDue},
		{"canceled stays canceled", sub(model.SubStatusCanceled, &past), model.SubStatusCanceled},
		{"past due stays past due", sub(model.SubStatusPastDue, &past), model.SubStatusPastDue},
		{"incomplete stays incomplete", sub(model.SubStatusIncomplete, &past), model.SubStatusIncomplete},
		{"period ending exactly now is not expired", sub(model.SubStatusTrialing, &now), model.SubStatusTrialing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reconcile(tt.sub, now); got != tt.want {
				t.Errorf("Reconcile() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if !Usable(sub(model.SubStatusTrialing, &future), now) {
		t.Error("running trial should be usable")
	}
	if !Usable(sub(model.SubStatusActive, &future), now) {
		t.Error("active subscription should be usable")
	}
	if Usable(sub(model.SubStatusTrialing, &past), now) {
		t.Error("expired trial should not be usable")
	}
	if Usable(sub(model.SubStatusCanceled, &future), now) {
		t.Error("canceled subscription should not be usable")
	}
	if Usable(nil, now) {
		t.Error("nil subscription should not be usable")
	}
}

func TestWindows(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	start, end := TrialWindow(now)
	if !start.Equal(now) || !end.Equal(now.Add(7*24*time.Hour)) {
		t.Errorf("trial window = %v..%v", start, end)
	}

	start, end = PaidWindow(now)
	if !start.Equal(now) || !end.Equal(now.Add(30*24*time.Hour)) {
		t.Errorf("paid window = %v..%v", start, end)
	}
}
