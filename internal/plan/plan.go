// Package plan defines the subscription plan catalog and the feature
// sets each plan unlocks in the desktop app and web dashboard.
package plan

// Plan names as they appear on subscription rows and Stripe metadata.
const (
	FreeTrial = "Free Trial"
	Basic     = "Basic"
	Pro       = "Pro"
)

// Features describes what a plan unlocks. MaxBlocks of -1 means unlimited.
type Features struct {
	WebsiteBlocking  bool `json:"website_blocking"`
	GameBlocking     bool `json:"game_blocking"`
	MaxBlocks        int  `json:"max_blocks"`
	WebDashboard     bool `json:"web_dashboard"`
	ActivityReports  bool `json:"activity_reports"`
	Schedules        bool `json:"schedules"`
	TamperProtection bool `json:"tamper_protection"`
}

// Plan is one entry in the public pricing catalog.
type Plan struct {
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Interval    string   `json:"interval"`
	Description string   `json:"description"`
	Highlights  []string `json:"highlights"`
	Features    Features `json:"features"`
}

var trialFeatures = Features{
	WebsiteBlocking: true,
	GameBlocking:    true,
	MaxBlocks:       10,
}

var basicFeatures = Features{
	WebsiteBlocking: true,
	GameBlocking:    true,
	MaxBlocks:       50,
	WebDashboard:    true,
	Schedules:       true,
}

var proFeatures = Features{
	WebsiteBlocking:  true,
	GameBlocking:     true,
	MaxBlocks:        -1,
	WebDashboard:     true,
	ActivityReports:  true,
	Schedules:        true,
	TamperProtection: true,
}

var catalog = []Plan{
	{
		Name:        FreeTrial,
		Price:       0,
		Currency:    "USD",
		Interval:    "none",
		Description: "Try everything for 7 days, no card required.",
		Highlights:  []string{"Website blocking", "Game blocking", "Up to 10 blocks"},
		Features:    trialFeatures,
	},
	{
		Name:        Basic,
		Price:       4.99,
		Currency:    "USD",
		Interval:    "month",
		Description: "Essential protection for one family.",
		Highlights:  []string{"Website blocking", "Game blocking", "Up to 50 blocks", "Web dashboard", "Block schedules"},
		Features:    basicFeatures,
	},
	{
		Name:        Pro,
		Price:       9.99,
		Currency:    "USD",
		Interval:    "month",
		Description: "Full protection with reports and tamper alerts.",
		Highlights:  []string{"Everything in Basic", "Unlimited blocks", "Activity reports", "Tamper protection"},
		Features:    proFeatures,
	},
}

// Catalog returns the public pricing catalog in display order.
func Catalog() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// FeaturesFor maps a plan name, as stored on a subscription row, to its
// feature set. Legacy Stripe plan names from before the catalog rename
// map onto Pro. Unknown names fall back to trial features so an odd
// subscription row never unlocks more than the free tier.
func FeaturesFor(planName string) Features {
	switch planName {
	case Basic:
		return basicFeatures
	case Pro, "Premium Monthly", "Premium Yearly":
		return proFeatures
	default:
		return trialFeatures
	}
}
