// Package stripe wraps the Stripe API calls the billing surface needs.
package stripe

import (
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/billingportal/session"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/homeguard/internal/plan"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	BasicPriceID  string
	ProPriceID    string
	SuccessURL    string
	CancelURL     string
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

// CreateCustomer creates a Stripe customer and returns the customer ID.
func (c *Client) CreateCustomer(email string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession starts a subscription checkout for the plan and
// returns the hosted page URL. The customer email pre-fills the form
// and later lets the webhook find the account.
func (c *Client) CreateCheckoutSession(email, planName string) (string, error) {
	priceID, err := c.PriceIDForPlan(planName)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		CustomerEmail: stripe.String(email),
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(c.cfg.SuccessURL),
		CancelURL:           stripe.String(c.cfg.CancelURL),
	}
	sess, err := checksession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreateBillingPortalSession creates a Stripe billing portal session and returns the URL.
func (c *Client) CreateBillingPortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// CancelSubscription cancels the Stripe subscription immediately.
func (c *Client) CancelSubscription(stripeSubscriptionID string) error {
	if _, err := subscription.Cancel(stripeSubscriptionID, nil); err != nil {
		return fmt.Errorf("cancel stripe subscription: %w", err)
	}
	return nil
}

// PriceIDForPlan maps a catalog plan name to its Stripe price.
func (c *Client) PriceIDForPlan(planName string) (string, error) {
	switch planName {
	case plan.Basic:
		return c.cfg.BasicPriceID, nil
	case plan.Pro:
		return c.cfg.ProPriceID, nil
	default:
		return "", fmt.Errorf("no price for plan %q", planName)
	}
}

// PlanForPriceID maps a Stripe price back to the catalog plan name.
func (c *Client) PlanForPriceID(priceID string) string {
	switch priceID {
	case c.cfg.ProPriceID:
		return plan.Pro
	case c.cfg.BasicPriceID:
		return plan.Basic
	default:
		return plan.Basic
	}
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}
