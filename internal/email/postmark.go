package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

// UpdateConfig swaps the delivery settings at runtime.
func (c *Client) UpdateConfig(serverToken, fromEmail, baseURL string) {
	c.serverToken = serverToken
	c.fromEmail = fromEmail
	c.baseURL = baseURL
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

func (c *Client) send(toEmail, subject, textBody, htmlBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", "https://api.postmarkapp.com/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}

// SendVerification sends the email-address confirmation link after signup.
func (c *Client) SendVerification(toEmail, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", c.baseURL, token)
	text := fmt.Sprintf("Confirm your HomeGuard email address:\n\n%s\n\nThis link expires in 24 hours.", link)
	html := fmt.Sprintf(
		`<p>Confirm your HomeGuard email address:</p><p><a href="%s">Verify email</a></p><p>This link expires in 24 hours.</p>`,
		link,
	)
	return c.send(toEmail, "Verify your HomeGuard email", text, html)
}

// SendPasswordReset sends a password reset link.
func (c *Client) SendPasswordReset(toEmail, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", c.baseURL, token)
	text := fmt.Sprintf("Reset your HomeGuard password:\n\n%s\n\nThis link expires in 1 hour. If you didn't ask for this, ignore this email.", link)
	html := fmt.Sprintf(
		`<p>Reset your HomeGuard password:</p><p><a href="%s">Reset password</a></p><p>This link expires in 1 hour. If you didn't ask for this, ignore this email.</p>`,
		link,
	)
	return c.send(toEmail, "Reset your HomeGuard password", text, html)
}

// SendReceipt sends a payment confirmation after a successful invoice.
func (c *Client) SendReceipt(toEmail, planName string, amount float64, invoiceURL string) error {
	subject := fmt.Sprintf("HomeGuard receipt: %s", planName)
	text := fmt.Sprintf("Thanks for your payment of $%.2f for %s.", amount, planName)
	html := fmt.Sprintf(`<p>Thanks for your payment of $%.2f for %s.</p>`, amount, planName)
	if invoiceURL != "" {
		text += fmt.Sprintf("\n\nView your invoice: %s", invoiceURL)
		html += fmt.Sprintf(`<p><a href="%s">View your invoice</a></p>`, invoiceURL)
	}
	return c.send(toEmail, subject, text, html)
}

// SendAlert forwards a device alert to the parent's inbox.
func (c *Client) SendAlert(toEmail, title, message string) error {
	subject := fmt.Sprintf("HomeGuard alert: %s", title)
	text := fmt.Sprintf("%s\n\nSee details on your dashboard: %s/dashboard/alerts", message, c.baseURL)
	html := fmt.Sprintf(
		`<p>%s</p><p><a href="%s/dashboard/alerts">See details on your dashboard</a></p>`,
		message, c.baseURL,
	)
	return c.send(toEmail, subject, text, html)
}
