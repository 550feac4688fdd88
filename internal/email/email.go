// Package email provides transactional email sending.
//
// This package defines an EmailService interface with an SMTP
// implementation that works with Mailhog in development and any
// standard SMTP relay in production.
package email

import (
	"context"
)

// EmailService defines the interface for sending transactional emails.
//
// All methods are context-aware for timeout and cancellation support.
type EmailService interface {
	// SendWelcomeEmail greets a newly registered account and explains
	// the trial window.
	SendWelcomeEmail(ctx context.Context, to, name string) error

	// SendPaymentFailedEmail warns an account holder that a renewal
	// payment failed and their subscription is past due.
	SendPaymentFailedEmail(ctx context.Context, to, name string) error

	// SendSubscriptionCanceledEmail confirms that a subscription has
	// ended and the account is back on the free tier.
	SendSubscriptionCanceledEmail(ctx context.Context, to, name string) error
}

// Email represents a single email message.
type Email struct {
	To       string // Recipient email address
	Subject  string // Email subject line
	HTMLBody string // HTML content of the email
	TextBody string // Plain text fallback content
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname (e.g., "localhost" for Mailhog)
	Port     int    // SMTP server port (e.g., 1025 for Mailhog)
	Username string // SMTP authentication username (empty for Mailhog)
	Password string // SMTP authentication password (empty for Mailhog)
	From     string // Default sender email address
	FromName string // Default sender display name
}

const (
	// DefaultFromEmail is the default sender email for transactional emails.
	DefaultFromEmail = "noreply@mesura.app"

	// DefaultFromName is the default sender display name.
	DefaultFromName = "Mesura"
)
