package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"path/filepath"
	"strings"
	"time"
)

// SMTPEmailService sends emails via SMTP.
//
// Works with Mailhog (development, no authentication) and any standard
// SMTP relay (production, username/password authentication). Email
// templates are loaded from the templates directory and rendered with
// html/template.
type SMTPEmailService struct {
	config    SMTPConfig
	baseURL   string
	templates *template.Template
	logger    *slog.Logger
}

// NewSMTPEmailService creates a new SMTP-based email service.
//
// templatesDir is the path to the email template directory
// (e.g., "web/templates/email").
func NewSMTPEmailService(
	config SMTPConfig,
	baseURL string,
	templatesDir string,
	logger *slog.Logger,
) (*SMTPEmailService, error) {
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}

	pattern := filepath.Join(templatesDir, "*.html")
	templates, err := template.New("email").Funcs(emailTemplateFuncs()).ParseGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	return &SMTPEmailService{
		config:    config,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		templates: templates,
		logger:    logger,
	}, nil
}

// SendWelcomeEmail greets a newly registered account.
func (s *SMTPEmailService) SendWelcomeEmail(ctx context.Context, to, name string) error {
	data := map[string]interface{}{
		"Name":     name,
		"LoginURL": s.baseURL + "/login",
		"Year":     time.Now().Year(),
	}

	htmlBody, err := s.renderTemplate("welcome.html", data)
	if err != nil {
		return fmt.Errorf("failed to render welcome email template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

Welcome to Mesura! Your workshop account is ready, with full access free
for the first 60 days.

Sign in here to add your first client:

%s

Thanks,
The Mesura Team
`, name, s.baseURL+"/login")

	return s.send(ctx, Email{
		To:       to,
		Subject:  "Welcome to Mesura",
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

// SendPaymentFailedEmail warns about a failed renewal payment.
func (s *SMTPEmailService) SendPaymentFailedEmail(ctx context.Context, to, name string) error {
	billingURL := s.baseURL + "/settings/billing"

	data := map[string]interface{}{
		"Name":       name,
		"BillingURL": billingURL,
		"Year":       time.Now().Year(),
	}

	htmlBody, err := s.renderTemplate("payment_failed.html", data)
	if err != nil {
		return fmt.Errorf("failed to render payment failed email template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

We could not process your latest subscription payment. Your account is
past due; please update your payment details to keep your plan:

%s

Your data is safe and nothing has been deleted.

Thanks,
The Mesura Team
`, name, billingURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  "Action needed: payment failed",
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

// SendSubscriptionCanceledEmail confirms a subscription has ended.
func (s *SMTPEmailService) SendSubscriptionCanceledEmail(ctx context.Context, to, name string) error {
	billingURL := s.baseURL + "/settings/billing"

	data := map[string]interface{}{
		"Name":       name,
		"BillingURL": billingURL,
		"Year":       time.Now().Year(),
	}

	htmlBody, err := s.renderTemplate("subscription_canceled.html", data)
	if err != nil {
		return fmt.Errorf("failed to render cancellation email template: %w", err)
	}

	textBody := fmt.Sprintf(`Hi %s,

Your subscription has ended and your account is now on the free plan.
Your clients and orders are untouched; the free plan limits just apply
to anything new.

You can resubscribe any time:

%s

Thanks,
The Mesura Team
`, name, billingURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  "Your subscription has ended",
		HTMLBody: htmlBody,
		TextBody: textBody,
	})
}

// send sends an email via SMTP.
func (s *SMTPEmailService) send(ctx context.Context, email Email) error {
	msg := s.buildMessage(email)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	// Auth only when credentials are provided (not needed for Mailhog)
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	err := smtp.SendMail(addr, auth, s.config.From, []string{email.To}, msg)
	if err != nil {
		s.logger.Error("failed to send email",
			"to", email.To,
			"subject", email.Subject,
			"error", err,
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		"to", email.To,
		"subject", email.Subject,
	)

	return nil
}

// buildMessage constructs the raw multipart message with headers.
func (s *SMTPEmailService) buildMessage(email Email) []byte {
	var buf bytes.Buffer

	fromHeader := fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)

	buf.WriteString(fmt.Sprintf("From: %s\r\n", fromHeader))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", email.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	boundary := "===============MESURA_BOUNDARY==============="
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.TextBody)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.HTMLBody)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return buf.Bytes()
}

// renderTemplate renders an email template with the given data.
func (s *SMTPEmailService) renderTemplate(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// emailTemplateFuncs returns template functions available in email templates.
func emailTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"currentYear": func() int {
			return time.Now().Year()
		},
	}
}

var _ EmailService = (*SMTPEmailService)(nil)
