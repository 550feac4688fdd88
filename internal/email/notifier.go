package email

import (
	"context"

	"github.com/mesura-app/mesura/internal/domain"
)

// BillingNotifier adapts an EmailService to the billing notification
// hooks used during webhook reconciliation.
type BillingNotifier struct {
	emails EmailService
}

// NewBillingNotifier wraps an EmailService for billing notifications.
func NewBillingNotifier(emails EmailService) *BillingNotifier {
	return &BillingNotifier{emails: emails}
}

func (n *BillingNotifier) SendPaymentFailed(ctx context.Context, account *domain.Account) error {
	return n.emails.SendPaymentFailedEmail(ctx, account.Email, account.DisplayName())
}

func (n *BillingNotifier) SendSubscriptionCanceled(ctx context.Context, account *domain.Account) error {
	return n.emails.SendSubscriptionCanceledEmail(ctx, account.Email, account.DisplayName())
}
