package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mesura-app/mesura/internal/domain"
)

// PaystackPeriodDays is the access period granted per successful
// Paystack charge. Paystack does not manage the subscription cycle for
// us, so each charge buys a fixed window and the period end is stamped
// locally.
const PaystackPeriodDays = 30

// paystackRefPrefix namespaces the synthetic billing refs this adapter
// writes, so they can never collide with Stripe subscription ids.
const paystackRefPrefix = "paystack_"

// ErrMissingAccountRef is returned when a success payload carries no
// usable account id in its metadata. The delivery must be rejected with
// a client error and no mutation.
var ErrMissingAccountRef = errors.New("paystack event metadata has no account id")

// PaystackService verifies and normalizes Paystack webhook deliveries.
type PaystackService interface {
	// VerifySignature reports whether signature is the hex HMAC-SHA256 of
	// the raw payload under the shared secret. The comparison is
	// constant-time.
	VerifySignature(payload []byte, signature string) bool

	// ParseEvent normalizes a verified payload. The second return value is
	// false for deliveries this subsystem ignores (anything that is not a
	// success charge). ErrMissingAccountRef means the payload is a success
	// charge that cannot be correlated to an account.
	ParseEvent(payload []byte) (Event, bool, error)
}

type paystackService struct {
	secret   string
	planTier domain.SubscriptionTier
	now      func() time.Time
}

// NewPaystackService creates the alternate-provider adapter. Every
// successful charge grants planTier for PaystackPeriodDays.
func NewPaystackService(secret string, planTier domain.SubscriptionTier) PaystackService {
	return &paystackService{
		secret:   secret,
		planTier: planTier,
		now:      time.Now,
	}
}

func (s *paystackService) VerifySignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// paystackPayload is the provider's delivery shape. Metadata is kept raw
// because Paystack sometimes delivers it as a nested object and sometimes
// as a JSON-encoded string, depending on how the charge was initialized.
type paystackPayload struct {
	Status        string          `json:"status"`
	TransactionID string          `json:"transactionId"`
	Reference     string          `json:"reference"`
	Metadata      json.RawMessage `json:"metadata"`
}

func (s *paystackService) ParseEvent(payload []byte) (Event, bool, error) {
	var p paystackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Event{}, true, fmt.Errorf("parse paystack payload: %w", err)
	}

	if p.Status != "success" {
		return Event{}, false, nil
	}

	reference := p.TransactionID
	if reference == "" {
		reference = p.Reference
	}
	if reference == "" {
		return Event{}, true, errors.New("paystack success payload has no transaction reference")
	}

	accountID, err := accountIDFromMetadata(p.Metadata)
	if err != nil {
		return Event{}, true, err
	}

	periodEnd := s.now().Add(PaystackPeriodDays * 24 * time.Hour)
	return Event{
		Provider:       ProviderPaystack,
		Kind:           EventProviderPayment,
		ID:             reference,
		AccountID:      accountID,
		SubscriptionID: paystackRefPrefix + reference,
		Tier:           s.planTier,
		PeriodEnd:      &periodEnd,
	}, true, nil
}

// accountIDFromMetadata digs the application account id out of the
// metadata field, normalizing the double-JSON-encoded variant before
// reading it. The transition core never sees this shape juggling.
func accountIDFromMetadata(raw json.RawMessage) (uuid.UUID, error) {
	if len(raw) == 0 {
		return uuid.Nil, ErrMissingAccountRef
	}

	// Double-encoded variant: metadata is a JSON string containing JSON.
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		raw = json.RawMessage(asString)
	}

	var meta struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return uuid.Nil, ErrMissingAccountRef
	}
	if meta.UserID == "" {
		return uuid.Nil, ErrMissingAccountRef
	}

	id, err := uuid.Parse(meta.UserID)
	if err != nil {
		return uuid.Nil, ErrMissingAccountRef
	}
	return id, nil
}
