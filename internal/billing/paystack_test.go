package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesura-app/mesura/internal/domain"
)

const paystackTestSecret = "sk_test_shared_secret"

func signPaystack(t *testing.T, payload []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(paystackTestSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaystackService_VerifySignature(t *testing.T) {
	svc := NewPaystackService(paystackTestSecret, domain.SubscriptionTierStart)
	payload := []byte(`{"status":"success","transactionId":"tx1"}`)

	assert.True(t, svc.VerifySignature(payload, signPaystack(t, payload)))
	assert.False(t, svc.VerifySignature(payload, "deadbeef"))
	assert.False(t, svc.VerifySignature(payload, ""))

	// A signature over different bytes never validates the original body.
	other := signPaystack(t, []byte(`{"status":"success","transactionId":"tx2"}`))
	assert.False(t, svc.VerifySignature(payload, other))
}

func TestPaystackService_ParseEvent(t *testing.T) {
	accountID := uuid.New()
	svc := NewPaystackService(paystackTestSecret, domain.SubscriptionTierStart)

	payload := []byte(fmt.Sprintf(
		`{"status":"success","transactionId":"tx1","metadata":{"userId":%q}}`, accountID))

	ev, ok, err := svc.ParseEvent(payload)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, ProviderPaystack, ev.Provider)
	assert.Equal(t, EventProviderPayment, ev.Kind)
	assert.Equal(t, "tx1", ev.ID)
	assert.Equal(t, accountID, ev.AccountID)
	assert.Equal(t, "paystack_tx1", ev.SubscriptionID)
	assert.Equal(t, domain.SubscriptionTierStart, ev.Tier)
	require.NotNil(t, ev.PeriodEnd)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *ev.PeriodEnd, time.Minute)
}

func TestPaystackService_ParseEvent_DoubleEncodedMetadata(t *testing.T) {
	accountID := uuid.New()
	svc := NewPaystackService(paystackTestSecret, domain.SubscriptionTierStart)

	// Metadata delivered as a JSON string containing JSON.
	payload := []byte(fmt.Sprintf(
		`{"status":"success","transactionId":"tx2","metadata":"{\"userId\":\"%s\"}"}`, accountID))

	ev, ok, err := svc.ParseEvent(payload)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, accountID, ev.AccountID)
}

func TestPaystackService_ParseEvent_Rejections(t *testing.T) {
	svc := NewPaystackService(paystackTestSecret, domain.SubscriptionTierStart)

	tests := []struct {
		name       string
		payload    string
		wantIgnore bool
		wantErr    error
	}{
		{"non-success status is ignored", `{"status":"failed","transactionId":"tx1"}`, true, nil},
		{"pending status is ignored", `{"status":"pending","transactionId":"tx1"}`, true, nil},
		{"missing metadata", `{"status":"success","transactionId":"tx1"}`, false, ErrMissingAccountRef},
		{"metadata without userId", `{"status":"success","transactionId":"tx1","metadata":{"plan":"start"}}`, false, ErrMissingAccountRef},
		{"userId not a uuid", `{"status":"success","transactionId":"tx1","metadata":{"userId":"42"}}`, false, ErrMissingAccountRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := svc.ParseEvent([]byte(tt.payload))
			if tt.wantIgnore {
				assert.False(t, ok)
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
		})
	}
}

func TestPaystackService_ParseEvent_MalformedJSON(t *testing.T) {
	svc := NewPaystackService(paystackTestSecret, domain.SubscriptionTierStart)
	_, _, err := svc.ParseEvent([]byte(`{"status":`))
	assert.Error(t, err)
}
