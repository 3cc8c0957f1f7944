package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/giantcranberry/Newsworthy-sub000/internal/domain"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
	stripego "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableStripeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &stripego.Error{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"connection", &stripego.Error{Type: StripeErrorTypeAPIConnection}, true},
		{"server error", &stripego.Error{HTTPStatusCode: http.StatusBadGateway}, true},
		{"not implemented", &stripego.Error{HTTPStatusCode: http.StatusNotImplemented}, false},
		{"card declined", &stripego.Error{Type: stripego.ErrorTypeCard, HTTPStatusCode: http.StatusPaymentRequired}, false},
		{"idempotency", &stripego.Error{Type: StripeErrorTypeIdempotency, HTTPStatusCode: http.StatusInternalServerError}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableStripeError(tt.err))
		})
	}
}

func noDelay() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 4)
}

func TestRetryingRetriesRetryableErrors(t *testing.T) {
	fake := NewFake()
	retryable := domain.NewPaymentGatewayError("CreateIntent", "", "timeout", true, nil)
	fake.CreateErrs = []error{retryable, retryable}

	gw := NewRetrying(fake, logger.NewNop()).WithBackOff(noDelay)
	intent, err := gw.CreateIntent(context.Background(), CreateIntentParams{Amount: 1500, Currency: "usd", IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), intent.Amount)
	assert.Equal(t, 3, fake.CreateCalls)
}

func TestRetryingStopsOnPermanentErrors(t *testing.T) {
	fake := NewFake()
	fake.CreateErrs = []error{domain.NewPaymentGatewayError("CreateIntent", "card_declined", "declined", false, nil)}

	gw := NewRetrying(fake, logger.NewNop()).WithBackOff(noDelay)
	_, err := gw.CreateIntent(context.Background(), CreateIntentParams{Amount: 1500, Currency: "usd"})
	assert.ErrorIs(t, err, domain.ErrPaymentGateway)
	assert.Equal(t, 1, fake.CreateCalls)
}

func TestFakeIdempotencyKey(t *testing.T) {
	fake := NewFake()
	ctx := context.Background()

	first, err := fake.CreateIntent(ctx, CreateIntentParams{Amount: 100, IdempotencyKey: "same"})
	require.NoError(t, err)
	second, err := fake.CreateIntent(ctx, CreateIntentParams{Amount: 100, IdempotencyKey: "same"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func newStripeTestGateway(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		URL:               stripego.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	})
	return NewStripeGateway("sk_test_123", &stripego.Backends{API: backend, Connect: backend, Uploads: backend}, logger.NewNop())
}

func TestStripeGatewayCreateIntent(t *testing.T) {
	gw := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "22500", r.PostForm.Get("amount"))
		assert.Equal(t, "r1", r.PostForm.Get("metadata[release_id]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":22500,"currency":"usd",
			"status":"requires_payment_method","client_secret":"pi_123_secret_abc","metadata":{"release_id":"r1"}}`))
	})

	intent, err := gw.CreateIntent(context.Background(), CreateIntentParams{
		Amount:         22500,
		Currency:       "usd",
		Metadata:       map[string]string{MetadataReleaseID: "r1"},
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	assert.Equal(t, domain.IntentStatusPending, intent.Status)
}

func TestStripeGatewayClassifiesErrors(t *testing.T) {
	gw := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"try again later"}}`))
	})

	_, err := gw.GetIntent(context.Background(), "pi_123")
	var gwErr *domain.PaymentGatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.True(t, gwErr.Retryable)
	assert.Equal(t, "GetIntent", gwErr.Operation)
}

func signedEvent(t *testing.T, secret, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        eventType,
		"api_version": stripego.APIVersion,
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return payload, signed.Header
}

func TestParseStripeWebhook(t *testing.T) {
	const secret = "whsec_test"

	payload, header := signedEvent(t, secret, EventPaymentIntentSucceeded, map[string]any{
		"id": "pi_1", "object": "payment_intent", "amount": 15000, "currency": "usd", "status": "succeeded",
	})
	n, ok, err := ParseStripeWebhook(payload, header, secret)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pi_1", n.IntentID)
	assert.Equal(t, domain.IntentStatusSucceeded, n.Status)
	assert.Equal(t, int64(15000), n.Amount)

	payload, header = signedEvent(t, secret, EventPaymentIntentFailed, map[string]any{"id": "pi_2", "object": "payment_intent"})
	n, ok, err = ParseStripeWebhook(payload, header, secret)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.IntentStatusFailed, n.Status)

	payload, header = signedEvent(t, secret, "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
	_, ok, err = ParseStripeWebhook(payload, header, secret)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseStripeWebhookRejectsBadSignature(t *testing.T) {
	payload, _ := signedEvent(t, "whsec_test", EventPaymentIntentSucceeded, map[string]any{"id": "pi_1"})

	_, _, err := ParseStripeWebhook(payload, "t=1,v1=deadbeef", "whsec_test")
	assert.Error(t, err)
}

func TestStripeGatewayGetIntentReadsReceivedAmount(t *testing.T) {
	gw := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":22500,"amount_received":15000,
			"currency":"usd","status":"succeeded"}`))
	})

	intent, err := gw.GetIntent(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusSucceeded, intent.Status)
	assert.Equal(t, int64(22500), intent.Amount)
	assert.Equal(t, int64(15000), intent.AmountReceived)
}

func TestStripeGatewayRefundIntent(t *testing.T) {
	gw := newStripeTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.Equal(t, "refund-pi_123", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_123", r.PostForm.Get("payment_intent"))
		assert.Equal(t, "15000", r.PostForm.Get("amount"))
		assert.Equal(t, RefundReasonDuplicate, r.PostForm.Get("reason"))
		assert.Equal(t, "already_purchased", r.PostForm.Get("metadata[refund_reason]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_1","object":"refund","amount":15000,"currency":"usd","status":"succeeded"}`))
	})

	refund, err := gw.RefundIntent(context.Background(), RefundParams{
		IntentID:       "pi_123",
		Amount:         15000,
		Reason:         RefundReasonDuplicate,
		Metadata:       map[string]string{MetadataRefundReason: "already_purchased"},
		IdempotencyKey: "refund-pi_123",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", refund.ID)
	assert.Equal(t, "pi_123", refund.IntentID)
	assert.Equal(t, int64(15000), refund.Amount)
	assert.Equal(t, "succeeded", refund.Status)
}

func TestFakeRefund(t *testing.T) {
	fake := NewFake()
	ctx := context.Background()

	intent, err := fake.CreateIntent(ctx, CreateIntentParams{Amount: 15000})
	require.NoError(t, err)

	_, err = fake.RefundIntent(ctx, RefundParams{IntentID: intent.ID, IdempotencyKey: "k"})
	assert.ErrorIs(t, err, domain.ErrPaymentGateway)

	require.NoError(t, fake.Succeed(intent.ID))
	first, err := fake.RefundIntent(ctx, RefundParams{IntentID: intent.ID, IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, int64(15000), first.Amount)

	second, err := fake.RefundIntent(ctx, RefundParams{IntentID: intent.ID, IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(15000), fake.Refunded(intent.ID))
}

func TestRetryingRetriesRefund(t *testing.T) {
	fake := NewFake()
	ctx := context.Background()
	intent, err := fake.CreateIntent(ctx, CreateIntentParams{Amount: 500})
	require.NoError(t, err)
	require.NoError(t, fake.Succeed(intent.ID))
	fake.RefundErrs = []error{domain.NewPaymentGatewayError("RefundIntent", "", "timeout", true, nil)}

	gw := NewRetrying(fake, logger.NewNop()).WithBackOff(noDelay)
	refund, err := gw.RefundIntent(ctx, RefundParams{IntentID: intent.ID, Amount: 500, IdempotencyKey: "refund-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(500), refund.Amount)
	assert.Equal(t, 2, fake.RefundCalls)
}
