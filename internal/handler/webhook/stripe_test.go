package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hearthside/cms/internal/billing"
	"github.com/hearthside/cms/internal/domain"
)

// mockSyncService records routed payloads and returns injected errors.
type mockSyncService struct {
	ChangeFunc    func(ctx context.Context, payload json.RawMessage) error
	DeletedFunc   func(ctx context.Context, payload json.RawMessage) error
	FailedFunc    func(ctx context.Context, payload json.RawMessage) error
	SucceededFunc func(ctx context.Context, payload json.RawMessage) error

	Calls []string
}

func (m *mockSyncService) ApplySubscriptionChange(ctx context.Context, payload json.RawMessage) error {
	m.Calls = append(m.Calls, "change")
	if m.ChangeFunc != nil {
		return m.ChangeFunc(ctx, payload)
	}
	return nil
}

func (m *mockSyncService) ApplySubscriptionDeleted(ctx context.Context, payload json.RawMessage) error {
	m.Calls = append(m.Calls, "deleted")
	if m.DeletedFunc != nil {
		return m.DeletedFunc(ctx, payload)
	}
	return nil
}

func (m *mockSyncService) ApplyInvoicePaymentFailed(ctx context.Context, payload json.RawMessage) error {
	m.Calls = append(m.Calls, "invoice_failed")
	if m.FailedFunc != nil {
		return m.FailedFunc(ctx, payload)
	}
	return nil
}

func (m *mockSyncService) ApplyInvoicePaymentSucceeded(ctx context.Context, payload json.RawMessage) error {
	m.Calls = append(m.Calls, "invoice_succeeded")
	if m.SucceededFunc != nil {
		return m.SucceededFunc(ctx, payload)
	}
	return nil
}

func eventBody(t *testing.T, eventType string, object map[string]any) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":   "evt_123",
		"type": eventType,
		"data": map[string]any{"object": object},
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func postWebhook(h *StripeHandler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)
	return rec
}

func newTestHandler(provider billing.Provider, sync *mockSyncService) *StripeHandler {
	return NewStripeHandler(provider, sync, nil, StripeWebhookConfig{WebhookSecret: "whsec_test"}, nil)
}

func TestHandleWebhook_RejectsNonPost(t *testing.T) {
	h := newTestHandler(billing.NewMockProvider(), &mockSyncService{})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	sync := &mockSyncService{}
	h := newTestHandler(billing.NewMockProvider(), sync)

	rec := postWebhook(h, eventBody(t, "customer.subscription.updated", map[string]any{"id": "sub_1"}), "")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if len(sync.Calls) != 0 {
		t.Errorf("sync called without signature: %v", sync.Calls)
	}
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	provider := billing.NewMockProvider()
	provider.VerifyWebhookSignatureFunc = func(payload []byte, signature, secret string) error {
		return billing.ErrInvalidWebhookSignature
	}
	sync := &mockSyncService{}
	h := newTestHandler(provider, sync)

	rec := postWebhook(h, eventBody(t, "customer.subscription.updated", map[string]any{"id": "sub_1"}), "t=1,v1=bad")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if len(sync.Calls) != 0 {
		t.Errorf("sync called with invalid signature: %v", sync.Calls)
	}
}

func TestHandleWebhook_InvalidJSON(t *testing.T) {
	h := newTestHandler(billing.NewMockProvider(), &mockSyncService{})

	rec := postWebhook(h, `{"type": `, "t=1,v1=good")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleWebhook_RoutesEvents(t *testing.T) {
	tests := []struct {
		eventType string
		wantCall  string
	}{
		{"customer.subscription.created", "change"},
		{"customer.subscription.updated", "change"},
		{"customer.subscription.deleted", "deleted"},
		{"invoice.payment_failed", "invoice_failed"},
		{"invoice.payment_succeeded", "invoice_succeeded"},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			var gotPayload json.RawMessage
			sync := &mockSyncService{}
			capture := func(ctx context.Context, payload json.RawMessage) error {
				gotPayload = payload
				return nil
			}
			sync.ChangeFunc = capture
			sync.DeletedFunc = capture
			sync.FailedFunc = capture
			sync.SucceededFunc = capture
			h := newTestHandler(billing.NewMockProvider(), sync)

			rec := postWebhook(h, eventBody(t, tt.eventType, map[string]any{"id": "sub_1", "customer": "cus_1"}), "t=1,v1=good")

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body)
			}
			if rec.Body.String() != `{"received": true}` {
				t.Errorf("body = %s", rec.Body)
			}
			if len(sync.Calls) != 1 || sync.Calls[0] != tt.wantCall {
				t.Errorf("calls = %v, want [%s]", sync.Calls, tt.wantCall)
			}

			var object map[string]any
			if err := json.Unmarshal(gotPayload, &object); err != nil {
				t.Fatalf("routed payload invalid: %v", err)
			}
			if object["id"] != "sub_1" {
				t.Errorf("routed payload = %s, want data.object", gotPayload)
			}
		})
	}
}

func TestHandleWebhook_UnknownEventAcknowledged(t *testing.T) {
	sync := &mockSyncService{}
	h := newTestHandler(billing.NewMockProvider(), sync)

	rec := postWebhook(h, eventBody(t, "charge.refunded", map[string]any{"id": "ch_1"}), "t=1,v1=good")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(sync.Calls) != 0 {
		t.Errorf("sync called for unhandled event: %v", sync.Calls)
	}
}

func TestHandleWebhook_StoreFailureRequestsRedelivery(t *testing.T) {
	sync := &mockSyncService{
		ChangeFunc: func(ctx context.Context, payload json.RawMessage) error {
			return errors.New("pg: connection refused")
		},
	}
	h := newTestHandler(billing.NewMockProvider(), sync)

	rec := postWebhook(h, eventBody(t, "customer.subscription.updated", map[string]any{"id": "sub_1"}), "t=1,v1=good")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 so the event is redelivered", rec.Code)
	}
}

func TestHandleWebhook_MalformedVerifiedPayload(t *testing.T) {
	sync := &mockSyncService{
		ChangeFunc: func(ctx context.Context, payload json.RawMessage) error {
			return domain.Invalid("billing_sync.subscription", "malformed subscription payload")
		},
	}
	h := newTestHandler(billing.NewMockProvider(), sync)

	// Redelivering a payload that does not parse is pointless, so no 5xx.
	rec := postWebhook(h, eventBody(t, "customer.subscription.updated", map[string]any{"id": "sub_1"}), "t=1,v1=good")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
