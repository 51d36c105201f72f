package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hearthside/cms/internal/billing"
	"github.com/hearthside/cms/internal/domain"
	"github.com/hearthside/cms/internal/handler"
	"github.com/hearthside/cms/internal/service"
	"github.com/hearthside/cms/internal/telemetry"
)

// stripeEvent is the envelope shape shared by all Stripe webhook events.
// Only the envelope is decoded here; the typed payload in Data.Raw is decoded
// by the sync service after the signature has been verified.
type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Raw json.RawMessage `json:"object"`
	} `json:"data"`
}

// StripeHandler handles Stripe webhook events.
type StripeHandler struct {
	provider billing.Provider
	sync     service.BillingSyncService
	metrics  *telemetry.BillingMetrics
	config   StripeWebhookConfig
	logger   *slog.Logger
}

// StripeWebhookConfig contains configuration for Stripe webhook handling.
type StripeWebhookConfig struct {
	// WebhookSecret is the webhook signing secret from the Stripe dashboard.
	WebhookSecret string

	// MaxBodyBytes caps the webhook payload size. Zero means the default 64KB.
	MaxBodyBytes int64
}

// NewStripeHandler creates a new Stripe webhook handler.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:8080/webhooks/stripe
//	stripe trigger customer.subscription.updated
func NewStripeHandler(provider billing.Provider, sync service.BillingSyncService, metrics *telemetry.BillingMetrics, config StripeWebhookConfig, logger *slog.Logger) *StripeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = 64 * 1024
	}
	return &StripeHandler{
		provider: provider,
		sync:     sync,
		metrics:  metrics,
		config:   config,
		logger:   logger.With("handler", "stripe_webhook"),
	}
}

// HandleWebhook processes incoming Stripe webhook events.
//
// Response policy: 401 for a bad or missing signature, 5xx when applying a
// verified event to the store fails (so Stripe redelivers), 200 for everything
// else including events we do not act on. Acknowledging unknown events keeps
// the endpoint compatible with new event types enabled in the dashboard.
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method != http.MethodPost {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Method not allowed"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, h.config.MaxBodyBytes))
	if err != nil {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Error reading request body"))
		return
	}

	// Signature verification happens before any of the payload is interpreted.
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		h.logger.Warn("webhook rejected, missing signature header")
		h.countFailed("unknown", "bad_signature")
		handler.ErrorResponse(w, r, domain.Unauthorized("webhook.stripe", "Missing signature"))
		return
	}

	if err := h.provider.VerifyWebhookSignature(payload, signature, h.config.WebhookSecret); err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		h.countFailed("unknown", "bad_signature")
		handler.ErrorResponse(w, r, domain.Unauthorized("webhook.stripe", "Invalid signature"))
		return
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn("webhook payload is not valid JSON", "error", err)
		h.countFailed("unknown", "bad_payload")
		handler.ErrorResponse(w, r, domain.Invalid("webhook.stripe", "Invalid JSON"))
		return
	}

	h.logger.Info("webhook received", "event_type", event.Type, "event_id", event.ID)
	if h.metrics != nil {
		h.metrics.WebhookReceived.WithLabelValues(event.Type).Inc()
		defer func() {
			h.metrics.WebhookLatency.WithLabelValues(event.Type).Observe(time.Since(startTime).Seconds())
		}()
	}

	ctx := r.Context()
	var applyErr error

	switch event.Type {
	case "customer.created":
		// Customers are created by our own checkout flow; the event is
		// informational only.
		h.logger.Info("customer created", "event_id", event.ID)

	case "customer.subscription.created", "customer.subscription.updated":
		applyErr = h.sync.ApplySubscriptionChange(ctx, event.Data.Raw)

	case "customer.subscription.deleted":
		applyErr = h.sync.ApplySubscriptionDeleted(ctx, event.Data.Raw)

	case "invoice.payment_failed":
		applyErr = h.sync.ApplyInvoicePaymentFailed(ctx, event.Data.Raw)

	case "invoice.payment_succeeded":
		applyErr = h.sync.ApplyInvoicePaymentSucceeded(ctx, event.Data.Raw)

	default:
		h.logger.Info("unhandled event type acknowledged", "event_type", event.Type)
	}

	if applyErr != nil {
		if domain.ErrorCode(applyErr) == domain.EINVALID {
			// A verified event we cannot parse will not parse on redelivery
			// either, so a retry is pointless.
			h.countFailed(event.Type, "bad_payload")
			handler.ErrorResponse(w, r, applyErr)
			return
		}

		h.logger.Error("webhook apply failed, requesting redelivery",
			"event_type", event.Type,
			"event_id", event.ID,
			"error", applyErr,
		)
		h.countFailed(event.Type, "store_error")
		handler.ErrorResponse(w, r, domain.WrapError(applyErr, domain.EUNAVAILABLE, "webhook.stripe", "event could not be applied"))
		return
	}

	if h.metrics != nil {
		h.metrics.WebhookProcessed.WithLabelValues(event.Type).Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received": true}`))
}

func (h *StripeHandler) countFailed(eventType, errorType string) {
	if h.metrics != nil {
		h.metrics.WebhookFailed.WithLabelValues(eventType, errorType).Inc()
	}
}
