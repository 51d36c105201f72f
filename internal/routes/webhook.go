package routes

import (
	"github.com/hearthside/cms/internal/router"
)

// RegisterWebhookRoutes registers all webhook routes.
// These routes handle incoming webhooks from external services.
//
// Note: Webhook routes do NOT have authentication middleware.
// The handler verifies the Stripe signature on every request.
func RegisterWebhookRoutes(r *router.Router, deps WebhookDeps) {
	// The handler rejects non-POST methods itself so Stripe's delivery probes
	// get the handler's response rather than the mux's 405.
	r.HandleAll("/webhooks/stripe", deps.StripeHandler)
}
