package routes

import (
	"net/http"

	"github.com/hearthside/cms/internal/handler/api"
)

// APIDeps contains dependencies for authenticated billing API routes
type APIDeps struct {
	BillingHandler *api.BillingHandler
}

// WebhookDeps contains dependencies for webhook routes
type WebhookDeps struct {
	StripeHandler http.HandlerFunc
}
