package routes

import (
	"github.com/hearthside/cms/internal/middleware"
	"github.com/hearthside/cms/internal/router"
)

// RegisterAPIRoutes registers the billing API routes.
// Both endpoints require an authenticated session.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	authed := r.Group(middleware.RequireAuth)

	authed.Post("/api/billing/checkout", deps.BillingHandler.CreateCheckout)
	authed.Post("/api/billing/portal", deps.BillingHandler.CreatePortal)
}
