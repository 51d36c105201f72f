package billing

import (
	"context"
	"time"
)

// Provider defines the interface to the payment provider.
// The production implementation uses Stripe; tests use MockProvider.
type Provider interface {
	// CreateCustomer creates a customer record in the billing provider.
	// The internal user ID is attached as metadata so provider-side records
	// can always be traced back to the owning account.
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// CreateCheckoutSession creates a hosted subscription checkout session and
	// returns it with the redirect URL. Metadata attached here is the only
	// durable link the later subscription webhooks have back to tier selection.
	CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error)

	// CreatePortalSession creates a hosted self-service billing portal session
	// scoped to an existing customer.
	CreatePortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error)

	// VerifyWebhookSignature verifies that a webhook request is authentic.
	// Must be called on the raw body before any event content is parsed.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error
}

// CreateCustomerParams contains parameters for creating a customer.
type CreateCustomerParams struct {
	Email string
	Name  string

	// UserID is the internal account ID, stored as provider metadata.
	UserID string
}

// Customer represents a billing customer.
type Customer struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// CreateCheckoutSessionParams contains parameters for a hosted checkout session.
type CreateCheckoutSessionParams struct {
	// CustomerID is the provider customer the session is created for.
	CustomerID string

	// PriceID is the provider price reference for the selected tier.
	PriceID string

	// SuccessURL and CancelURL are where the hosted flow redirects afterwards.
	SuccessURL string
	CancelURL  string

	// SubscriptionMetadata is attached to the subscription created by the
	// session (not the session itself) so that subscription webhooks carry it.
	SubscriptionMetadata map[string]string
}

// CheckoutSession represents a hosted checkout session.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreatePortalSessionParams contains parameters for a billing portal session.
type CreatePortalSessionParams struct {
	CustomerID string
	ReturnURL  string
}

// PortalSession represents a billing portal session.
type PortalSession struct {
	ID  string
	URL string
}
