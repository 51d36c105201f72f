package billing

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider using the Stripe API.
//
// The client is constructed once at process start from validated configuration
// and passed by reference to whatever needs it; there is no package-global key.
type StripeProvider struct {
	config StripeConfig
	api    *client.API
}

// Compile-time check to ensure StripeProvider implements Provider.
var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a new Stripe billing provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	api := &client.API{}
	api.Init(config.APIKey, nil)

	return &StripeProvider{
		config: config,
		api:    api,
	}, nil
}

// CreateCustomer creates a Stripe customer tagged with the internal user ID.
func (s *StripeProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	customerParams := &stripe.CustomerParams{
		Email: stripe.String(params.Email),
	}
	if params.Name != "" {
		customerParams.Name = stripe.String(params.Name)
	}
	customerParams.Context = ctx
	customerParams.AddMetadata("user_id", params.UserID)

	cust, err := s.api.Customers.New(customerParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &Customer{
		ID:    cust.ID,
		Email: cust.Email,
		Name:  cust.Name,
	}, nil
}

// CreateCheckoutSession creates a hosted subscription checkout session.
func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(params.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	sessionParams.Context = ctx
	if len(params.SubscriptionMetadata) > 0 {
		sessionParams.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: params.SubscriptionMetadata,
		}
	}

	session, err := s.api.CheckoutSessions.New(sessionParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &CheckoutSession{
		ID:  session.ID,
		URL: session.URL,
	}, nil
}

// CreatePortalSession creates a Stripe billing portal session.
func (s *StripeProvider) CreatePortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error) {
	portalParams := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(params.CustomerID),
		ReturnURL: stripe.String(params.ReturnURL),
	}
	portalParams.Context = ctx

	session, err := s.api.BillingPortalSessions.New(portalParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &PortalSession{
		ID:  session.ID,
		URL: session.URL,
	}, nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature over the raw payload.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if _, err := webhook.ConstructEvent(payload, signature, secret); err != nil {
		return ErrInvalidWebhookSignature
	}
	return nil
}

// wrapStripeError converts Stripe SDK errors into StripeError for callers.
func wrapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &StripeError{
			Message:       stripeErr.Msg,
			Code:          string(stripeErr.Code),
			RequestID:     stripeErr.RequestID,
			OriginalError: err,
		}
	}
	return &StripeError{
		Message:       err.Error(),
		OriginalError: err,
	}
}
