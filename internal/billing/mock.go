package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MockProvider is a mock billing provider for testing.
// Simulates checkout and portal flows without calling the Stripe API.
type MockProvider struct {
	// CreateCustomerFunc allows customizing customer creation behavior
	CreateCustomerFunc func(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// CreateCheckoutSessionFunc allows customizing checkout session behavior
	CreateCheckoutSessionFunc func(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error)

	// CreatePortalSessionFunc allows customizing portal session behavior
	CreatePortalSessionFunc func(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error)

	// VerifyWebhookSignatureFunc allows customizing webhook verification behavior
	VerifyWebhookSignatureFunc func(payload []byte, signature string, secret string) error

	// Customers stores created customers for retrieval
	Customers map[string]*Customer

	// CheckoutSessions records the params of every created checkout session
	CheckoutSessions []CreateCheckoutSessionParams

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// NewMockProvider creates a new mock billing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Customers: make(map[string]*Customer),
		CallLog:   []string{},
	}
}

// CreateCustomer creates a mock customer.
func (m *MockProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateCustomer(%s)", params.Email))

	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, params)
	}

	customer := &Customer{
		ID:    "cus_" + uuid.New().String()[:8],
		Email: params.Email,
		Name:  params.Name,
	}

	m.Customers[customer.ID] = customer
	return customer, nil
}

// CreateCheckoutSession creates a mock checkout session.
func (m *MockProvider) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateCheckoutSession(%s, %s)", params.CustomerID, params.PriceID))
	m.CheckoutSessions = append(m.CheckoutSessions, params)

	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, params)
	}

	id := "cs_" + uuid.New().String()[:8]
	return &CheckoutSession{
		ID:  id,
		URL: "https://checkout.stripe.test/" + id,
	}, nil
}

// CreatePortalSession creates a mock portal session.
func (m *MockProvider) CreatePortalSession(ctx context.Context, params CreatePortalSessionParams) (*PortalSession, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreatePortalSession(%s)", params.CustomerID))

	if m.CreatePortalSessionFunc != nil {
		return m.CreatePortalSessionFunc(ctx, params)
	}

	id := "bps_" + uuid.New().String()[:8]
	return &PortalSession{
		ID:  id,
		URL: "https://billing.stripe.test/" + id,
	}, nil
}

// VerifyWebhookSignature verifies a mock webhook signature.
func (m *MockProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	m.CallLog = append(m.CallLog, "VerifyWebhookSignature")

	if m.VerifyWebhookSignatureFunc != nil {
		return m.VerifyWebhookSignatureFunc(payload, signature, secret)
	}

	return nil
}
