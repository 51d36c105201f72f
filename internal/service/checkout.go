package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hearthside/cms/internal/billing"
	"github.com/hearthside/cms/internal/domain"
	"github.com/hearthside/cms/internal/telemetry"
)

// Checkout-specific errors
var (
	ErrInvalidTier       = domain.Errorf(domain.EINVALID, "", "Invalid subscription tier")
	ErrTierNotConfigured = domain.Errorf(domain.EINTERNAL, "", "Subscription tier has no configured price")
)

// CheckoutService creates hosted checkout sessions for subscription purchases.
type CheckoutService interface {
	// CreateCheckout validates the requested tier, ensures a Stripe customer
	// exists for the user, and returns the hosted checkout redirect URL.
	// The user record is not mutated: subscription state is only ever written
	// by webhook reconciliation, since the user may abandon payment.
	CreateCheckout(ctx context.Context, user *domain.User, tier string) (string, error)
}

// CheckoutConfig holds configuration for the checkout service.
type CheckoutConfig struct {
	// TierPrices maps tier names to Stripe price IDs.
	TierPrices map[string]string

	// PublicSiteURL is the base for success/cancel redirect URLs.
	PublicSiteURL string

	// ProviderTimeout bounds the Stripe session call.
	ProviderTimeout time.Duration
}

// checkoutService implements CheckoutService.
type checkoutService struct {
	linker   CustomerLinker
	provider billing.Provider
	metrics  *telemetry.BillingMetrics
	config   CheckoutConfig
	logger   *slog.Logger
}

// NewCheckoutService creates a new CheckoutService instance.
func NewCheckoutService(linker CustomerLinker, provider billing.Provider, metrics *telemetry.BillingMetrics, config CheckoutConfig, logger *slog.Logger) CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = 10 * time.Second
	}
	return &checkoutService{
		linker:   linker,
		provider: provider,
		metrics:  metrics,
		config:   config,
		logger:   logger.With("service", "checkout"),
	}
}

func (s *checkoutService) CreateCheckout(ctx context.Context, user *domain.User, tier string) (string, error) {
	parsedTier, ok := domain.ParseTier(tier)
	if !ok {
		// Unknown tiers never reach the provider.
		return "", ErrInvalidTier
	}

	priceID, ok := s.config.TierPrices[string(parsedTier)]
	if !ok {
		return "", ErrTierNotConfigured
	}

	customerID, err := s.linker.EnsureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	defer cancel()

	// The user_id and tier metadata on the subscription is the only durable
	// link the subscription.created webhook has back to the tier selection.
	session, err := s.provider.CreateCheckoutSession(providerCtx, billing.CreateCheckoutSessionParams{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: s.config.PublicSiteURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.config.PublicSiteURL + "/billing/cancel",
		SubscriptionMetadata: map[string]string{
			"user_id": user.ID.String(),
			"tier":    string(parsedTier),
		},
	})
	if err != nil {
		return "", domain.Unavailable(err, "checkout.create", "Billing provider unavailable")
	}

	if s.metrics != nil {
		s.metrics.CheckoutSessionsCreated.WithLabelValues(string(parsedTier)).Inc()
	}
	s.logger.Info("checkout session created",
		"user_id", user.ID,
		"tier", parsedTier,
		"session_id", session.ID,
	)
	return session.URL, nil
}
