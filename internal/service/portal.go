package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hearthside/cms/internal/billing"
	"github.com/hearthside/cms/internal/domain"
	"github.com/hearthside/cms/internal/telemetry"
)

// ErrNoBillingAccount is returned when a user without a Stripe customer asks
// for the billing portal; checkout must complete first.
var ErrNoBillingAccount = domain.Errorf(domain.EINVALID, "", "No billing account found. Please subscribe first.")

// PortalService creates hosted billing-management portal sessions.
type PortalService interface {
	// CreatePortalSession returns a redirect URL to the Stripe billing portal
	// for a user with an existing customer. No record store mutation.
	CreatePortalSession(ctx context.Context, user *domain.User) (string, error)
}

// PortalConfig holds configuration for the portal service.
type PortalConfig struct {
	// PublicSiteURL is the base for the portal return URL.
	PublicSiteURL string

	// ProviderTimeout bounds the Stripe session call.
	ProviderTimeout time.Duration
}

// portalService implements PortalService.
type portalService struct {
	provider billing.Provider
	metrics  *telemetry.BillingMetrics
	config   PortalConfig
	logger   *slog.Logger
}

// NewPortalService creates a new PortalService instance.
func NewPortalService(provider billing.Provider, metrics *telemetry.BillingMetrics, config PortalConfig, logger *slog.Logger) PortalService {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = 10 * time.Second
	}
	return &portalService{
		provider: provider,
		metrics:  metrics,
		config:   config,
		logger:   logger.With("service", "portal"),
	}
}

func (s *portalService) CreatePortalSession(ctx context.Context, user *domain.User) (string, error) {
	if user.Billing.StripeCustomerID == "" {
		return "", ErrNoBillingAccount
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	defer cancel()

	session, err := s.provider.CreatePortalSession(providerCtx, billing.CreatePortalSessionParams{
		CustomerID: user.Billing.StripeCustomerID,
		ReturnURL:  s.config.PublicSiteURL + "/billing",
	})
	if err != nil {
		return "", domain.Unavailable(err, "portal.create", "Billing provider unavailable")
	}

	if s.metrics != nil {
		s.metrics.PortalSessionsCreated.Inc()
	}
	s.logger.Info("billing portal session created",
		"user_id", user.ID,
		"session_id", session.ID,
	)
	return session.URL, nil
}
