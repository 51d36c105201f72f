package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hearthside/cms/internal/billing"
	"github.com/hearthside/cms/internal/domain"
	"github.com/hearthside/cms/internal/telemetry"
)

// CustomerLinker resolves the 1:1 mapping between a user and a Stripe customer,
// creating the Stripe side on first use.
type CustomerLinker interface {
	// EnsureCustomer returns the user's Stripe customer ID, creating and
	// persisting a new customer if none exists yet. Idempotent: at most one
	// customer is ever linked per user, even under concurrent first checkouts.
	EnsureCustomer(ctx context.Context, user *domain.User) (string, error)
}

// customerLinker implements CustomerLinker.
type customerLinker struct {
	store           domain.UserStore
	provider        billing.Provider
	metrics         *telemetry.BillingMetrics
	providerTimeout time.Duration
	logger          *slog.Logger
}

// NewCustomerLinker creates a new CustomerLinker instance.
func NewCustomerLinker(store domain.UserStore, provider billing.Provider, metrics *telemetry.BillingMetrics, providerTimeout time.Duration, logger *slog.Logger) CustomerLinker {
	if logger == nil {
		logger = slog.Default()
	}
	if providerTimeout <= 0 {
		providerTimeout = 10 * time.Second
	}
	return &customerLinker{
		store:           store,
		provider:        provider,
		metrics:         metrics,
		providerTimeout: providerTimeout,
		logger:          logger.With("service", "customer_linker"),
	}
}

func (l *customerLinker) EnsureCustomer(ctx context.Context, user *domain.User) (string, error) {
	// Fast path: mapping already recorded, no provider call.
	if user.Billing.StripeCustomerID != "" {
		return user.Billing.StripeCustomerID, nil
	}

	providerCtx, cancel := context.WithTimeout(ctx, l.providerTimeout)
	defer cancel()

	customer, err := l.provider.CreateCustomer(providerCtx, billing.CreateCustomerParams{
		Email:  user.Email,
		Name:   user.Name,
		UserID: user.ID.String(),
	})
	if err != nil {
		return "", domain.Unavailable(err, "linker.ensure_customer", "Billing provider unavailable")
	}

	err = l.store.ClaimStripeCustomerID(ctx, user.ID, customer.ID)
	if err != nil {
		if errors.Is(err, domain.ErrCustomerAlreadyLinked) {
			// A concurrent first checkout committed its mapping before ours.
			// Use the winner's customer and abandon the one we just created;
			// it holds no subscription and no payment method.
			committed, readErr := l.store.GetUser(ctx, user.ID)
			if readErr != nil {
				return "", readErr
			}
			if committed.Billing.StripeCustomerID == "" {
				return "", domain.Internal(nil, "linker.ensure_customer", "conflict reported but no customer committed")
			}
			l.logger.Warn("lost customer claim race, using committed mapping",
				"user_id", user.ID,
				"committed_customer", committed.Billing.StripeCustomerID,
				"orphaned_customer", customer.ID,
			)
			return committed.Billing.StripeCustomerID, nil
		}
		return "", err
	}

	if l.metrics != nil {
		l.metrics.CustomersCreated.Inc()
	}
	l.logger.Info("stripe customer created",
		"user_id", user.ID,
		"customer_id", customer.ID,
	)
	return customer.ID, nil
}
