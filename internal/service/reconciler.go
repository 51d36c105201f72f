package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hearthside/cms/internal/domain"
	"github.com/hearthside/cms/internal/events"
	"github.com/hearthside/cms/internal/telemetry"
)

// SubscriptionEvent is the payload of customer.subscription.* webhook events.
// Stripe subscription payloads are absolute: they carry the full current state
// of the subscription, not a delta, which is what makes out-of-order and
// duplicated delivery safe to apply with plain field overwrites.
type SubscriptionEvent struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata"`
}

// InvoiceEvent is the slice of an invoice payload the reconciler needs: the
// customer reference that resolves the owning user.
type InvoiceEvent struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// BillingSyncService applies verified Stripe events to user billing profiles.
//
// Delivery order between events for the same subscription is not guaranteed,
// so every apply is an absolute field-set overwrite (last write wins) rather
// than a transition that depends on the previous stored state. Re-applying any
// event yields the same profile as applying it once.
//
// A nil return means the event is acknowledged, including when no user owns
// the referenced customer (expected for test and replay events). A non-nil
// return means the write failed and the transport should answer retryable so
// Stripe redelivers.
type BillingSyncService interface {
	// ApplySubscriptionChange handles customer.subscription.created/updated.
	ApplySubscriptionChange(ctx context.Context, payload json.RawMessage) error

	// ApplySubscriptionDeleted handles customer.subscription.deleted.
	ApplySubscriptionDeleted(ctx context.Context, payload json.RawMessage) error

	// ApplyInvoicePaymentFailed handles invoice.payment_failed.
	ApplyInvoicePaymentFailed(ctx context.Context, payload json.RawMessage) error

	// ApplyInvoicePaymentSucceeded handles invoice.payment_succeeded.
	ApplyInvoicePaymentSucceeded(ctx context.Context, payload json.RawMessage) error
}

// billingSyncService implements BillingSyncService.
type billingSyncService struct {
	store        domain.UserStore
	notifier     events.Notifier
	metrics      *telemetry.BillingMetrics
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewBillingSyncService creates a new BillingSyncService instance.
func NewBillingSyncService(store domain.UserStore, notifier events.Notifier, metrics *telemetry.BillingMetrics, logger *slog.Logger) BillingSyncService {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = events.NoopNotifier{}
	}
	return &billingSyncService{
		store:        store,
		notifier:     notifier,
		metrics:      metrics,
		writeTimeout: 5 * time.Second,
		logger:       logger.With("service", "billing_sync"),
	}
}

func (s *billingSyncService) ApplySubscriptionChange(ctx context.Context, payload json.RawMessage) error {
	var sub SubscriptionEvent
	if err := json.Unmarshal(payload, &sub); err != nil {
		return domain.Invalid("billing_sync.subscription", "malformed subscription payload")
	}

	user, ok, err := s.resolveUser(ctx, sub.Customer, "subscription "+sub.ID)
	if err != nil || !ok {
		return err
	}

	update := domain.BillingProfileUpdate{
		SubscriptionID:    &sub.ID,
		CancelAtPeriodEnd: &sub.CancelAtPeriodEnd,
	}

	if status, ok := domain.ParseSubscriptionStatus(sub.Status); ok {
		update.Status = &status
	} else {
		// Statuses outside the tracked set (incomplete, paused, ...) leave the
		// stored status alone rather than guessing a mapping.
		s.logger.Warn("untracked subscription status, leaving status unchanged",
			"subscription_id", sub.ID,
			"status", sub.Status,
		)
	}

	// Tier comes from the metadata attached at checkout time. A payload with
	// missing or unknown tier metadata (e.g. a renewal created outside our
	// checkout flow) leaves the stored tier unchanged, so an incomplete event
	// can never downgrade an active subscriber.
	if tier, ok := domain.ParseTier(sub.Metadata["tier"]); ok {
		update.Tier = &tier
	}

	if sub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		update.CurrentPeriodEnd = &periodEnd
	}

	if err := s.applyUpdate(ctx, user, update, "subscription.change"); err != nil {
		return err
	}
	return nil
}

func (s *billingSyncService) ApplySubscriptionDeleted(ctx context.Context, payload json.RawMessage) error {
	var sub SubscriptionEvent
	if err := json.Unmarshal(payload, &sub); err != nil {
		return domain.Invalid("billing_sync.subscription_deleted", "malformed subscription payload")
	}

	user, ok, err := s.resolveUser(ctx, sub.Customer, "subscription "+sub.ID)
	if err != nil || !ok {
		return err
	}

	// Cancellation is terminal for this subscription: status and tier drop to
	// their terminal values and the subscription reference and period end are
	// cleared. A later checkout starts over with a fresh subscription.
	canceled := domain.StatusCanceled
	tierNone := domain.TierNone
	cleared := ""
	noCancel := false
	update := domain.BillingProfileUpdate{
		SubscriptionID:        &cleared,
		Status:                &canceled,
		Tier:                  &tierNone,
		ClearCurrentPeriodEnd: true,
		CancelAtPeriodEnd:     &noCancel,
	}

	return s.applyUpdate(ctx, user, update, "subscription.deleted")
}

func (s *billingSyncService) ApplyInvoicePaymentFailed(ctx context.Context, payload json.RawMessage) error {
	return s.applyInvoiceStatus(ctx, payload, domain.StatusPastDue, "invoice.payment_failed")
}

func (s *billingSyncService) ApplyInvoicePaymentSucceeded(ctx context.Context, payload json.RawMessage) error {
	return s.applyInvoiceStatus(ctx, payload, domain.StatusActive, "invoice.payment_succeeded")
}

// applyInvoiceStatus writes a status-only update derived from an invoice event.
func (s *billingSyncService) applyInvoiceStatus(ctx context.Context, payload json.RawMessage, status domain.SubscriptionStatus, eventName string) error {
	var inv InvoiceEvent
	if err := json.Unmarshal(payload, &inv); err != nil {
		return domain.Invalid("billing_sync.invoice", "malformed invoice payload")
	}

	user, ok, err := s.resolveUser(ctx, inv.Customer, "invoice "+inv.ID)
	if err != nil || !ok {
		return err
	}

	return s.applyUpdate(ctx, user, domain.BillingProfileUpdate{Status: &status}, eventName)
}

// resolveUser maps a provider customer reference to the owning user.
// A miss is acknowledged, not fatal: Stripe CLI triggers, replayed events and
// deleted accounts all produce events for customers we do not know.
func (s *billingSyncService) resolveUser(ctx context.Context, customerID, source string) (*domain.User, bool, error) {
	if customerID == "" {
		s.logger.Warn("event carries no customer reference, ignoring", "source", source)
		return nil, false, nil
	}

	user, err := s.store.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			if s.metrics != nil {
				s.metrics.WebhookUnresolved.Inc()
			}
			s.logger.Warn("no user for stripe customer, ignoring event",
				"customer_id", customerID,
				"source", source,
			)
			return nil, false, nil
		}
		return nil, false, err
	}
	return user, true, nil
}

// applyUpdate writes the profile change and notifies the content layer.
func (s *billingSyncService) applyUpdate(ctx context.Context, user *domain.User, update domain.BillingProfileUpdate, eventName string) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	if err := s.store.UpdateBillingProfile(writeCtx, user.ID, update); err != nil {
		// Surfaced as retryable: Stripe redelivers and the overwrite semantics
		// make the retry safe.
		return err
	}

	s.logger.Info("billing profile updated",
		"user_id", user.ID,
		"event", eventName,
	)

	// Fire-and-forget: gated pages re-render on the next notification, a lost
	// one only delays that.
	change := events.BillingChange{
		UserID: user.ID.String(),
		Event:  eventName,
	}
	if update.Status != nil {
		change.Status = string(*update.Status)
	}
	if update.Tier != nil {
		change.Tier = string(*update.Tier)
	}
	if err := s.notifier.BillingChanged(ctx, change); err != nil {
		s.logger.Warn("billing change notification failed",
			"user_id", user.ID,
			"error", err,
		)
	}
	return nil
}
