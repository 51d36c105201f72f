package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier is the plan level a user has purchased.
type SubscriptionTier string

const (
	TierNone       SubscriptionTier = "none"
	TierBasic      SubscriptionTier = "basic"
	TierPro        SubscriptionTier = "pro"
	TierEnterprise SubscriptionTier = "enterprise"
)

// ParseTier validates a tier name from user input or webhook metadata.
// TierNone is not purchasable and is rejected here.
func ParseTier(s string) (SubscriptionTier, bool) {
	switch SubscriptionTier(s) {
	case TierBasic, TierPro, TierEnterprise:
		return SubscriptionTier(s), true
	}
	return "", false
}

// SubscriptionStatus mirrors the subset of Stripe subscription statuses the
// application tracks.
//
// State machine: initial = inactive. Webhook events move a profile between
// trialing/active/past_due/unpaid; canceled is terminal for a given
// subscription. Reactivation is a new checkout producing a new subscription,
// which overwrites stripe_subscription_id rather than resurrecting the old one.
type SubscriptionStatus string

const (
	StatusInactive SubscriptionStatus = "inactive"
	StatusActive   SubscriptionStatus = "active"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusUnpaid   SubscriptionStatus = "unpaid"
)

// ParseSubscriptionStatus validates a status reported by Stripe.
// Statuses outside the tracked set (incomplete, paused, ...) are rejected;
// the reconciler leaves the stored status unchanged for those.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, bool) {
	switch SubscriptionStatus(s) {
	case StatusInactive, StatusActive, StatusTrialing, StatusPastDue, StatusCanceled, StatusUnpaid:
		return SubscriptionStatus(s), true
	}
	return "", false
}

// User is a website account with its billing profile.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	Billing   BillingProfile
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BillingProfile is the subscription state mirrored from Stripe.
// All fields except StripeCustomerID are mutated only by webhook reconciliation.
type BillingProfile struct {
	// StripeCustomerID is set at most once, by the customer linker on first
	// checkout, and never reassigned.
	StripeCustomerID string

	// StripeSubscriptionID is present only while an active or recently-active
	// subscription exists; cleared on cancellation.
	StripeSubscriptionID string

	Tier   SubscriptionTier
	Status SubscriptionStatus

	// CurrentPeriodEnd marks the end of the paid period; nil when no
	// subscription exists or after cancellation.
	CurrentPeriodEnd *time.Time

	CancelAtPeriodEnd bool
}

// BillingProfileUpdate is a partial update to a billing profile. Nil pointer
// fields are left untouched. The store applies the whole update as a single
// UPDATE so a reader never observes a half-applied transition.
type BillingProfileUpdate struct {
	// SubscriptionID set to a pointer to "" clears the stored value.
	SubscriptionID *string
	Tier           *SubscriptionTier
	Status         *SubscriptionStatus
	// CurrentPeriodEnd sets the period end; ClearCurrentPeriodEnd nulls it.
	CurrentPeriodEnd      *time.Time
	ClearCurrentPeriodEnd bool
	CancelAtPeriodEnd     *bool
}

// IsZero reports whether the update would change nothing.
func (u BillingProfileUpdate) IsZero() bool {
	return u.SubscriptionID == nil && u.Tier == nil && u.Status == nil &&
		u.CurrentPeriodEnd == nil && !u.ClearCurrentPeriodEnd && u.CancelAtPeriodEnd == nil
}

// Store errors returned by UserStore implementations.
var (
	// ErrUserNotFound is returned by lookups that match no user.
	ErrUserNotFound = &Error{Code: ENOTFOUND, Message: "User not found"}

	// ErrCustomerAlreadyLinked signals a failed conditional write: another
	// request committed a stripe_customer_id first. The linker recovers by
	// re-reading the winning mapping; this error is never surfaced to callers.
	ErrCustomerAlreadyLinked = &Error{Code: ECONFLICT, Message: "User already has a Stripe customer"}
)

// UserStore is the record store for user accounts and billing profiles.
type UserStore interface {
	// GetUser returns a user by internal ID.
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)

	// GetUserByStripeCustomerID resolves the owning user of a webhook event.
	// Returns ErrUserNotFound when no user carries the customer ID.
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*User, error)

	// GetUserBySessionToken resolves an authenticated session to its user.
	GetUserBySessionToken(ctx context.Context, token string) (*User, error)

	// ClaimStripeCustomerID writes the customer ID only if none is set yet.
	// Returns ErrCustomerAlreadyLinked when a concurrent claim won.
	ClaimStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error

	// UpdateBillingProfile applies a partial billing update as one atomic write.
	UpdateBillingProfile(ctx context.Context, userID uuid.UUID, update BillingProfileUpdate) error
}
