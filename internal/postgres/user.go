package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearthside/cms/internal/domain"
)

const userColumns = `id, email, name, stripe_customer_id, stripe_subscription_id,
	subscription_tier, subscription_status, current_period_end, cancel_at_period_end,
	created_at, updated_at`

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// Compile-time check to ensure UserStore implements domain.UserStore.
var _ domain.UserStore = (*UserStore)(nil)

// NewUserStore creates a new UserStore instance.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// GetUser returns a user by internal ID.
func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		pgtype.UUID{Bytes: id, Valid: true},
	)
	return scanUser(row)
}

// GetUserByStripeCustomerID resolves the owning user of a webhook event.
func (s *UserStore) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`,
		customerID,
	)
	return scanUser(row)
}

// GetUserBySessionToken resolves an unexpired session to its user.
func (s *UserStore) GetUserBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.name, u.stripe_customer_id, u.stripe_subscription_id,
			u.subscription_tier, u.subscription_status, u.current_period_end, u.cancel_at_period_end,
			u.created_at, u.updated_at
		FROM users u
		JOIN sessions s ON s.user_id = u.id
		WHERE s.token = $1 AND s.expires_at > now()`,
		token,
	)
	return scanUser(row)
}

// ClaimStripeCustomerID writes the customer ID only if none is set yet.
// The WHERE clause makes the write conditional so that concurrent first
// checkouts cannot double-map a user.
func (s *UserStore) ClaimStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET stripe_customer_id = $2, updated_at = now()
		WHERE id = $1 AND stripe_customer_id IS NULL`,
		pgtype.UUID{Bytes: userID, Valid: true}, customerID,
	)
	if err != nil {
		return domain.Internal(err, "store.claim_customer", "failed to write stripe customer ID")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// No row updated: either the user does not exist or another request won.
	var existing pgtype.Text
	err = s.pool.QueryRow(ctx,
		`SELECT stripe_customer_id FROM users WHERE id = $1`,
		pgtype.UUID{Bytes: userID, Valid: true},
	).Scan(&existing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		return domain.Internal(err, "store.claim_customer", "failed to re-read user")
	}
	return domain.ErrCustomerAlreadyLinked
}

// UpdateBillingProfile applies a partial billing update as a single UPDATE so
// status, tier, subscription ID and period end never tear across readers.
// The write is a field-set overwrite: re-applying the same update is a no-op.
func (s *UserStore) UpdateBillingProfile(ctx context.Context, userID uuid.UUID, update domain.BillingProfileUpdate) error {
	if update.IsZero() {
		return nil
	}

	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)
	args = append(args, pgtype.UUID{Bytes: userID, Valid: true})

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.SubscriptionID != nil {
		if *update.SubscriptionID == "" {
			sets = append(sets, "stripe_subscription_id = NULL")
		} else {
			add("stripe_subscription_id", *update.SubscriptionID)
		}
	}
	if update.Tier != nil {
		add("subscription_tier", string(*update.Tier))
	}
	if update.Status != nil {
		add("subscription_status", string(*update.Status))
	}
	if update.ClearCurrentPeriodEnd {
		sets = append(sets, "current_period_end = NULL")
	} else if update.CurrentPeriodEnd != nil {
		add("current_period_end", pgtype.Timestamptz{Time: *update.CurrentPeriodEnd, Valid: true})
	}
	if update.CancelAtPeriodEnd != nil {
		add("cancel_at_period_end", *update.CancelAtPeriodEnd)
	}
	sets = append(sets, "updated_at = now()")

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return domain.Internal(err, "store.update_billing", "failed to update billing profile")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// scanUser maps a user row to the domain type.
func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		id               pgtype.UUID
		email, name      string
		customerID       pgtype.Text
		subscriptionID   pgtype.Text
		tier, status     string
		periodEnd        pgtype.Timestamptz
		cancelAtPeriod   bool
		created, updated time.Time
	)

	err := row.Scan(&id, &email, &name, &customerID, &subscriptionID,
		&tier, &status, &periodEnd, &cancelAtPeriod, &created, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.Internal(err, "store.scan_user", "failed to read user")
	}

	user := &domain.User{
		ID:    uuid.UUID(id.Bytes),
		Email: email,
		Name:  name,
		Billing: domain.BillingProfile{
			StripeCustomerID:     customerID.String,
			StripeSubscriptionID: subscriptionID.String,
			Tier:                 domain.SubscriptionTier(tier),
			Status:               domain.SubscriptionStatus(status),
			CancelAtPeriodEnd:    cancelAtPeriod,
		},
		CreatedAt: created,
		UpdatedAt: updated,
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		user.Billing.CurrentPeriodEnd = &t
	}
	return user, nil
}
