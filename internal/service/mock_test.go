package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hearthside/cms/internal/domain"
	"github.com/hearthside/cms/internal/events"
)

// mockUserStore is an in-memory UserStore with the same conditional-write
// semantics as the Postgres implementation. Error injection fields override
// individual operations.
type mockUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User

	GetUserErr       error
	GetByCustomerErr error
	ClaimErr         error
	UpdateErr        error

	ClaimCalls  int
	UpdateCalls int
}

func newMockUserStore(users ...*domain.User) *mockUserStore {
	s := &mockUserStore{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		cp := *u
		s.users[u.ID] = &cp
	}
	return s
}

func (s *mockUserStore) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetUserErr != nil {
		return nil, s.GetUserErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *mockUserStore) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetByCustomerErr != nil {
		return nil, s.GetByCustomerErr
	}
	for _, u := range s.users {
		if u.Billing.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *mockUserStore) GetUserBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}

func (s *mockUserStore) ClaimStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClaimCalls++
	if s.ClaimErr != nil {
		return s.ClaimErr
	}
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.Billing.StripeCustomerID != "" {
		return domain.ErrCustomerAlreadyLinked
	}
	u.Billing.StripeCustomerID = customerID
	return nil
}

func (s *mockUserStore) UpdateBillingProfile(ctx context.Context, userID uuid.UUID, update domain.BillingProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateCalls++
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if update.SubscriptionID != nil {
		u.Billing.StripeSubscriptionID = *update.SubscriptionID
	}
	if update.Tier != nil {
		u.Billing.Tier = *update.Tier
	}
	if update.Status != nil {
		u.Billing.Status = *update.Status
	}
	if update.CurrentPeriodEnd != nil {
		t := *update.CurrentPeriodEnd
		u.Billing.CurrentPeriodEnd = &t
	}
	if update.ClearCurrentPeriodEnd {
		u.Billing.CurrentPeriodEnd = nil
	}
	if update.CancelAtPeriodEnd != nil {
		u.Billing.CancelAtPeriodEnd = *update.CancelAtPeriodEnd
	}
	return nil
}

func (s *mockUserStore) mustGet(id uuid.UUID) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[id]
}

var _ domain.UserStore = (*mockUserStore)(nil)

// mockNotifier records billing change notifications.
type mockNotifier struct {
	mu      sync.Mutex
	Changes []events.BillingChange
	Err     error
}

func (n *mockNotifier) BillingChanged(ctx context.Context, change events.BillingChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Changes = append(n.Changes, change)
	return nil
}
