package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/hearthside/cms/internal/domain"
)

// sessionStore resolves a single known session token.
type sessionStore struct {
	token string
	user  *domain.User
}

func (s *sessionStore) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}

func (s *sessionStore) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}

func (s *sessionStore) GetUserBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	if token == s.token {
		return s.user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (s *sessionStore) ClaimStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	return nil
}

func (s *sessionStore) UpdateBillingProfile(ctx context.Context, userID uuid.UUID, update domain.BillingProfileUpdate) error {
	return nil
}

func TestWithUser(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "ada@example.com"}
	store := &sessionStore{token: "tok_valid", user: user}

	var gotUser *domain.User
	handler := WithUser(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserFromContext(r.Context())
	}))

	tests := []struct {
		name     string
		cookie   *http.Cookie
		wantUser bool
	}{
		{"no cookie", nil, false},
		{"empty token", &http.Cookie{Name: sessionCookieName, Value: ""}, false},
		{"unknown token", &http.Cookie{Name: sessionCookieName, Value: "tok_stale"}, false},
		{"valid token", &http.Cookie{Name: sessionCookieName, Value: "tok_valid"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = nil
			req := httptest.NewRequest(http.MethodGet, "/api/billing/portal", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if tt.wantUser && gotUser != user {
				t.Errorf("user in context = %v, want %v", gotUser, user)
			}
			if !tt.wantUser && gotUser != nil {
				t.Errorf("unexpected user in context: %v", gotUser)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil)
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		RequireAuth(next).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
	})

	t.Run("authenticated", func(t *testing.T) {
		user := &domain.User{ID: uuid.New()}
		req := httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil)
		req = req.WithContext(context.WithValue(req.Context(), UserContextKey, user))
		rec := httptest.NewRecorder()
		RequireAuth(next).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}
