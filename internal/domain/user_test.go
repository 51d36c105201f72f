package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		input  string
		want   SubscriptionTier
		wantOK bool
	}{
		{"basic", TierBasic, true},
		{"pro", TierPro, true},
		{"enterprise", TierEnterprise, true},
		// "none" is a stored state, not something a client or webhook may set.
		{"none", "", false},
		{"", "", false},
		{"Pro", "", false},
		{"platinum", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseTier(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestParseSubscriptionStatus(t *testing.T) {
	for _, s := range []string{"inactive", "active", "trialing", "past_due", "canceled", "unpaid"} {
		_, ok := ParseSubscriptionStatus(s)
		assert.True(t, ok, "tracked status %q rejected", s)
	}

	for _, s := range []string{"incomplete", "incomplete_expired", "paused", "Active", ""} {
		_, ok := ParseSubscriptionStatus(s)
		assert.False(t, ok, "untracked status %q accepted", s)
	}
}

func TestBillingProfileUpdate_IsZero(t *testing.T) {
	assert.True(t, BillingProfileUpdate{}.IsZero())

	tier := TierPro
	status := StatusActive
	subID := ""
	periodEnd := time.Now()
	cancel := false

	nonZero := []BillingProfileUpdate{
		{SubscriptionID: &subID},
		{Tier: &tier},
		{Status: &status},
		{CurrentPeriodEnd: &periodEnd},
		{ClearCurrentPeriodEnd: true},
		{CancelAtPeriodEnd: &cancel},
	}
	for i, u := range nonZero {
		assert.False(t, u.IsZero(), "update %d", i)
	}
}
