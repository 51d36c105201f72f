package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  StripeConfig
		wantErr bool
	}{
		{
			name:    "valid",
			config:  StripeConfig{APIKey: "sk_test_abc", WebhookSecret: "whsec_abc"},
			wantErr: false,
		},
		{
			name:    "missing api key",
			config:  StripeConfig{WebhookSecret: "whsec_abc"},
			wantErr: true,
		},
		{
			name:    "missing webhook secret",
			config:  StripeConfig{APIKey: "sk_test_abc"},
			wantErr: true,
		},
		{
			name:    "empty",
			config:  StripeConfig{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStripeConfig_IsTestMode(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"sk_test_abc123", true},
		{"sk_live_abc123", false},
		{"sk_test", false},
		{"", false},
	}

	for _, tt := range tests {
		c := StripeConfig{APIKey: tt.key}
		assert.Equal(t, tt.want, c.IsTestMode(), "IsTestMode(%q)", tt.key)
	}
}

func TestNewStripeProvider_RejectsInvalidConfig(t *testing.T) {
	_, err := NewStripeProvider(StripeConfig{})
	assert.Error(t, err)
}
