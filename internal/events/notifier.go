// Package events publishes billing change notifications to the content layer.
//
// The public site caches rendered pages whose content depends on the viewer's
// subscription tier. When a billing profile changes, a notification on the
// configured subject tells the site to revalidate that user's gated pages.
// Delivery is best effort: a dropped notification delays revalidation until
// the next change, it never corrupts billing state.
package events

import "context"

// BillingChange describes a billing profile update worth revalidating for.
type BillingChange struct {
	UserID string `json:"user_id"`
	Status string `json:"status,omitempty"`
	Tier   string `json:"tier,omitempty"`
	Event  string `json:"event"`
}

// Notifier publishes billing change notifications.
type Notifier interface {
	BillingChanged(ctx context.Context, change BillingChange) error
}

// NoopNotifier discards notifications. Used when no broker is configured,
// typically in development and tests.
type NoopNotifier struct{}

func (NoopNotifier) BillingChanged(ctx context.Context, change BillingChange) error {
	return nil
}
