package notifier

import (
	"context"
	"time"
)

// Notifier sends lifecycle notifications to users. All sends are best
// effort from the caller's point of view: callers log failures and move on,
// they never fail the operation that triggered the notification.
type Notifier interface {
	SubscriptionActivated(ctx context.Context, to, planName string, expiresAt time.Time) error
	AutoRenewChanged(ctx context.Context, to string, enabled bool) error
	SubscriptionCanceled(ctx context.Context, to string, accessUntil time.Time) error
	RenewalReminder(ctx context.Context, to, planName string, renewsAt time.Time) error
	ExpiryReminder(ctx context.Context, to, planName string, expiresAt time.Time) error
	SubscriptionExpired(ctx context.Context, to string) error
}

// Noop discards all notifications. Useful in tests and environments without
// an email transport.
type Noop struct{}

func (Noop) SubscriptionActivated(context.Context, string, string, time.Time) error { return nil }
func (Noop) AutoRenewChanged(context.Context, string, bool) error                   { return nil }
func (Noop) SubscriptionCanceled(context.Context, string, time.Time) error          { return nil }
func (Noop) RenewalReminder(context.Context, string, string, time.Time) error       { return nil }
func (Noop) ExpiryReminder(context.Context, string, string, time.Time) error        { return nil }
func (Noop) SubscriptionExpired(context.Context, string) error                      { return nil }

var _ Notifier = Noop{}
