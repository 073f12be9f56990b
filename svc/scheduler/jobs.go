package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subflow/pkg/async"
	"github.com/dmitrymomot/subflow/svc/catalog"
	"github.com/dmitrymomot/subflow/svc/notifier"
	"github.com/dmitrymomot/subflow/svc/subscription"
)

// Jobs holds the periodic maintenance work over the subscription table.
// Every job is idempotent: reminder sends are guarded by per-subscription
// markers, and state transitions are conditional, so overlapping or repeated
// runs converge instead of double-firing. Within a run, per-subscription work
// fans out through a bounded worker pool with failures isolated per item.
type Jobs struct {
	lifecycle *subscription.Lifecycle
	catalog   catalog.Store
	notifier  notifier.Notifier
	log       *slog.Logger

	fanOut         int
	reminderWindow time.Duration
	pendingTTL     time.Duration
}

// NewJobs creates the job set.
// Panics on nil required dependencies to fail fast during initialization.
func NewJobs(lc *subscription.Lifecycle, cat catalog.Store, n notifier.Notifier, cfg Config, log *slog.Logger) *Jobs {
	if lc == nil {
		panic("scheduler: subscription.Lifecycle is required")
	}
	if cat == nil {
		panic("scheduler: catalog.Store is required")
	}
	if n == nil {
		n = notifier.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Jobs{
		lifecycle:      lc,
		catalog:        cat,
		notifier:       n,
		log:            log,
		fanOut:         cfg.FanOut,
		reminderWindow: cfg.ReminderWindow,
		pendingTTL:     cfg.PendingTTL,
	}
}

// RunRenewalReminders notifies auto-renewing subscribers whose renewal falls
// inside the reminder window. The reminded marker is set only after a
// successful send, so a failed send retries on the next run; a failure for
// one subscriber never blocks the rest.
func (j *Jobs) RunRenewalReminders(ctx context.Context) error {
	now := time.Now().UTC()
	due, err := j.lifecycle.Store().ListDueRenewalReminder(ctx, now, j.reminderWindow)
	if err != nil {
		return err
	}

	errs := async.ForEach(ctx, due, j.fanOut, func(ctx context.Context, sub subscription.Subscription) error {
		if err := j.sendReminder(ctx, &sub, j.notifier.RenewalReminder); err != nil {
			return err
		}
		return j.lifecycle.Store().MarkRenewalReminded(ctx, sub.ID, now)
	})
	for i, err := range errs {
		if err != nil {
			j.log.ErrorContext(ctx, "renewal reminder failed",
				slog.String("subscription_id", due[i].ID.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// RunExpiryReminders notifies non-renewing subscribers whose access lapses
// inside the reminder window. Same idempotence contract as the renewal job,
// with an independent marker so one reminder type never suppresses the other.
func (j *Jobs) RunExpiryReminders(ctx context.Context) error {
	now := time.Now().UTC()
	due, err := j.lifecycle.Store().ListDueExpiryReminder(ctx, now, j.reminderWindow)
	if err != nil {
		return err
	}

	errs := async.ForEach(ctx, due, j.fanOut, func(ctx context.Context, sub subscription.Subscription) error {
		if err := j.sendReminder(ctx, &sub, j.notifier.ExpiryReminder); err != nil {
			return err
		}
		return j.lifecycle.Store().MarkExpiryReminded(ctx, sub.ID, now)
	})
	for i, err := range errs {
		if err != nil {
			j.log.ErrorContext(ctx, "expiry reminder failed",
				slog.String("subscription_id", due[i].ID.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// RunExpirationSweep expires active subscriptions past their end date and
// revokes the premium projection of users whose canceled subscription has
// lapsed. The subscription table stays the source of truth; the sweep is the
// reconciliation that brings the projection back in line.
func (j *Jobs) RunExpirationSweep(ctx context.Context) error {
	now := time.Now().UTC()
	store := j.lifecycle.Store()

	expired, err := store.ListExpiredActive(ctx, now)
	if err != nil {
		return err
	}
	errs := async.ForEach(ctx, expired, j.fanOut, func(ctx context.Context, sub subscription.Subscription) error {
		if _, err := j.lifecycle.Expire(ctx, sub.ID); err != nil {
			return err
		}
		if user, err := store.GetUser(ctx, sub.UserID); err == nil {
			if err := j.notifier.SubscriptionExpired(ctx, user.Email); err != nil {
				j.log.WarnContext(ctx, "failed to send expiration notification",
					slog.String("subscription_id", sub.ID.String()),
					slog.String("error", err.Error()))
			}
		}
		return nil
	})
	for i, err := range errs {
		if err != nil {
			j.log.ErrorContext(ctx, "failed to expire subscription",
				slog.String("subscription_id", expired[i].ID.String()),
				slog.String("error", err.Error()))
		}
	}

	lapsed, err := store.ListLapsedCanceled(ctx, now)
	if err != nil {
		return err
	}
	errs = async.ForEach(ctx, lapsed, j.fanOut, func(ctx context.Context, sub subscription.Subscription) error {
		return j.lifecycle.RecomputePremium(ctx, sub.UserID)
	})
	for i, err := range errs {
		if err != nil {
			j.log.ErrorContext(ctx, "failed to revoke lapsed premium",
				slog.String("user_id", lapsed[i].UserID.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// RunPendingReaper expires pending subscriptions whose payment never arrived
// within the TTL, so abandoned checkouts do not accumulate forever. No
// notification goes out; the user never paid.
func (j *Jobs) RunPendingReaper(ctx context.Context) error {
	now := time.Now().UTC()
	store := j.lifecycle.Store()

	stale, err := store.ListStalePending(ctx, now.Add(-j.pendingTTL))
	if err != nil {
		return err
	}
	errs := async.ForEach(ctx, stale, j.fanOut, func(ctx context.Context, sub subscription.Subscription) error {
		_, err := store.Expire(ctx, sub.ID)
		return err
	})
	for i, err := range errs {
		if err != nil {
			j.log.ErrorContext(ctx, "failed to reap pending subscription",
				slog.String("subscription_id", stale[i].ID.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (j *Jobs) sendReminder(ctx context.Context, sub *subscription.Subscription, send func(ctx context.Context, to, planName string, expiresAt time.Time) error) error {
	user, err := j.lifecycle.Store().GetUser(ctx, sub.UserID)
	if err != nil {
		return err
	}
	plan, err := j.catalog.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	return send(ctx, user.Email, plan.Name, *sub.ExpiresAt)
}
