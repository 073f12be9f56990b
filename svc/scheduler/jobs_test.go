package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subflow/svc/catalog"
	"github.com/dmitrymomot/subflow/svc/notifier"
	"github.com/dmitrymomot/subflow/svc/scheduler"
	"github.com/dmitrymomot/subflow/svc/subscription"
)

// recordingNotifier records every send and can fail selected recipients.
type recordingNotifier struct {
	mu       sync.Mutex
	renewals []string
	expiries []string
	expired  []string
	failFor  map[string]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{failFor: make(map[string]bool)}
}

func (n *recordingNotifier) send(bucket *[]string, to string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[to] {
		return errors.New("send failed")
	}
	*bucket = append(*bucket, to)
	return nil
}

func (n *recordingNotifier) SubscriptionActivated(context.Context, string, string, time.Time) error {
	return nil
}
func (n *recordingNotifier) AutoRenewChanged(context.Context, string, bool) error { return nil }
func (n *recordingNotifier) SubscriptionCanceled(context.Context, string, time.Time) error {
	return nil
}
func (n *recordingNotifier) RenewalReminder(_ context.Context, to, _ string, _ time.Time) error {
	return n.send(&n.renewals, to)
}
func (n *recordingNotifier) ExpiryReminder(_ context.Context, to, _ string, _ time.Time) error {
	return n.send(&n.expiries, to)
}
func (n *recordingNotifier) SubscriptionExpired(_ context.Context, to string) error {
	return n.send(&n.expired, to)
}

type fixture struct {
	jobs    *scheduler.Jobs
	subs    *subscription.MemoryStore
	catalog *catalog.MemoryStore
	sends   *recordingNotifier
	plan    *catalog.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	subs := subscription.NewMemoryStore()
	cat := catalog.NewMemoryStore()
	sends := newRecordingNotifier()

	plan := &catalog.Plan{
		ID:           uuid.New(),
		Name:         "Pro Monthly",
		Slug:         "pro-monthly",
		DurationDays: 30,
		Price:        50000,
		Currency:     "INR",
		Active:       true,
	}
	require.NoError(t, cat.CreatePlan(context.Background(), plan))

	cfg := scheduler.Config{
		FanOut:         4,
		ReminderWindow: 72 * time.Hour,
		PendingTTL:     48 * time.Hour,
	}
	jobs := scheduler.NewJobs(subscription.NewLifecycle(subs), cat, sends, cfg, nil)
	return &fixture{jobs: jobs, subs: subs, catalog: cat, sends: sends, plan: plan}
}

// seedSub stores a user plus a subscription in the given state and returns
// the subscription id.
func (f *fixture) seedSub(email string, status subscription.Status, autoRenew bool, expiresIn time.Duration) uuid.UUID {
	now := time.Now().UTC()
	userID := uuid.New()
	f.subs.PutUser(subscription.User{ID: userID, Email: email})

	sub := subscription.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		PlanID:    f.plan.ID,
		AutoRenew: autoRenew,
		Status:    status,
		Amount:    f.plan.Price,
		Currency:  f.plan.Currency,
		OrderID:   "order_" + uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status != subscription.StatusPending {
		paymentID := "pay_" + uuid.NewString()
		startedAt := now.Add(-24 * time.Hour)
		expiresAt := now.Add(expiresIn)
		sub.PaymentID = &paymentID
		sub.StartedAt = &startedAt
		sub.ExpiresAt = &expiresAt
	}
	f.subs.PutSubscription(sub)

	if status == subscription.StatusActive || status == subscription.StatusCanceled {
		expiresAt := now.Add(expiresIn)
		_ = f.subs.SetPremium(context.Background(), userID, f.plan.ID, expiresAt, autoRenew)
	}
	return sub.ID
}

func TestJobs_RenewalReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("reminds inside window, auto-renew only", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seedSub("due@example.com", subscription.StatusActive, true, time.Hour)
		f.seedSub("far@example.com", subscription.StatusActive, true, 100*time.Hour)
		f.seedSub("manual@example.com", subscription.StatusActive, false, time.Hour)

		require.NoError(t, f.jobs.RunRenewalReminders(ctx))
		assert.Equal(t, []string{"due@example.com"}, f.sends.renewals)
		assert.Empty(t, f.sends.expiries)
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seedSub("due@example.com", subscription.StatusActive, true, time.Hour)

		require.NoError(t, f.jobs.RunRenewalReminders(ctx))
		require.NoError(t, f.jobs.RunRenewalReminders(ctx))
		assert.Len(t, f.sends.renewals, 1)
	})

	t.Run("sends are dispatched concurrently", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seedSub("first@example.com", subscription.StatusActive, true, time.Hour)
		f.seedSub("second@example.com", subscription.StatusActive, true, time.Hour)

		// Each send blocks until both are in flight; a sequential dispatch
		// would never get the second send started and time out instead.
		gate := &gatedNotifier{arrived: make(chan struct{}, 2), release: make(chan struct{})}
		cfg := scheduler.Config{FanOut: 4, ReminderWindow: 72 * time.Hour}
		jobs := scheduler.NewJobs(subscription.NewLifecycle(f.subs), f.catalog, gate, cfg, nil)

		done := make(chan error, 1)
		go func() { done <- jobs.RunRenewalReminders(ctx) }()

		for n := 0; n < 2; n++ {
			select {
			case <-gate.arrived:
			case <-time.After(2 * time.Second):
				t.Fatal("second send never started while the first was in flight")
			}
		}
		close(gate.release)
		require.NoError(t, <-done)
	})

	t.Run("failed send retries next run", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seedSub("flaky@example.com", subscription.StatusActive, true, time.Hour)
		f.seedSub("fine@example.com", subscription.StatusActive, true, time.Hour)
		f.sends.failFor["flaky@example.com"] = true

		require.NoError(t, f.jobs.RunRenewalReminders(ctx))
		assert.Equal(t, []string{"fine@example.com"}, f.sends.renewals)

		// The marker was not set for the failed recipient, so the next run
		// picks it up again once sending recovers.
		f.sends.failFor["flaky@example.com"] = false
		require.NoError(t, f.jobs.RunRenewalReminders(ctx))
		assert.ElementsMatch(t, []string{"fine@example.com", "flaky@example.com"}, f.sends.renewals)
	})
}

func TestJobs_ExpiryReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	f.seedSub("lapsing@example.com", subscription.StatusActive, false, time.Hour)
	f.seedSub("renewing@example.com", subscription.StatusActive, true, time.Hour)

	require.NoError(t, f.jobs.RunExpiryReminders(ctx))
	assert.Equal(t, []string{"lapsing@example.com"}, f.sends.expiries)

	require.NoError(t, f.jobs.RunExpiryReminders(ctx))
	assert.Len(t, f.sends.expiries, 1)
}

func TestJobs_ExpirationSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("expires past-due active and revokes premium", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.seedSub("done@example.com", subscription.StatusActive, false, -time.Second)
		f.seedSub("ongoing@example.com", subscription.StatusActive, false, 24*time.Hour)

		require.NoError(t, f.jobs.RunExpirationSweep(ctx))

		sub, err := f.subs.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusExpired, sub.Status)

		user, err := f.subs.GetUser(ctx, sub.UserID)
		require.NoError(t, err)
		assert.False(t, user.IsPremium)
		assert.Equal(t, []string{"done@example.com"}, f.sends.expired)
	})

	t.Run("revokes lapsed canceled without notification", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.seedSub("quit@example.com", subscription.StatusCanceled, false, -time.Second)

		require.NoError(t, f.jobs.RunExpirationSweep(ctx))

		sub, err := f.subs.GetByID(ctx, id)
		require.NoError(t, err)
		user, err := f.subs.GetUser(ctx, sub.UserID)
		require.NoError(t, err)
		assert.False(t, user.IsPremium)
		assert.Empty(t, f.sends.expired)
	})

	t.Run("canceled but unexpired keeps premium", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := f.seedSub("grace@example.com", subscription.StatusCanceled, false, 24*time.Hour)

		require.NoError(t, f.jobs.RunExpirationSweep(ctx))

		sub, err := f.subs.GetByID(ctx, id)
		require.NoError(t, err)
		user, err := f.subs.GetUser(ctx, sub.UserID)
		require.NoError(t, err)
		assert.True(t, user.IsPremium)
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seedSub("done@example.com", subscription.StatusActive, false, -time.Second)

		require.NoError(t, f.jobs.RunExpirationSweep(ctx))
		require.NoError(t, f.jobs.RunExpirationSweep(ctx))
		assert.Len(t, f.sends.expired, 1)
	})
}

func TestJobs_PendingReaper(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	now := time.Now().UTC()

	staleID := uuid.New()
	f.subs.PutSubscription(subscription.Subscription{
		ID:        staleID,
		UserID:    uuid.New(),
		PlanID:    f.plan.ID,
		Status:    subscription.StatusPending,
		OrderID:   "order_stale",
		CreatedAt: now.Add(-72 * time.Hour),
		UpdatedAt: now.Add(-72 * time.Hour),
	})
	freshID := uuid.New()
	f.subs.PutSubscription(subscription.Subscription{
		ID:        freshID,
		UserID:    uuid.New(),
		PlanID:    f.plan.ID,
		Status:    subscription.StatusPending,
		OrderID:   "order_fresh",
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	})

	require.NoError(t, f.jobs.RunPendingReaper(ctx))

	stale, err := f.subs.GetByID(ctx, staleID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, stale.Status)

	fresh, err := f.subs.GetByID(ctx, freshID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, fresh.Status)
}

// gatedNotifier holds every renewal send until released, so tests can observe
// whether sends overlap.
type gatedNotifier struct {
	notifier.Noop
	arrived chan struct{}
	release chan struct{}
}

func (n *gatedNotifier) RenewalReminder(context.Context, string, string, time.Time) error {
	n.arrived <- struct{}{}
	select {
	case <-n.release:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("released too late")
	}
}

var _ notifier.Notifier = (*recordingNotifier)(nil)
