package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subflow/pkg/payment"
	"github.com/dmitrymomot/subflow/svc/catalog"
	"github.com/dmitrymomot/subflow/svc/checkout"
	"github.com/dmitrymomot/subflow/svc/notifier"
	"github.com/dmitrymomot/subflow/svc/subscription"
)

// fakeGateway is a deterministic in-process stand-in for the payment
// provider. Signatures are valid when they equal orderID+"|"+paymentID.
type fakeGateway struct {
	mu         sync.Mutex
	configured bool
	failCreate bool
	orders     []payment.Order
}

func (g *fakeGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (*payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreate {
		return nil, payment.ErrFailedToCreateOrder
	}
	order := payment.Order{
		ID:       "order_" + uuid.NewString(),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}
	g.orders = append(g.orders, order)
	return &order, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return signature == orderID+"|"+paymentID
}

func (g *fakeGateway) IsConfigured() bool { return g.configured }

type fixture struct {
	svc     *checkout.Service
	catalog *catalog.MemoryStore
	subs    *subscription.MemoryStore
	gateway *fakeGateway
	userID  uuid.UUID
	plan    *catalog.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cat := catalog.NewMemoryStore()
	subs := subscription.NewMemoryStore()
	gw := &fakeGateway{configured: true}

	plan := &catalog.Plan{
		ID:           uuid.New(),
		Name:         "Pro Annual",
		Slug:         "pro-annual",
		DurationDays: 365,
		Price:        50000,
		Currency:     "INR",
		Active:       true,
	}
	require.NoError(t, cat.CreatePlan(ctx, plan))

	userID := uuid.New()
	subs.PutUser(subscription.User{ID: userID, Email: "user@example.com"})

	svc := checkout.NewService(cat, subscription.NewLifecycle(subs), gw, notifier.Noop{})
	return &fixture{svc: svc, catalog: cat, subs: subs, gateway: gw, userID: userID, plan: plan}
}

func (f *fixture) startCheckout(t *testing.T, promoCode string) *checkout.StartResult {
	t.Helper()
	res, err := f.svc.Start(context.Background(), f.userID, f.plan.ID, promoCode, true)
	require.NoError(t, err)
	return res
}

func TestService_Preview(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("plan price without promo", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		quote, err := f.svc.Preview(ctx, f.plan.ID, "", true)
		require.NoError(t, err)
		assert.Equal(t, int64(50000), quote.Amount)
		assert.Equal(t, int64(0), quote.DiscountAmount)
		assert.Nil(t, quote.Promo)
	})

	t.Run("percent promo applied", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		promo := &catalog.Promocode{
			ID:            uuid.New(),
			Code:          "SAVE20",
			DiscountType:  catalog.DiscountPercent,
			DiscountValue: 20,
		}
		require.NoError(t, f.catalog.CreatePromocode(ctx, promo))

		quote, err := f.svc.Preview(ctx, f.plan.ID, "save20", true)
		require.NoError(t, err)
		assert.Equal(t, int64(40000), quote.Amount)
		assert.Equal(t, int64(10000), quote.DiscountAmount)
		require.NotNil(t, quote.Promo)
		assert.Equal(t, promo.ID, quote.Promo.ID)
	})

	t.Run("inactive plan rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.plan.Active = false
		require.NoError(t, f.catalog.UpdatePlan(ctx, f.plan))

		_, err := f.svc.Preview(ctx, f.plan.ID, "", true)
		assert.ErrorIs(t, err, catalog.ErrPlanInactive)
	})

	t.Run("unknown promo rejected not ignored", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.Preview(ctx, f.plan.ID, "NOPE", true)
		assert.ErrorIs(t, err, catalog.ErrPromoNotFound)
	})

	t.Run("minimum not met rejects checkout", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		minAmount := int64(45000)
		promo := &catalog.Promocode{
			ID:            uuid.New(),
			Code:          "BIGCUT",
			DiscountType:  catalog.DiscountPercent,
			DiscountValue: 50,
			MinAmount:     &minAmount,
		}
		require.NoError(t, f.catalog.CreatePromocode(ctx, promo))

		_, err := f.svc.Preview(ctx, f.plan.ID, "BIGCUT", true)
		assert.ErrorIs(t, err, catalog.ErrPromoMinimumNotMet)
	})
}

func TestService_Start(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates order and pending subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		res := f.startCheckout(t, "")
		assert.NotEmpty(t, res.OrderID)
		assert.Equal(t, int64(50000), res.Amount)
		assert.Equal(t, "INR", res.Currency)

		sub, err := f.subs.GetByOrderID(ctx, res.OrderID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPending, sub.Status)
		assert.Equal(t, f.userID, sub.UserID)
		assert.Nil(t, sub.PaymentID)
	})

	t.Run("unconfigured gateway rejected before any store access", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.gateway.configured = false

		_, err := f.svc.Start(ctx, f.userID, f.plan.ID, "", true)
		assert.ErrorIs(t, err, checkout.ErrGatewayUnavailable)
		assert.Empty(t, f.gateway.orders)
	})

	t.Run("gateway failure creates nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.gateway.failCreate = true

		_, err := f.svc.Start(ctx, f.userID, f.plan.ID, "", true)
		require.Error(t, err)

		subs, err := f.subs.List(ctx, subscription.Filter{})
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("invalid promo blocks start", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		promo := &catalog.Promocode{
			ID:            uuid.New(),
			Code:          "RENEWONLY",
			DiscountType:  catalog.DiscountPercent,
			DiscountValue: 10,
			AutoRenewOnly: true,
		}
		require.NoError(t, f.catalog.CreatePromocode(ctx, promo))

		_, err := f.svc.Start(ctx, f.userID, f.plan.ID, "RENEWONLY", false)
		assert.ErrorIs(t, err, catalog.ErrPromoAutoRenewRequired)
		assert.Empty(t, f.gateway.orders)
	})
}

func TestService_Confirm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid signature activates and sets premium", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.startCheckout(t, "")

		sub, err := f.svc.Confirm(ctx, f.userID, res.OrderID, "pay_1", res.OrderID+"|pay_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		require.NotNil(t, sub.ExpiresAt)
		assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 365), *sub.ExpiresAt, 5*time.Second)

		user, err := f.subs.GetUser(ctx, f.userID)
		require.NoError(t, err)
		assert.True(t, user.IsPremium)
		require.NotNil(t, user.PremiumPlanID)
		assert.Equal(t, f.plan.ID, *user.PremiumPlanID)
	})

	t.Run("bad signature rejected before store access", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.startCheckout(t, "")

		_, err := f.svc.Confirm(ctx, f.userID, res.OrderID, "pay_1", "forged")
		assert.ErrorIs(t, err, checkout.ErrSignatureMismatch)

		sub, err := f.subs.GetByOrderID(ctx, res.OrderID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusPending, sub.Status)
	})

	t.Run("unknown order", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.Confirm(ctx, f.userID, "order_ghost", "pay_1", "order_ghost|pay_1")
		assert.ErrorIs(t, err, checkout.ErrPendingNotFound)
	})

	t.Run("other user's order rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.startCheckout(t, "")

		_, err := f.svc.Confirm(ctx, uuid.New(), res.OrderID, "pay_1", res.OrderID+"|pay_1")
		assert.ErrorIs(t, err, checkout.ErrUnauthorized)
	})

	t.Run("double confirm is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.startCheckout(t, "")
		sig := res.OrderID + "|pay_1"

		_, err := f.svc.Confirm(ctx, f.userID, res.OrderID, "pay_1", sig)
		require.NoError(t, err)

		_, err = f.svc.Confirm(ctx, f.userID, res.OrderID, "pay_1", sig)
		assert.ErrorIs(t, err, checkout.ErrPendingNotFound)
	})

	t.Run("promo redemption counted once", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		maxUses := 10
		promo := &catalog.Promocode{
			ID:             uuid.New(),
			Code:           "SAVE20",
			DiscountType:   catalog.DiscountPercent,
			DiscountValue:  20,
			MaxRedemptions: &maxUses,
		}
		require.NoError(t, f.catalog.CreatePromocode(ctx, promo))
		res := f.startCheckout(t, "SAVE20")

		_, err := f.svc.Confirm(ctx, f.userID, res.OrderID, "pay_1", res.OrderID+"|pay_1")
		require.NoError(t, err)

		stored, err := f.catalog.GetPromocode(ctx, promo.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.RedemptionsCount)
	})

	t.Run("capped promo confirms anyway", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		maxUses := 1
		promo := &catalog.Promocode{
			ID:             uuid.New(),
			Code:           "LAST1",
			DiscountType:   catalog.DiscountPercent,
			DiscountValue:  20,
			MaxRedemptions: &maxUses,
		}
		require.NoError(t, f.catalog.CreatePromocode(ctx, promo))
		res := f.startCheckout(t, "LAST1")

		// Someone else uses the final redemption while this payment is
		// in flight at the gateway.
		ok, err := f.catalog.IncrementRedemptions(ctx, promo.ID)
		require.NoError(t, err)
		require.True(t, ok)

		sub, err := f.svc.Confirm(ctx, f.userID, res.OrderID, "pay_1", res.OrderID+"|pay_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)

		stored, err := f.catalog.GetPromocode(ctx, promo.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.RedemptionsCount)
	})
}

func TestService_SetAutoRenew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("toggles flag and projection", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.startCheckout(t, "")
		_, err := f.svc.Confirm(ctx, f.userID, res.OrderID, "pay_1", res.OrderID+"|pay_1")
		require.NoError(t, err)

		require.NoError(t, f.svc.SetAutoRenew(ctx, f.userID, false))

		sub, err := f.subs.ActiveByUser(ctx, f.userID)
		require.NoError(t, err)
		assert.False(t, sub.AutoRenew)

		user, err := f.subs.GetUser(ctx, f.userID)
		require.NoError(t, err)
		assert.False(t, user.PremiumAutoRenew)
	})

	t.Run("no active subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		err := f.svc.SetAutoRenew(ctx, f.userID, false)
		assert.ErrorIs(t, err, checkout.ErrNoActiveSubscription)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("cancel keeps premium until expiry", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.startCheckout(t, "")
		_, err := f.svc.Confirm(ctx, f.userID, res.OrderID, "pay_1", res.OrderID+"|pay_1")
		require.NoError(t, err)

		canceled, err := f.svc.Cancel(ctx, f.userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCanceled, canceled.Status)
		assert.False(t, canceled.AutoRenew)

		user, err := f.subs.GetUser(ctx, f.userID)
		require.NoError(t, err)
		assert.True(t, user.IsPremium)
	})

	t.Run("cancel without active subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.Cancel(ctx, f.userID)
		assert.ErrorIs(t, err, checkout.ErrNoActiveSubscription)
	})

	t.Run("cancel is not repeatable", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		res := f.startCheckout(t, "")
		_, err := f.svc.Confirm(ctx, f.userID, res.OrderID, "pay_1", res.OrderID+"|pay_1")
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, f.userID)
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, f.userID)
		assert.ErrorIs(t, err, checkout.ErrNoActiveSubscription)
	})
}

func TestService_NotificationFailureDoesNotFailFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cat := catalog.NewMemoryStore()
	subs := subscription.NewMemoryStore()
	gw := &fakeGateway{configured: true}

	plan := &catalog.Plan{
		ID:           uuid.New(),
		Name:         "Pro",
		Slug:         "pro",
		DurationDays: 30,
		Price:        50000,
		Currency:     "INR",
		Active:       true,
	}
	require.NoError(t, cat.CreatePlan(ctx, plan))
	userID := uuid.New()
	subs.PutUser(subscription.User{ID: userID, Email: "user@example.com"})

	svc := checkout.NewService(cat, subscription.NewLifecycle(subs), gw, failingNotifier{})

	res, err := svc.Start(ctx, userID, plan.ID, "", true)
	require.NoError(t, err)

	sub, err := svc.Confirm(ctx, userID, res.OrderID, "pay_1", res.OrderID+"|pay_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
}

type failingNotifier struct{}

var errSendFailed = errors.New("smtp down")

func (failingNotifier) SubscriptionActivated(context.Context, string, string, time.Time) error {
	return errSendFailed
}
func (failingNotifier) AutoRenewChanged(context.Context, string, bool) error { return errSendFailed }
func (failingNotifier) SubscriptionCanceled(context.Context, string, time.Time) error {
	return errSendFailed
}
func (failingNotifier) RenewalReminder(context.Context, string, string, time.Time) error {
	return errSendFailed
}
func (failingNotifier) ExpiryReminder(context.Context, string, string, time.Time) error {
	return errSendFailed
}
func (failingNotifier) SubscriptionExpired(context.Context, string) error { return errSendFailed }
