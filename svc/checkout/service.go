// Package checkout orchestrates the purchase flow: quoting a price with an
// optional promocode, registering a gateway order, and turning a verified
// payment callback into an active subscription.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subflow/pkg/joblock"
	"github.com/dmitrymomot/subflow/pkg/payment"
	"github.com/dmitrymomot/subflow/svc/catalog"
	"github.com/dmitrymomot/subflow/svc/notifier"
	"github.com/dmitrymomot/subflow/svc/subscription"
)

const (
	// userLockTTL bounds how long a crashed checkout start can block the
	// same user from retrying.
	userLockTTL = 30 * time.Second

	// maxReceiptLen is the gateway's limit on the receipt field.
	maxReceiptLen = 40
)

// Quote is the price breakdown for a plan with an optional promocode applied.
type Quote struct {
	Plan           *catalog.Plan
	Promo          *catalog.Promocode
	BaseAmount     int64
	DiscountAmount int64
	Amount         int64 // final charge, minor currency units
	Currency       string
}

// StartResult is what the client needs to open the gateway's payment widget.
type StartResult struct {
	SubscriptionID uuid.UUID
	OrderID        string
	Amount         int64
	Currency       string
}

// Service wires the catalog, subscription lifecycle, payment gateway, and
// notifier into the checkout flow.
type Service struct {
	catalog   catalog.Store
	lifecycle *subscription.Lifecycle
	gateway   payment.Gateway
	notifier  notifier.Notifier
	locker    *joblock.Locker
	log       *slog.Logger
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLocker enables per-user serialization of checkout starts.
func WithLocker(locker *joblock.Locker) Option {
	return func(s *Service) { s.locker = locker }
}

// WithLogger sets the logger for soft failures (notifications, promo
// bookkeeping) that must not fail the flow.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a checkout Service.
// Panics on nil required dependencies to fail fast during initialization.
func NewService(cat catalog.Store, lc *subscription.Lifecycle, gw payment.Gateway, n notifier.Notifier, opts ...Option) *Service {
	if cat == nil {
		panic("checkout: catalog.Store is required")
	}
	if lc == nil {
		panic("checkout: subscription.Lifecycle is required")
	}
	if gw == nil {
		panic("checkout: payment.Gateway is required")
	}
	if n == nil {
		n = notifier.Noop{}
	}

	s := &Service{
		catalog:   cat,
		lifecycle: lc,
		gateway:   gw,
		notifier:  n,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preview quotes the charge for a plan with an optional promocode, without
// touching the gateway or creating any records. An invalid promo rejects the
// preview rather than being silently dropped, so the client can surface the
// exact reason.
func (s *Service) Preview(ctx context.Context, planID uuid.UUID, promoCode string, autoRenew bool) (*Quote, error) {
	plan, err := s.catalog.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, catalog.ErrPlanInactive
	}

	quote := &Quote{
		Plan:       plan,
		BaseAmount: plan.Price,
		Amount:     plan.Price,
		Currency:   plan.Currency,
	}

	if promoCode == "" {
		return quote, nil
	}

	promo, err := s.catalog.GetPromocodeByCode(ctx, catalog.NormalizeCode(promoCode))
	if err != nil {
		return nil, err
	}
	if err := catalog.ValidatePromo(promo, planID, autoRenew, time.Now().UTC()); err != nil {
		return nil, err
	}

	adjusted := catalog.ApplyDiscount(plan.Price, promo)
	if err := catalog.CheckMinimum(adjusted, promo); err != nil {
		return nil, err
	}

	quote.Promo = promo
	quote.DiscountAmount = plan.Price - adjusted
	quote.Amount = adjusted
	return quote, nil
}

// Start quotes the charge, registers a gateway order, and records a pending
// subscription tied to it. Nothing is persisted before the gateway accepts
// the order, and the gateway is never called when it is unconfigured.
func (s *Service) Start(ctx context.Context, userID, planID uuid.UUID, promoCode string, autoRenew bool) (*StartResult, error) {
	if !s.gateway.IsConfigured() {
		return nil, ErrGatewayUnavailable
	}

	if s.locker != nil {
		release, acquired, err := s.locker.TryAcquire(ctx, "checkout:"+userID.String(), userLockTTL)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ErrCheckoutInProgress
		}
		defer release()
	}

	quote, err := s.Preview(ctx, planID, promoCode, autoRenew)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order, err := s.gateway.CreateOrder(ctx, quote.Amount, quote.Currency, receiptFor(planID, now), map[string]string{
		"user_id": userID.String(),
		"plan_id": planID.String(),
	})
	if err != nil {
		return nil, err
	}

	sub := &subscription.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		PlanID:    planID,
		AutoRenew: autoRenew,
		Status:    subscription.StatusPending,
		Amount:    quote.Amount,
		Currency:  quote.Currency,
		OrderID:   order.ID,
	}
	if quote.Promo != nil {
		sub.PromocodeID = &quote.Promo.ID
	}
	if err := s.lifecycle.Store().CreatePending(ctx, sub); err != nil {
		return nil, err
	}

	return &StartResult{
		SubscriptionID: sub.ID,
		OrderID:        order.ID,
		Amount:         quote.Amount,
		Currency:       quote.Currency,
	}, nil
}

// Confirm handles the gateway's payment callback. The HMAC signature is
// verified before any store access; a forged callback never reaches the
// database. On success the pending subscription becomes active, the user's
// premium projection is rebuilt, and the promo redemption counter is bumped.
func (s *Service) Confirm(ctx context.Context, userID uuid.UUID, orderID, paymentID, signature string) (*subscription.Subscription, error) {
	if !s.gateway.VerifySignature(orderID, paymentID, signature) {
		return nil, ErrSignatureMismatch
	}

	store := s.lifecycle.Store()
	sub, err := store.GetByOrderID(ctx, orderID)
	if errors.Is(err, subscription.ErrNotFound) {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrUnauthorized
	}
	if sub.Status != subscription.StatusPending {
		return nil, ErrPendingNotFound
	}

	plan, err := s.catalog.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.AddDate(0, 0, plan.DurationDays)
	activated, err := s.lifecycle.Activate(ctx, sub.ID, paymentID, now, expiresAt)
	if err != nil {
		return nil, err
	}

	// The payment already went through, so promo bookkeeping failures are
	// logged and swallowed instead of failing the activation.
	if sub.PromocodeID != nil {
		ok, err := s.catalog.IncrementRedemptions(ctx, *sub.PromocodeID)
		if err != nil {
			s.log.WarnContext(ctx, "failed to record promo redemption",
				slog.String("promocode_id", sub.PromocodeID.String()),
				slog.String("error", err.Error()))
		} else if !ok {
			s.log.WarnContext(ctx, "promo redemption cap exceeded after payment",
				slog.String("promocode_id", sub.PromocodeID.String()),
				slog.String("order_id", orderID))
		}
	}

	s.notifyActivated(ctx, activated, plan)
	return activated, nil
}

// SetAutoRenew toggles auto-renewal on the user's active subscription and
// refreshes the premium projection so the flag mirrors into the user record.
func (s *Service) SetAutoRenew(ctx context.Context, userID uuid.UUID, enabled bool) error {
	store := s.lifecycle.Store()
	sub, err := store.ActiveByUser(ctx, userID)
	if errors.Is(err, subscription.ErrNotFound) {
		return ErrNoActiveSubscription
	}
	if err != nil {
		return err
	}

	if err := store.SetAutoRenew(ctx, sub.ID, enabled); err != nil {
		return err
	}
	if err := s.lifecycle.RecomputePremium(ctx, userID); err != nil {
		return err
	}

	if user, err := store.GetUser(ctx, userID); err == nil {
		if err := s.notifier.AutoRenewChanged(ctx, user.Email, enabled); err != nil {
			s.log.WarnContext(ctx, "failed to send auto-renew notification",
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// Cancel cancels the user's active subscription. Premium access persists
// until the paid period ends; the scheduler's sweep revokes it then.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	store := s.lifecycle.Store()
	sub, err := store.ActiveByUser(ctx, userID)
	if errors.Is(err, subscription.ErrNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}

	canceled, err := s.lifecycle.Cancel(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	if user, err := store.GetUser(ctx, userID); err == nil && canceled.ExpiresAt != nil {
		if err := s.notifier.SubscriptionCanceled(ctx, user.Email, *canceled.ExpiresAt); err != nil {
			s.log.WarnContext(ctx, "failed to send cancellation notification",
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()))
		}
	}
	return canceled, nil
}

func (s *Service) notifyActivated(ctx context.Context, sub *subscription.Subscription, plan *catalog.Plan) {
	user, err := s.lifecycle.Store().GetUser(ctx, sub.UserID)
	if err != nil || sub.ExpiresAt == nil {
		return
	}
	if err := s.notifier.SubscriptionActivated(ctx, user.Email, plan.Name, *sub.ExpiresAt); err != nil {
		s.log.WarnContext(ctx, "failed to send activation notification",
			slog.String("user_id", sub.UserID.String()),
			slog.String("error", err.Error()))
	}
}

// receiptFor builds the gateway receipt reference, truncated to the
// gateway's field limit.
func receiptFor(planID uuid.UUID, now time.Time) string {
	receipt := fmt.Sprintf("sub_%s_%d", planID, now.Unix())
	if len(receipt) > maxReceiptLen {
		receipt = receipt[:maxReceiptLen]
	}
	return receipt
}
