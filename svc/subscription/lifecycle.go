package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Lifecycle wraps a Store with the projection-correction path. The premium
// projection on the user record is a cache over the subscription table;
// every mutation that touches entitlement goes through RecomputePremium
// instead of hand-editing projection fields.
type Lifecycle struct {
	store Store
}

// NewLifecycle creates a Lifecycle over the given store.
// Panics on a nil store to fail fast during initialization.
func NewLifecycle(store Store) *Lifecycle {
	if store == nil {
		panic("subscription: Store is required")
	}
	return &Lifecycle{store: store}
}

// Store exposes the underlying store for read paths.
func (l *Lifecycle) Store() Store {
	return l.store
}

// RecomputePremium rebuilds the user's premium projection from the
// subscription table. Idempotent; safe to call as the correction path after
// any activation, cancellation, or expiration.
func (l *Lifecycle) RecomputePremium(ctx context.Context, userID uuid.UUID) error {
	sub, err := l.store.LatestEntitlement(ctx, userID, time.Now().UTC())
	if errors.Is(err, ErrNotFound) {
		return l.store.ClearPremium(ctx, userID)
	}
	if err != nil {
		return err
	}
	return l.store.SetPremium(ctx, userID, sub.PlanID, *sub.ExpiresAt, sub.AutoRenew)
}

// Activate transitions a pending subscription to active and rebuilds the
// user's premium projection. The two writes are one logical unit; a crash in
// between leaves a stale projection that the next recompute or the
// scheduler's sweep corrects.
func (l *Lifecycle) Activate(ctx context.Context, id uuid.UUID, paymentID string, startedAt, expiresAt time.Time) (*Subscription, error) {
	sub, err := l.store.Activate(ctx, id, paymentID, startedAt, expiresAt)
	if err != nil {
		return nil, err
	}
	if err := l.RecomputePremium(ctx, sub.UserID); err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel transitions an active subscription to canceled and clears
// auto-renew. The premium projection is deliberately left in place: access
// persists until natural expiry, and the scheduler's sweep revokes it then.
func (l *Lifecycle) Cancel(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return l.store.Cancel(ctx, id)
}

// Expire transitions an active subscription to expired and rebuilds the
// projection, revoking access unless another subscription still entitles.
func (l *Lifecycle) Expire(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := l.store.Expire(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.RecomputePremium(ctx, sub.UserID); err != nil {
		return nil, err
	}
	return sub, nil
}
