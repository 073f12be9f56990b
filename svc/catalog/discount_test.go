package catalog_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/subflow/svc/catalog"
)

func intPtr(v int) *int          { return &v }
func int64Ptr(v int64) *int64    { return &v }
func timePtr(t time.Time) *time.Time { return &t }

func TestValidatePromo(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	planID := uuid.New()

	t.Run("nil promo", func(t *testing.T) {
		err := catalog.ValidatePromo(nil, planID, false, now)
		assert.ErrorIs(t, err, catalog.ErrPromoNotFound)
	})

	t.Run("valid when within window", func(t *testing.T) {
		promo := &catalog.Promocode{
			Code:          "SPRING20",
			DiscountType:  catalog.DiscountPercent,
			DiscountValue: 20,
			StartAt:       timePtr(now.Add(-time.Hour)),
			EndAt:         timePtr(now.Add(time.Hour)),
		}
		assert.NoError(t, catalog.ValidatePromo(promo, planID, false, now))
	})

	t.Run("not yet active", func(t *testing.T) {
		promo := &catalog.Promocode{StartAt: timePtr(now.Add(time.Minute))}
		err := catalog.ValidatePromo(promo, planID, false, now)
		assert.ErrorIs(t, err, catalog.ErrPromoNotYetActive)
	})

	t.Run("expired", func(t *testing.T) {
		promo := &catalog.Promocode{EndAt: timePtr(now.Add(-time.Minute))}
		err := catalog.ValidatePromo(promo, planID, false, now)
		assert.ErrorIs(t, err, catalog.ErrPromoExpired)
	})

	t.Run("missing bounds are unbounded", func(t *testing.T) {
		promo := &catalog.Promocode{}
		assert.NoError(t, catalog.ValidatePromo(promo, planID, false, now))
	})

	t.Run("usage cap reached", func(t *testing.T) {
		promo := &catalog.Promocode{
			MaxRedemptions:   intPtr(10),
			RedemptionsCount: 10,
		}
		err := catalog.ValidatePromo(promo, planID, false, now)
		assert.ErrorIs(t, err, catalog.ErrPromoUsageLimitReached)
	})

	t.Run("plan restriction excludes plan", func(t *testing.T) {
		promo := &catalog.Promocode{PlanIDs: []uuid.UUID{uuid.New()}}
		err := catalog.ValidatePromo(promo, planID, false, now)
		assert.ErrorIs(t, err, catalog.ErrPromoPlanNotApplicable)
	})

	t.Run("plan restriction includes plan", func(t *testing.T) {
		promo := &catalog.Promocode{PlanIDs: []uuid.UUID{uuid.New(), planID}}
		assert.NoError(t, catalog.ValidatePromo(promo, planID, false, now))
	})

	t.Run("auto-renew required", func(t *testing.T) {
		promo := &catalog.Promocode{AutoRenewOnly: true}
		err := catalog.ValidatePromo(promo, planID, false, now)
		assert.ErrorIs(t, err, catalog.ErrPromoAutoRenewRequired)

		assert.NoError(t, catalog.ValidatePromo(promo, planID, true, now))
	})
}

func TestApplyDiscount(t *testing.T) {
	t.Run("no promo returns amount", func(t *testing.T) {
		assert.EqualValues(t, 50000, catalog.ApplyDiscount(50000, nil))
	})

	t.Run("percent discount floors", func(t *testing.T) {
		promo := &catalog.Promocode{DiscountType: catalog.DiscountPercent, DiscountValue: 20}
		assert.EqualValues(t, 40000, catalog.ApplyDiscount(50000, promo))

		// 33% of 101 is 33.33 -> discount floors to 33
		promo.DiscountValue = 33
		assert.EqualValues(t, 101-33, catalog.ApplyDiscount(101, promo))
	})

	t.Run("full percent discount clamps to floor", func(t *testing.T) {
		promo := &catalog.Promocode{DiscountType: catalog.DiscountPercent, DiscountValue: 100}
		assert.EqualValues(t, catalog.MinCharge, catalog.ApplyDiscount(50000, promo))
	})

	t.Run("fixed discount converts major to minor units", func(t *testing.T) {
		promo := &catalog.Promocode{DiscountType: catalog.DiscountFixed, DiscountValue: 100}
		assert.EqualValues(t, 40000, catalog.ApplyDiscount(50000, promo))
	})

	t.Run("oversized fixed discount clamps to floor", func(t *testing.T) {
		promo := &catalog.Promocode{DiscountType: catalog.DiscountFixed, DiscountValue: 600}
		assert.EqualValues(t, catalog.MinCharge, catalog.ApplyDiscount(50000, promo))
	})

	t.Run("adjusted never exceeds original", func(t *testing.T) {
		for _, promo := range []*catalog.Promocode{
			{DiscountType: catalog.DiscountPercent, DiscountValue: 0},
			{DiscountType: catalog.DiscountPercent, DiscountValue: 50},
			{DiscountType: catalog.DiscountFixed, DiscountValue: 1},
			{DiscountType: catalog.DiscountFixed, DiscountValue: 9999},
		} {
			adjusted := catalog.ApplyDiscount(50000, promo)
			assert.LessOrEqual(t, adjusted, int64(50000))
			assert.GreaterOrEqual(t, adjusted, catalog.MinCharge)
		}
	})
}

func TestCheckMinimum(t *testing.T) {
	t.Run("no floor", func(t *testing.T) {
		assert.NoError(t, catalog.CheckMinimum(100, &catalog.Promocode{}))
	})

	t.Run("adjusted above floor", func(t *testing.T) {
		promo := &catalog.Promocode{MinAmount: int64Ptr(30000)}
		assert.NoError(t, catalog.CheckMinimum(40000, promo))
	})

	t.Run("adjusted below floor is rejected, not ignored", func(t *testing.T) {
		promo := &catalog.Promocode{MinAmount: int64Ptr(30000)}
		err := catalog.CheckMinimum(25000, promo)
		assert.ErrorIs(t, err, catalog.ErrPromoMinimumNotMet)
	})
}

func TestNormalizeCode_Trimming(t *testing.T) {
	assert.Equal(t, "SPRING20", catalog.NormalizeCode("  spring20 "))
}
