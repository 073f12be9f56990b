package catalog

import (
	"time"

	"github.com/google/uuid"
)

// MinCharge is the hard floor for any discounted amount, in minor currency
// units. A discount can never make a checkout free or negative.
const MinCharge int64 = 100

// ValidatePromo checks a promocode against a plan/renewal context at a given
// time. It returns nil when the promo may be applied, or one of the
// ErrPromo… sentinels describing the first rule that failed.
func ValidatePromo(p *Promocode, planID uuid.UUID, autoRenew bool, now time.Time) error {
	if p == nil {
		return ErrPromoNotFound
	}
	if p.StartAt != nil && now.Before(*p.StartAt) {
		return ErrPromoNotYetActive
	}
	if p.EndAt != nil && now.After(*p.EndAt) {
		return ErrPromoExpired
	}
	if p.MaxRedemptions != nil && p.RedemptionsCount >= *p.MaxRedemptions {
		return ErrPromoUsageLimitReached
	}
	if !p.AppliesToPlan(planID) {
		return ErrPromoPlanNotApplicable
	}
	if p.AutoRenewOnly && !autoRenew {
		return ErrPromoAutoRenewRequired
	}
	return nil
}

// ApplyDiscount computes the adjusted charge for an amount in minor units.
// Percent discounts floor to the nearest minor unit; fixed discounts are
// expressed in major units and converted. The result is clamped to MinCharge
// regardless of discount size.
func ApplyDiscount(amount int64, p *Promocode) int64 {
	if p == nil {
		return amount
	}

	adjusted := amount
	switch p.DiscountType {
	case DiscountPercent:
		adjusted = amount - amount*p.DiscountValue/100
	case DiscountFixed:
		adjusted = amount - p.DiscountValue*100
	}

	if adjusted < MinCharge {
		adjusted = MinCharge
	}
	if adjusted > amount {
		adjusted = amount
	}
	return adjusted
}

// CheckMinimum enforces the promo's minimum-amount floor against the
// already-adjusted amount. A failing promo rejects the checkout rather than
// being silently ignored.
func CheckMinimum(adjusted int64, p *Promocode) error {
	if p == nil || p.MinAmount == nil {
		return nil
	}
	if adjusted < *p.MinAmount {
		return ErrPromoMinimumNotMet
	}
	return nil
}
