package catalog

import "errors"

var (
	ErrPlanNotFound  = errors.New("plan not found")
	ErrPlanInactive  = errors.New("plan is not available for purchase")
	ErrPromoNotFound = errors.New("promocode not found")
	ErrDuplicateCode = errors.New("promocode code already exists")
	ErrDuplicateSlug = errors.New("plan slug already exists")

	// Promo validation failures surfaced to the checkout caller.
	ErrPromoNotYetActive     = errors.New("promocode is not active yet")
	ErrPromoExpired          = errors.New("promocode has expired")
	ErrPromoUsageLimitReached = errors.New("promocode usage limit reached")
	ErrPromoPlanNotApplicable = errors.New("promocode does not apply to this plan")
	ErrPromoAutoRenewRequired = errors.New("promocode requires auto-renew")
	ErrPromoMinimumNotMet     = errors.New("amount after discount is below promocode minimum")
)
