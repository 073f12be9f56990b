package billing

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subflow/pkg/binder"
	"github.com/dmitrymomot/subflow/svc/subscription"
)

func (h *handlers) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.catalog.ListPlans(r.Context(), true)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	out := make([]planResponse, 0, len(plans))
	for i := range plans {
		out = append(out, toPlanResponse(&plans[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}

type checkoutRequest struct {
	PlanID    uuid.UUID `json:"plan_id"`
	Promocode string    `json:"promocode"`
	AutoRenew bool      `json:"auto_renew"`
}

func (h *handlers) previewCheckout(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req checkoutRequest
	if err := binder.JSON()(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.PlanID == uuid.Nil {
		h.respondError(w, r, fmt.Errorf("%w: plan_id is required", errBadRequest))
		return
	}

	quote, err := h.checkout.Preview(r.Context(), req.PlanID, req.Promocode, req.AutoRenew)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := map[string]any{
		"plan":            toPlanResponse(quote.Plan),
		"base_amount":     quote.BaseAmount,
		"discount_amount": quote.DiscountAmount,
		"amount":          quote.Amount,
		"currency":        quote.Currency,
	}
	if quote.Promo != nil {
		resp["promocode"] = quote.Promo.Code
		resp["promo_description"] = quote.Promo.Description()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) startCheckout(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req checkoutRequest
	if err := binder.JSON()(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.PlanID == uuid.Nil {
		h.respondError(w, r, fmt.Errorf("%w: plan_id is required", errBadRequest))
		return
	}

	res, err := h.checkout.Start(r.Context(), userID, req.PlanID, req.Promocode, req.AutoRenew)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"subscription_id": res.SubscriptionID,
		"order_id":        res.OrderID,
		"amount":          res.Amount,
		"currency":        res.Currency,
	})
}

type confirmRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (h *handlers) confirmCheckout(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req confirmRequest
	if err := binder.JSON()(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		h.respondError(w, r, fmt.Errorf("%w: order_id, payment_id, and signature are required", errBadRequest))
		return
	}

	sub, err := h.checkout.Confirm(r.Context(), userID, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscription": toSubscriptionResponse(sub)})
}

func (h *handlers) currentSubscription(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	store := h.subs.Store()

	user, err := store.GetUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := map[string]any{
		"is_premium":         user.IsPremium,
		"premium_plan_id":    user.PremiumPlanID,
		"premium_expires_at": user.PremiumExpiresAt,
		"auto_renew":         user.PremiumAutoRenew,
	}

	if sub, err := store.LatestEntitlement(r.Context(), userID, time.Now().UTC()); err == nil {
		resp["subscription"] = toSubscriptionResponse(sub)
	} else if !isNotFound(err) {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type autoRenewRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *handlers) setAutoRenew(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req autoRenewRequest
	if err := binder.JSON()(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.checkout.SetAutoRenew(r.Context(), userID, req.Enabled); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"auto_renew": req.Enabled})
}

func (h *handlers) cancelSubscription(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	sub, err := h.checkout.Cancel(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscription": toSubscriptionResponse(sub)})
}

func isNotFound(err error) bool {
	return errors.Is(err, subscription.ErrNotFound)
}
