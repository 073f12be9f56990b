// Package billing exposes the subscription product over HTTP: public plan
// listing, the checkout flow, self-service subscription management, and the
// admin surface for plans, promocodes, and transactions.
//
// Authentication is not owned here. The host application injects a
// UserResolver for user-facing routes and a guard middleware for the admin
// subtree.
package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/subflow/svc/catalog"
	"github.com/dmitrymomot/subflow/svc/checkout"
	"github.com/dmitrymomot/subflow/svc/subscription"
)

// UserResolver extracts the authenticated user id from a request. It returns
// false when the request carries no authenticated user.
type UserResolver func(r *http.Request) (uuid.UUID, bool)

// RouterOptions wires the billing module's collaborators.
type RouterOptions struct {
	Checkout      *checkout.Service
	Catalog       catalog.Store
	Subscriptions *subscription.Lifecycle

	// CurrentUser resolves the authenticated user for user-facing routes.
	CurrentUser UserResolver

	// AdminGuard wraps the /admin subtree. When nil the admin routes are
	// not mounted at all.
	AdminGuard func(http.Handler) http.Handler

	Logger *slog.Logger
}

// Router builds the billing module router.
// Panics on missing required options to fail fast during initialization.
func Router(opts RouterOptions) chi.Router {
	if opts.Checkout == nil {
		panic("billing: Checkout service is required")
	}
	if opts.Catalog == nil {
		panic("billing: Catalog store is required")
	}
	if opts.Subscriptions == nil {
		panic("billing: Subscriptions lifecycle is required")
	}
	if opts.CurrentUser == nil {
		panic("billing: CurrentUser resolver is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := &handlers{
		checkout: opts.Checkout,
		catalog:  opts.Catalog,
		subs:     opts.Subscriptions,
		user:     opts.CurrentUser,
		log:      opts.Logger,
	}

	r := chi.NewRouter()

	r.Get("/plans", h.listPlans)

	r.Route("/checkout", func(r chi.Router) {
		r.Post("/preview", h.requireUser(h.previewCheckout))
		r.Post("/start", h.requireUser(h.startCheckout))
		r.Post("/confirm", h.requireUser(h.confirmCheckout))
	})

	r.Route("/subscription", func(r chi.Router) {
		r.Get("/", h.requireUser(h.currentSubscription))
		r.Put("/auto-renew", h.requireUser(h.setAutoRenew))
		r.Delete("/", h.requireUser(h.cancelSubscription))
	})

	if opts.AdminGuard != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(opts.AdminGuard)

			r.Get("/plans", h.adminListPlans)
			r.Post("/plans", h.adminCreatePlan)
			r.Put("/plans/{id}", h.adminUpdatePlan)
			r.Delete("/plans/{id}", h.adminDeletePlan)

			r.Get("/promocodes", h.adminListPromocodes)
			r.Post("/promocodes", h.adminCreatePromocode)
			r.Put("/promocodes/{id}", h.adminUpdatePromocode)
			r.Delete("/promocodes/{id}", h.adminDeletePromocode)

			r.Get("/subscriptions", h.adminListSubscriptions)
		})
	}

	return r
}

type handlers struct {
	checkout *checkout.Service
	catalog  catalog.Store
	subs     *subscription.Lifecycle
	user     UserResolver
	log      *slog.Logger
}

// requireUser adapts a user-scoped handler, rejecting unauthenticated
// requests before the handler runs.
func (h *handlers) requireUser(next func(w http.ResponseWriter, r *http.Request, userID uuid.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.user(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r, userID)
	}
}
