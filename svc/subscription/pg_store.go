package subscription

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subflow/pkg/pg"
)

// PGStore is the PostgreSQL-backed subscription store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a subscription store over the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const subColumns = `id, user_id, plan_id, promocode_id, auto_renew, status, amount, currency,
	order_id, payment_id, started_at, expires_at, renewal_reminded_at, expiry_reminded_at,
	created_at, updated_at`

func scanSub(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.PromocodeID, &s.AutoRenew, &s.Status,
		&s.Amount, &s.Currency, &s.OrderID, &s.PaymentID, &s.StartedAt, &s.ExpiresAt,
		&s.RenewalRemindedAt, &s.ExpiryRemindedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *PGStore) CreatePending(ctx context.Context, sub *Subscription) error {
	if sub.OrderID == "" {
		return ErrMissingOrderID
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.Status = StatusPending
	sub.PaymentID = nil

	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, plan_id, promocode_id, auto_renew, status,
			amount, currency, order_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8, now(), now())`,
		sub.ID, sub.UserID, sub.PlanID, sub.PromocodeID, sub.AutoRenew,
		sub.Amount, sub.Currency, sub.OrderID)
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateOrderID
	}
	return err
}

func (s *PGStore) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := scanSub(s.pool.QueryRow(ctx,
		`SELECT `+subColumns+` FROM subscriptions WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, ErrNotFound
	}
	return sub, err
}

func (s *PGStore) GetByOrderID(ctx context.Context, orderID string) (*Subscription, error) {
	sub, err := scanSub(s.pool.QueryRow(ctx,
		`SELECT `+subColumns+` FROM subscriptions WHERE order_id = $1`, orderID))
	if pg.IsNotFoundError(err) {
		return nil, ErrNotFound
	}
	return sub, err
}

func (s *PGStore) ActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, err := scanSub(s.pool.QueryRow(ctx, `
		SELECT `+subColumns+` FROM subscriptions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1`, userID))
	if pg.IsNotFoundError(err) {
		return nil, ErrNotFound
	}
	return sub, err
}

func (s *PGStore) LatestEntitlement(ctx context.Context, userID uuid.UUID, now time.Time) (*Subscription, error) {
	sub, err := scanSub(s.pool.QueryRow(ctx, `
		SELECT `+subColumns+` FROM subscriptions
		WHERE user_id = $1 AND status IN ('active', 'canceled') AND expires_at > $2
		ORDER BY expires_at DESC
		LIMIT 1`, userID, now))
	if pg.IsNotFoundError(err) {
		return nil, ErrNotFound
	}
	return sub, err
}

// Activate flips a pending record to active in a single conditional update,
// so a record that is no longer pending can never be re-activated.
func (s *PGStore) Activate(ctx context.Context, id uuid.UUID, paymentID string, startedAt, expiresAt time.Time) (*Subscription, error) {
	sub, err := scanSub(s.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = 'active', payment_id = $2, started_at = $3, expires_at = $4, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+subColumns, id, paymentID, startedAt, expiresAt))
	if pg.IsNotFoundError(err) {
		return nil, s.transitionError(ctx, id)
	}
	return sub, err
}

func (s *PGStore) Cancel(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := scanSub(s.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = 'canceled', auto_renew = false, updated_at = now()
		WHERE id = $1 AND status = 'active'
		RETURNING `+subColumns, id))
	if pg.IsNotFoundError(err) {
		return nil, s.transitionError(ctx, id)
	}
	return sub, err
}

func (s *PGStore) Expire(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, err := scanSub(s.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = 'expired', auto_renew = false, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'active')
		RETURNING `+subColumns, id))
	if pg.IsNotFoundError(err) {
		return nil, s.transitionError(ctx, id)
	}
	return sub, err
}

// transitionError distinguishes a missing record from one in the wrong state.
func (s *PGStore) transitionError(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

func (s *PGStore) SetAutoRenew(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET auto_renew = $2, updated_at = now()
		WHERE id = $1 AND status = 'active'`, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *PGStore) MarkRenewalReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.markReminded(ctx, id, "renewal_reminded_at", at)
}

func (s *PGStore) MarkExpiryReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.markReminded(ctx, id, "expiry_reminded_at", at)
}

func (s *PGStore) markReminded(ctx context.Context, id uuid.UUID, column string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions SET `+column+` = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListDueRenewalReminder(ctx context.Context, now time.Time, window time.Duration) ([]Subscription, error) {
	return s.list(ctx, `
		SELECT `+subColumns+` FROM subscriptions
		WHERE status = 'active' AND auto_renew
		  AND expires_at BETWEEN $1 AND $2
		  AND renewal_reminded_at IS NULL
		ORDER BY expires_at`, now, now.Add(window))
}

func (s *PGStore) ListDueExpiryReminder(ctx context.Context, now time.Time, window time.Duration) ([]Subscription, error) {
	return s.list(ctx, `
		SELECT `+subColumns+` FROM subscriptions
		WHERE status = 'active' AND NOT auto_renew
		  AND expires_at BETWEEN $1 AND $2
		  AND expiry_reminded_at IS NULL
		ORDER BY expires_at`, now, now.Add(window))
}

func (s *PGStore) ListExpiredActive(ctx context.Context, now time.Time) ([]Subscription, error) {
	return s.list(ctx, `
		SELECT `+subColumns+` FROM subscriptions
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at`, now)
}

func (s *PGStore) ListLapsedCanceled(ctx context.Context, now time.Time) ([]Subscription, error) {
	return s.list(ctx, `
		SELECT `+prefixedSubColumns("s")+` FROM subscriptions s
		JOIN users u ON u.id = s.user_id
		WHERE s.status = 'canceled' AND s.expires_at <= $1 AND u.is_premium
		ORDER BY s.expires_at`, now)
}

func (s *PGStore) ListStalePending(ctx context.Context, before time.Time) ([]Subscription, error) {
	return s.list(ctx, `
		SELECT `+subColumns+` FROM subscriptions
		WHERE status = 'pending' AND created_at <= $1
		ORDER BY created_at`, before)
}

func (s *PGStore) List(ctx context.Context, filter Filter) ([]Subscription, error) {
	filter.Normalize()

	query := `SELECT ` + prefixedSubColumns("s") + ` FROM subscriptions s
		JOIN users u ON u.id = s.user_id WHERE true`
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += ` AND s.status = $` + itoa(len(args))
	}
	if filter.PlanID != nil {
		args = append(args, *filter.PlanID)
		query += ` AND s.plan_id = $` + itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		n := itoa(len(args))
		query += ` AND (s.order_id ILIKE $` + n + ` OR s.payment_id ILIKE $` + n + ` OR u.email ILIKE $` + n + `)`
	}

	args = append(args, filter.Limit)
	query += ` ORDER BY s.created_at DESC LIMIT $` + itoa(len(args))
	args = append(args, filter.Offset)
	query += ` OFFSET $` + itoa(len(args))

	return s.list(ctx, query, args...)
}

func (s *PGStore) list(ctx context.Context, query string, args ...any) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *PGStore) GetUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, is_premium, premium_plan_id, premium_expires_at, premium_auto_renew
		FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Email, &u.IsPremium, &u.PremiumPlanID, &u.PremiumExpiresAt, &u.PremiumAutoRenew)
	if pg.IsNotFoundError(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) SetPremium(ctx context.Context, userID, planID uuid.UUID, expiresAt time.Time, autoRenew bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET is_premium = true, premium_plan_id = $2, premium_expires_at = $3,
		    premium_auto_renew = $4, updated_at = now()
		WHERE id = $1`, userID, planID, expiresAt, autoRenew)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PGStore) ClearPremium(ctx context.Context, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET is_premium = false, premium_plan_id = NULL, premium_expires_at = NULL,
		    premium_auto_renew = false, updated_at = now()
		WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func prefixedSubColumns(alias string) string {
	return alias + `.id, ` + alias + `.user_id, ` + alias + `.plan_id, ` + alias + `.promocode_id, ` +
		alias + `.auto_renew, ` + alias + `.status, ` + alias + `.amount, ` + alias + `.currency, ` +
		alias + `.order_id, ` + alias + `.payment_id, ` + alias + `.started_at, ` + alias + `.expires_at, ` +
		alias + `.renewal_reminded_at, ` + alias + `.expiry_reminded_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}

func itoa(n int) string { return strconv.Itoa(n) }

// escapeLike escapes LIKE metacharacters in user-supplied search terms so a
// literal underscore or percent matches itself instead of acting as a
// wildcard.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ Store = (*PGStore)(nil)
