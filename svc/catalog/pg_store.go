package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subflow/pkg/pg"
)

// PGStore is the PostgreSQL-backed catalog store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a catalog store over the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const planColumns = `id, name, slug, description, duration_days, price, currency, features, active, created_at, updated_at`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.DurationDays,
		&p.Price, &p.Currency, &p.Features, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) CreatePlan(ctx context.Context, plan *Plan) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO plans (id, name, slug, description, duration_days, price, currency, features, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		plan.ID, plan.Name, plan.Slug, plan.Description, plan.DurationDays,
		plan.Price, plan.Currency, plan.Features, plan.Active)
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateSlug
	}
	return err
}

func (s *PGStore) UpdatePlan(ctx context.Context, plan *Plan) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE plans
		SET name = $2, slug = $3, description = $4, duration_days = $5,
		    price = $6, currency = $7, features = $8, active = $9, updated_at = now()
		WHERE id = $1`,
		plan.ID, plan.Name, plan.Slug, plan.Description, plan.DurationDays,
		plan.Price, plan.Currency, plan.Features, plan.Active)
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateSlug
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (s *PGStore) DeletePlan(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (s *PGStore) GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	plan, err := scanPlan(s.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, ErrPlanNotFound
	}
	return plan, err
}

func (s *PGStore) ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY price`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

const promoColumns = `id, code, discount_type, discount_value, start_at, end_at,
	max_redemptions, redemptions_count, min_amount, auto_renew_only, created_at, updated_at`

func scanPromo(row pgx.Row) (*Promocode, error) {
	var p Promocode
	err := row.Scan(&p.ID, &p.Code, &p.DiscountType, &p.DiscountValue, &p.StartAt, &p.EndAt,
		&p.MaxRedemptions, &p.RedemptionsCount, &p.MinAmount, &p.AutoRenewOnly, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) CreatePromocode(ctx context.Context, promo *Promocode) error {
	promo.Code = NormalizeCode(promo.Code)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO promocodes (id, code, discount_type, discount_value, start_at, end_at,
			max_redemptions, redemptions_count, min_amount, auto_renew_only, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, now(), now())`,
		promo.ID, promo.Code, promo.DiscountType, promo.DiscountValue, promo.StartAt, promo.EndAt,
		promo.MaxRedemptions, promo.MinAmount, promo.AutoRenewOnly)
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateCode
	}
	return err
}

func (s *PGStore) UpdatePromocode(ctx context.Context, promo *Promocode) error {
	promo.Code = NormalizeCode(promo.Code)
	tag, err := s.pool.Exec(ctx, `
		UPDATE promocodes
		SET code = $2, discount_type = $3, discount_value = $4, start_at = $5, end_at = $6,
		    max_redemptions = $7, min_amount = $8, auto_renew_only = $9, updated_at = now()
		WHERE id = $1`,
		promo.ID, promo.Code, promo.DiscountType, promo.DiscountValue, promo.StartAt, promo.EndAt,
		promo.MaxRedemptions, promo.MinAmount, promo.AutoRenewOnly)
	if pg.IsDuplicateKeyError(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPromoNotFound
	}
	return nil
}

func (s *PGStore) DeletePromocode(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM promocodes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPromoNotFound
	}
	return nil
}

func (s *PGStore) GetPromocode(ctx context.Context, id uuid.UUID) (*Promocode, error) {
	promo, err := scanPromo(s.pool.QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promocodes WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, ErrPromoNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadPromoPlans(ctx, promo); err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *PGStore) GetPromocodeByCode(ctx context.Context, code string) (*Promocode, error) {
	promo, err := scanPromo(s.pool.QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promocodes WHERE code = $1`, NormalizeCode(code)))
	if pg.IsNotFoundError(err) {
		return nil, ErrPromoNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadPromoPlans(ctx, promo); err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *PGStore) ListPromocodes(ctx context.Context) ([]Promocode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+promoColumns+` FROM promocodes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promos []Promocode
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		promos = append(promos, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range promos {
		if err := s.loadPromoPlans(ctx, &promos[i]); err != nil {
			return nil, err
		}
	}
	return promos, nil
}

func (s *PGStore) loadPromoPlans(ctx context.Context, promo *Promocode) error {
	rows, err := s.pool.Query(ctx,
		`SELECT plan_id FROM promocode_plans WHERE promocode_id = $1`, promo.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	promo.PlanIDs = promo.PlanIDs[:0]
	for rows.Next() {
		var planID uuid.UUID
		if err := rows.Scan(&planID); err != nil {
			return err
		}
		promo.PlanIDs = append(promo.PlanIDs, planID)
	}
	return rows.Err()
}

func (s *PGStore) SetPromocodePlans(ctx context.Context, promoID uuid.UUID, planIDs []uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM promocode_plans WHERE promocode_id = $1`, promoID); err != nil {
		return err
	}
	for _, planID := range planIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO promocode_plans (promocode_id, plan_id) VALUES ($1, $2)`,
			promoID, planID); err != nil {
			if pg.IsForeignKeyViolationError(err) {
				return ErrPlanNotFound
			}
			return err
		}
	}
	return tx.Commit(ctx)
}

// IncrementRedemptions performs the conditional increment so a capped promo
// never overshoots under concurrent confirmations. RowsAffected tells the
// caller whether the counter was still below the cap.
func (s *PGStore) IncrementRedemptions(ctx context.Context, promoID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE promocodes
		SET redemptions_count = redemptions_count + 1, updated_at = now()
		WHERE id = $1
		  AND (max_redemptions IS NULL OR redemptions_count < max_redemptions)`,
		promoID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "cap reached" from "promo gone".
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM promocodes WHERE id = $1)`, promoID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, ErrPromoNotFound
		}
		return false, nil
	}
	return true, nil
}

var _ Store = (*PGStore)(nil)
