package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// Store is the Postgres implementation of LedgerStore, AccountStore and
// PaymentStore.
type Store struct {
	Db *pgxpool.Pool
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func expectOne(tag pgconn.CommandTag, notFound error) error {
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

// --- referrers ---

const referrerColumns = `id::text, user_id::text, name, email, promo_code, is_active,
	total_signups, total_paid_signups, total_revenue::text, created_at`

func scanReferrer(row pgx.Row) (*domain.Referrer, error) {
	var r domain.Referrer
	var revenue string
	if err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.Email, &r.PromoCode, &r.Active,
		&r.TotalSignups, &r.TotalPaidSignups, &revenue, &r.CreatedAt); err != nil {
		return nil, err
	}
	rev, err := decimal.NewFromString(revenue)
	if err != nil {
		return nil, fmt.Errorf("parse total_revenue: %w", err)
	}
	r.TotalRevenue = rev
	return &r, nil
}

func (s *Store) getReferrer(ctx context.Context, where string, arg any) (*domain.Referrer, error) {
	r, err := scanReferrer(s.Db.QueryRow(ctx, "SELECT "+referrerColumns+" FROM influencers WHERE "+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReferrerNotFound
	}
	return r, err
}

// ListReferrers returns every referrer, newest first.
func (s *Store) ListReferrers(ctx context.Context) ([]domain.Referrer, error) {
	rows, err := s.Db.Query(ctx, "SELECT "+referrerColumns+" FROM influencers ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Referrer
	for rows.Next() {
		r, err := scanReferrer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) GetReferrer(ctx context.Context, id string) (*domain.Referrer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrReferrerNotFound
	}
	return s.getReferrer(ctx, "id = $1", id)
}

func (s *Store) GetReferrerByCode(ctx context.Context, code string) (*domain.Referrer, error) {
	return s.getReferrer(ctx, "promo_code = $1", code)
}

func (s *Store) GetReferrerByUserID(ctx context.Context, userID string) (*domain.Referrer, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrReferrerNotFound
	}
	return s.getReferrer(ctx, "user_id = $1", userID)
}

func (s *Store) ListPromoCodes(ctx context.Context) ([]string, error) {
	rows, err := s.Db.Query(ctx, "SELECT promo_code FROM influencers")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// InsertReferrer assigns ID and CreatedAt on success.
func (s *Store) InsertReferrer(ctx context.Context, r *domain.Referrer) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	err := s.Db.QueryRow(ctx,
		`INSERT INTO influencers (id, user_id, name, email, promo_code, is_active,
			total_signups, total_paid_signups, total_revenue)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric) RETURNING created_at`,
		r.ID, r.UserID, r.Name, r.Email, r.PromoCode, r.Active,
		r.TotalSignups, r.TotalPaidSignups, r.TotalRevenue.String(),
	).Scan(&r.CreatedAt)
	return mapWriteErr(err)
}

// DeleteReferrer removes only the referrer row; attributed signups remain.
func (s *Store) DeleteReferrer(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrReferrerNotFound
	}
	tag, err := s.Db.Exec(ctx, "DELETE FROM influencers WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectOne(tag, ErrReferrerNotFound)
}

func (s *Store) UpdateReferrerTotals(ctx context.Context, id string, signups, paid int, revenue decimal.Decimal) error {
	tag, err := s.Db.Exec(ctx,
		`UPDATE influencers SET total_signups = $1, total_paid_signups = $2, total_revenue = $3::numeric
		 WHERE id = $4`,
		signups, paid, revenue.String(), id)
	if err != nil {
		return err
	}
	return expectOne(tag, ErrReferrerNotFound)
}

// --- signups ---

const signupColumns = `id::text, full_name, email, promo_code, payment_status,
	amount::text, currency, user_id::text, created_at`

func scanSignup(row pgx.Row) (*domain.Signup, error) {
	var sg domain.Signup
	var status string
	var amount *string
	if err := row.Scan(&sg.ID, &sg.FullName, &sg.Email, &sg.PromoCode, &status,
		&amount, &sg.Currency, &sg.UserID, &sg.CreatedAt); err != nil {
		return nil, err
	}
	sg.PaymentStatus = domain.PaymentStatus(status)
	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("parse signup amount: %w", err)
		}
		sg.Amount = decimal.NewNullDecimal(d)
	}
	return &sg, nil
}

// ListSignupsByCode returns signups attributed to code, newest first.
func (s *Store) ListSignupsByCode(ctx context.Context, code string) ([]domain.Signup, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT "+signupColumns+" FROM users_by_form WHERE promo_code = $1 ORDER BY created_at DESC", code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSignups(rows, code)
}

// collectSignups fails on the first unreadable row.
func collectSignups(rows pgx.Rows, code string) ([]domain.Signup, error) {
	var out []domain.Signup
	for rows.Next() {
		sg, err := scanSignup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signup for %s: %w", code, err)
		}
		out = append(out, *sg)
	}
	return out, rows.Err()
}

func (s *Store) GetSignup(ctx context.Context, id string) (*domain.Signup, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSignupNotFound
	}
	sg, err := scanSignup(s.Db.QueryRow(ctx, "SELECT "+signupColumns+" FROM users_by_form WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSignupNotFound
	}
	return sg, err
}

func nullableAmount(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	v := d.Decimal.String()
	return &v
}

func (s *Store) InsertSignup(ctx context.Context, sg *domain.Signup) error {
	if sg.ID == "" {
		sg.ID = uuid.NewString()
	}
	err := s.Db.QueryRow(ctx,
		`INSERT INTO users_by_form (id, full_name, email, promo_code, payment_status, amount, currency, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::uuid) RETURNING created_at`,
		sg.ID, sg.FullName, sg.Email, sg.PromoCode, string(sg.PaymentStatus),
		nullableAmount(sg.Amount), sg.Currency, sg.UserID,
	).Scan(&sg.CreatedAt)
	return mapWriteErr(err)
}

// UpdateSignupPromoCode overwrites the attribution. Last write wins.
func (s *Store) UpdateSignupPromoCode(ctx context.Context, id, code string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrSignupNotFound
	}
	tag, err := s.Db.Exec(ctx, "UPDATE users_by_form SET promo_code = $1 WHERE id = $2", code, id)
	if err != nil {
		return err
	}
	return expectOne(tag, ErrSignupNotFound)
}

func (s *Store) UpdateSignupStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrSignupNotFound
	}
	tag, err := s.Db.Exec(ctx, "UPDATE users_by_form SET payment_status = $1 WHERE id = $2", string(status), id)
	if err != nil {
		return err
	}
	return expectOne(tag, ErrSignupNotFound)
}

func (s *Store) DeleteSignup(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrSignupNotFound
	}
	tag, err := s.Db.Exec(ctx, "DELETE FROM users_by_form WHERE id = $1", id)
	if err != nil {
		return err
	}
	return expectOne(tag, ErrSignupNotFound)
}

// --- attribution history ---

func (s *Store) InsertAttributionChange(ctx context.Context, c *domain.AttributionChange) error {
	return s.Db.QueryRow(ctx,
		`INSERT INTO attribution_history (signup_id, from_code, to_code, actor_id)
		 VALUES ($1, $2, $3, $4) RETURNING id, changed_at`,
		c.SignupID, c.FromCode, c.ToCode, c.ActorID,
	).Scan(&c.ID, &c.ChangedAt)
}

func (s *Store) ListAttributionChanges(ctx context.Context, signupID string) ([]domain.AttributionChange, error) {
	if _, err := uuid.Parse(signupID); err != nil {
		return nil, ErrSignupNotFound
	}
	rows, err := s.Db.Query(ctx,
		`SELECT id, signup_id::text, from_code, to_code, actor_id, changed_at
		 FROM attribution_history WHERE signup_id = $1 ORDER BY changed_at ASC, id ASC`, signupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AttributionChange
	for rows.Next() {
		var c domain.AttributionChange
		if err := rows.Scan(&c.ID, &c.SignupID, &c.FromCode, &c.ToCode, &c.ActorID, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- profiles ---

const profileColumns = `id::text, email, full_name, password_hash, role, plan_tier, plan_status,
	plan_started_at, plan_renews_at, created_at`

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.PasswordHash, &p.Role, &p.PlanTier, &p.PlanStatus,
		&p.PlanStartedAt, &p.PlanRenewsAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrProfileNotFound
	}
	return scanProfile(s.Db.QueryRow(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id = $1", id))
}

// GetProfileByEmail matches case-insensitively.
func (s *Store) GetProfileByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	return scanProfile(s.Db.QueryRow(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE lower(email) = $1", strings.ToLower(email)))
}

func (s *Store) InsertProfile(ctx context.Context, p *domain.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := s.Db.QueryRow(ctx,
		`INSERT INTO profiles (id, email, full_name, password_hash, role, plan_tier, plan_status, plan_started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		p.ID, p.Email, p.FullName, p.PasswordHash, p.Role, p.PlanTier, p.PlanStatus, p.PlanStartedAt,
	).Scan(&p.CreatedAt)
	return mapWriteErr(err)
}

func (s *Store) updateProfile(ctx context.Context, set string, id string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrProfileNotFound
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE profiles SET %s, updated_at = now() WHERE id = $%d", set, len(args))
	tag, err := s.Db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectOne(tag, ErrProfileNotFound)
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.updateProfile(ctx, "password_hash = $1", id, hash)
}

func (s *Store) UpdateFullName(ctx context.Context, id, name string) error {
	return s.updateProfile(ctx, "full_name = $1", id, name)
}

func (s *Store) UpdateRole(ctx context.Context, id, role string) error {
	return s.updateProfile(ctx, "role = $1", id, role)
}

func (s *Store) UpdatePlan(ctx context.Context, id, tier, status string, startedAt, renewsAt time.Time) error {
	return s.updateProfile(ctx,
		"plan_tier = $1, plan_status = $2, plan_started_at = $3, plan_renews_at = $4",
		id, tier, status, startedAt, renewsAt)
}

// --- payments ---

const paymentColumns = `id::text, user_id::text, email, signup_id::text, amount::text, currency, status,
	payment_mode, plan_type, paypal_order_id, coalesce(paypal_capture_id, ''),
	coalesce(amount_paid_usd, 0)::text, coalesce(payer_email, ''), coalesce(payer_name, ''),
	plan_started_at, plan_ends_at, finished_at, created_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var amount, paid string
	err := row.Scan(&p.ID, &p.UserID, &p.Email, &p.SignupID, &amount, &p.Currency, &p.Status,
		&p.PaymentMode, &p.PlanType, &p.ProviderOrderID, &p.CaptureID,
		&paid, &p.PayerEmail, &p.PayerName,
		&p.PlanStartedAt, &p.PlanEndsAt, &p.FinishedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse payment amount: %w", err)
	}
	if p.AmountPaidUSD, err = decimal.NewFromString(paid); err != nil {
		return nil, fmt.Errorf("parse amount_paid_usd: %w", err)
	}
	return &p, nil
}

func (s *Store) InsertPayment(ctx context.Context, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := s.Db.QueryRow(ctx,
		`INSERT INTO payment_details (id, user_id, email, signup_id, amount, currency, status,
			payment_mode, plan_type, paypal_order_id, plan_started_at, plan_ends_at)
		 VALUES ($1, $2, $3, $4::uuid, $5::numeric, $6, $7, $8, $9, $10, $11, $12) RETURNING created_at`,
		p.ID, p.UserID, p.Email, p.SignupID, p.Amount.String(), p.Currency, p.Status,
		p.PaymentMode, p.PlanType, p.ProviderOrderID, p.PlanStartedAt, p.PlanEndsAt,
	).Scan(&p.CreatedAt)
	return mapWriteErr(err)
}

func (s *Store) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPaymentNotFound
	}
	return scanPayment(s.Db.QueryRow(ctx, "SELECT "+paymentColumns+" FROM payment_details WHERE id = $1", id))
}

// CompletePayment marks the order captured and returns the updated record.
func (s *Store) CompletePayment(ctx context.Context, id string, c Capture) (*domain.Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPaymentNotFound
	}
	return scanPayment(s.Db.QueryRow(ctx,
		`UPDATE payment_details SET status = $1, paypal_capture_id = $2, transaction_id = $2,
			amount_paid_usd = $3::numeric, payer_email = $4, payer_name = $5,
			finished_at = $6, updated_at = now()
		 WHERE id = $7 RETURNING `+paymentColumns,
		domain.PaymentRecordCompleted, c.CaptureID, c.AmountPaidUSD.String(),
		c.PayerEmail, c.PayerName, c.FinishedAt, id))
}
