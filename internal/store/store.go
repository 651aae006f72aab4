package store

import (
	"context"
	"errors"
	"time"

	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrReferrerNotFound = errors.New("referrer not found")
	ErrSignupNotFound   = errors.New("signup not found")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrPaymentNotFound  = errors.New("payment not found")
	// ErrDuplicate is returned when a unique column (promo code, email,
	// referrer owner) already holds the value.
	ErrDuplicate = errors.New("duplicate key")
)

// LedgerStore is the read/write surface the ledger workflows need from the
// backing table store.
type LedgerStore interface {
	ListReferrers(ctx context.Context) ([]domain.Referrer, error)
	GetReferrer(ctx context.Context, id string) (*domain.Referrer, error)
	GetReferrerByCode(ctx context.Context, code string) (*domain.Referrer, error)
	GetReferrerByUserID(ctx context.Context, userID string) (*domain.Referrer, error)
	ListPromoCodes(ctx context.Context) ([]string, error)
	InsertReferrer(ctx context.Context, r *domain.Referrer) error
	DeleteReferrer(ctx context.Context, id string) error
	UpdateReferrerTotals(ctx context.Context, id string, signups, paid int, revenue decimal.Decimal) error

	ListSignupsByCode(ctx context.Context, code string) ([]domain.Signup, error)
	GetSignup(ctx context.Context, id string) (*domain.Signup, error)
	InsertSignup(ctx context.Context, s *domain.Signup) error
	UpdateSignupPromoCode(ctx context.Context, id, code string) error
	UpdateSignupStatus(ctx context.Context, id string, status domain.PaymentStatus) error
	DeleteSignup(ctx context.Context, id string) error

	InsertAttributionChange(ctx context.Context, c *domain.AttributionChange) error
	ListAttributionChanges(ctx context.Context, signupID string) ([]domain.AttributionChange, error)
}

// AccountStore holds login profiles.
type AccountStore interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*domain.Profile, error)
	InsertProfile(ctx context.Context, p *domain.Profile) error
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateFullName(ctx context.Context, id, name string) error
	UpdateRole(ctx context.Context, id, role string) error
	UpdatePlan(ctx context.Context, id, tier, status string, startedAt, renewsAt time.Time) error
}

// PaymentStore holds provider order records.
type PaymentStore interface {
	InsertPayment(ctx context.Context, p *domain.Payment) error
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	CompletePayment(ctx context.Context, id string, c Capture) (*domain.Payment, error)
}

// Capture carries the provider fields written when an order completes.
type Capture struct {
	CaptureID     string
	AmountPaidUSD decimal.Decimal
	PayerEmail    string
	PayerName     string
	FinishedAt    time.Time
}
