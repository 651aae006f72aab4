package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the tri-state settlement flag carried by every signup.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentFailed:
		return true
	}
	return false
}

// Roles stored on a profile.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Referrer is an account holder issued a promo code. The Total* fields are a
// cache of the last computed aggregate; the signups table stays authoritative.
type Referrer struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	PromoCode        string          `json:"promo_code"`
	Active           bool            `json:"is_active"`
	TotalSignups     int             `json:"total_signups"`
	TotalPaidSignups int             `json:"total_paid_signups"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Signup is one registration record. PromoCode, Amount and Currency are all
// optional; unattributed signups carry a nil PromoCode.
type Signup struct {
	ID            string              `json:"id"`
	FullName      string              `json:"full_name"`
	Email         string              `json:"email"`
	PromoCode     *string             `json:"promo_code"`
	PaymentStatus PaymentStatus       `json:"payment_status"`
	Amount        decimal.NullDecimal `json:"amount"`
	Currency      *string             `json:"currency"`
	UserID        *string             `json:"user_id,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// AttributedTo reports whether the signup is attributed to code.
func (s Signup) AttributedTo(code string) bool {
	return s.PromoCode != nil && *s.PromoCode == code
}

// HasMoney is true only when both amount and currency are present.
func (s Signup) HasMoney() bool {
	return s.Amount.Valid && s.Currency != nil && *s.Currency != ""
}

// AttributionChange records one effective promo-code move of a signup.
type AttributionChange struct {
	ID        int64     `json:"id"`
	SignupID  string    `json:"signup_id"`
	FromCode  *string   `json:"from_code"`
	ToCode    string    `json:"to_code"`
	ActorID   string    `json:"actor_id"`
	ChangedAt time.Time `json:"changed_at"`
}

// Profile is a login identity.
type Profile struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name"`
	PasswordHash  string     `json:"-"`
	Role          string     `json:"role"`
	PlanTier      string     `json:"plan_tier"`
	PlanStatus    string     `json:"plan_status"`
	PlanStartedAt *time.Time `json:"plan_started_at,omitempty"`
	PlanRenewsAt  *time.Time `json:"plan_renews_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Payment statuses.
const (
	PaymentRecordCreated   = "created"
	PaymentRecordCompleted = "completed"
)

// Payment tracks one provider order from creation to capture.
type Payment struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Email           string          `json:"email"`
	SignupID        *string         `json:"signup_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	PaymentMode     string          `json:"payment_mode"`
	PlanType        string          `json:"plan_type"`
	ProviderOrderID string          `json:"paypal_order_id"`
	CaptureID       string          `json:"paypal_capture_id,omitempty"`
	AmountPaidUSD   decimal.Decimal `json:"amount_paid_usd"`
	PayerEmail      string          `json:"payer_email,omitempty"`
	PayerName       string          `json:"payer_name,omitempty"`
	PlanStartedAt   time.Time       `json:"plan_started_at"`
	PlanEndsAt      time.Time       `json:"plan_ends_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Email  string
	Role   string
}

func (a Actor) Authenticated() bool { return a.UserID != "" }

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
