package models

import (
	"time"

	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/punchamoorthee/promoledger/internal/ledger"
	"github.com/shopspring/decimal"
)

// CreateReferrerRequest is the admin payload for a new influencer. Password is
// only required when no account exists for Email yet.
type CreateReferrerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	PromoCode string `json:"promo_code"`
	Password  string `json:"password"`
}

// AddSignupRequest is a manual signup entered by an admin for one influencer.
type AddSignupRequest struct {
	FullName      string               `json:"full_name"`
	Email         string               `json:"email"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	Amount        decimal.NullDecimal  `json:"amount"`
	Currency      string               `json:"currency"`
}

// RegisterSignupRequest is the public signup form. Ref is a referral token
// and is used when PromoCode is empty.
type RegisterSignupRequest struct {
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	PromoCode string `json:"promo_code"`
	Ref       string `json:"ref"`
}

type MoveSignupRequest struct {
	PromoCode string `json:"promo_code"`
}

type SignupStatusRequest struct {
	Status domain.PaymentStatus `json:"status"`
}

// LeaderboardEntry is one influencer row of the admin view.
type LeaderboardEntry struct {
	ledger.Ranked
	Signups []domain.Signup `json:"signups"`
}

// Leaderboard is the admin overview. Totals and TopPerformers always cover
// every influencer; Entries is narrowed by the search query.
type Leaderboard struct {
	Entries         []LeaderboardEntry `json:"influencers"`
	TopPerformers   []LeaderboardEntry `json:"top_performers"`
	Totals          ledger.Totals      `json:"totals"`
	InfluencerCount int                `json:"influencer_count"`
}

// Dashboard is the influencer self view for one date window.
type Dashboard struct {
	Influencer       domain.Referrer    `json:"influencer"`
	Range            string             `json:"range"`
	Signups          []domain.Signup    `json:"signups"`
	TotalSignups     int                `json:"total_signups"`
	PaidSignups      int                `json:"paid_signups"`
	EarningsUSD      decimal.Decimal    `json:"earnings_usd"`
	Earnings         decimal.Decimal    `json:"earnings"`
	Currency         string             `json:"currency"`
	DailyTrend       []ledger.DayBucket `json:"daily_trend"`
	WeekdayBreakdown map[string]int     `json:"weekday_breakdown"`
	ReferralToken    string             `json:"referral_token"`
	ReferralLink     string             `json:"referral_link"`
}

type ReferralLinkResponse struct {
	PromoCode string `json:"promo_code"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Route     string         `json:"route"`
	User      domain.Profile `json:"user"`
}

type RouteResponse struct {
	Route string `json:"route"`
}

type PasswordRequest struct {
	Password string `json:"password"`
}

type CreateAdminRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpsertUserRequest creates the account or, when Email exists, overwrites its
// password and name. Role is applied in both cases when set.
type UpsertUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type UpsertUserResponse struct {
	UserID  string `json:"user_id"`
	Created bool   `json:"created"`
}

type OrderMetadata struct {
	Plan   string `json:"plan"`
	Source string `json:"source"`
}

type CreateOrderRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	UserID   string          `json:"user_id"`
	SignupID *string         `json:"signup_id"`
	Metadata OrderMetadata   `json:"metadata"`
}

type CreateOrderResponse struct {
	OrderID       string    `json:"order_id"`
	PaymentID     string    `json:"payment_id"`
	PlanStartDate time.Time `json:"plan_start_date"`
	PlanEndDate   time.Time `json:"plan_end_date"`
}

type CaptureOrderRequest struct {
	OrderID    string `json:"order_id"`
	PaymentID  string `json:"payment_id"`
	PayerEmail string `json:"payer_email"`
	PayerName  string `json:"payer_name"`
}

type CaptureOrderResponse struct {
	CaptureID string         `json:"capture_id"`
	Payment   domain.Payment `json:"payment"`
}
