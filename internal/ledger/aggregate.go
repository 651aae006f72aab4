package ledger

import (
	"sort"

	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Totals is the derived view of one referrer's signups.
type Totals struct {
	TotalSignups int             `json:"total_signups"`
	TotalPaid    int             `json:"total_paid_signups"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// Aggregate computes the totals for promo code over signups. Revenue only
// counts paid signups that carry both an amount and a currency.
func Aggregate(code string, signups []domain.Signup) Totals {
	t := Totals{TotalRevenue: decimal.Zero}
	for _, s := range signups {
		if !s.AttributedTo(code) {
			continue
		}
		t.TotalSignups++
		if s.PaymentStatus != domain.PaymentSuccess {
			continue
		}
		t.TotalPaid++
		if s.HasMoney() {
			t.TotalRevenue = t.TotalRevenue.Add(s.Amount.Decimal)
		}
	}
	return t
}

// Ranked pairs a referrer with its totals and 1-based leaderboard position.
type Ranked struct {
	Referrer domain.Referrer `json:"influencer"`
	Totals   Totals          `json:"totals"`
	Rank     int             `json:"rank"`
}

// Rank orders entries by revenue descending. Ties keep their input order and
// ranks are strictly positional, so equal revenues get distinct ranks.
func Rank(entries []Ranked) []Ranked {
	out := make([]Ranked, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Totals.TotalRevenue.GreaterThan(out[j].Totals.TotalRevenue)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// TopN returns at most n leading entries of an already ranked slice.
func TopN(ranked []Ranked, n int) []Ranked {
	if n < len(ranked) {
		return ranked[:n]
	}
	return ranked
}

// ComputeEarnings is paidCount * perSignup * fxRate, unrounded.
func ComputeEarnings(paidCount int, perSignup, fxRate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(paidCount)).Mul(perSignup).Mul(fxRate)
}
