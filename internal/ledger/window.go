package ledger

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/punchamoorthee/promoledger/internal/domain"
)

// Range names accepted by the dashboard filter.
const (
	RangeAll    = "all"
	Range7Days  = "7days"
	Range30Days = "30days"
	RangeCustom = "custom"
)

// Window selects signups by creation time. Start and End are only used for
// RangeCustom; a zero Start means the epoch and a zero End means now.
type Window struct {
	Range string
	Start time.Time
	End   time.Time
}

// ParseWindow builds a Window from query values. Dates use YYYY-MM-DD.
func ParseWindow(rng, start, end string) (Window, error) {
	w := Window{Range: rng}
	if w.Range == "" {
		w.Range = RangeAll
	}
	switch w.Range {
	case RangeAll, Range7Days, Range30Days:
		return w, nil
	case RangeCustom:
	default:
		return Window{}, fmt.Errorf("%w: unknown date range %q", domain.ErrValidation, rng)
	}
	var err error
	if start != "" {
		if w.Start, err = time.Parse(time.DateOnly, start); err != nil {
			return Window{}, fmt.Errorf("%w: invalid start date", domain.ErrValidation)
		}
	}
	if end != "" {
		if w.End, err = time.Parse(time.DateOnly, end); err != nil {
			return Window{}, fmt.Errorf("%w: invalid end date", domain.ErrValidation)
		}
	}
	return w, nil
}

// Contains reports whether t falls inside the window as seen at now.
func (w Window) Contains(t, now time.Time) bool {
	switch w.Range {
	case Range7Days, Range30Days:
		limit := 7.0
		if w.Range == Range30Days {
			limit = 30
		}
		days := math.Ceil(math.Abs(now.Sub(t).Hours()) / 24)
		return days <= limit
	case RangeCustom:
		if w.Start.IsZero() && w.End.IsZero() {
			return true
		}
		start := w.Start
		end := w.End
		if end.IsZero() {
			end = now
		}
		// end date is inclusive of the whole day
		y, m, d := end.Date()
		end = time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), end.Location())
		return !t.Before(start) && !t.After(end)
	default:
		return true
	}
}

// FilterCompleted keeps successful signups inside the window.
func FilterCompleted(signups []domain.Signup, w Window, now time.Time) []domain.Signup {
	out := make([]domain.Signup, 0, len(signups))
	for _, s := range signups {
		if s.PaymentStatus != domain.PaymentSuccess {
			continue
		}
		if w.Contains(s.CreatedAt, now) {
			out = append(out, s)
		}
	}
	return out
}

// DayBucket is one point of the daily trend.
type DayBucket struct {
	Date  string `json:"date"`
	Total int    `json:"total"`
	Paid  int    `json:"paid"`
}

// DailyTrend groups signups per calendar day in ascending order.
func DailyTrend(signups []domain.Signup) []DayBucket {
	sorted := make([]domain.Signup, len(signups))
	copy(sorted, signups)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var out []DayBucket
	index := map[string]int{}
	for _, s := range sorted {
		day := s.CreatedAt.Format(time.DateOnly)
		i, ok := index[day]
		if !ok {
			out = append(out, DayBucket{Date: day})
			i = len(out) - 1
			index[day] = i
		}
		out[i].Total++
		if s.PaymentStatus == domain.PaymentSuccess {
			out[i].Paid++
		}
	}
	return out
}

// WeekdayBreakdown counts signups per weekday name.
func WeekdayBreakdown(signups []domain.Signup) map[string]int {
	out := make(map[string]int)
	for _, s := range signups {
		out[s.CreatedAt.Weekday().String()]++
	}
	return out
}
