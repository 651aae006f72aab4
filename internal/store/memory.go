package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Memory is an in-process implementation of every store interface. It keeps
// the same ordering and uniqueness rules as the Postgres schema and is used
// by tests and by the API when no database is configured.
type Memory struct {
	mu  sync.RWMutex
	seq int64
	now func() time.Time

	referrers map[string]memReferrer
	signups   map[string]memSignup
	history   []domain.AttributionChange
	profiles  map[string]domain.Profile
	payments  map[string]domain.Payment
}

type memReferrer struct {
	domain.Referrer
	seq int64
}

type memSignup struct {
	domain.Signup
	seq int64
}

func NewMemory() *Memory {
	return &Memory{
		now:       time.Now,
		referrers: make(map[string]memReferrer),
		signups:   make(map[string]memSignup),
		profiles:  make(map[string]domain.Profile),
		payments:  make(map[string]domain.Payment),
	}
}

// SetClock overrides the timestamp source for created_at values.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) next() int64 {
	m.seq++
	return m.seq
}

func duplicate(what string) error {
	return fmt.Errorf("%w: %s", ErrDuplicate, what)
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSignup(s domain.Signup) domain.Signup {
	s.PromoCode = cloneStr(s.PromoCode)
	s.Currency = cloneStr(s.Currency)
	s.UserID = cloneStr(s.UserID)
	return s
}

// --- referrers ---

func (m *Memory) ListReferrers(_ context.Context) ([]domain.Referrer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]memReferrer, 0, len(m.referrers))
	for _, r := range m.referrers {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]domain.Referrer, len(rows))
	for i, r := range rows {
		out[i] = r.Referrer
	}
	return out, nil
}

func (m *Memory) GetReferrer(_ context.Context, id string) (*domain.Referrer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.referrers[id]
	if !ok {
		return nil, ErrReferrerNotFound
	}
	out := r.Referrer
	return &out, nil
}

func (m *Memory) findReferrer(match func(domain.Referrer) bool) (*domain.Referrer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.referrers {
		if match(r.Referrer) {
			out := r.Referrer
			return &out, nil
		}
	}
	return nil, ErrReferrerNotFound
}

func (m *Memory) GetReferrerByCode(_ context.Context, code string) (*domain.Referrer, error) {
	return m.findReferrer(func(r domain.Referrer) bool { return r.PromoCode == code })
}

func (m *Memory) GetReferrerByUserID(_ context.Context, userID string) (*domain.Referrer, error) {
	return m.findReferrer(func(r domain.Referrer) bool { return r.UserID == userID })
}

func (m *Memory) ListPromoCodes(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.referrers))
	for _, r := range m.referrers {
		out = append(out, r.PromoCode)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) InsertReferrer(_ context.Context, r *domain.Referrer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.referrers {
		if existing.PromoCode == r.PromoCode {
			return duplicate("influencers_promo_code_key")
		}
		if existing.UserID == r.UserID {
			return duplicate("influencers_user_id_key")
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = m.now()
	m.referrers[r.ID] = memReferrer{Referrer: *r, seq: m.next()}
	return nil
}

func (m *Memory) DeleteReferrer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.referrers[id]; !ok {
		return ErrReferrerNotFound
	}
	delete(m.referrers, id)
	return nil
}

func (m *Memory) UpdateReferrerTotals(_ context.Context, id string, signups, paid int, revenue decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.referrers[id]
	if !ok {
		return ErrReferrerNotFound
	}
	r.TotalSignups = signups
	r.TotalPaidSignups = paid
	r.TotalRevenue = revenue
	m.referrers[id] = r
	return nil
}

// --- signups ---

func (m *Memory) ListSignupsByCode(_ context.Context, code string) ([]domain.Signup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []memSignup
	for _, s := range m.signups {
		if s.AttributedTo(code) {
			rows = append(rows, s)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]domain.Signup, len(rows))
	for i, s := range rows {
		out[i] = cloneSignup(s.Signup)
	}
	return out, nil
}

func (m *Memory) GetSignup(_ context.Context, id string) (*domain.Signup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.signups[id]
	if !ok {
		return nil, ErrSignupNotFound
	}
	out := cloneSignup(s.Signup)
	return &out, nil
}

func (m *Memory) InsertSignup(_ context.Context, s *domain.Signup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	m.signups[s.ID] = memSignup{Signup: cloneSignup(*s), seq: m.next()}
	return nil
}

func (m *Memory) UpdateSignupPromoCode(_ context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signups[id]
	if !ok {
		return ErrSignupNotFound
	}
	s.PromoCode = &code
	m.signups[id] = s
	return nil
}

func (m *Memory) UpdateSignupStatus(_ context.Context, id string, status domain.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signups[id]
	if !ok {
		return ErrSignupNotFound
	}
	s.PaymentStatus = status
	m.signups[id] = s
	return nil
}

func (m *Memory) DeleteSignup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.signups[id]; !ok {
		return ErrSignupNotFound
	}
	delete(m.signups, id)
	kept := m.history[:0]
	for _, c := range m.history {
		if c.SignupID != id {
			kept = append(kept, c)
		}
	}
	m.history = kept
	return nil
}

// --- attribution history ---

func (m *Memory) InsertAttributionChange(_ context.Context, c *domain.AttributionChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.signups[c.SignupID]; !ok {
		return ErrSignupNotFound
	}
	c.ID = m.next()
	c.ChangedAt = m.now()
	stored := *c
	stored.FromCode = cloneStr(c.FromCode)
	m.history = append(m.history, stored)
	return nil
}

func (m *Memory) ListAttributionChanges(_ context.Context, signupID string) ([]domain.AttributionChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AttributionChange
	for _, c := range m.history {
		if c.SignupID == signupID {
			c.FromCode = cloneStr(c.FromCode)
			out = append(out, c)
		}
	}
	return out, nil
}

// --- profiles ---

func (m *Memory) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (m *Memory) GetProfileByEmail(_ context.Context, email string) (*domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.profiles {
		if strings.EqualFold(p.Email, email) {
			out := p
			return &out, nil
		}
	}
	return nil, ErrProfileNotFound
}

func (m *Memory) InsertProfile(_ context.Context, p *domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.profiles {
		if strings.EqualFold(existing.Email, p.Email) {
			return duplicate("profiles_email_key")
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = m.now()
	m.profiles[p.ID] = *p
	return nil
}

func (m *Memory) updateProfile(id string, apply func(*domain.Profile)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return ErrProfileNotFound
	}
	apply(&p)
	m.profiles[id] = p
	return nil
}

func (m *Memory) UpdatePassword(_ context.Context, id, hash string) error {
	return m.updateProfile(id, func(p *domain.Profile) { p.PasswordHash = hash })
}

func (m *Memory) UpdateFullName(_ context.Context, id, name string) error {
	return m.updateProfile(id, func(p *domain.Profile) { p.FullName = name })
}

func (m *Memory) UpdateRole(_ context.Context, id, role string) error {
	return m.updateProfile(id, func(p *domain.Profile) { p.Role = role })
}

func (m *Memory) UpdatePlan(_ context.Context, id, tier, status string, startedAt, renewsAt time.Time) error {
	return m.updateProfile(id, func(p *domain.Profile) {
		p.PlanTier = tier
		p.PlanStatus = status
		p.PlanStartedAt = &startedAt
		p.PlanRenewsAt = &renewsAt
	})
}

// --- payments ---

func (m *Memory) InsertPayment(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.UserID]; !ok {
		return fmt.Errorf("payment user %s: %w", p.UserID, ErrProfileNotFound)
	}
	for _, existing := range m.payments {
		if existing.ProviderOrderID == p.ProviderOrderID {
			return duplicate("payment_details_paypal_order_id_key")
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = m.now()
	m.payments[p.ID] = *p
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id string) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &p, nil
}

func (m *Memory) CompletePayment(_ context.Context, id string, c Capture) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	p.Status = domain.PaymentRecordCompleted
	p.CaptureID = c.CaptureID
	p.AmountPaidUSD = c.AmountPaidUSD
	p.PayerEmail = c.PayerEmail
	p.PayerName = c.PayerName
	finished := c.FinishedAt
	p.FinishedAt = &finished
	m.payments[id] = p
	return &p, nil
}

var (
	_ LedgerStore  = (*Memory)(nil)
	_ AccountStore = (*Memory)(nil)
	_ PaymentStore = (*Memory)(nil)
	_ LedgerStore  = (*Store)(nil)
	_ AccountStore = (*Store)(nil)
	_ PaymentStore = (*Store)(nil)
)
