package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/punchamoorthee/promoledger/internal/auth"
	"github.com/punchamoorthee/promoledger/internal/cache"
	"github.com/punchamoorthee/promoledger/internal/config"
	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/punchamoorthee/promoledger/internal/events"
	"github.com/punchamoorthee/promoledger/internal/ledger"
	"github.com/punchamoorthee/promoledger/internal/models"
	"github.com/punchamoorthee/promoledger/internal/notify"
	"github.com/punchamoorthee/promoledger/internal/store"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultCurrency = "USD"
	topPerformers   = 3
	mailTimeout     = 10 * time.Second
)

// DefaultSignupAmount is the plan price recorded when a signup carries no amount.
var DefaultSignupAmount = decimal.RequireFromString("12.99")

type LedgerDeps struct {
	Store         store.LedgerStore
	Accounts      store.AccountStore
	Events        events.Publisher
	Leaderboard   cache.Leaderboard
	Mailer        notify.Mailer
	Commission    config.CommissionConfig
	PublicBaseURL string
}

// LedgerService runs the referral workflows on top of the ledger functions.
// Aggregates are always recomputed from signups; the counters cached on
// referrer rows and the leaderboard cache are refreshed after every write.
type LedgerService struct {
	store      store.LedgerStore
	accounts   store.AccountStore
	events     events.Publisher
	board      cache.Leaderboard
	mailer     notify.Mailer
	commission config.CommissionConfig
	baseURL    string
	now        func() time.Time
}

func NewLedgerService(d LedgerDeps) *LedgerService {
	s := &LedgerService{
		store:      d.Store,
		accounts:   d.Accounts,
		events:     d.Events,
		board:      d.Leaderboard,
		mailer:     d.Mailer,
		commission: d.Commission,
		baseURL:    strings.TrimRight(d.PublicBaseURL, "/"),
		now:        time.Now,
	}
	if s.events == nil {
		s.events = events.LogPublisher{}
	}
	if s.board == nil {
		s.board = cache.NewMemoryLeaderboard(0)
	}
	if s.mailer == nil {
		s.mailer = notify.NopMailer{}
	}
	return s
}

// --- referrers ---

func (s *LedgerService) CreateReferrer(ctx context.Context, actor domain.Actor, req models.CreateReferrerRequest) (*domain.Referrer, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" || req.PromoCode == "" {
		return nil, invalid("name, email and promo code are required")
	}
	code, err := ledger.ValidateCode(req.PromoCode)
	if err != nil {
		return nil, err
	}

	codes, err := s.store.ListPromoCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("check promo code uniqueness: %w", err)
	}
	if !ledger.IsUnique(code, codes) {
		return nil, invalid("promo code %s is already taken", code)
	}

	owner, password, err := s.referrerOwner(ctx, name, email, req.Password)
	if err != nil {
		return nil, err
	}

	r := &domain.Referrer{
		UserID:       owner.ID,
		Name:         name,
		Email:        email,
		PromoCode:    code,
		Active:       true,
		TotalRevenue: decimal.Zero,
	}
	if err := s.store.InsertReferrer(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, invalid("promo code %s or account %s is already in use", code, email)
		}
		return nil, fmt.Errorf("insert influencer: %w", err)
	}

	log.WithFields(log.Fields{
		"influencer_id": r.ID,
		"promo_code":    r.PromoCode,
		"actor_id":      actor.UserID,
	}).Info("Influencer created")

	s.invalidate(ctx)
	s.publish(ctx, events.TypeReferrerCreated, r.ID, r)
	s.sendWelcome(ctx, r, password)
	return r, nil
}

// referrerOwner returns the profile that will own a new referrer. An existing
// account is reused unless it already owns one. The returned password is only
// set when a new account was created.
func (s *LedgerService) referrerOwner(ctx context.Context, name, email, password string) (*domain.Profile, string, error) {
	existing, err := s.accounts.GetProfileByEmail(ctx, email)
	switch {
	case err == nil:
		_, err := s.store.GetReferrerByUserID(ctx, existing.ID)
		if err == nil {
			return nil, "", invalid("account %s already has an influencer profile", email)
		}
		if !isMiss(err) {
			return nil, "", err
		}
		return existing, "", nil
	case !isMiss(err):
		return nil, "", err
	}

	if err := auth.ValidatePassword(password); err != nil {
		return nil, "", err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", err
	}
	started := s.now()
	p := &domain.Profile{
		Email:         email,
		FullName:      name,
		PasswordHash:  hash,
		Role:          domain.RoleUser,
		PlanTier:      "free",
		PlanStatus:    "active",
		PlanStartedAt: &started,
	}
	if err := s.accounts.InsertProfile(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, "", invalid("account %s already exists", email)
		}
		return nil, "", fmt.Errorf("create account: %w", err)
	}
	return p, password, nil
}

func (s *LedgerService) sendWelcome(ctx context.Context, r *domain.Referrer, password string) {
	ctx, cancel := context.WithTimeout(ctx, mailTimeout)
	defer cancel()

	subject, body := notify.ReferrerWelcome(r.Name, r.Email, password, r.PromoCode, s.ReferralLink(r.PromoCode))
	if err := s.mailer.Send(ctx, r.Email, subject, body); err != nil {
		log.WithFields(log.Fields{
			"error":         err,
			"influencer_id": r.ID,
			"email":         r.Email,
		}).Warn("Failed to send influencer welcome email")
	}
}

func (s *LedgerService) DeleteReferrer(ctx context.Context, actor domain.Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.store.DeleteReferrer(ctx, id); err != nil {
		return lookupErr(err, "influencer")
	}
	s.invalidate(ctx)
	s.publish(ctx, events.TypeReferrerRemoved, id, map[string]string{"influencer_id": id})
	return nil
}

// --- signups ---

// AddSignup records a signup by hand for one referrer. Status defaults to
// success and money defaults to the plan price.
func (s *LedgerService) AddSignup(ctx context.Context, actor domain.Actor, referrerID string, req models.AddSignupRequest) (*domain.Signup, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r, err := s.store.GetReferrer(ctx, referrerID)
	if err != nil {
		return nil, lookupErr(err, "influencer")
	}
	name := strings.TrimSpace(req.FullName)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return nil, invalid("full name and email are required")
	}
	status := req.PaymentStatus
	if status == "" {
		status = domain.PaymentSuccess
	}
	if !status.Valid() {
		return nil, invalid("unknown payment status %q", status)
	}

	code := r.PromoCode
	sg := &domain.Signup{
		FullName:      name,
		Email:         email,
		PromoCode:     &code,
		PaymentStatus: status,
		Amount:        req.Amount,
		Currency:      currencyOrDefault(req.Currency),
	}
	if !sg.Amount.Valid {
		sg.Amount = decimal.NewNullDecimal(DefaultSignupAmount)
	}
	if sg.Amount.Decimal.IsNegative() {
		return nil, invalid("amount must not be negative")
	}
	if err := s.store.InsertSignup(ctx, sg); err != nil {
		return nil, fmt.Errorf("insert signup: %w", err)
	}

	s.afterSignupWrite(ctx, code)
	s.publish(ctx, events.TypeSignupRegistered, sg.ID, sg)
	return sg, nil
}

// RegisterSignup is the public signup form. The referrer is taken from the
// promo code, or from the referral token when no code is given. The signup
// stays pending until payment settles it.
func (s *LedgerService) RegisterSignup(ctx context.Context, actor domain.Actor, req models.RegisterSignupRequest) (*domain.Signup, error) {
	name := strings.TrimSpace(req.FullName)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return nil, invalid("full name and email are required")
	}

	code := strings.TrimSpace(req.PromoCode)
	if code == "" && req.Ref != "" {
		decoded, err := ledger.DecodeReferralToken(req.Ref)
		if err != nil {
			return nil, err
		}
		code = decoded
	}

	sg := &domain.Signup{
		FullName:      name,
		Email:         email,
		PaymentStatus: domain.PaymentPending,
		Amount:        decimal.NewNullDecimal(DefaultSignupAmount),
		Currency:      currencyOrDefault(""),
	}
	if code != "" {
		valid, err := ledger.ValidateCode(code)
		if err != nil {
			return nil, err
		}
		if _, err := s.store.GetReferrerByCode(ctx, valid); err != nil {
			if isMiss(err) {
				return nil, invalid("promo code %s does not exist", valid)
			}
			return nil, err
		}
		sg.PromoCode = &valid
	}
	if actor.Authenticated() {
		uid := actor.UserID
		sg.UserID = &uid
	}
	if err := s.store.InsertSignup(ctx, sg); err != nil {
		return nil, fmt.Errorf("insert signup: %w", err)
	}

	if sg.PromoCode != nil {
		s.afterSignupWrite(ctx, *sg.PromoCode)
	}
	s.publish(ctx, events.TypeSignupRegistered, sg.ID, sg)
	return sg, nil
}

// MoveSignup attributes a signup to targetCode, overwriting any earlier
// attribution. Moving to the current code changes nothing and records no
// history.
func (s *LedgerService) MoveSignup(ctx context.Context, actor domain.Actor, signupID, targetCode string) (*domain.Signup, bool, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, false, err
	}
	code, err := ledger.ValidateCode(targetCode)
	if err != nil {
		return nil, false, err
	}
	sg, err := s.store.GetSignup(ctx, signupID)
	if err != nil {
		return nil, false, lookupErr(err, "signup")
	}
	if _, err := s.store.GetReferrerByCode(ctx, code); err != nil {
		if isMiss(err) {
			return nil, false, invalid("no influencer uses promo code %s", code)
		}
		return nil, false, err
	}
	if sg.AttributedTo(code) {
		return sg, false, nil
	}

	if err := s.store.UpdateSignupPromoCode(ctx, sg.ID, code); err != nil {
		return nil, false, lookupErr(err, "signup")
	}
	from := sg.PromoCode
	sg.PromoCode = &code

	change := &domain.AttributionChange{
		SignupID:  sg.ID,
		FromCode:  from,
		ToCode:    code,
		ActorID:   actor.UserID,
		ChangedAt: s.now().UTC(),
	}
	if err := s.store.InsertAttributionChange(ctx, change); err != nil {
		log.WithFields(log.Fields{
			"error":     err,
			"signup_id": sg.ID,
			"to_code":   code,
		}).Error("Failed to record attribution change")
	}

	if from != nil {
		s.refreshTotals(ctx, *from)
	}
	s.afterSignupWrite(ctx, code)
	s.publish(ctx, events.TypeAttributionChanged, sg.ID, change)
	return sg, true, nil
}

// SetSignupStatus settles a pending signup. Only pending -> success|failed
// is allowed; setting the current status again is a no-op.
func (s *LedgerService) SetSignupStatus(ctx context.Context, actor domain.Actor, signupID string, status domain.PaymentStatus) (*domain.Signup, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, invalid("unknown payment status %q", status)
	}
	sg, err := s.store.GetSignup(ctx, signupID)
	if err != nil {
		return nil, lookupErr(err, "signup")
	}
	if err := s.transition(ctx, sg, status); err != nil {
		return nil, err
	}
	return sg, nil
}

// settleSignup marks a pending signup paid. Signups already settled are left
// alone.
// payableSignup checks that an order for amount/currency may settle the
// signup: it must exist, be pending, belong to the payer when owned, and the
// order must cover its exact price.
func (s *LedgerService) payableSignup(ctx context.Context, actor domain.Actor, signupID string, amount decimal.Decimal, currency string) error {
	sg, err := s.store.GetSignup(ctx, signupID)
	if err != nil {
		return lookupErr(err, "signup")
	}
	if sg.UserID != nil && *sg.UserID != actor.UserID {
		return fmt.Errorf("%w: signup belongs to another user", domain.ErrForbidden)
	}
	if sg.PaymentStatus != domain.PaymentPending {
		return invalid("signup is already %s", sg.PaymentStatus)
	}
	if !sg.Amount.Valid || sg.Currency == nil {
		return invalid("signup has no price to pay")
	}
	if !amount.Equal(sg.Amount.Decimal) || currency != *sg.Currency {
		return invalid("order must be %s %s", sg.Amount.Decimal.StringFixed(2), *sg.Currency)
	}
	return nil
}

func (s *LedgerService) settleSignup(ctx context.Context, signupID string) error {
	sg, err := s.store.GetSignup(ctx, signupID)
	if err != nil {
		return lookupErr(err, "signup")
	}
	if sg.PaymentStatus != domain.PaymentPending {
		return nil
	}
	return s.transition(ctx, sg, domain.PaymentSuccess)
}

func (s *LedgerService) transition(ctx context.Context, sg *domain.Signup, status domain.PaymentStatus) error {
	if sg.PaymentStatus == status {
		return nil
	}
	if sg.PaymentStatus != domain.PaymentPending {
		return invalid("signup is already %s", sg.PaymentStatus)
	}
	if err := s.store.UpdateSignupStatus(ctx, sg.ID, status); err != nil {
		return lookupErr(err, "signup")
	}
	from := sg.PaymentStatus
	sg.PaymentStatus = status

	if sg.PromoCode != nil {
		s.afterSignupWrite(ctx, *sg.PromoCode)
	}
	s.publish(ctx, events.TypeSignupStatusChange, sg.ID, map[string]any{
		"signup_id": sg.ID,
		"from":      from,
		"to":        status,
	})
	return nil
}

func (s *LedgerService) DeleteSignup(ctx context.Context, actor domain.Actor, signupID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	sg, err := s.store.GetSignup(ctx, signupID)
	if err != nil {
		return lookupErr(err, "signup")
	}
	if err := s.store.DeleteSignup(ctx, sg.ID); err != nil {
		return lookupErr(err, "signup")
	}
	if sg.PromoCode != nil {
		s.afterSignupWrite(ctx, *sg.PromoCode)
	}
	return nil
}

func (s *LedgerService) AttributionHistory(ctx context.Context, actor domain.Actor, signupID string) ([]domain.AttributionChange, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := s.store.GetSignup(ctx, signupID); err != nil {
		return nil, lookupErr(err, "signup")
	}
	return s.store.ListAttributionChanges(ctx, signupID)
}

// --- read models ---

// Leaderboard returns every referrer with fresh totals and rank. Ranks and the
// overall totals are computed before search narrows the entries.
func (s *LedgerService) Leaderboard(ctx context.Context, actor domain.Actor, search string) (*models.Leaderboard, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	full, err := s.cachedLeaderboard(ctx)
	if err != nil {
		return nil, err
	}
	out := *full
	out.Entries = filterEntries(full.Entries, search)
	return &out, nil
}

func (s *LedgerService) cachedLeaderboard(ctx context.Context) (*models.Leaderboard, error) {
	raw, err := s.board.Get(ctx)
	if err == nil {
		var lb models.Leaderboard
		if err := json.Unmarshal(raw, &lb); err == nil {
			return &lb, nil
		}
		log.WithError(err).Warn("Discarding unreadable leaderboard cache entry")
	} else if !errors.Is(err, cache.ErrMiss) {
		log.WithError(err).Warn("Leaderboard cache read failed")
	}

	// a write during the build bumps the generation and Set drops the result
	gen, genErr := s.board.Generation(ctx)
	lb, err := s.buildLeaderboard(ctx)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		log.WithError(genErr).Warn("Leaderboard cache generation read failed")
		return lb, nil
	}
	if raw, err := json.Marshal(lb); err == nil {
		if err := s.board.Set(ctx, gen, raw); err != nil {
			log.WithError(err).Warn("Leaderboard cache write failed")
		}
	}
	return lb, nil
}

func (s *LedgerService) buildLeaderboard(ctx context.Context) (*models.Leaderboard, error) {
	refs, err := s.store.ListReferrers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list influencers: %w", err)
	}

	entries := make([]models.LeaderboardEntry, len(refs))
	ranked := make([]ledger.Ranked, len(refs))
	lb := &models.Leaderboard{
		Totals:          ledger.Totals{TotalRevenue: decimal.Zero},
		InfluencerCount: len(refs),
	}
	for i, r := range refs {
		signups, err := s.store.ListSignupsByCode(ctx, r.PromoCode)
		if err != nil {
			return nil, fmt.Errorf("list signups for %s: %w", r.PromoCode, err)
		}
		t := ledger.Aggregate(r.PromoCode, signups)
		r.TotalSignups, r.TotalPaidSignups, r.TotalRevenue = t.TotalSignups, t.TotalPaid, t.TotalRevenue

		if signups == nil {
			signups = []domain.Signup{}
		}
		entries[i] = models.LeaderboardEntry{Ranked: ledger.Ranked{Referrer: r, Totals: t}, Signups: signups}
		ranked[i] = entries[i].Ranked

		lb.Totals.TotalSignups += t.TotalSignups
		lb.Totals.TotalPaid += t.TotalPaid
		lb.Totals.TotalRevenue = lb.Totals.TotalRevenue.Add(t.TotalRevenue)
	}

	ranked = ledger.Rank(ranked)
	position := make(map[string]int, len(ranked))
	for _, r := range ranked {
		position[r.Referrer.ID] = r.Rank
	}
	for i := range entries {
		entries[i].Rank = position[entries[i].Referrer.ID]
	}

	lb.Entries = entries
	lb.TopPerformers = make([]models.LeaderboardEntry, 0, topPerformers)
	for _, r := range ledger.TopN(ranked, topPerformers) {
		for _, e := range entries {
			if e.Referrer.ID == r.Referrer.ID {
				lb.TopPerformers = append(lb.TopPerformers, e)
				break
			}
		}
	}
	return lb, nil
}

func filterEntries(entries []models.LeaderboardEntry, search string) []models.LeaderboardEntry {
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return entries
	}
	out := make([]models.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		r := e.Referrer
		if strings.Contains(strings.ToLower(r.Name), q) ||
			strings.Contains(strings.ToLower(r.Email), q) ||
			strings.Contains(strings.ToLower(r.PromoCode), q) {
			out = append(out, e)
		}
	}
	return out
}

// ExportCSV writes the searched leaderboard rows as CSV. Names are always
// quoted; revenue has two decimals.
func (s *LedgerService) ExportCSV(ctx context.Context, actor domain.Actor, search string, w io.Writer) error {
	lb, err := s.Leaderboard(ctx, actor, search)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, "Name,Email,Promo Code,Total Signups,Paid Signups,Revenue,Status"); err != nil {
		return err
	}
	for _, e := range lb.Entries {
		status := "Inactive"
		if e.Referrer.Active {
			status = "Active"
		}
		_, err := fmt.Fprintf(w, "\n%s,%s,%s,%d,%d,%s,%s",
			csvQuote(e.Referrer.Name),
			csvQuote(e.Referrer.Email),
			csvQuote(e.Referrer.PromoCode),
			e.Totals.TotalSignups,
			e.Totals.TotalPaid,
			e.Totals.TotalRevenue.StringFixed(2),
			status,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// csvQuote always quotes a free-text field, doubling embedded quotes.
func csvQuote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// Dashboard is the referrer's own view of completed signups inside w.
func (s *LedgerService) Dashboard(ctx context.Context, actor domain.Actor, w ledger.Window) (*models.Dashboard, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	r, err := s.store.GetReferrerByUserID(ctx, actor.UserID)
	if err != nil {
		if isMiss(err) {
			return nil, fmt.Errorf("%w: this account has no influencer profile", domain.ErrForbidden)
		}
		return nil, err
	}
	signups, err := s.store.ListSignupsByCode(ctx, r.PromoCode)
	if err != nil {
		return nil, fmt.Errorf("list signups: %w", err)
	}

	completed := ledger.FilterCompleted(signups, w, s.now())
	t := ledger.Aggregate(r.PromoCode, completed)
	token := ledger.EncodeReferralToken(r.PromoCode)

	return &models.Dashboard{
		Influencer:       *r,
		Range:            w.Range,
		Signups:          completed,
		TotalSignups:     t.TotalSignups,
		PaidSignups:      t.TotalPaid,
		EarningsUSD:      ledger.ComputeEarnings(t.TotalPaid, s.commission.PerSignupUSD, decimal.NewFromInt(1)),
		Earnings:         ledger.ComputeEarnings(t.TotalPaid, s.commission.PerSignupUSD, s.commission.FXRate),
		Currency:         s.commission.DisplayCurrency,
		DailyTrend:       ledger.DailyTrend(completed),
		WeekdayBreakdown: ledger.WeekdayBreakdown(completed),
		ReferralToken:    token,
		ReferralLink:     s.ReferralLink(r.PromoCode),
	}, nil
}

// ReferralLink is the public signup URL carrying the code's token.
func (s *LedgerService) ReferralLink(code string) string {
	return s.baseURL + "/?ref=" + ledger.EncodeReferralToken(code)
}

// ResolveReferralToken decodes a token and confirms a referrer owns the code.
func (s *LedgerService) ResolveReferralToken(ctx context.Context, token string) (string, error) {
	code, err := ledger.DecodeReferralToken(token)
	if err != nil {
		return "", err
	}
	if _, err := s.store.GetReferrerByCode(ctx, code); err != nil {
		return "", lookupErr(err, "promo code")
	}
	return code, nil
}

// --- bookkeeping ---

func (s *LedgerService) afterSignupWrite(ctx context.Context, code string) {
	s.refreshTotals(ctx, code)
	s.invalidate(ctx)
}

// refreshTotals recomputes the cached counters on the referrer owning code.
// Failures are logged; the counters are informational.
func (s *LedgerService) refreshTotals(ctx context.Context, code string) {
	r, err := s.store.GetReferrerByCode(ctx, code)
	if err != nil {
		if !isMiss(err) {
			log.WithError(err).WithField("promo_code", code).Warn("Failed to load influencer for totals")
		}
		return
	}
	signups, err := s.store.ListSignupsByCode(ctx, code)
	if err != nil {
		log.WithError(err).WithField("promo_code", code).Warn("Failed to list signups for totals")
		return
	}
	t := ledger.Aggregate(code, signups)
	if err := s.store.UpdateReferrerTotals(ctx, r.ID, t.TotalSignups, t.TotalPaid, t.TotalRevenue); err != nil {
		log.WithError(err).WithField("influencer_id", r.ID).Warn("Failed to update influencer totals")
	}
}

func (s *LedgerService) invalidate(ctx context.Context) {
	if err := s.board.Invalidate(ctx); err != nil {
		log.WithError(err).Warn("Leaderboard cache invalidation failed")
	}
}

func (s *LedgerService) publish(ctx context.Context, eventType, key string, data any) {
	if err := s.events.Publish(ctx, eventType, key, data); err != nil {
		log.WithFields(log.Fields{
			"error":      err,
			"event_type": eventType,
			"key":        key,
		}).Error("Failed to publish ledger event")
	}
}

func currencyOrDefault(c string) *string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		c = DefaultCurrency
	}
	return &c
}
