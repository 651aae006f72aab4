package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/promoledger/internal/domain"
)

func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func TestMemoryReferrerUniqueness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.InsertReferrer(ctx, &domain.Referrer{UserID: "u1", PromoCode: "ABC"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := m.InsertReferrer(ctx, &domain.Referrer{UserID: "u2", PromoCode: "ABC"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate promo code error, got %v", err)
	}
	err = m.InsertReferrer(ctx, &domain.Referrer{UserID: "u1", PromoCode: "XYZ"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate owner error, got %v", err)
	}
	codes, _ := m.ListPromoCodes(ctx)
	if len(codes) != 1 || codes[0] != "ABC" {
		t.Fatalf("codes = %v", codes)
	}
}

func TestMemoryOrderingNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetClock(fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	for _, code := range []string{"A", "B", "C"} {
		if err := m.InsertReferrer(ctx, &domain.Referrer{UserID: "owner-" + code, PromoCode: code}); err != nil {
			t.Fatalf("insert %s: %v", code, err)
		}
	}
	refs, _ := m.ListReferrers(ctx)
	if refs[0].PromoCode != "C" || refs[2].PromoCode != "A" {
		t.Fatalf("unexpected order: %s %s %s", refs[0].PromoCode, refs[1].PromoCode, refs[2].PromoCode)
	}

	code := "A"
	first := &domain.Signup{FullName: "one", PromoCode: &code, PaymentStatus: domain.PaymentPending}
	second := &domain.Signup{FullName: "two", PromoCode: &code, PaymentStatus: domain.PaymentPending}
	_ = m.InsertSignup(ctx, first)
	_ = m.InsertSignup(ctx, second)
	list, _ := m.ListSignupsByCode(ctx, "A")
	if len(list) != 2 || list[0].FullName != "two" {
		t.Fatalf("signups not newest first: %+v", list)
	}
}

func TestMemoryDeleteReferrerKeepsSignups(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := &domain.Referrer{UserID: "u1", PromoCode: "KEEP"}
	_ = m.InsertReferrer(ctx, r)
	code := "KEEP"
	s := &domain.Signup{PromoCode: &code, PaymentStatus: domain.PaymentSuccess}
	_ = m.InsertSignup(ctx, s)

	if err := m.DeleteReferrer(ctx, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteReferrer(ctx, r.ID); !errors.Is(err, ErrReferrerNotFound) {
		t.Fatalf("second delete expected not found, got %v", err)
	}
	left, _ := m.ListSignupsByCode(ctx, "KEEP")
	if len(left) != 1 {
		t.Fatalf("signups should survive referrer removal, got %d", len(left))
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	code := "ORIG"
	s := &domain.Signup{PromoCode: &code}
	_ = m.InsertSignup(ctx, s)

	got, _ := m.GetSignup(ctx, s.ID)
	*got.PromoCode = "MUTATED"
	again, _ := m.GetSignup(ctx, s.ID)
	if *again.PromoCode != "ORIG" {
		t.Fatalf("store state leaked through returned pointer")
	}
}

func TestMemoryProfileEmailCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.InsertProfile(ctx, &domain.Profile{Email: "Admin@Test.com"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := m.GetProfileByEmail(ctx, "admin@test.com"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if err := m.InsertProfile(ctx, &domain.Profile{Email: "ADMIN@test.com"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
}
