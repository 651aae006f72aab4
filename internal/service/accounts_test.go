package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/promoledger/internal/auth"
	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/punchamoorthee/promoledger/internal/models"
)

func newAccounts(f *fixture) (*AccountService, *auth.Issuer) {
	iss := auth.NewIssuer("test-secret", time.Hour)
	return NewAccountService(f.mem, f.mem, iss), iss
}

func seedAdmin(t *testing.T, f *fixture, email, password string) *domain.Profile {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	p := &domain.Profile{Email: email, PasswordHash: hash, Role: domain.RoleAdmin}
	if err := f.mem.InsertProfile(context.Background(), p); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return p
}

func TestLoginAndRoutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, iss := newAccounts(f)
	boss := seedAdmin(t, f, "boss@test.io", "secret1")

	resp, err := svc.Login(ctx, models.LoginRequest{Email: "BOSS@test.io", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Route != RouteAdmin || resp.User.ID != boss.ID {
		t.Fatalf("login response = %+v", resp)
	}
	actor, err := iss.Verify(resp.Token)
	if err != nil || !actor.IsAdmin() || actor.UserID != boss.ID {
		t.Fatalf("issued token = %+v, %v", actor, err)
	}

	for _, req := range []models.LoginRequest{
		{Email: "boss@test.io", Password: "wrong!!"},
		{Email: "ghost@test.io", Password: "secret1"},
	} {
		if _, err := svc.Login(ctx, req); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized, got %v", req.Email, err)
		}
	}
	if _, err := svc.Login(ctx, models.LoginRequest{Email: "boss@test.io"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing password: got %v", err)
	}

	r := f.referrer(t, "Ana", "ANA1")
	if got := svc.RouteFor(ctx, r.UserID); got != RouteInfluencer {
		t.Fatalf("influencer route = %s", got)
	}
	if got := svc.RouteFor(ctx, "unknown"); got != RouteDefault {
		t.Fatalf("unknown user route = %s", got)
	}
}

func TestLoginRejectsAccountWithoutPassword(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAccounts(f)
	_ = f.mem.InsertProfile(context.Background(), &domain.Profile{Email: "buyer@test.io", Role: domain.RoleUser})
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "buyer@test.io", Password: "anything"})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("got %v", err)
	}
}

func TestCreateAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newAccounts(f)

	p, err := svc.CreateAdmin(ctx, admin, models.CreateAdminRequest{FullName: "Root", Email: "root@test.io", Password: "secret1"})
	if err != nil || p.Role != domain.RoleAdmin {
		t.Fatalf("create admin = %+v, %v", p, err)
	}
	if _, err := svc.CreateAdmin(ctx, admin, models.CreateAdminRequest{Email: "root@test.io", Password: "secret1"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("duplicate email: got %v", err)
	}
	if _, err := svc.CreateAdmin(ctx, admin, models.CreateAdminRequest{Email: "x@test.io", Password: "123"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("short password: got %v", err)
	}
	user := domain.Actor{UserID: "u1", Role: domain.RoleUser}
	if _, err := svc.CreateAdmin(ctx, user, models.CreateAdminRequest{Email: "y@test.io", Password: "secret1"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-admin: got %v", err)
	}
}

func TestPasswordChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newAccounts(f)
	p := seedAdmin(t, f, "boss@test.io", "secret1")
	self := domain.Actor{UserID: p.ID, Role: domain.RoleAdmin}

	if err := svc.ChangePassword(ctx, self, "12345"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("short password: got %v", err)
	}
	if err := svc.ChangePassword(ctx, self, "newsecret"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := svc.Login(ctx, models.LoginRequest{Email: "boss@test.io", Password: "newsecret"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	if err := svc.ResetPassword(ctx, admin, "missing", "secret1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("reset unknown user: got %v", err)
	}
	if err := svc.ResetPassword(ctx, admin, p.ID, "another1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
}

func TestAdminUpsertUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newAccounts(f)

	first, err := svc.AdminUpsertUser(ctx, admin, models.UpsertUserRequest{Email: "new@test.io", Password: "secret1", FullName: "New"})
	if err != nil || !first.Created {
		t.Fatalf("create = %+v, %v", first, err)
	}
	second, err := svc.AdminUpsertUser(ctx, admin, models.UpsertUserRequest{
		Email: "new@test.io", Password: "secret2", FullName: "Renamed", Role: domain.RoleAdmin,
	})
	if err != nil || second.Created || second.UserID != first.UserID {
		t.Fatalf("update = %+v, %v", second, err)
	}
	p, _ := f.mem.GetProfile(ctx, first.UserID)
	if p.FullName != "Renamed" || p.Role != domain.RoleAdmin {
		t.Fatalf("profile after upsert = %+v", p)
	}
	if err := auth.CheckPassword(p.PasswordHash, "secret2"); err != nil {
		t.Fatalf("password not overwritten: %v", err)
	}

	if _, err := svc.AdminUpsertUser(ctx, admin, models.UpsertUserRequest{Email: "x@test.io"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing password: got %v", err)
	}
	if _, err := svc.AdminUpsertUser(ctx, admin, models.UpsertUserRequest{Email: "x@test.io", Password: "secret1", Role: "owner"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad role: got %v", err)
	}
}

func TestResetAdminPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc, _ := newAccounts(f)
	seedAdmin(t, f, "boss@test.io", "secret1")
	_ = f.mem.InsertProfile(ctx, &domain.Profile{Email: "user@test.io", Role: domain.RoleUser})

	if err := svc.ResetAdminPassword(ctx, "boss@test.io", "recovered1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := svc.ResetAdminPassword(ctx, "user@test.io", "recovered1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-admin: got %v", err)
	}
	if err := svc.ResetAdminPassword(ctx, "ghost@test.io", "recovered1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown: got %v", err)
	}
}
