package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/punchamoorthee/promoledger/internal/auth"
	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/punchamoorthee/promoledger/internal/models"
	"github.com/punchamoorthee/promoledger/internal/store"
	log "github.com/sirupsen/logrus"
)

// Landing routes returned after login.
const (
	RouteAdmin      = "/admin-dashboard"
	RouteInfluencer = "/influencer-dashboard"
	RouteDefault    = "/dashboard"
)

type AccountService struct {
	accounts  store.AccountStore
	referrers store.LedgerStore
	tokens    *auth.Issuer
	now       func() time.Time
}

func NewAccountService(accounts store.AccountStore, referrers store.LedgerStore, tokens *auth.Issuer) *AccountService {
	return &AccountService{accounts: accounts, referrers: referrers, tokens: tokens, now: time.Now}
}

func (s *AccountService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, invalid("email and password are required")
	}
	badLogin := fmt.Errorf("%w: invalid email or password", domain.ErrUnauthorized)

	p, err := s.accounts.GetProfileByEmail(ctx, email)
	if err != nil {
		if isMiss(err) {
			return nil, badLogin
		}
		return nil, err
	}
	if p.PasswordHash == "" {
		return nil, badLogin
	}
	if err := auth.CheckPassword(p.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	token, expires, err := s.tokens.Issue(*p)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{
		Token:     token,
		ExpiresAt: expires,
		Route:     s.RouteFor(ctx, p.ID),
		User:      *p,
	}, nil
}

// RouteFor picks the landing page for a user. Lookup failures fall back to
// the default dashboard.
func (s *AccountService) RouteFor(ctx context.Context, userID string) string {
	p, err := s.accounts.GetProfile(ctx, userID)
	if err != nil {
		if !isMiss(err) {
			log.WithError(err).WithField("user_id", userID).Warn("Route lookup failed")
		}
		return RouteDefault
	}
	if p.Role == domain.RoleAdmin {
		return RouteAdmin
	}
	if _, err := s.referrers.GetReferrerByUserID(ctx, userID); err == nil {
		return RouteInfluencer
	}
	return RouteDefault
}

func (s *AccountService) CreateAdmin(ctx context.Context, actor domain.Actor, req models.CreateAdminRequest) (*domain.Profile, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, invalid("email is required")
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	p, err := s.newProfile(ctx, email, strings.TrimSpace(req.FullName), req.Password, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"user_id": p.ID, "actor_id": actor.UserID}).Info("Admin account created")
	return p, nil
}

func (s *AccountService) newProfile(ctx context.Context, email, name, password, role string) (*domain.Profile, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	started := s.now()
	p := &domain.Profile{
		Email:         email,
		FullName:      name,
		PasswordHash:  hash,
		Role:          role,
		PlanTier:      "free",
		PlanStatus:    "active",
		PlanStartedAt: &started,
	}
	if err := s.accounts.InsertProfile(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, invalid("an account with email %s already exists", email)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return p, nil
}

func (s *AccountService) ChangePassword(ctx context.Context, actor domain.Actor, password string) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	return s.setPassword(ctx, actor.UserID, password)
}

// ResetPassword is the privileged reset of another user's password.
func (s *AccountService) ResetPassword(ctx context.Context, actor domain.Actor, userID, password string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.setPassword(ctx, userID, password); err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": userID, "actor_id": actor.UserID}).Info("Password reset by admin")
	return nil
}

func (s *AccountService) setPassword(ctx context.Context, userID, password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, userID, hash); err != nil {
		return lookupErr(err, "user")
	}
	return nil
}

// AdminUpsertUser creates the account, or overwrites password and name when
// the email is taken. Role is applied afterwards in both cases.
func (s *AccountService) AdminUpsertUser(ctx context.Context, actor domain.Actor, req models.UpsertUserRequest) (*models.UpsertUserResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, invalid("email and password are required")
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	if req.Role != "" && req.Role != domain.RoleAdmin && req.Role != domain.RoleUser {
		return nil, invalid("unknown role %q", req.Role)
	}
	name := strings.TrimSpace(req.FullName)

	var (
		userID  string
		created bool
	)
	existing, err := s.accounts.GetProfileByEmail(ctx, email)
	switch {
	case err == nil:
		userID = existing.ID
		if err := s.setPassword(ctx, userID, req.Password); err != nil {
			return nil, err
		}
		if name != "" {
			if err := s.accounts.UpdateFullName(ctx, userID, name); err != nil {
				return nil, lookupErr(err, "user")
			}
		}
	case isMiss(err):
		p, err := s.newProfile(ctx, email, name, req.Password, domain.RoleUser)
		if err != nil {
			return nil, err
		}
		userID, created = p.ID, true
	default:
		return nil, err
	}

	if req.Role != "" {
		if err := s.accounts.UpdateRole(ctx, userID, req.Role); err != nil {
			return nil, lookupErr(err, "user")
		}
	}
	return &models.UpsertUserResponse{UserID: userID, Created: created}, nil
}

// ResetAdminPassword is the operator recovery path. The account must already
// be an admin.
func (s *AccountService) ResetAdminPassword(ctx context.Context, email, password string) error {
	p, err := s.accounts.GetProfileByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return lookupErr(err, "user")
	}
	if p.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: %s is not an admin", domain.ErrForbidden, email)
	}
	return s.setPassword(ctx, p.ID, password)
}
