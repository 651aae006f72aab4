package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/punchamoorthee/promoledger/internal/models"
	"github.com/punchamoorthee/promoledger/internal/paypal"
	"github.com/punchamoorthee/promoledger/internal/store"
	log "github.com/sirupsen/logrus"
)

const (
	planPremiumMonthly = "premium_monthly"
	defaultPaymentMode = "paypal"
)

type PaymentService struct {
	payments store.PaymentStore
	accounts store.AccountStore
	gateway  paypal.Gateway
	ledger   *LedgerService
	now      func() time.Time
}

// NewPaymentService wires the checkout flow. gateway may be nil when no
// provider is configured; orders then fail with an upstream error.
func NewPaymentService(payments store.PaymentStore, accounts store.AccountStore, gateway paypal.Gateway, ledger *LedgerService) *PaymentService {
	return &PaymentService{
		payments: payments,
		accounts: accounts,
		gateway:  gateway,
		ledger:   ledger,
		now:      time.Now,
	}
}

func (s *PaymentService) CreateOrder(ctx context.Context, actor domain.Actor, req models.CreateOrderRequest) (*models.CreateOrderResponse, error) {
	if !actor.Authenticated() {
		return nil, fmt.Errorf("%w: you must be logged in to make a payment", domain.ErrUnauthorized)
	}
	if req.UserID != actor.UserID {
		return nil, fmt.Errorf("%w: cannot process payment for another user", domain.ErrForbidden)
	}
	if !req.Amount.IsPositive() {
		return nil, invalid("amount must be positive")
	}
	currency := *currencyOrDefault(req.Currency)
	if req.SignupID != nil && s.ledger != nil {
		if err := s.ledger.payableSignup(ctx, actor, *req.SignupID, req.Amount, currency); err != nil {
			return nil, err
		}
	}
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: payments are not configured", domain.ErrUpstream)
	}

	s.ensureProfile(ctx, actor)

	plan := req.Metadata.Plan
	if plan == "" {
		plan = planPremiumMonthly
	}
	orderID, err := s.gateway.CreateOrder(ctx, req.Amount, currency, "Premium Monthly Plan - "+plan)
	if err != nil {
		return nil, err
	}

	start := s.now().UTC()
	mode := req.Metadata.Source
	if mode == "" {
		mode = defaultPaymentMode
	}
	p := &domain.Payment{
		UserID:          actor.UserID,
		Email:           actor.Email,
		SignupID:        req.SignupID,
		Amount:          req.Amount,
		Currency:        currency,
		Status:          domain.PaymentRecordCreated,
		PaymentMode:     mode,
		PlanType:        planPremiumMonthly,
		ProviderOrderID: orderID,
		PlanStartedAt:   start,
		PlanEndsAt:      start.AddDate(0, 1, 0),
	}
	if err := s.payments.InsertPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	log.WithFields(log.Fields{
		"payment_id": p.ID,
		"order_id":   orderID,
		"user_id":    actor.UserID,
	}).Info("Payment order created")

	return &models.CreateOrderResponse{
		OrderID:       orderID,
		PaymentID:     p.ID,
		PlanStartDate: p.PlanStartedAt,
		PlanEndDate:   p.PlanEndsAt,
	}, nil
}

// ensureProfile creates a free profile for a caller that has none. Failure
// is logged and the order proceeds.
func (s *PaymentService) ensureProfile(ctx context.Context, actor domain.Actor) {
	_, err := s.accounts.GetProfile(ctx, actor.UserID)
	if err == nil {
		return
	}
	if !isMiss(err) {
		log.WithError(err).WithField("user_id", actor.UserID).Warn("Profile lookup failed")
		return
	}
	started := s.now()
	p := &domain.Profile{
		ID:            actor.UserID,
		Email:         actor.Email,
		Role:          domain.RoleUser,
		PlanTier:      "free",
		PlanStatus:    "active",
		PlanStartedAt: &started,
	}
	if err := s.accounts.InsertProfile(ctx, p); err != nil {
		log.WithError(err).WithField("user_id", actor.UserID).Error("Failed to create profile")
	}
}

// CaptureOrder settles a created order. Capturing an already completed
// payment returns the stored record.
func (s *PaymentService) CaptureOrder(ctx context.Context, req models.CaptureOrderRequest) (*models.CaptureOrderResponse, error) {
	if req.OrderID == "" || req.PaymentID == "" {
		return nil, invalid("order id and payment id are required")
	}
	p, err := s.payments.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, lookupErr(err, "payment")
	}
	if p.ProviderOrderID != req.OrderID {
		return nil, invalid("order %s does not belong to payment %s", req.OrderID, req.PaymentID)
	}
	if p.Status == domain.PaymentRecordCompleted {
		return &models.CaptureOrderResponse{CaptureID: p.CaptureID, Payment: *p}, nil
	}
	if s.gateway == nil {
		return nil, fmt.Errorf("%w: payments are not configured", domain.ErrUpstream)
	}

	res, err := s.gateway.CaptureOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	payerEmail := strings.TrimSpace(req.PayerEmail)
	if payerEmail == "" {
		payerEmail = res.PayerEmail
	}
	payerName := strings.TrimSpace(req.PayerName)
	if payerName == "" {
		payerName = res.PayerName
	}

	updated, err := s.payments.CompletePayment(ctx, p.ID, store.Capture{
		CaptureID:     res.CaptureID,
		AmountPaidUSD: res.Amount,
		PayerEmail:    payerEmail,
		PayerName:     payerName,
		FinishedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, lookupErr(err, "payment")
	}

	if err := s.accounts.UpdatePlan(ctx, updated.UserID, "premium", "active", updated.PlanStartedAt, updated.PlanEndsAt); err != nil {
		log.WithError(err).WithField("user_id", updated.UserID).Error("Failed to upgrade profile plan")
	}
	if updated.SignupID != nil && s.ledger != nil {
		if !res.Amount.Equal(updated.Amount) {
			log.WithFields(log.Fields{
				"signup_id": *updated.SignupID,
				"captured":  res.Amount.String(),
				"ordered":   updated.Amount.String(),
			}).Warn("Captured amount differs from order, signup left unsettled")
		} else if err := s.ledger.settleSignup(ctx, *updated.SignupID); err != nil {
			log.WithError(err).WithField("signup_id", *updated.SignupID).Error("Failed to settle signup after capture")
		}
	}

	log.WithFields(log.Fields{
		"payment_id": updated.ID,
		"capture_id": res.CaptureID,
	}).Info("Payment captured")

	return &models.CaptureOrderResponse{CaptureID: res.CaptureID, Payment: *updated}, nil
}
