package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/punchamoorthee/promoledger/internal/auth"
	"github.com/punchamoorthee/promoledger/internal/config"
	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/punchamoorthee/promoledger/internal/events"
	"github.com/punchamoorthee/promoledger/internal/ledger"
	"github.com/punchamoorthee/promoledger/internal/service"
	"github.com/punchamoorthee/promoledger/internal/store"
	"github.com/shopspring/decimal"
)

type testServer struct {
	router http.Handler
	mem    *store.Memory
	tokens *auth.Issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	tokens := auth.NewIssuer("test-secret", time.Hour)
	ledgerSvc := service.NewLedgerService(service.LedgerDeps{
		Store:    mem,
		Accounts: mem,
		Events:   events.NewMemoryPublisher(),
		Commission: config.CommissionConfig{
			PerSignupUSD:    decimal.NewFromInt(5),
			FXRate:          decimal.NewFromInt(85),
			DisplayCurrency: "INR",
		},
		PublicBaseURL: "https://app.test",
	})
	h := NewHandler(
		ledgerSvc,
		service.NewAccountService(mem, mem, tokens),
		service.NewPaymentService(mem, mem, nil, ledgerSvc),
		tokens,
	)
	return &testServer{router: NewRouter(h), mem: mem, tokens: tokens}
}

func (s *testServer) token(t *testing.T, role string) string {
	t.Helper()
	tok, _, err := s.tokens.Issue(domain.Profile{ID: "actor-" + role, Email: role + "@test.io", Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, "GET", "/health", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestCreateInfluencerStatusMapping(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, domain.RoleAdmin)
	body := map[string]string{"name": "Ana", "email": "ana@test.io", "promo_code": "ANA1", "password": "secret1"}

	cases := []struct {
		name  string
		token string
		body  any
		want  int
	}{
		{"anonymous", "", body, http.StatusUnauthorized},
		{"bad token", "not-a-jwt", body, http.StatusUnauthorized},
		{"non-admin", s.token(t, domain.RoleUser), body, http.StatusForbidden},
		{"malformed json", admin, "{", http.StatusBadRequest},
		{"created", admin, body, http.StatusCreated},
		{"duplicate code", admin, map[string]string{"name": "Bo", "email": "bo@test.io", "promo_code": "ANA1", "password": "secret1"}, http.StatusUnprocessableEntity},
		{"invalid code", admin, map[string]string{"name": "Bo", "email": "bo@test.io", "promo_code": "bo-1", "password": "secret1"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.do(t, "POST", "/api/v1/admin/influencers", tc.token, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

func TestMoveSignupCountsOnlyRealMoves(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, domain.RoleAdmin)

	var ana domain.Referrer
	for _, code := range []string{"ANA1", "BO2"} {
		rr := s.do(t, "POST", "/api/v1/admin/influencers", admin,
			map[string]string{"name": code, "email": strings.ToLower(code) + "@test.io", "promo_code": code, "password": "secret1"})
		if rr.Code != http.StatusCreated {
			t.Fatalf("create %s = %d %s", code, rr.Code, rr.Body.String())
		}
		if code == "ANA1" {
			_ = json.NewDecoder(rr.Body).Decode(&ana)
		}
	}
	rr := s.do(t, "POST", fmt.Sprintf("/api/v1/admin/influencers/%s/signups", ana.ID), admin,
		map[string]any{"full_name": "Buyer", "email": "b@test.io"})
	var sg domain.Signup
	_ = json.NewDecoder(rr.Body).Decode(&sg)

	before := testutil.ToFloat64(attributionMoves)
	path := "/api/v1/admin/signups/" + sg.ID + "/promo-code"
	if rr := s.do(t, "PUT", path, admin, map[string]string{"promo_code": "ANA1"}); rr.Code != http.StatusOK {
		t.Fatalf("move to current code = %d %s", rr.Code, rr.Body.String())
	}
	if got := testutil.ToFloat64(attributionMoves) - before; got != 0 {
		t.Fatalf("no-op move counted %v times", got)
	}
	if rr := s.do(t, "PUT", path, admin, map[string]string{"promo_code": "BO2"}); rr.Code != http.StatusOK {
		t.Fatalf("move = %d %s", rr.Code, rr.Body.String())
	}
	if got := testutil.ToFloat64(attributionMoves) - before; got != 1 {
		t.Fatalf("moves counted = %v, want 1", got)
	}
}

func TestAdminFlow(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, domain.RoleAdmin)

	rr := s.do(t, "POST", "/api/v1/admin/influencers", admin,
		map[string]string{"name": "Ana", "email": "ana@test.io", "promo_code": "ANA1", "password": "secret1"})
	var ref domain.Referrer
	_ = json.NewDecoder(rr.Body).Decode(&ref)

	rr = s.do(t, "POST", fmt.Sprintf("/api/v1/admin/influencers/%s/signups", ref.ID), admin,
		map[string]any{"full_name": "Buyer", "email": "b@test.io", "amount": "20"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add signup = %d %s", rr.Code, rr.Body.String())
	}
	var sg domain.Signup
	_ = json.NewDecoder(rr.Body).Decode(&sg)

	rr = s.do(t, "GET", "/api/v1/admin/influencers?q=ana", admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list = %d %s", rr.Code, rr.Body.String())
	}
	var lb struct {
		Entries []struct {
			Rank   int `json:"rank"`
			Totals struct {
				TotalPaid int `json:"total_paid_signups"`
			} `json:"totals"`
		} `json:"influencers"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&lb); err != nil || len(lb.Entries) != 1 || lb.Entries[0].Rank != 1 || lb.Entries[0].Totals.TotalPaid != 1 {
		t.Fatalf("leaderboard = %+v, %v", lb, err)
	}

	rr = s.do(t, "GET", "/api/v1/admin/influencers/export", admin, nil)
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("export = %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Body.String(), `"Ana","ana@test.io","ANA1",1,1,20.00,Active`) {
		t.Fatalf("export body = %s", rr.Body.String())
	}

	rr = s.do(t, "PUT", "/api/v1/admin/signups/"+sg.ID+"/promo-code", admin, map[string]string{"promo_code": "NOPE1"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("move to unknown code = %d", rr.Code)
	}
	rr = s.do(t, "PUT", "/api/v1/admin/signups/missing/status", admin, map[string]string{"status": "success"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status of missing signup = %d", rr.Code)
	}
	rr = s.do(t, "GET", "/api/v1/admin/signups/"+sg.ID+"/history", admin, nil)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("history = %d %s", rr.Code, rr.Body.String())
	}
	rr = s.do(t, "DELETE", "/api/v1/admin/signups/"+sg.ID, admin, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete signup = %d", rr.Code)
	}
	rr = s.do(t, "DELETE", "/api/v1/admin/influencers/"+ref.ID, admin, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete influencer = %d", rr.Code)
	}
}

func TestLoginAndRoute(t *testing.T) {
	s := newTestServer(t)
	hash, _ := auth.HashPassword("secret1")
	_ = s.mem.InsertProfile(context.Background(), &domain.Profile{Email: "boss@test.io", PasswordHash: hash, Role: domain.RoleAdmin})

	rr := s.do(t, "POST", "/api/v1/auth/login", "", map[string]string{"email": "boss@test.io", "password": "wrong!!"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", rr.Code)
	}
	rr = s.do(t, "POST", "/api/v1/auth/login", "", map[string]string{"email": "boss@test.io", "password": "secret1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login = %d %s", rr.Code, rr.Body.String())
	}
	var login struct {
		Token string `json:"token"`
		Route string `json:"route"`
	}
	_ = json.NewDecoder(rr.Body).Decode(&login)
	if login.Route != "/admin-dashboard" {
		t.Fatalf("route = %s", login.Route)
	}

	rr = s.do(t, "GET", "/api/v1/me/route", login.Token, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "/admin-dashboard") {
		t.Fatalf("me/route = %d %s", rr.Code, rr.Body.String())
	}
	if rr := s.do(t, "GET", "/api/v1/me/route", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous me/route = %d", rr.Code)
	}
}

func TestPublicSignupAndReferralLink(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, domain.RoleAdmin)
	s.do(t, "POST", "/api/v1/admin/influencers", admin,
		map[string]string{"name": "Ana", "email": "ana@test.io", "promo_code": "ANA1", "password": "secret1"})
	token := ledger.EncodeReferralToken("ANA1")

	rr := s.do(t, "GET", "/api/v1/referral-links/"+token, "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ANA1"`) {
		t.Fatalf("resolve = %d %s", rr.Code, rr.Body.String())
	}
	rr = s.do(t, "GET", "/api/v1/referral-links/"+ledger.EncodeReferralToken("ZZZ9"), "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown code = %d", rr.Code)
	}

	rr = s.do(t, "POST", "/api/v1/signups?ref="+token, "", map[string]string{"full_name": "Pat", "email": "pat@test.io"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup = %d %s", rr.Code, rr.Body.String())
	}
	var sg domain.Signup
	_ = json.NewDecoder(rr.Body).Decode(&sg)
	if !sg.AttributedTo("ANA1") || sg.PaymentStatus != domain.PaymentPending {
		t.Fatalf("signup = %+v", sg)
	}
}

func TestInfluencerDashboardQuery(t *testing.T) {
	s := newTestServer(t)
	user := s.token(t, domain.RoleUser)
	rr := s.do(t, "GET", "/api/v1/influencer/dashboard?range=yearly", user, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad range = %d", rr.Code)
	}
	rr = s.do(t, "GET", "/api/v1/influencer/dashboard?range=7days", user, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-influencer = %d", rr.Code)
	}
}

func TestPaymentsWithoutProvider(t *testing.T) {
	s := newTestServer(t)
	user := s.token(t, domain.RoleUser)
	body := map[string]any{"amount": "12.99", "currency": "USD", "user_id": "actor-user"}

	if rr := s.do(t, "POST", "/api/v1/payments/orders", "", body); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous order = %d", rr.Code)
	}
	if rr := s.do(t, "POST", "/api/v1/payments/orders", user, map[string]any{"amount": "1", "user_id": "someone"}); rr.Code != http.StatusForbidden {
		t.Fatalf("mismatched order = %d", rr.Code)
	}
	if rr := s.do(t, "POST", "/api/v1/payments/orders", user, body); rr.Code != http.StatusBadGateway {
		t.Fatalf("unconfigured provider = %d", rr.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad code", domain.ErrValidation), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: signup", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("wrap: %w", domain.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: paypal", domain.ErrUpstream), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
