package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/shopspring/decimal"
)

func fakePayPal(t *testing.T, orderStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "cid" || secret != "csecret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req orderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Intent != "CAPTURE" || req.PurchaseUnits[0].Amount.Value != "12.99" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(orderStatus)
		_, _ = w.Write([]byte(`{"id":"ORDER-1"}`))
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"purchase_units":[{"payments":{"captures":[
				{"id":"CAP-1","amount":{"currency_code":"USD","value":"12.99"}},
				{"id":"CAP-2","amount":{"currency_code":"USD","value":"1.00"}}]}}],
			"payer":{"email_address":"payer@x.io","name":{"given_name":"Pat","surname":"Lee"}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateAndCaptureOrder(t *testing.T) {
	srv := fakePayPal(t, http.StatusCreated)
	c := NewClient(srv.URL+"/", "cid", "csecret")
	ctx := context.Background()

	id, err := c.CreateOrder(ctx, decimal.RequireFromString("12.990"), "USD", "Premium Monthly Plan")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "ORDER-1" {
		t.Fatalf("order id = %q", id)
	}

	res, err := c.CaptureOrder(ctx, id)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if res.CaptureID != "CAP-1" || !res.Amount.Equal(decimal.RequireFromString("12.99")) {
		t.Fatalf("unexpected capture %+v", res)
	}
	if res.PayerEmail != "payer@x.io" || res.PayerName != "Pat Lee" {
		t.Fatalf("unexpected payer %+v", res)
	}
}

func TestProviderErrorIsUpstream(t *testing.T) {
	srv := fakePayPal(t, http.StatusUnprocessableEntity)
	c := NewClient(srv.URL, "cid", "csecret")
	_, err := c.CreateOrder(context.Background(), decimal.RequireFromString("12.99"), "USD", "")
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	bad := NewClient(srv.URL, "cid", "wrong")
	_, err = bad.CaptureOrder(context.Background(), "ORDER-1")
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error on auth failure, got %v", err)
	}
}

func TestParseCaptureWithoutUnits(t *testing.T) {
	res := parseCapture(&captureResponse{})
	if res.CaptureID != "" || !res.Amount.IsZero() {
		t.Fatalf("expected empty capture, got %+v", res)
	}
}
