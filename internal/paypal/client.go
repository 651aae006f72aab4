package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Gateway is the slice of the PayPal Orders API the payment flow uses.
type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (string, error)
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)
}

// CaptureResult is the first capture of the first purchase unit.
type CaptureResult struct {
	CaptureID  string
	Amount     decimal.Decimal
	PayerEmail string
	PayerName  string
}

type Client struct {
	base   string
	id     string
	secret string
	http   *http.Client
}

func NewClient(base, clientID, clientSecret string) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		id:     clientID,
		secret: clientSecret,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.id, c.secret)

	var tok tokenResponse
	if err := c.do(req, &tok); err != nil {
		return "", fmt.Errorf("paypal auth: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: paypal auth returned no token", domain.ErrUpstream)
	}
	return tok.AccessToken, nil
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	Amount      amount `json:"amount"`
	Description string `json:"description,omitempty"`
}

type orderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type orderResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateOrder(ctx context.Context, amt decimal.Decimal, currency, description string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	body, _ := json.Marshal(orderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Amount:      amount{CurrencyCode: currency, Value: amt.StringFixed(2)},
			Description: description,
		}},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v2/checkout/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	var out orderResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("paypal create order: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: paypal returned no order id", domain.ErrUpstream)
	}
	return out.ID, nil
}

type captureResponse struct {
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Amount amount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Payer struct {
		EmailAddress string `json:"email_address"`
		Name         struct {
			GivenName string `json:"given_name"`
			Surname   string `json:"surname"`
		} `json:"name"`
	} `json:"payer"`
}

func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", c.base, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	var out captureResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("paypal capture: %w", err)
	}
	return parseCapture(&out), nil
}

func parseCapture(out *captureResponse) *CaptureResult {
	res := &CaptureResult{
		PayerEmail: out.Payer.EmailAddress,
		PayerName:  strings.TrimSpace(out.Payer.Name.GivenName + " " + out.Payer.Name.Surname),
		Amount:     decimal.Zero,
	}
	if len(out.PurchaseUnits) == 0 || len(out.PurchaseUnits[0].Payments.Captures) == 0 {
		return res
	}
	first := out.PurchaseUnits[0].Payments.Captures[0]
	res.CaptureID = first.ID
	if v, err := decimal.NewFromString(first.Amount.Value); err == nil {
		res.Amount = v
	}
	return res
}

// do sends req and decodes a 2xx JSON body into dst. Any other status is
// reported as an upstream failure carrying the provider's response text.
func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: decode: %v", domain.ErrUpstream, err)
	}
	return nil
}
