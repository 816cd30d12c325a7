package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aspirtakis/alekostrader-auth/internal/domain"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type PayPalOptions struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	ReturnURL    string
	CancelURL    string
	BrandName    string

	// HTTPClient is the transport used for both token and API calls.
	HTTPClient *http.Client
}

// PayPal talks to the Orders v2 API with an OAuth2 client-credentials token.
type PayPal struct {
	baseURL   string
	client    *http.Client
	returnURL string
	cancelURL string
	brandName string
}

func NewPayPal(opts PayPalOptions) *PayPal {
	base := strings.TrimRight(opts.BaseURL, "/")
	cc := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}

	return &PayPal{
		baseURL:   base,
		client:    cc.Client(ctx),
		returnURL: opts.ReturnURL,
		cancelURL: opts.CancelURL,
		brandName: opts.BrandName,
	}
}

type ppAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type ppLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type ppCapture struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Amount ppAmount `json:"amount"`
}

type ppOrder struct {
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Links         []ppLink `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []ppCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type ppError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *ppError) issue() string {
	if len(e.Details) > 0 {
		return e.Details[0].Issue
	}
	return e.Name
}

func (p *PayPal) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreatedOrder, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.Tier,
			"description":  req.Description,
			"amount": ppAmount{
				CurrencyCode: req.Currency,
				Value:        strconv.FormatFloat(req.Amount, 'f', 2, 64),
			},
		}},
		"application_context": map[string]any{
			"brand_name":  p.brandName,
			"user_action": "PAY_NOW",
			"return_url":  p.returnURL,
			"cancel_url":  p.cancelURL,
		},
	}

	var order ppOrder
	if _, err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", uuid.NewString(), body, &order); err != nil {
		return nil, err
	}

	created := &CreatedOrder{ID: order.ID}
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			created.ApprovalURL = link.Href
			break
		}
	}
	if created.ID == "" || created.ApprovalURL == "" {
		return nil, domain.ErrUpstream.With("paypal create order: response missing id or approval link")
	}
	return created, nil
}

func (p *PayPal) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	// Deterministic request id so a retried capture is deduplicated upstream.
	requestID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("capture:"+orderID)).String()

	var order ppOrder
	ppErr, err := p.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", requestID, struct{}{}, &order)
	if err != nil {
		if ppErr != nil && ppErr.issue() == "ORDER_ALREADY_CAPTURED" {
			return p.LookupOrder(ctx, orderID)
		}
		return nil, err
	}
	return order.toCapture(), nil
}

func (p *PayPal) LookupOrder(ctx context.Context, orderID string) (*Capture, error) {
	var order ppOrder
	if _, err := p.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), "", nil, &order); err != nil {
		return nil, err
	}
	return order.toCapture(), nil
}

func (o *ppOrder) toCapture() *Capture {
	c := &Capture{OrderID: o.ID, Status: o.Status}
	for _, unit := range o.PurchaseUnits {
		for _, pc := range unit.Payments.Captures {
			c.TransactionID = pc.ID
			c.Currency = pc.Amount.CurrencyCode
			if v, err := strconv.ParseFloat(pc.Amount.Value, 64); err == nil {
				c.AmountCaptured = v
			}
			c.Success = o.Status == "COMPLETED" && pc.Status == "COMPLETED"
		}
	}
	return c
}

// do returns the decoded PayPal error body alongside err for non-2xx replies.
func (p *PayPal) do(ctx context.Context, method, path, requestID string, in, out any) (*ppError, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrap(err, "encode paypal request")
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build paypal request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.ErrUpstream.With("paypal request failed").Wrap(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.ErrUpstream.With("paypal response unreadable").Wrap(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ppErr ppError
		_ = json.Unmarshal(raw, &ppErr)
		msg := fmt.Sprintf("paypal %s %s: status %d %s", method, path, resp.StatusCode, ppErr.issue())
		return &ppErr, domain.ErrUpstream.With(strings.TrimSpace(msg))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, domain.ErrUpstream.With("paypal response malformed").Wrap(err)
		}
	}
	return nil, nil
}
