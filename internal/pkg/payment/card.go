package payment

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
)

const CardStatusSucceeded = "succeeded"

// CardClient drives a PaymentIntents-style card API with confirm=true, so
// a single call either charges the card or reports why it did not.
type CardClient struct {
	cfg  config.CardConfig
	http httpDoer
}

func NewCardClient(cfg config.CardConfig, timeout time.Duration, rps int) *CardClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &CardClient{cfg: cfg, http: newHTTPDoer("card gateway", timeout, rps)}
}

type paymentIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *CardClient) Charge(ctx context.Context, in CardCharge) (*CardResult, error) {
	if strings.TrimSpace(c.cfg.SecretKey) == "" {
		return nil, apperrors.Upstream("card gateway is unavailable", errors.New("CARD_SECRET_KEY is not configured"))
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(in.AmountCents, 10))
	form.Set("currency", strings.ToLower(in.Currency))
	form.Set("payment_method", in.PaymentMethodID)
	form.Set("confirm", "true")
	form.Set("metadata[order_number]", in.OrderNumber)
	if in.ReturnURL != "" {
		form.Set("return_url", in.ReturnURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", "pi-"+in.OrderNumber+"-"+in.PaymentMethodID)

	var out paymentIntent
	if err := c.http.do(req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, apperrors.Upstream("card gateway returned an invalid response", errors.New("payment intent without id"))
	}
	return &CardResult{IntentID: out.ID, Status: out.Status}, nil
}
