package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
)

const PaystackStatusSuccess = "success"

// PaystackClient implements the hosted redirect checkout.
type PaystackClient struct {
	cfg  config.PaystackConfig
	http httpDoer
}

func NewPaystackClient(cfg config.PaystackConfig, timeout time.Duration, rps int) *PaystackClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PaystackClient{cfg: cfg, http: newHTTPDoer("paystack", timeout, rps)}
}

type paystackEnvelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackVerifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
}

func (c *PaystackClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	if strings.TrimSpace(c.cfg.SecretKey) == "" {
		return nil, apperrors.Upstream("paystack is unavailable", errors.New("PAYSTACK_SECRET_KEY is not configured"))
	}
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *PaystackClient) Initialize(ctx context.Context, in RedirectInit) (*RedirectSession, error) {
	callback := in.CallbackURL
	if callback == "" {
		callback = c.cfg.CallbackURL
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/transaction/initialize", map[string]any{
		"email":        in.Email,
		"amount":       in.AmountCents,
		"reference":    in.Reference,
		"callback_url": callback,
	})
	if err != nil {
		return nil, err
	}

	var out paystackEnvelope[paystackInitData]
	if err := c.http.do(req, &out); err != nil {
		return nil, err
	}
	if !out.Status || out.Data.AuthorizationURL == "" {
		return nil, apperrors.Wrap(apperrors.KindPaymentDeclined, "checkout could not be started",
			fmt.Errorf("paystack initialize: %s", out.Message))
	}
	ref := out.Data.Reference
	if ref == "" {
		ref = in.Reference
	}
	return &RedirectSession{AuthorizationURL: out.Data.AuthorizationURL, Reference: ref}, nil
}

func (c *PaystackClient) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, apperrors.Validation("reference is required")
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}

	var out paystackEnvelope[paystackVerifyData]
	if err := c.http.do(req, &out); err != nil {
		return nil, err
	}
	if !out.Status {
		return nil, apperrors.Wrap(apperrors.KindPaymentDeclined, "payment could not be verified",
			fmt.Errorf("paystack verify: %s", out.Message))
	}
	return &VerifyResult{Reference: out.Data.Reference, Status: out.Data.Status, AmountCents: out.Data.Amount}, nil
}

// VerifyPaystackSignature checks the x-paystack-signature header, an
// HMAC-SHA512 of the raw body keyed with the secret key.
func VerifyPaystackSignature(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	expected, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}
