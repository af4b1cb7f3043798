package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
)

const (
	mpesaTokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	mpesaPushPath  = "/mpesa/stkpush/v1/processrequest"
	mpesaQueryPath = "/mpesa/stkpushquery/v1/query"
)

// Daraja timestamps are East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

// MpesaClient talks to the Safaricom Daraja STK push API.
type MpesaClient struct {
	cfg  config.MpesaConfig
	http httpDoer
	now  func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewMpesaClient(cfg config.MpesaConfig, timeout time.Duration, rps int) *MpesaClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MpesaClient{
		cfg:  cfg,
		http: newHTTPDoer("mpesa", timeout, rps),
		now:  time.Now,
	}
}

type mpesaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// accessToken returns a cached OAuth token, fetching a new one a minute
// before the old one expires.
func (c *MpesaClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExp) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+mpesaTokenPath, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	var out mpesaTokenResponse
	if err := c.http.do(req, &out); err != nil {
		if apperrors.IsKind(err, apperrors.KindPaymentDeclined) {
			return "", apperrors.Upstream("mpesa is unavailable", errors.New("mpesa token request rejected"))
		}
		return "", err
	}
	if out.AccessToken == "" {
		return "", apperrors.Upstream("mpesa is unavailable", errors.New("mpesa returned empty access_token"))
	}

	ttl, convErr := strconv.Atoi(out.ExpiresIn)
	if convErr != nil || ttl <= 0 {
		ttl = 3599
	}
	c.token = out.AccessToken
	c.tokenExp = c.now().Add(time.Duration(ttl)*time.Second - time.Minute)
	return c.token, nil
}

// Password is base64(shortcode + passkey + timestamp).
func (c *MpesaClient) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.Shortcode + c.cfg.Passkey + timestamp))
}

// wholeUnits rounds minor units up to whole currency units; the push API
// accepts integers only.
func wholeUnits(cents int64) int64 {
	return (cents + 99) / 100
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func (c *MpesaClient) STKPush(ctx context.Context, in PushRequest) (*PushResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().In(eat).Format("20060102150405")
	payload := stkPushRequest{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            strconv.FormatInt(wholeUnits(in.AmountCents), 10),
		PartyA:            in.Phone,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       in.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  in.OrderNumber,
		TransactionDesc:   fmt.Sprintf("Payment for order %s", in.OrderNumber),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+mpesaPushPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var out stkPushResponse
	if err := c.http.do(req, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return nil, apperrors.Wrap(apperrors.KindPaymentDeclined, "mobile money request was rejected",
			fmt.Errorf("mpesa ResponseCode=%q desc=%q", out.ResponseCode, out.ResponseDescription))
	}
	return &PushResult{CheckoutRequestID: out.CheckoutRequestID, CustomerMessage: out.CustomerMessage}, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode      string          `json:"ResponseCode"`
	CheckoutRequestID string          `json:"CheckoutRequestID"`
	ResultCode        json.RawMessage `json:"ResultCode"`
	ResultDesc        string          `json:"ResultDesc"`
}

// Query looks up the outcome of a push. Daraja answers 500 while the
// customer has not responded yet, which surfaces as an upstream error.
func (c *MpesaClient) Query(ctx context.Context, checkoutRequestID string) (*PushStatus, error) {
	if strings.TrimSpace(checkoutRequestID) == "" {
		return nil, apperrors.Validation("checkout request id is required")
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().In(eat).Format("20060102150405")
	body, err := json.Marshal(stkQueryRequest{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+mpesaQueryPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var out stkQueryResponse
	if err := c.http.do(req, &out); err != nil {
		return nil, err
	}
	code, ok := parseResultCode(out.ResultCode)
	if out.ResponseCode != "0" || !ok {
		return nil, apperrors.Upstream("mpesa returned an invalid response",
			fmt.Errorf("mpesa query ResponseCode=%q ResultCode=%s", out.ResponseCode, string(out.ResultCode)))
	}
	return &PushStatus{ResultCode: code, ResultDesc: out.ResultDesc}, nil
}
