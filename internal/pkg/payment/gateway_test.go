package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
)

func TestMpesaSTKPush(t *testing.T) {
	var tokenCalls atomic.Int32
	var lastPush stkPushRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastPush))
		_, _ = w.Write([]byte(`{"CheckoutRequestID":"ws_CO_1","ResponseCode":"0","CustomerMessage":"Success"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewMpesaClient(config.MpesaConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Shortcode:      "174379",
		Passkey:        "pk",
		CallbackURL:    "https://api.example/api/client/mpesa/callback",
	}, time.Second, 100)
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	ctx := context.Background()
	res, err := c.STKPush(ctx, PushRequest{Phone: "254711000111", AmountCents: 35050, OrderNumber: "ORD-ABC"})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", res.CheckoutRequestID)

	assert.Equal(t, "20240301123000", lastPush.Timestamp, "timestamp is EAT")
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("174379pk20240301123000")), lastPush.Password)
	assert.Equal(t, "351", lastPush.Amount, "amount rounds up to whole units")
	assert.Equal(t, "CustomerPayBillOnline", lastPush.TransactionType)
	assert.Equal(t, "254711000111", lastPush.PartyA)
	assert.Equal(t, "254711000111", lastPush.PhoneNumber)
	assert.Equal(t, "174379", lastPush.PartyB)
	assert.Equal(t, "ORD-ABC", lastPush.AccountReference)

	_, err = c.STKPush(ctx, PushRequest{Phone: "254711000111", AmountCents: 100, OrderNumber: "ORD-DEF"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokenCalls.Load(), "token is cached")
}

func TestMpesaSTKQuery(t *testing.T) {
	var lastQuery stkQueryRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastQuery))
		switch lastQuery.CheckoutRequestID {
		case "ws_paid":
			_, _ = w.Write([]byte(`{"ResponseCode":"0","CheckoutRequestID":"ws_paid","ResultCode":"0","ResultDesc":"The service request is processed successfully."}`))
		case "ws_cancelled":
			_, _ = w.Write([]byte(`{"ResponseCode":"0","CheckoutRequestID":"ws_cancelled","ResultCode":1032,"ResultDesc":"Request cancelled by user"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewMpesaClient(config.MpesaConfig{BaseURL: srv.URL, Shortcode: "174379", Passkey: "pk"}, time.Second, 100)
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	ctx := context.Background()

	st, err := c.Query(ctx, "ws_paid")
	require.NoError(t, err)
	assert.True(t, st.Paid())
	assert.Equal(t, "174379", lastQuery.BusinessShortCode)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("174379pk20240301123000")), lastQuery.Password)

	st, err = c.Query(ctx, "ws_cancelled")
	require.NoError(t, err)
	assert.False(t, st.Paid())
	assert.Equal(t, 1032, st.ResultCode)

	_, err = c.Query(ctx, "ws_pending")
	assert.True(t, apperrors.IsKind(err, apperrors.KindUpstreamGateway), "got %v", err)

	_, err = c.Query(ctx, " ")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestMpesaRejectionIsDecline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":"3599"}`))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ResponseCode":"1","ResponseDescription":"Rejected"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewMpesaClient(config.MpesaConfig{BaseURL: srv.URL}, time.Second, 100)
	_, err := c.STKPush(context.Background(), PushRequest{Phone: "254700000000", AmountCents: 100})
	assert.True(t, apperrors.IsKind(err, apperrors.KindPaymentDeclined), "got %v", err)
}

func TestGatewayErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   apperrors.Kind
	}{
		{"server error", http.StatusBadGateway, apperrors.KindUpstreamGateway},
		{"bad credentials", http.StatusUnauthorized, apperrors.KindUpstreamGateway},
		{"card declined", http.StatusPaymentRequired, apperrors.KindPaymentDeclined},
		{"bad request", http.StatusBadRequest, apperrors.KindPaymentDeclined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer srv.Close()

			c := NewCardClient(config.CardConfig{BaseURL: srv.URL, SecretKey: "sk_test"}, time.Second, 100)
			_, err := c.Charge(context.Background(), CardCharge{AmountCents: 100, Currency: "kes", PaymentMethodID: "pm_1"})
			assert.Equal(t, tt.want, apperrors.KindOf(err), "got %v", err)
		})
	}
}

func TestGatewayTimeoutIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewCardClient(config.CardConfig{BaseURL: srv.URL, SecretKey: "sk_test"}, 50*time.Millisecond, 100)
	_, err := c.Charge(context.Background(), CardCharge{AmountCents: 100, Currency: "kes", PaymentMethodID: "pm_1"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindUpstreamGateway), "got %v", err)
}

func TestCardCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "35000", r.PostForm.Get("amount"))
		assert.Equal(t, "kes", r.PostForm.Get("currency"))
		assert.Equal(t, "pm_card_visa", r.PostForm.Get("payment_method"))
		assert.Equal(t, "true", r.PostForm.Get("confirm"))
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded"}`))
	}))
	defer srv.Close()

	c := NewCardClient(config.CardConfig{BaseURL: srv.URL, SecretKey: "sk_test"}, time.Second, 100)
	res, err := c.Charge(context.Background(), CardCharge{AmountCents: 35000, Currency: "KES", PaymentMethodID: "pm_card_visa", OrderNumber: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", res.IntentID)
	assert.Equal(t, CardStatusSucceeded, res.Status)
}

func TestPaystackInitializeAndVerify(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/transaction/initialize", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "jane@example.com", body["email"])
		assert.Equal(t, float64(35000), body["amount"])
		assert.Equal(t, "ORD-XYZ", body["reference"])
		_, _ = w.Write([]byte(`{"status":true,"data":{"authorization_url":"https://checkout.example/abc","reference":"ORD-XYZ"}}`))
	})
	mux.HandleFunc("/transaction/verify/ORD-XYZ", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"status":"success","reference":"ORD-XYZ","amount":35000}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewPaystackClient(config.PaystackConfig{BaseURL: srv.URL, SecretKey: "sk"}, time.Second, 100)
	ctx := context.Background()

	sess, err := c.Initialize(ctx, RedirectInit{Email: "jane@example.com", AmountCents: 35000, Reference: "ORD-XYZ"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/abc", sess.AuthorizationURL)

	v, err := c.Verify(ctx, "ORD-XYZ")
	require.NoError(t, err)
	assert.Equal(t, PaystackStatusSuccess, v.Status)
	assert.Equal(t, int64(35000), v.AmountCents)
}

func TestVerifyPaystackSignature(t *testing.T) {
	body := []byte(`{"event":"charge.success"}`)
	mac := hmac.New(sha512.New, []byte("sk_live"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifyPaystackSignature(body, sig, "sk_live"))
	assert.False(t, VerifyPaystackSignature(body, sig, "other"))
	assert.False(t, VerifyPaystackSignature([]byte(`{"event":"charge.failed"}`), sig, "sk_live"))
	assert.False(t, VerifyPaystackSignature(body, "", "sk_live"))
	assert.False(t, VerifyPaystackSignature(body, "zz", "sk_live"))
}
