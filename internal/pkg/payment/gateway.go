package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/time/rate"

	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
)

// PushRequest asks the mobile-money gateway to prompt a phone for payment.
type PushRequest struct {
	Phone       string
	AmountCents int64
	OrderNumber string
}

type PushResult struct {
	CheckoutRequestID string
	CustomerMessage   string
}

// PushStatus is the gateway's own record of a push payment.
type PushStatus struct {
	ResultCode int
	ResultDesc string
}

// Paid reports whether the customer completed the push.
func (p PushStatus) Paid() bool {
	return p.ResultCode == 0
}

// PushGateway is the mobile-money STK push API. Query asks the gateway for
// the result of an earlier push.
type PushGateway interface {
	STKPush(ctx context.Context, req PushRequest) (*PushResult, error)
	Query(ctx context.Context, checkoutRequestID string) (*PushStatus, error)
}

type CardCharge struct {
	AmountCents     int64
	Currency        string
	PaymentMethodID string
	OrderNumber     string
	ReturnURL       string
}

type CardResult struct {
	IntentID string
	Status   string
}

// CardGateway creates and confirms a payment intent in one call.
type CardGateway interface {
	Charge(ctx context.Context, req CardCharge) (*CardResult, error)
}

type RedirectInit struct {
	Email       string
	AmountCents int64
	Reference   string
	CallbackURL string
}

type RedirectSession struct {
	AuthorizationURL string
	Reference        string
}

type VerifyResult struct {
	Reference   string
	Status      string
	AmountCents int64
}

// RedirectGateway is a hosted checkout with a server-side verify call.
type RedirectGateway interface {
	Initialize(ctx context.Context, req RedirectInit) (*RedirectSession, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

// Gateways bundles the three confirmation paths. A nil gateway makes its
// method unavailable.
type Gateways struct {
	Push     PushGateway
	Card     CardGateway
	Redirect RedirectGateway
}

const maxGatewayBody = 1 << 20

// httpDoer is the transport shared by all gateway clients: bounded timeout,
// client-side throttle and uniform error classification.
type httpDoer struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPDoer(name string, timeout time.Duration, rps int) httpDoer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if rps <= 0 {
		rps = 10
	}
	return httpDoer{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// do sends req and decodes a 2xx JSON body into out. Transport failures and
// 5xx are upstream errors, other non-2xx answers are declines.
func (d httpDoer) do(req *http.Request, out any) error {
	if err := d.limiter.Wait(req.Context()); err != nil {
		return apperrors.Upstream(d.name+" is unavailable", err)
	}

	req.Header.Set("Accept", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return apperrors.Upstream(d.name+" is unavailable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return apperrors.Upstream(d.name+" is unavailable",
			fmt.Errorf("%s request failed: status=%d body=%s", d.name, resp.StatusCode, string(body)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		log.Warnf("[Payment] %s rejected request: status=%d body=%s", d.name, resp.StatusCode, string(body))
		return apperrors.Wrap(apperrors.KindPaymentDeclined, "payment was declined",
			fmt.Errorf("%s status=%d", d.name, resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.Upstream(d.name+" returned an invalid response", err)
	}
	return nil
}
