package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/oklog/ulid/v2"

	"github.com/ManuelReschke/ReportFox/app/models"
)

// CallbackResult describes what a gateway callback caused. Callers reply
// success to the gateway regardless.
type CallbackResult struct {
	Duplicate bool
	Attempted bool
	Outcome   Outcome
}

type mpesaCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string          `json:"MerchantRequestID"`
			CheckoutRequestID string          `json:"CheckoutRequestID"`
			ResultCode        json.RawMessage `json:"ResultCode"`
			ResultDesc        string          `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// parseResultCode accepts both 0 and "0"; Daraja has sent either.
func parseResultCode(raw json.RawMessage) (int, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// beginEvent records a callback delivery. ok is false when the same event
// was already processed successfully and must be skipped.
func (s *Service) beginEvent(ctx context.Context, gateway, eventID, eventType string, payload []byte, sigValid bool) (*models.PaymentWebhookEvent, bool) {
	if eventID == "" {
		eventID = "anon:" + ulid.Make().String()
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(ctx, &models.PaymentWebhookEvent{
		Gateway:        gateway,
		EventID:        eventID,
		EventType:      eventType,
		PayloadJSON:    string(payload),
		SignatureValid: sigValid,
	})
	if err != nil {
		log.Errorf("[Payment] Failed to record %s event %s: %v", gateway, eventID, err)
		return nil, true
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		log.Infof("[Payment] Duplicate %s event %s skipped", gateway, eventID)
		return stored, false
	}
	return stored, true
}

func (s *Service) endEvent(ctx context.Context, event *models.PaymentWebhookEvent, procErr string) {
	if event == nil {
		return
	}
	if err := s.repo.MarkWebhookProcessed(ctx, event.ID, procErr); err != nil {
		log.Errorf("[Payment] Failed to mark %s event %s processed: %v", event.Gateway, event.EventID, err)
	}
}

func (s *Service) confirmForCallback(ctx context.Context, ref string, res *CallbackResult) string {
	res.Attempted = true
	outcome, err := s.ConfirmTransaction(ctx, ref)
	res.Outcome = outcome
	if err != nil {
		log.Errorf("[Payment] Confirmation of ref=%s failed: %v", ref, err)
		return err.Error()
	}
	return ""
}

// confirmPush only trusts a success callback after the gateway's query
// reports the same push as paid. Unknown and already confirmed references
// skip the query.
func (s *Service) confirmPush(ctx context.Context, ref string, res *CallbackResult) string {
	txn, err := s.repo.FindTransactionByRef(ctx, ref)
	if err != nil || txn.Confirmed {
		return s.confirmForCallback(ctx, ref, res)
	}
	if s.gateways.Push == nil {
		log.Errorf("[Payment] Mpesa callback for %s received but the gateway is not configured", ref)
		return "mobile money gateway not configured"
	}

	status, err := s.gateways.Push.Query(ctx, ref)
	if err != nil {
		log.Errorf("[Payment] Mpesa query for %s failed: %v", ref, err)
		return err.Error()
	}
	if !status.Paid() {
		log.Warnf("[Payment] Mpesa callback for %s reported success but query says code=%d desc=%s", ref, status.ResultCode, status.ResultDesc)
		return fmt.Sprintf("query result code=%d", status.ResultCode)
	}
	return s.confirmForCallback(ctx, ref, res)
}

// HandleMpesaCallback processes an STK push result. ResultCode 0 is checked
// against the gateway and then confirms; anything else leaves the order
// pending for the sweeper.
func (s *Service) HandleMpesaCallback(ctx context.Context, payload []byte) CallbackResult {
	var res CallbackResult
	var cb mpesaCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		log.Warnf("[Payment] Unparseable mpesa callback: %v", err)
		event, _ := s.beginEvent(ctx, models.GATEWAY_MPESA, "", "invalid", payload, false)
		s.endEvent(ctx, event, "invalid payload")
		return res
	}
	stk := cb.Body.StkCallback

	event, ok := s.beginEvent(ctx, models.GATEWAY_MPESA, stk.CheckoutRequestID, "stk_callback", payload, false)
	if !ok {
		res.Duplicate = true
		return res
	}

	code, valid := parseResultCode(stk.ResultCode)
	var procErr string
	switch {
	case stk.CheckoutRequestID == "" || !valid:
		procErr = "missing CheckoutRequestID or ResultCode"
		log.Warnf("[Payment] Mpesa callback without checkout id or result code")
	case code == 0:
		procErr = s.confirmPush(ctx, stk.CheckoutRequestID, &res)
	default:
		log.Infof("[Payment] Mpesa payment %s not completed: code=%d desc=%s", stk.CheckoutRequestID, code, stk.ResultDesc)
	}
	s.endEvent(ctx, event, procErr)
	return res
}

// checkAmount compares what the gateway collected with what the
// transaction is owed. Unknown references are left to the confirmation.
func (s *Service) checkAmount(ctx context.Context, ref string, paidCents int64) string {
	txn, err := s.repo.FindTransactionByRef(ctx, ref)
	if err != nil {
		return ""
	}
	if paidCents != txn.AmountCents {
		log.Warnf("[Payment] Reference %s collected %d cents but transaction %d expects %d", ref, paidCents, txn.ID, txn.AmountCents)
		return fmt.Sprintf("amount mismatch: paid=%d expected=%d", paidCents, txn.AmountCents)
	}
	return ""
}

// HandleRedirectCallback verifies a hosted checkout reference with the
// gateway and confirms it on success.
func (s *Service) HandleRedirectCallback(ctx context.Context, reference string) CallbackResult {
	var res CallbackResult
	reference = strings.TrimSpace(reference)
	if reference == "" || s.gateways.Redirect == nil {
		log.Warnf("[Payment] Redirect callback ignored: empty reference or gateway not configured")
		return res
	}

	event, ok := s.beginEvent(ctx, models.GATEWAY_PAYSTACK, "verify:"+reference, "callback.verify", []byte(fmt.Sprintf(`{"reference":%q}`, reference)), false)
	if !ok {
		res.Duplicate = true
		return res
	}

	var procErr string
	verified, err := s.gateways.Redirect.Verify(ctx, reference)
	switch {
	case err != nil:
		procErr = err.Error()
		log.Errorf("[Payment] Verify of reference %s failed: %v", reference, err)
	case verified.Status == PaystackStatusSuccess:
		if procErr = s.checkAmount(ctx, reference, verified.AmountCents); procErr == "" {
			procErr = s.confirmForCallback(ctx, reference, &res)
		}
	default:
		// retried on the next callback
		procErr = "status=" + verified.Status
		log.Infof("[Payment] Reference %s verified with status %s", reference, verified.Status)
	}
	s.endEvent(ctx, event, procErr)
	return res
}

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// HandlePaystackWebhook checks the signature and confirms charge.success
// events by reference.
func (s *Service) HandlePaystackWebhook(ctx context.Context, payload []byte, signature string) CallbackResult {
	var res CallbackResult
	sigValid := VerifyPaystackSignature(payload, signature, s.opts.PaystackSecret)

	var wh paystackWebhook
	if err := json.Unmarshal(payload, &wh); err != nil {
		log.Warnf("[Payment] Unparseable paystack webhook: %v", err)
		event, _ := s.beginEvent(ctx, models.GATEWAY_PAYSTACK, "", "invalid", payload, sigValid)
		s.endEvent(ctx, event, "invalid payload")
		return res
	}

	eventID := ""
	if wh.Data.Reference != "" {
		eventID = wh.Event + ":" + wh.Data.Reference
	}
	event, ok := s.beginEvent(ctx, models.GATEWAY_PAYSTACK, eventID, wh.Event, payload, sigValid)
	if !ok {
		res.Duplicate = true
		return res
	}

	var procErr string
	switch {
	case !sigValid:
		procErr = "invalid signature"
		log.Warnf("[Payment] Paystack webhook %s rejected: invalid signature", eventID)
	case wh.Event == "charge.success":
		if procErr = s.checkAmount(ctx, wh.Data.Reference, wh.Data.Amount); procErr == "" {
			procErr = s.confirmForCallback(ctx, wh.Data.Reference, &res)
		}
	default:
		log.Infof("[Payment] Paystack webhook %s ignored", wh.Event)
	}
	s.endEvent(ctx, event, procErr)
	return res
}
