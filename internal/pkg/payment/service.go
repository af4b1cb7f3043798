package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/events"
	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics"
)

var (
	ErrOrderNotFound   = apperrors.NotFound("order not found")
	ErrOrderNotPending = apperrors.Conflict("order is not pending payment")
	ErrOrderPaid       = apperrors.Conflict("order already paid")
	ErrReportsInvalid  = apperrors.Validation("some reports are invalid or unavailable")
	ErrNoReports       = apperrors.Validation("at least one report is required")
	ErrMethodInvalid   = apperrors.Validation("unsupported payment method")
)

// Notifier receives the two customer-facing payment notifications.
type Notifier interface {
	OrderCreated(ctx context.Context, client *models.User, order *models.Order)
	PaymentSucceeded(ctx context.Context, client *models.User, order *models.Order)
}

type Options struct {
	Currency     string
	DefaultPhone string
	// RedirectCallbackURL is where the hosted checkout returns the buyer.
	RedirectCallbackURL string
	CardReturnURL       string
	// PaystackSecret keys the webhook signature.
	PaystackSecret string
}

// Service owns the order and payment state machine.
type Service struct {
	repo     Repository
	gateways Gateways
	notifier Notifier
	events   events.Publisher
	opts     Options
	now      func() time.Time
}

func NewService(repo Repository, gateways Gateways, notifier Notifier, publisher events.Publisher, opts Options) *Service {
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	if opts.Currency == "" {
		opts.Currency = "kes"
	}
	return &Service{
		repo:     repo,
		gateways: gateways,
		notifier: notifier,
		events:   publisher,
		opts:     opts,
		now:      time.Now,
	}
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateways Gateways, notifier Notifier, publisher events.Publisher, opts Options) *Service {
	return NewService(NewRepository(db), gateways, notifier, publisher, opts)
}

func newOrderNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(hex[:12])
}

// validateReportIDs drops duplicates, keeping first-seen order.
func validateReportIDs(ids []uint) ([]uint, error) {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			return nil, ErrReportsInvalid
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, ErrNoReports
	}
	return out, nil
}

// CreateOrder prices the requested reports and stores a pending order.
func (s *Service) CreateOrder(ctx context.Context, client *models.User, reportIDs []uint) (*models.Order, error) {
	ids, err := validateReportIDs(reportIDs)
	if err != nil {
		return nil, err
	}

	reports, err := s.repo.ActiveReports(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal("load reports", err)
	}
	if len(reports) != len(ids) {
		return nil, ErrReportsInvalid
	}

	owned, err := s.repo.OwnedTitles(ctx, client.ID, ids)
	if err != nil {
		return nil, apperrors.Internal("check entitlements", err)
	}
	if len(owned) > 0 {
		return nil, apperrors.Conflict("you already own: " + strings.Join(owned, ", "))
	}

	byID := make(map[uint]models.Report, len(reports))
	for _, r := range reports {
		byID[r.ID] = r
	}

	order := &models.Order{
		OrderNumber: newOrderNumber(),
		ClientID:    client.ID,
		Status:      models.ORDER_PENDING,
	}
	for _, id := range ids {
		r := byID[id]
		order.Lines = append(order.Lines, models.OrderLine{
			ReportID:       r.ID,
			Quantity:       1,
			UnitPriceCents: r.PriceCents,
		})
	}
	order.TotalCents = order.LinesTotal()

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, apperrors.Internal("create order", err)
	}
	for i := range order.Lines {
		r := byID[order.Lines[i].ReportID]
		order.Lines[i].Report = &r
	}

	log.Infof("[Payment] Order %s created for client %d (%d lines, %d cents)", order.OrderNumber, client.ID, len(order.Lines), order.TotalCents)

	s.notifier.OrderCreated(ctx, client, order)
	s.publish(ctx, events.New(events.TypeOrderCreated, order.OrderNumber, map[string]any{
		"order_id":    order.ID,
		"client_id":   client.ID,
		"total_cents": order.TotalCents,
		"currency":    s.opts.Currency,
	}))
	return order, nil
}

// PaymentRequest carries the per-method parameters of InitiatePayment.
type PaymentRequest struct {
	Method          string `json:"payment_method"`
	Phone           string `json:"phone"`
	PaymentMethodID string `json:"payment_method_id"`
}

type PaymentResult struct {
	OrderID          uint   `json:"order_id"`
	Method           string `json:"payment_method"`
	TransactionID    string `json:"transaction_id"`
	Status           string `json:"status"`
	Message          string `json:"message"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
}

// InitiatePayment starts payment of a pending order through one of the
// three gateways. Card payments are confirmed before this returns.
func (s *Service) InitiatePayment(ctx context.Context, client *models.User, orderID uint, req PaymentRequest) (*PaymentResult, error) {
	if !models.IsValidMethod(req.Method) {
		return nil, ErrMethodInvalid
	}

	order, err := s.repo.GetOrderForClient(ctx, orderID, client.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, apperrors.Internal("load order", err)
	}
	if !order.IsPending() {
		return nil, ErrOrderNotPending
	}
	if txn, err := s.repo.GetTransactionByOrder(ctx, order.ID); err == nil && txn.Confirmed {
		return nil, ErrOrderPaid
	}

	var result *PaymentResult
	switch req.Method {
	case models.METHOD_MOBILE_MONEY:
		result, err = s.payMobileMoney(ctx, client, order, req)
	case models.METHOD_CARD:
		result, err = s.payCard(ctx, client, order, req)
	case models.METHOD_REDIRECT:
		result, err = s.payRedirect(ctx, client, order)
	}

	switch {
	case err == nil:
		metrics.PaymentInitiations.WithLabelValues(req.Method, "ok").Inc()
	case apperrors.IsKind(err, apperrors.KindPaymentDeclined):
		metrics.PaymentInitiations.WithLabelValues(req.Method, "declined").Inc()
		log.Warnf("[Payment] %s payment for order %s declined: %v", req.Method, order.OrderNumber, err)
	default:
		metrics.PaymentInitiations.WithLabelValues(req.Method, "error").Inc()
	}
	return result, err
}

func (s *Service) payMobileMoney(ctx context.Context, client *models.User, order *models.Order, req PaymentRequest) (*PaymentResult, error) {
	if s.gateways.Push == nil {
		return nil, ErrMethodInvalid
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" && client.Profile != nil {
		phone = client.Profile.Phone
	}
	if phone == "" {
		phone = s.opts.DefaultPhone
	}

	res, err := s.gateways.Push.STKPush(ctx, PushRequest{
		Phone:       phone,
		AmountCents: order.TotalCents,
		OrderNumber: order.OrderNumber,
	})
	if err != nil {
		return nil, err
	}
	if err := s.recordPending(ctx, order, res.CheckoutRequestID, models.METHOD_MOBILE_MONEY); err != nil {
		return nil, err
	}
	return &PaymentResult{
		OrderID:       order.ID,
		Method:        models.METHOD_MOBILE_MONEY,
		TransactionID: res.CheckoutRequestID,
		Status:        models.ORDER_PENDING,
		Message:       "Payment initiated",
	}, nil
}

func (s *Service) payRedirect(ctx context.Context, client *models.User, order *models.Order) (*PaymentResult, error) {
	if s.gateways.Redirect == nil {
		return nil, ErrMethodInvalid
	}
	sess, err := s.gateways.Redirect.Initialize(ctx, RedirectInit{
		Email:       client.Email,
		AmountCents: order.TotalCents,
		Reference:   order.OrderNumber,
		CallbackURL: s.opts.RedirectCallbackURL,
	})
	if err != nil {
		return nil, err
	}
	if err := s.recordPending(ctx, order, sess.Reference, models.METHOD_REDIRECT); err != nil {
		return nil, err
	}
	return &PaymentResult{
		OrderID:          order.ID,
		Method:           models.METHOD_REDIRECT,
		TransactionID:    sess.Reference,
		Status:           models.ORDER_PENDING,
		Message:          "Payment initiated",
		AuthorizationURL: sess.AuthorizationURL,
	}, nil
}

func (s *Service) payCard(ctx context.Context, client *models.User, order *models.Order, req PaymentRequest) (*PaymentResult, error) {
	if s.gateways.Card == nil {
		return nil, ErrMethodInvalid
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		return nil, apperrors.Validation("payment_method_id is required for card payments")
	}

	res, err := s.gateways.Card.Charge(ctx, CardCharge{
		AmountCents:     order.TotalCents,
		Currency:        s.opts.Currency,
		PaymentMethodID: req.PaymentMethodID,
		OrderNumber:     order.OrderNumber,
		ReturnURL:       s.opts.CardReturnURL,
	})
	if err != nil {
		return nil, err
	}
	if res.Status != CardStatusSucceeded {
		return nil, apperrors.Wrap(apperrors.KindPaymentDeclined, "card payment was not completed",
			fmt.Errorf("payment intent %s status=%s", res.IntentID, res.Status))
	}

	// The charge already happened, so the transaction is recorded even if
	// the order left pending meanwhile.
	var outcome Outcome
	var confirmed *models.Order
	err = s.repo.InTx(ctx, func(r Repository) error {
		if err := s.upsertTransaction(ctx, r, order, res.IntentID, models.METHOD_CARD, false); err != nil {
			return err
		}
		var cerr error
		outcome, confirmed, cerr = s.confirmLocked(ctx, r, res.IntentID)
		return cerr
	})
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindConflict) {
			log.Errorf("[Payment] Card intent %s charged but order %s was already paid; refund required", res.IntentID, order.OrderNumber)
			return nil, err
		}
		return nil, apperrors.Internal("record card payment", err)
	}
	s.finishConfirmation(ctx, res.IntentID, outcome, confirmed)

	if outcome == OutcomeOrderNotPending {
		return nil, apperrors.Conflict("order was cancelled before the payment completed")
	}
	return &PaymentResult{
		OrderID:       order.ID,
		Method:        models.METHOD_CARD,
		TransactionID: res.IntentID,
		Status:        models.ORDER_PAID,
		Message:       "Payment successful",
	}, nil
}

func (s *Service) recordPending(ctx context.Context, order *models.Order, ref, method string) error {
	err := s.repo.InTx(ctx, func(r Repository) error {
		return s.upsertTransaction(ctx, r, order, ref, method, true)
	})
	if err == nil {
		log.Infof("[Payment] %s payment initiated for order %s ref=%s", method, order.OrderNumber, ref)
		return nil
	}
	if apperrors.KindOf(err) != apperrors.KindInternal {
		return err
	}
	return apperrors.Internal("record transaction", err)
}

// upsertTransaction keeps one transaction per order. The first attempt
// creates it; a retry only records another attempt, so the reference the
// earlier gateway call returned still confirms the order. A confirmed
// transaction means the order is already paid.
func (s *Service) upsertTransaction(ctx context.Context, r Repository, order *models.Order, ref, method string, requirePending bool) error {
	locked, err := r.LockOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if requirePending && !locked.IsPending() {
		return ErrOrderNotPending
	}

	txn, err := r.LockTransactionByOrder(ctx, order.ID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		txn = &models.Transaction{
			OrderID:              order.ID,
			GatewayTransactionID: ref,
			Method:               method,
			AmountCents:          locked.TotalCents,
		}
		if err := r.SaveTransaction(ctx, txn); err != nil {
			return err
		}
	case err != nil:
		return err
	case txn.Confirmed:
		return ErrOrderPaid
	default:
		log.Infof("[Payment] Order %s retried with %s ref=%s (first ref=%s)", order.OrderNumber, method, ref, txn.GatewayTransactionID)
	}

	return r.AddAttempt(ctx, &models.TransactionAttempt{
		TransactionID: txn.ID,
		GatewayRef:    ref,
		Method:        method,
	})
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		log.Warnf("[Payment] Failed to publish %s for %s: %v", e.Type, e.Key, err)
	}
}
