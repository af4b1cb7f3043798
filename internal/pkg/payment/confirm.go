package payment

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/apperrors"
	"github.com/ManuelReschke/ReportFox/internal/pkg/events"
	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics"
)

// Outcome is the result of one ConfirmTransaction call.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeAlreadyConfirmed
	OutcomeOrderNotPending
	OutcomeConfirmed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyConfirmed:
		return "already_confirmed"
	case OutcomeOrderNotPending:
		return "order_not_pending"
	case OutcomeConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// ConfirmTransaction is the single transition every confirmation path
// converges on. It is idempotent: only the first call for a reference
// marks the order paid, grants entitlements and notifies.
func (s *Service) ConfirmTransaction(ctx context.Context, gatewayRef string) (Outcome, error) {
	var outcome Outcome
	var order *models.Order
	err := s.repo.InTx(ctx, func(r Repository) error {
		var err error
		outcome, order, err = s.confirmLocked(ctx, r, gatewayRef)
		return err
	})
	if err != nil {
		return OutcomeUnknown, apperrors.Internal("confirm transaction", err)
	}
	s.finishConfirmation(ctx, gatewayRef, outcome, order)
	return outcome, nil
}

// confirmLocked runs inside the caller's transaction. The transaction row
// is locked first so concurrent confirmations of the same reference
// serialize and re-read confirmed under the lock.
func (s *Service) confirmLocked(ctx context.Context, r Repository, ref string) (Outcome, *models.Order, error) {
	txn, err := r.LockTransactionByRef(ctx, ref)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OutcomeUnknown, nil, nil
	}
	if err != nil {
		return OutcomeUnknown, nil, err
	}
	if txn.Confirmed {
		return OutcomeAlreadyConfirmed, nil, nil
	}

	now := s.now()
	txn.Confirmed = true
	txn.PaidAt = &now
	if err := r.SaveTransaction(ctx, txn); err != nil {
		return OutcomeUnknown, nil, err
	}

	moved, err := r.MarkOrderPaid(ctx, txn.OrderID)
	if err != nil {
		return OutcomeUnknown, nil, err
	}
	order, err := r.LoadOrder(ctx, txn.OrderID)
	if err != nil {
		return OutcomeUnknown, nil, err
	}
	if !moved {
		return OutcomeOrderNotPending, order, nil
	}

	for _, line := range order.Lines {
		if _, err := r.Grant(ctx, order.ClientID, line.ReportID, order.ID); err != nil {
			return OutcomeUnknown, nil, err
		}
	}
	return OutcomeConfirmed, order, nil
}

// finishConfirmation runs after commit. Side effects only fire for the
// call that actually confirmed.
func (s *Service) finishConfirmation(ctx context.Context, ref string, outcome Outcome, order *models.Order) {
	metrics.Confirmations.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case OutcomeUnknown:
		log.Warnf("[Payment] Confirmation for unknown transaction ref=%s ignored", ref)
		return
	case OutcomeAlreadyConfirmed:
		log.Infof("[Payment] Transaction ref=%s already confirmed", ref)
		return
	case OutcomeOrderNotPending:
		log.Warnf("[Payment] Payment ref=%s recorded but order %s is %s; needs manual refund", ref, order.OrderNumber, order.Status)
		return
	}

	log.Infof("[Payment] Order %s paid (ref=%s)", order.OrderNumber, ref)

	client, err := s.repo.GetUser(ctx, order.ClientID)
	if err != nil {
		log.Errorf("[Payment] Order %s paid but client %d could not be loaded for notification: %v", order.OrderNumber, order.ClientID, err)
	} else {
		s.notifier.PaymentSucceeded(ctx, client, order)
	}

	s.publish(ctx, events.New(events.TypePaymentConfirmed, order.OrderNumber, map[string]any{
		"order_id":       order.ID,
		"client_id":      order.ClientID,
		"total_cents":    order.TotalCents,
		"transaction_id": ref,
	}))
}

// CancelStaleOrders cancels orders still pending after olderThan.
func (s *Service) CancelStaleOrders(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	n, err := s.repo.CancelStaleOrders(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.StaleOrdersCancelled.Add(float64(n))
		log.Infof("[Payment] Cancelled %d stale pending orders older than %s", n, olderThan)
	}
	return n, nil
}
