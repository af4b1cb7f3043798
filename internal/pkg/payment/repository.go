package payment

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/entitlements"
)

// Repository provides DB operations used by the payment service. Lock*
// methods take row locks and are only meaningful inside InTx.
type Repository interface {
	InTx(ctx context.Context, fn func(r Repository) error) error

	ActiveReports(ctx context.Context, ids []uint) ([]models.Report, error)
	OwnedTitles(ctx context.Context, clientID uint, reportIDs []uint) ([]string, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderForClient(ctx context.Context, orderID, clientID uint) (*models.Order, error)
	LoadOrder(ctx context.Context, orderID uint) (*models.Order, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetTransactionByOrder(ctx context.Context, orderID uint) (*models.Transaction, error)
	FindTransactionByRef(ctx context.Context, ref string) (*models.Transaction, error)

	LockOrder(ctx context.Context, orderID uint) (*models.Order, error)
	LockTransactionByOrder(ctx context.Context, orderID uint) (*models.Transaction, error)
	LockTransactionByRef(ctx context.Context, ref string) (*models.Transaction, error)
	SaveTransaction(ctx context.Context, txn *models.Transaction) error
	AddAttempt(ctx context.Context, attempt *models.TransactionAttempt) error
	MarkOrderPaid(ctx context.Context, orderID uint) (bool, error)
	Grant(ctx context.Context, clientID, reportID, orderID uint) (bool, error)

	CancelStaleOrders(ctx context.Context, cutoff time.Time) (int64, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db     *gorm.DB
	ledger *entitlements.Ledger
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db, ledger: entitlements.NewLedger(db)}
}

func (r *gormRepository) InTx(ctx context.Context, fn func(r Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx, ledger: r.ledger.WithDB(tx)})
	})
}

func (r *gormRepository) ActiveReports(ctx context.Context, ids []uint) ([]models.Report, error) {
	var reports []models.Report
	if len(ids) == 0 {
		return reports, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ? AND active = ?", ids, true).Find(&reports).Error
	return reports, err
}

func (r *gormRepository) OwnedTitles(ctx context.Context, clientID uint, reportIDs []uint) ([]string, error) {
	return r.ledger.OwnedTitles(ctx, clientID, reportIDs)
}

// CreateOrder inserts the order and its lines together.
func (r *gormRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lines := order.Lines
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if len(lines) > 0 {
			if err := tx.Omit(clause.Associations).Create(&lines).Error; err != nil {
				return err
			}
		}
		order.Lines = lines
		return nil
	})
}

func (r *gormRepository) GetOrderForClient(ctx context.Context, orderID, clientID uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Lines.Report").
		Where("id = ? AND client_id = ?", orderID, clientID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) LoadOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Preload("Lines.Report").First(&order, orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Preload("Profile").First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetTransactionByOrder(ctx context.Context, orderID uint) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gormRepository) forUpdate(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *gormRepository) LockOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := r.forUpdate(ctx).First(&order, orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) LockTransactionByOrder(ctx context.Context, orderID uint) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.forUpdate(ctx).Where("order_id = ?", orderID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gormRepository) LockTransactionByRef(ctx context.Context, ref string) (*models.Transaction, error) {
	return r.transactionByRef(ctx, ref, true)
}

func (r *gormRepository) FindTransactionByRef(ctx context.Context, ref string) (*models.Transaction, error) {
	return r.transactionByRef(ctx, ref, false)
}

func (r *gormRepository) query(ctx context.Context, lock bool) *gorm.DB {
	if lock {
		return r.forUpdate(ctx)
	}
	return r.db.WithContext(ctx)
}

// transactionByRef resolves the reference a transaction was created with
// first, then any later attempt recorded for it.
func (r *gormRepository) transactionByRef(ctx context.Context, ref string, lock bool) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.query(ctx, lock).Where("gateway_transaction_id = ?", ref).First(&txn).Error
	if err == nil {
		return &txn, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var attempt models.TransactionAttempt
	if err := r.db.WithContext(ctx).Where("gateway_ref = ?", ref).First(&attempt).Error; err != nil {
		return nil, err
	}
	var byAttempt models.Transaction
	if err := r.query(ctx, lock).First(&byAttempt, attempt.TransactionID).Error; err != nil {
		return nil, err
	}
	return &byAttempt, nil
}

func (r *gormRepository) SaveTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(txn).Error
}

// AddAttempt ignores a reference that is already recorded; hosted checkout
// reuses the order number as its reference.
func (r *gormRepository) AddAttempt(ctx context.Context, attempt *models.TransactionAttempt) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_ref"}},
		DoNothing: true,
	}).Create(attempt).Error
}

// MarkOrderPaid moves the order to paid only from pending. false means
// the order had already left pending.
func (r *gormRepository) MarkOrderPaid(ctx context.Context, orderID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, models.ORDER_PENDING).
		Update("status", models.ORDER_PAID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) Grant(ctx context.Context, clientID, reportID, orderID uint) (bool, error) {
	return r.ledger.Grant(ctx, clientID, reportID, orderID)
}

// CancelStaleOrders is a single conditional UPDATE, so an order paid
// between scheduling and execution is never touched.
func (r *gormRepository) CancelStaleOrders(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ? AND created_at < ?", models.ORDER_PENDING, cutoff).
		Update("status", models.ORDER_CANCELLED)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "gateway"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.WithContext(ctx).Where("gateway = ? AND event_id = ?", event.Gateway, event.EventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
