package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// GetForClient loads an order only if it belongs to clientID.
func (r *orderRepository) GetForClient(orderID, clientID uint) (*models.Order, error) {
	var order models.Order
	err := r.db.Preload("Lines.Report").
		Where("id = ? AND client_id = ?", orderID, clientID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) ListByClient(clientID uint) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Preload("Lines.Report").
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

// ListByStatus returns every order, or only those in status when it is set.
func (r *orderRepository) ListByStatus(status string) ([]models.Order, error) {
	var orders []models.Order
	q := r.db.Preload("Lines")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC").Find(&orders).Error
	return orders, err
}

func (r *orderRepository) GetTransaction(orderID uint) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.Where("order_id = ?", orderID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *orderRepository) PaidTransactionsSince(since time.Time) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.Where("confirmed = ? AND paid_at >= ?", true, since).
		Order("paid_at ASC").
		Find(&txns).Error
	return txns, err
}

// ClientStats counts entitlements and sums the totals of paid orders.
func (r *orderRepository) ClientStats(clientID uint) (*ClientStats, error) {
	var stats ClientStats
	if err := r.db.Model(&models.EntitlementRecord{}).
		Where("client_id = ?", clientID).
		Count(&stats.TotalPurchased).Error; err != nil {
		return nil, err
	}
	err := r.db.Model(&models.Order{}).
		Where("client_id = ? AND status = ?", clientID, models.ORDER_PAID).
		Select("COALESCE(SUM(total_cents), 0)").
		Row().Scan(&stats.TotalSpent)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// GroupRevenueByMonth folds confirmed transactions into calendar months (UTC).
func GroupRevenueByMonth(txns []models.Transaction) []MonthlyRevenue {
	var out []MonthlyRevenue
	index := map[string]int{}
	for _, t := range txns {
		if t.PaidAt == nil {
			continue
		}
		month := t.PaidAt.UTC().Format("2006-01")
		i, ok := index[month]
		if !ok {
			i = len(out)
			index[month] = i
			out = append(out, MonthlyRevenue{Month: month})
		}
		out[i].AmountCents += t.AmountCents
		out[i].Transactions++
	}
	return out
}
