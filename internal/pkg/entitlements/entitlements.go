package entitlements

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ReportFox/app/models"
)

// Ledger is the only source of truth for report access. Access is never
// derived from transaction history.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithDB rebinds the ledger to tx so grants join an outer unit of work.
func (l *Ledger) WithDB(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

func (l *Ledger) HasAccess(ctx context.Context, clientID, reportID uint) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.EntitlementRecord{}).
		Where("client_id = ? AND report_id = ?", clientID, reportID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Grant inserts the entitlement unless one already exists. created is
// false when the (client, report) pair was already owned.
func (l *Ledger) Grant(ctx context.Context, clientID, reportID, orderID uint) (bool, error) {
	rec := &models.EntitlementRecord{
		ClientID:    clientID,
		ReportID:    reportID,
		OrderID:     orderID,
		PurchasedOn: time.Now().UTC(),
	}
	tx := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "client_id"},
			{Name: "report_id"},
		},
		DoNothing: true,
	}).Create(rec)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ListForClient returns the client's entitlements, newest first.
func (l *Ledger) ListForClient(ctx context.Context, clientID uint) ([]models.EntitlementRecord, error) {
	var recs []models.EntitlementRecord
	err := l.db.WithContext(ctx).Preload("Report").
		Where("client_id = ?", clientID).
		Order("purchased_on DESC, id DESC").
		Find(&recs).Error
	return recs, err
}

// OwnedTitles returns the titles of those reportIDs the client already owns.
func (l *Ledger) OwnedTitles(ctx context.Context, clientID uint, reportIDs []uint) ([]string, error) {
	var titles []string
	if len(reportIDs) == 0 {
		return titles, nil
	}
	err := l.db.WithContext(ctx).Model(&models.EntitlementRecord{}).
		Joins("JOIN reports ON reports.id = entitlement_records.report_id").
		Where("entitlement_records.client_id = ? AND entitlement_records.report_id IN ?", clientID, reportIDs).
		Order("reports.title").
		Pluck("reports.title", &titles).Error
	return titles, err
}
