package models

import "time"

// EntitlementRecord grants a client access to one report. Rows only appear
// as a side effect of an order reaching paid.
type EntitlementRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ClientID    uint      `gorm:"not null;index:ux_entitlements_client_report,unique,priority:1" json:"client_id"`
	ReportID    uint      `gorm:"not null;index:ux_entitlements_client_report,unique,priority:2" json:"report_id"`
	OrderID     uint      `gorm:"index" json:"order_id"`
	PurchasedOn time.Time `gorm:"not null;index" json:"purchased_on"`
	Report      *Report   `gorm:"foreignKey:ReportID" json:"report,omitempty"`
}
