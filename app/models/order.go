package models

import "time"

const (
	ORDER_PENDING   = "pending"
	ORDER_PAID      = "paid"
	ORDER_CANCELLED = "cancelled"
)

type Order struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	OrderNumber string      `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_number"`
	ClientID    uint        `gorm:"index;not null" json:"client_id"`
	Status      string      `gorm:"type:varchar(20);not null;default:'pending';index:idx_orders_status_created,priority:1" json:"status"`
	TotalCents  int64       `gorm:"not null" json:"total_cents"`
	Lines       []OrderLine `gorm:"foreignKey:OrderID" json:"items"`
	Client      *User       `gorm:"foreignKey:ClientID" json:"-"`
	CreatedAt   time.Time   `gorm:"autoCreateTime;index:idx_orders_status_created,priority:2" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPending reports whether the order can still be paid or cancelled.
func (o *Order) IsPending() bool {
	return o.Status == ORDER_PENDING
}

// LinesTotal recomputes the order total from its captured line prices.
func (o *Order) LinesTotal() int64 {
	var total int64
	for _, l := range o.Lines {
		total += l.UnitPriceCents * int64(l.Quantity)
	}
	return total
}

type OrderLine struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	OrderID        uint    `gorm:"index;not null" json:"-"`
	ReportID       uint    `gorm:"index;not null" json:"report_id"`
	Quantity       int     `gorm:"not null;default:1" json:"quantity"`
	UnitPriceCents int64   `gorm:"not null" json:"unit_price_cents"`
	Report         *Report `gorm:"foreignKey:ReportID" json:"report,omitempty"`
}
