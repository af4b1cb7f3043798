package models

import "time"

const (
	METHOD_MOBILE_MONEY = "mobile_money"
	METHOD_CARD         = "card"
	METHOD_REDIRECT     = "redirect"
)

// Transaction is the single payment attempt attached to an order.
// Confirmed flips false -> true at most once and rows are never deleted.
type Transaction struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	OrderID              uint       `gorm:"uniqueIndex;not null" json:"order_id"`
	GatewayTransactionID string     `gorm:"type:varchar(191);uniqueIndex;not null" json:"transaction_id"`
	AmountCents          int64      `gorm:"not null" json:"amount_cents"`
	Method               string     `gorm:"type:varchar(20);not null" json:"payment_method"`
	Confirmed            bool       `gorm:"default:false;index" json:"confirmed"`
	PaidAt               *time.Time `gorm:"default:null" json:"paid_at"`
	Order                *Order     `gorm:"foreignKey:OrderID" json:"-"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TransactionAttempt is one gateway reference issued for an order. A retried
// payment adds an attempt instead of touching the transaction, so a late
// callback for an earlier reference still finds its order.
type TransactionAttempt struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID uint      `gorm:"index;not null" json:"transaction_id"`
	GatewayRef    string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"gateway_ref"`
	Method        string    `gorm:"type:varchar(20);not null" json:"payment_method"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func IsValidMethod(method string) bool {
	switch method {
	case METHOD_MOBILE_MONEY, METHOD_CARD, METHOD_REDIRECT:
		return true
	default:
		return false
	}
}
