package models

import "time"

const (
	GATEWAY_MPESA    = "mpesa"
	GATEWAY_PAYSTACK = "paystack"
)

// PaymentWebhookEvent stores gateway callback payloads with deduplication
// metadata for idempotent processing.
type PaymentWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Gateway         string     `gorm:"type:varchar(20);not null;index:ux_payment_webhook_events_gateway_event,unique,priority:1" json:"gateway"`
	EventID         string     `gorm:"type:varchar(191);not null;index:ux_payment_webhook_events_gateway_event,unique,priority:2" json:"event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;default:''" json:"event_type"`
	PayloadJSON     string     `gorm:"type:text;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
