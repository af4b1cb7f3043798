package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Report is a purchasable PDF. SourceRef is the object store key of the
// canonical file; it is never handed to clients.
type Report struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title" validate:"required,min=3,max=255"`
	Description string         `gorm:"type:text" json:"description"`
	Category    string         `gorm:"type:varchar(100);index" json:"category"`
	PriceCents  int64          `gorm:"not null;default:0" json:"price_cents" validate:"gte=0,lte=100000000"`
	Active      bool           `gorm:"default:true;index" json:"active"`
	SourceRef   string         `gorm:"type:varchar(255);not null" json:"-"`
	ViewCount   int64          `gorm:"default:0" json:"view_count"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// FormatCents renders minor units as a fixed two-decimal amount, e.g. 35000 -> "350.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
