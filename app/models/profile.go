package models

import "time"

const (
	PROFILE_CLIENT     = "Client"
	PROFILE_MANAGEMENT = "Management"
)

// Profile holds the authorization tier and contact details of a user.
type Profile struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"-"`
	Type      string    `gorm:"type:varchar(20);not null;default:'Client'" json:"profile_type" validate:"oneof=Client Management"`
	Phone     string    `gorm:"type:varchar(20)" json:"phone" validate:"omitempty,max=20"`
	Gender    string    `gorm:"type:varchar(10)" json:"gender" validate:"omitempty,oneof=M F O"`
	JoinDate  time.Time `gorm:"autoCreateTime" json:"join_date"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}
