package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
)

type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Email       string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Password    string         `gorm:"type:text" json:"-" validate:"required"`
	Status      string         `gorm:"type:varchar(20);default:'inactive'" json:"status" validate:"oneof=active inactive"`
	IsSuperuser bool           `gorm:"default:false" json:"-"`
	LastLoginAt *time.Time     `gorm:"default:null" json:"last_login_at"`
	Profile     *Profile       `gorm:"foreignKey:UserID" json:"profile,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// NewUser builds an inactive user with a hashed password. It does not persist anything.
func NewUser(name, email, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:     strings.TrimSpace(name),
		Email:    NormalizeEmail(email),
		Password: pw,
		Status:   STATUS_INACTIVE,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// IsActive reports whether the account has been verified
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.Password)
}

// SetPassword hashes and sets a new password for the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Password = hashedPassword
	return nil
}

// IsManagement is true for superusers and for Management profiles.
func (u *User) IsManagement() bool {
	if u.IsSuperuser {
		return true
	}
	return u.Profile != nil && u.Profile.Type == PROFILE_MANAGEMENT
}

// IsClient is true only for users holding a Client profile.
func (u *User) IsClient() bool {
	return u.Profile != nil && u.Profile.Type == PROFILE_CLIENT
}
