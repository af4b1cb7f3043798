package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	CreateWithProfile(user *models.User, profile *models.Profile) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Activate(id uint) error
	UpdatePassword(id uint, hash string) error
	TouchLastLogin(id uint) error
}

// ReportRepository defines the interface for the report catalogue
type ReportRepository interface {
	Create(report *models.Report) error
	GetByID(id uint) (*models.Report, error)
	GetActiveByID(id uint) (*models.Report, error)
	ListActive(category string) ([]models.Report, error)
	Update(report *models.Report) error
}

// OrderRepository defines read-side order queries used by dashboards and management
type OrderRepository interface {
	GetForClient(orderID, clientID uint) (*models.Order, error)
	ListByClient(clientID uint) ([]models.Order, error)
	ListByStatus(status string) ([]models.Order, error)
	GetTransaction(orderID uint) (*models.Transaction, error)
	PaidTransactionsSince(since time.Time) ([]models.Transaction, error)
	ClientStats(clientID uint) (*ClientStats, error)
}

// ClientStats summarises a client's purchases for the dashboard.
type ClientStats struct {
	TotalPurchased int64 `json:"total_purchased"`
	TotalSpent     int64 `json:"total_spent_cents"`
}

// MonthlyRevenue is one row of the management revenue report.
type MonthlyRevenue struct {
	Month        string `json:"month"`
	AmountCents  int64  `json:"amount_cents"`
	Transactions int    `json:"transactions"`
}

// Repositories struct holds all repository instances
type Repositories struct {
	User   UserRepository
	Report ReportRepository
	Order  OrderRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:   NewUserRepository(db),
		Report: NewReportRepository(db),
		Order:  NewOrderRepository(db),
	}
}
