package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReportFox/app/models"
	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// GetDB returns the handle opened by SetupDatabase.
func GetDB() *gorm.DB {
	return DB
}

// Dialector picks the GORM driver for cfg.Driver.
func Dialector(cfg config.DBConfig) gorm.Dialector {
	if cfg.Driver == "postgres" {
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port)
		return postgres.Open(dsn)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
	return mysql.New(mysql.Config{
		DSN:                       dsn,
		DefaultStringSize:         256,
		DisableDatetimePrecision:  true,
		DontSupportRenameIndex:    true,
		DontSupportRenameColumn:   true,
		SkipInitializeWithVersion: false,
	})
}

// SetupDatabase opens the database with retries and migrates the schema.
func SetupDatabase(cfg config.DBConfig) (*gorm.DB, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(Dialector(cfg), &gorm.Config{})
		if err == nil {
			if err = Migrate(DB); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			return DB, nil
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// Migrate creates or updates every table the application owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Report{},
		&models.Order{},
		&models.OrderLine{},
		&models.Transaction{},
		&models.TransactionAttempt{},
		&models.EntitlementRecord{},
		&models.PaymentWebhookEvent{},
	)
}
