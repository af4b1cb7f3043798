package database

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/ReportFox/internal/pkg/config"
)

// ErrMigrationsUnsupported is returned for drivers that only use AutoMigrate.
var ErrMigrationsUnsupported = errors.New("sql migrations are only shipped for mysql; postgres schemas are created by AutoMigrate")

// MigrationURL builds the golang-migrate database URL for cfg.
func MigrationURL(cfg config.DBConfig) (string, error) {
	if cfg.Driver != "" && cfg.Driver != "mysql" {
		return "", ErrMigrationsUnsupported
	}
	creds := url.UserPassword(cfg.User, cfg.Password).String()
	return fmt.Sprintf("mysql://%s@tcp(%s:%s)/%s?multiStatements=true&parseTime=true",
		creds, cfg.Host, cfg.Port, cfg.Name), nil
}

// NewMigrator opens golang-migrate on the SQL files in dir.
func NewMigrator(cfg config.DBConfig, dir string) (*migrate.Migrate, error) {
	dbURL, err := MigrationURL(cfg)
	if err != nil {
		return nil, err
	}
	m, err := migrate.New("file://"+dir, dbURL)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}
