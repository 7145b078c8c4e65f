package config

import (
	"fmt"
	"strings"

	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

var DB *gorm.DB

// ConnectDatabase opens the database named by databaseURL.
// A sqlite:// prefix selects the embedded driver, anything else is treated as PostgreSQL.
func ConnectDatabase(databaseURL string) error {
	if databaseURL == "" {
		return fmt.Errorf("database URL is empty")
	}

	db, err := gorm.Open(dialectorFor(databaseURL), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if strings.HasPrefix(databaseURL, sqlitePrefix) {
		// sqlite allows a single writer
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	DB = db
	logger.Info("Database connection established successfully", map[string]interface{}{
		"driver": db.Dialector.Name(),
	})
	return nil
}

func dialectorFor(databaseURL string) gorm.Dialector {
	if strings.HasPrefix(databaseURL, sqlitePrefix) {
		return sqlite.Open(strings.TrimPrefix(databaseURL, sqlitePrefix))
	}
	return postgres.Open(databaseURL)
}

// Migrate creates or updates every table the service owns
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Account{},
		&models.Session{},
		&models.User{},
		&models.Request{},
		&models.Vendor{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// SetDB replaces the database instance (primarily for testing)
func SetDB(db *gorm.DB) {
	DB = db
}
