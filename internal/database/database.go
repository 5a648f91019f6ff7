package database

import (
	"fmt"

	"layover-match/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Initialize(databaseURL string) (*gorm.DB, error) {
	return Open(postgres.Open(databaseURL), logger.Warn)
}

// Open connects through dialector, checks the connection and migrates the
// schema.
func Open(dialector gorm.Dialector, level logger.LogLevel) (*gorm.DB, error) {
	// Configure GORM
	config := &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logrus.WithField("component", "database").
		WithField("dialect", db.Dialector.Name()).
		Info("Database connected and migrated successfully")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Profile{},
		&models.Like{},
		&models.Match{},
		&models.Message{},
		&models.Airport{},
	)
}

func SeedAirports(db *gorm.DB) error {
	for _, airport := range models.DefaultAirports() {
		airport := airport
		if err := db.FirstOrCreate(&airport, models.Airport{Code: airport.Code}).Error; err != nil {
			return fmt.Errorf("failed to seed airport %s: %w", airport.Code, err)
		}
	}

	logrus.WithField("component", "database").Info("Airports seeded successfully")
	return nil
}
