package db

import (
	"context"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pledgedesk/internal/config"
	"pledgedesk/internal/logger"
	"pledgedesk/internal/models"
)

// Connect establishes a connection to the database and migrates the schema
func Connect(config config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.URL), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	// Create a default admin user if none exists
	createDefaultAdmin(db)

	return db, nil
}

// Migrate runs the schema migration for all engine models
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Pledge{},
		&models.ExecutionRecord{},
		&models.AuditLogEntry{},
	)
}

// ConnectRedis establishes a connection to Redis
func ConnectRedis(config config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	ctx := context.Background()

	// Test the connection
	_, err = client.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}

	return client, nil
}

// createDefaultAdmin creates a default admin user if no users exist
func createDefaultAdmin(db *gorm.DB) {
	var userCount int64
	db.Model(&models.User{}).Count(&userCount)
	if userCount == 0 {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("changeme-on-first-login"), bcrypt.DefaultCost)
		db.Create(&models.User{
			Username:       "admin",
			HashedPassword: string(hashedPassword),
			Email:          "ops@pledgedesk.local",
			Role:           "admin",
		})
		logger.Get().WithField("username", "admin").Info("created default admin user")
	}
}
