package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"school-evoting-backend/migrations"
	"school-evoting-backend/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database connection.
var DB *gorm.DB

// InitDB opens the MySQL connection from environment configuration and
// migrates the election schema.
func InitDB() error {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	dbUser := getEnv("DB_USER", "evote")
	dbPassword := getEnv("DB_PASSWORD", "evotepassword")
	dbHost := getEnv("DB_HOST", "mysql")
	dbPort := getEnv("DB_PORT", "3306")
	dbName := getEnv("DB_NAME", "evotingdb")

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		dbUser, dbPassword, dbHost, dbPort, dbName)

	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(DB); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := migrations.AddClassNameToVoters(DB); err != nil {
		return fmt.Errorf("failed to run column migrations: %w", err)
	}

	if getEnv("ENVIRONMENT", "development") == "development" {
		createSampleData()
	}

	log.Println("database connection and migration successful")
	return nil
}

// Migrate runs the schema migration for all election models. It is shared
// with the test setup, which runs it against an in-memory SQLite database.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Voter{},
		&models.VoteToken{},
		&models.Candidate{},
		&models.Vote{},
		&models.ElectionState{},
	)
}

// createSampleData seeds a few candidates and a closed election state for
// local development.
func createSampleData() {
	var count int64
	DB.Model(&models.Candidate{}).Count(&count)
	if count > 0 {
		log.Println("database already seeded, skipping sample data")
		return
	}

	log.Println("creating sample data...")

	candidates := []models.Candidate{
		{Name: "Alice Anderson", Motto: "A voice for every class", IsActive: true, Position: 1},
		{Name: "Bob Becker", Motto: "Longer lunch breaks", IsActive: true, Position: 2},
		{Name: "Carla Chen", Motto: "More clubs, more choice", IsActive: true, Position: 3},
	}
	if err := DB.Create(&candidates).Error; err != nil {
		log.Printf("failed to create sample candidates: %v", err)
		return
	}

	state := models.ElectionState{VotingOpen: false}
	if err := DB.Create(&state).Error; err != nil {
		log.Printf("failed to create election state: %v", err)
		return
	}

	log.Println("sample data created")
}

// CloseDB closes the underlying SQL connection.
func CloseDB() {
	sqlDB, err := DB.DB()
	if err != nil {
		log.Printf("failed to get database connection: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("failed to close database connection: %v", err)
		return
	}

	log.Println("database connection closed")
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
