package database

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/revitek/scheduling-engine/internal/config"
	"github.com/revitek/scheduling-engine/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect connects to the PostgreSQL database.
func Connect(cfg config.Database) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate runs database migrations for the full reservation-engine schema.
func Migrate(db *gorm.DB) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create uuid extension: %w", err)
	}

	err := db.AutoMigrate(
		&models.Client{},
		&models.Vehicle{},
		&models.Commune{},
		&models.Address{},
		&models.Professional{},
		&models.ProfessionalService{},
		&models.WorkSchedule{},
		&models.Break{},
		&models.Service{},
		&models.ServiceTimeRule{},
		&models.ScheduleException{},
		&models.SlotBlock{},
		&models.Slot{},
		&models.Reservation{},
		&models.ReservationSlot{},
		&models.ReservationService{},
		&models.StatusHistory{},
		&models.ChatSession{},
		&models.AdminAudit{},
	)
	if err != nil {
		return fmt.Errorf("failed to run auto-migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createIndexes creates additional indexes for common query patterns that
// GORM struct tags can't express directly.
func createIndexes(db *gorm.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_reservations_prof_status ON reservations(professional_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_reservations_created_at ON reservations(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_status_histories_reservation ON status_histories(reservation_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_slots_prof_status_start ON slots(professional_id, status, start_datetime)",
		"CREATE INDEX IF NOT EXISTS idx_chat_sessions_expires_at ON chat_sessions(expires_at)",
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// ConnectRedis connects to Redis, used as the hot store for chat sessions
// (see repository.ChatSessionRepository).
func ConnectRedis(cfg config.Redis) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	return client, nil
}
