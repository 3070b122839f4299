package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/librarydesk/librarydesk/internal/entities"
)

// connParams are appended to the SQLite path. Foreign keys are off by default
// in SQLite and must be enabled per connection.
const connParams = "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	return Open(dbPath, logger.Warn)
}

// Open connects to the SQLite file at dbPath, migrates the schema and
// normalizes rows written by older releases.
func Open(dbPath string, logLevel logger.LogLevel) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath+connParams), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// A single connection serializes writers; lifecycle transactions rely on it.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&entities.Book{},
		&entities.Member{},
		&entities.Borrowing{},
		&entities.AuditEvent{},
		&entities.Setting{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	database := &Database{DB: db}

	if err := database.normalizeLegacyStatuses(); err != nil {
		return nil, fmt.Errorf("failed to normalize borrowing statuses: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return database, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity for health reporting.
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// normalizeLegacyStatuses rewrites persisted "overdue" statuses to "borrowed".
// Overdue is derived from the due date at read time.
func (d *Database) normalizeLegacyStatuses() error {
	result := d.DB.Model(&entities.Borrowing{}).
		Where("status = ?", entities.BorrowingStatusOverdue).
		Update("status", entities.BorrowingStatusBorrowed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Normalized %d legacy overdue borrowings to borrowed", result.RowsAffected)
	}
	return nil
}
