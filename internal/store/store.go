package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"github.com/pilltrack/pilltrack/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides unified access to SQLite and BadgerDB
type Store struct {
	db     *gorm.DB
	badger *badger.DB
	config *config.StorageConfig
}

// New creates a new Store instance
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "pilltrack.db")
	}

	// Open SQLite with optimizations
	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-64000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.AutoMigrate(
		&AuditEntry{},
		&RefillEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "snapshots")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil). // Disable verbose logging
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20). // 16MB value log files
		WithMemTableSize(16 << 20)      // 16MB memtable

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{
		db:     db,
		badger: badgerDB,
		config: &cfg.Storage,
	}, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	return s.badger.Close()
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Badger returns the BadgerDB instance
func (s *Store) Badger() *badger.DB {
	return s.badger
}

// ==================== Audit Methods ====================

// RecordAudit appends an entry to the access history
func (s *Store) RecordAudit(action, subject, detail string) error {
	entry := &AuditEntry{
		Action:  action,
		Subject: subject,
		Detail:  detail,
	}
	return s.db.Create(entry).Error
}

// ListAudit lists the most recent audit entries, newest first
func (s *Store) ListAudit(limit int) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := s.db.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// ==================== Refill Methods ====================

// RecordRefill logs a refill event
func (s *Store) RecordRefill(medicationID string, quantity int) error {
	event := &RefillEvent{
		MedicationID: medicationID,
		Quantity:     quantity,
	}
	return s.db.Create(event).Error
}

// ListRefills lists refill events for a medication, newest first
func (s *Store) ListRefills(medicationID string, limit int) ([]RefillEvent, error) {
	var events []RefillEvent
	err := s.db.Where("medication_id = ?", medicationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
