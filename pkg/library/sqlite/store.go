// Package sqlite provides a SQLite-backed script library store using a pure
// Go driver, for deployments that prefer a single database file over a
// script directory.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/entrhq/autopilot/pkg/library"
	"github.com/entrhq/autopilot/pkg/types"
)

// record is the persisted row. The full script (including its audit trace)
// is stored as JSON; the fingerprint is the primary key, so replacement is a
// single upsert.
type record struct {
	Fingerprint string `gorm:"primaryKey;column:fingerprint"`
	ScriptID    string `gorm:"column:script_id"`
	Payload     []byte `gorm:"column:payload"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (record) TableName() string { return "scripts" }

// Store implements library.Store on a SQLite database file.
type Store struct {
	db *gorm.DB
}

// New opens (and migrates) the database at path.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("library: sqlite path is required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("library: open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("library: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the stored script for the fingerprint, or library.ErrNotFound.
func (s *Store) Get(ctx context.Context, fingerprint string) (*types.GeneratedScript, error) {
	var r record
	err := s.db.WithContext(ctx).First(&r, "fingerprint = ?", fingerprint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, library.ErrNotFound
	}
	if err != nil {
		return nil, types.PersistenceError("sqlite get %s: %v", fingerprint, err)
	}

	var script types.GeneratedScript
	if err := json.Unmarshal(r.Payload, &script); err != nil {
		return nil, types.PersistenceError("sqlite decode %s: %v", fingerprint, err)
	}
	return &script, nil
}

// Put upserts the entry for the script's fingerprint. The upsert is a single
// statement, so concurrent writers for the same fingerprint cannot
// interleave partial writes.
func (s *Store) Put(ctx context.Context, script *types.GeneratedScript) error {
	if script.Status != types.StatusPassed {
		return fmt.Errorf("library: refusing to store script with status %s", script.Status)
	}

	payload, err := json.Marshal(script)
	if err != nil {
		return types.PersistenceError("sqlite encode script %s: %v", script.ID, err)
	}

	r := record{
		Fingerprint: script.Fingerprint,
		ScriptID:    script.ID,
		Payload:     payload,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoUpdates: clause.AssignmentColumns([]string{"script_id", "payload", "updated_at"}),
	}).Create(&r).Error
	if err != nil {
		return types.PersistenceError("sqlite put %s: %v", script.Fingerprint, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("library: sqlite close: %w", err)
	}
	return sqlDB.Close()
}
