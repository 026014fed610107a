package database

import (
	"fmt"
	"os"
	"path/filepath"

	"snapkeep/internal/config"
	"snapkeep/internal/snap"
)

// HistoryFileName is the name of the SQLite file inside the database data dir.
const HistoryFileName = "history.db"

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
// The in-memory database is migrated immediately since nothing else could have done so.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (snap.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		db, err := NewSQLiteDatabase(filepath.Join(cfg.DataDir, HistoryFileName))
		if err != nil {
			return nil, err
		}
		return db, nil
	case "memory":
		db, err := NewSQLiteDatabase(memoryPath)
		if err != nil {
			return nil, err
		}
		if err := db.MigrateUp(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
