package database

import (
	"fmt"
	"os"
	"path/filepath"

	"drive-go/internal/config"
	"drive-go/internal/drive"
)

// FileName is the name of the state database inside data_dir.
const FileName = "drive.db"

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (drive.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		return open(filepath.Join(cfg.DataDir, FileName))
	case "memory":
		return open(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// open keeps a failed open from turning into a non-nil interface.
func open(path string) (drive.Database, error) {
	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
