package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"marketdesk/pkg/storage"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SQLiteClient struct {
	DB *gorm.DB
}

// NewClient opens (creating if needed) the database file at path.
// ":memory:" opens a private in-memory database.
func NewClient(path string) (*SQLiteClient, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// sqlite allows a single writer
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &SQLiteClient{DB: db}, nil
}

// InitializeAndMigrate opens path and runs AutoMigrate.
func InitializeAndMigrate(path string) (*SQLiteClient, error) {
	client, err := NewClient(path)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(client.DB); err != nil {
		client.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return client, nil
}

func (c *SQLiteClient) IsHealthy(ctx context.Context) bool {
	db, err := c.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (c *SQLiteClient) Close() error {
	db, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
