// Package storage holds the gorm models and repositories shared by the
// sqlite and postgres backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRecord is one flat key/value entry.
type SettingRecord struct {
	Key       string    `gorm:"primaryKey;type:varchar(191)"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the default table name for GORM.
func (SettingRecord) TableName() string {
	return "app_setting"
}

// Migrate creates or updates every table this package owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&SettingRecord{}); err != nil {
		return fmt.Errorf("auto-migrate setting table: %w", err)
	}
	return nil
}

// Settings is a key/value repository over app_setting.
type Settings struct {
	db *gorm.DB
}

func NewSettings(db *gorm.DB) *Settings {
	return &Settings{db: db}
}

// Get returns the stored value. ok is false when the key has never been written.
func (s *Settings) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	var rec SettingRecord
	err = s.db.WithContext(ctx).Where(&SettingRecord{Key: key}).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return rec.Value, true, nil
}

// Put inserts or overwrites key.
func (s *Settings) Put(ctx context.Context, key, value string) error {
	rec := SettingRecord{Key: key, Value: value, UpdatedAt: time.Now()}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec)
	if tx.Error != nil {
		return fmt.Errorf("put setting %q: %w", key, tx.Error)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Settings) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where(&SettingRecord{Key: key}).Delete(&SettingRecord{}).Error; err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}
	return nil
}
