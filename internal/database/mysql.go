package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"rightblock/internal/store"
)

// KVEntry is one stored key
type KVEntry struct {
	Key       string    `gorm:"column:entry_key;primaryKey;size:191"`
	Value     string    `gorm:"column:value;type:longtext"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}

// GormStore is a store.Backend on a MySQL kv_entries table. It has no push
// notifications; controllers rely on the periodic invalidate job.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	gs := &GormStore{db: db}
	if err := gs.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to migrate kv_entries: %w", err)
	}
	return gs, nil
}

// NewGormStoreFromDB creates a GormStore wrapper from an existing gorm.DB instance
func NewGormStoreFromDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// InitSchema creates the kv_entries table using GORM AutoMigrate
func (gs *GormStore) InitSchema() error {
	return gs.db.AutoMigrate(&KVEntry{})
}

func (gs *GormStore) Get(ctx context.Context, key string) (string, error) {
	var e KVEntry
	err := gs.db.WithContext(ctx).Where("entry_key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

func (gs *GormStore) Set(ctx context.Context, key, value string) error {
	e := KVEntry{Key: key, Value: value}
	return gs.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&e).Error
}

func (gs *GormStore) Delete(ctx context.Context, key string) error {
	return gs.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&KVEntry{}).Error
}

func (gs *GormStore) Close() error {
	sqlDB, err := gs.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
