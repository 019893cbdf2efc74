package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"guardian-shell/internal/platform/storage"
)

type sqliteStore struct {
	db        *gorm.DB
	namespace string
}

// NewSQLite builds a store over the secure_kv table. The caller owns db and
// must have run the storage migrations.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{
		db:        db,
		namespace: namespaceOf(cfg),
	}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var row storage.SecureKV
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND `key` = ?", s.namespace, key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key, value string) error {
	row := storage.SecureKV{
		Namespace: s.namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (s *sqliteStore) Remove(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).
		Where("namespace = ? AND `key` = ?", s.namespace, key).
		Delete(&storage.SecureKV{}).Error
}

func (s *sqliteStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&storage.SecureKV{}).
		Where("namespace = ?", s.namespace).
		Order("`key`").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&storage.SecureKV{}).
		Where("namespace = ?", s.namespace).
		Count(&total).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":      "sqlite",
		"namespace": s.namespace,
		"total":     total,
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}
