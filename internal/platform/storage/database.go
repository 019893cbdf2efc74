package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"guardian-shell/internal/platform/errors"
	"guardian-shell/internal/platform/storage/migrations"
)

// SecureKV is a row of the secure_kv table.
type SecureKV struct {
	Namespace string    `gorm:"primaryKey;type:varchar(64)"`
	Key       string    `gorm:"primaryKey;type:varchar(255)"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (SecureKV) TableName() string {
	return "secure_kv"
}

// Open opens the sqlite database at dsn, creating its directory, and applies
// pending migrations. ":memory:" and "file:" DSNs are passed through.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New(errors.KindStorage, "storage.open", "sqlite dsn is empty")
	}

	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to create data directory", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to open database", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate registers and runs the shell's schema migrations.
func Migrate(db *gorm.DB) error {
	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001SecureKV{})
	return manager.RunMigrations()
}

// Close releases the underlying sql.DB.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.close", "failed to access sql db", err)
	}
	return sqlDB.Close()
}
