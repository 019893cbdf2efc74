package migrations

import (
	"gorm.io/gorm"
)

// Migration001SecureKV creates the namespaced key-value table behind the
// sqlite secure store.
type Migration001SecureKV struct{}

func (m *Migration001SecureKV) Version() string {
	return "001_secure_kv"
}

func (m *Migration001SecureKV) Description() string {
	return "Create secure_kv table for session and onboarding keys"
}

func (m *Migration001SecureKV) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS secure_kv (
			namespace VARCHAR(64) NOT NULL,
			"key" VARCHAR(255) NOT NULL,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (namespace, "key")
		)
	`).Error; err != nil {
		return err
	}

	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_secure_kv_updated ON secure_kv(updated_at)`).Error
}

func (m *Migration001SecureKV) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS secure_kv`).Error
}
