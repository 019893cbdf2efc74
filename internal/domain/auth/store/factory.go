package store

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"guardian-shell/internal/domain/auth/model"
)

// Driver identifiers supported by the secure store.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Dependencies captures external handles required by certain drivers.
type Dependencies struct {
	SQLiteDB *gorm.DB
	Logger   model.Logger
}

// New creates a store for cfg.Driver, sealed when cfg.SealKey is set.
func New(cfg Config, deps Dependencies) (Store, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "" {
		driver = DriverMemory
	}

	var (
		base Store
		err  error
	)
	switch driver {
	case DriverMemory:
		base = NewMemory(cfg)
	case DriverSQLite:
		if deps.SQLiteDB == nil {
			return nil, fmt.Errorf("sqlite driver requires database handle")
		}
		base, err = NewSQLite(deps.SQLiteDB, cfg)
	case DriverRedis:
		base, err = NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported secure store driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}

	if len(cfg.SealKey) == 0 {
		return base, nil
	}
	return NewSealed(base, cfg.SealKey, deps.Logger)
}
