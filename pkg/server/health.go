package server

import (
	"context"

	"gorm.io/gorm"

	"github.com/cryoetdb/cryoetdb/pkg/db"
)

// HealthChecker reports whether the backing database is reachable
type HealthChecker interface {
	CheckConnectivity(ctx context.Context) error
}

// DBHealth checks connectivity with a trivial statement
type DBHealth struct {
	db *gorm.DB
}

// NewDBHealth creates a new DBHealth
func NewDBHealth(database *gorm.DB) *DBHealth {
	return &DBHealth{db: database}
}

// CheckConnectivity verifies database connectivity
func (h *DBHealth) CheckConnectivity(ctx context.Context) error {
	if err := h.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return db.Classify(err)
	}
	return nil
}
