/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Version & audit store
		&models.ScheduleRecord{},
		&models.ScheduleVersion{},
		&models.AuditLogEntry{},

		// Event roster
		&models.RegisteredAthlete{},
		&models.EventCategory{},
		&models.EventWod{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
