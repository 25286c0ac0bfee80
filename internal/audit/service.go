/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

// DefaultLimit caps an unpaginated query.
const DefaultLimit = 500

// Service reads a schedule's audit trail. Entries are written by the version
// store inside the commit transaction, never here.
type Service struct {
	db      *gorm.DB
	timeout time.Duration
	logger  zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, timeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		db:      db,
		timeout: timeout,
		logger:  logger.With().Str("component", "audit").Logger(),
	}
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	UserID     string
	ChangeType models.ChangeType
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// Query retrieves a schedule's audit entries ordered by sequence number,
// along with the total matching the filters.
func (s *Service) Query(ctx context.Context, scheduleID string, filters QueryFilters) ([]models.AuditLogEntry, int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var entries []models.AuditLogEntry
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLogEntry{}).Where("schedule_id = ?", scheduleID)

	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.ChangeType != "" {
		query = query.Where("change_type = ?", filters.ChangeType)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", filters.StartTime.UTC())
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", filters.EndTime.UTC())
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	query = query.Limit(limit)
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("sequence_number ASC").Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}

	return entries, total, nil
}

// Verify recomputes the hash chain of a schedule's full audit trail.
func (s *Service) Verify(ctx context.Context, scheduleID string) (VerifyResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var entries []models.AuditLogEntry
	if err := s.db.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("sequence_number ASC").
		Find(&entries).Error; err != nil {
		return VerifyResult{}, fmt.Errorf("load audit chain: %w", err)
	}

	res := Verify(entries)
	if !res.Valid {
		s.logger.Warn().
			Str("schedule_id", scheduleID).
			Int("broken_at", res.BrokenAt).
			Str("reason", res.Reason).
			Msg("audit chain verification failed")
	}
	return res, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
