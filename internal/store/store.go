/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists schedule versions and their audit trail.
//
// The schedules table holds one head row per schedule whose version column is
// the compare-and-swap counter. A commit bumps the counter, inserts the
// immutable snapshot and appends the audit entry in a single transaction, so
// either all three land or none do.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/athleon_scheduler/internal/audit"
	"github.com/friendsincode/athleon_scheduler/internal/models"
	"github.com/friendsincode/athleon_scheduler/internal/scheduling"
)

// Store is the gorm-backed version and audit store.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
	now     func() time.Time
	audit   *audit.Service
	logger  zerolog.Logger
}

// New creates a store. Every call runs under timeout.
func New(db *gorm.DB, timeout time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		db:      db,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		audit:   audit.NewService(db, timeout, logger),
		logger:  logger.With().Str("component", "version_store").Logger(),
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// writeErr maps a failed write. When the deadline fired the transaction may
// or may not have committed, so the caller gets ErrUnknownOutcome.
func writeErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, scheduling.ErrUnknownOutcome)
	}
	var conflict *scheduling.VersionConflictError
	var notFound *scheduling.NotFoundError
	if errors.As(err, &conflict) || errors.As(err, &notFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Create stores version 1 of a new schedule together with its first audit
// entry. The audit entry's versions, sequence and hash are filled in here.
func (s *Store) Create(ctx context.Context, sched *models.Schedule, entry models.AuditLogEntry) (*models.AuditLogEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	sched.Version = 1
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = now
	}
	sched.UpdatedAt = now

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ScheduleRecord
		res := tx.Where("schedule_id = ?", sched.ScheduleID).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return &scheduling.VersionConflictError{ScheduleID: sched.ScheduleID, Expected: 0, Current: existing.Version}
		}

		head := models.ScheduleRecord{
			ScheduleID: sched.ScheduleID,
			EventID:    sched.EventID,
			Version:    1,
			CreatedBy:  entry.UserID,
			CreatedAt:  sched.CreatedAt,
			UpdatedAt:  now,
		}
		if err := tx.Create(&head).Error; err != nil {
			return fmt.Errorf("insert schedule head: %w", err)
		}
		return s.appendVersion(tx, sched, 0, &entry, now)
	})
	if err != nil {
		return nil, writeErr(ctx, "create schedule", err)
	}

	s.logger.Info().
		Str("schedule_id", sched.ScheduleID).
		Str("event_id", sched.EventID).
		Msg("schedule created")
	return &entry, nil
}

// Commit stores sched as the version after expectedVersion. It fails with a
// VersionConflictError when another commit got there first.
func (s *Store) Commit(ctx context.Context, sched *models.Schedule, expectedVersion int, entry models.AuditLogEntry) (*models.AuditLogEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	next := expectedVersion + 1

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ScheduleRecord{}).
			Where("schedule_id = ? AND event_id = ? AND version = ?", sched.ScheduleID, sched.EventID, expectedVersion).
			Updates(map[string]any{"version": next, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("advance version: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var head models.ScheduleRecord
			found := tx.Where("schedule_id = ? AND event_id = ?", sched.ScheduleID, sched.EventID).Limit(1).Find(&head)
			if found.Error != nil {
				return found.Error
			}
			if found.RowsAffected == 0 {
				return scheduling.NotFound("schedule", sched.ScheduleID)
			}
			return &scheduling.VersionConflictError{ScheduleID: sched.ScheduleID, Expected: expectedVersion, Current: head.Version}
		}

		sched.Version = next
		sched.UpdatedAt = now
		return s.appendVersion(tx, sched, expectedVersion, &entry, now)
	})
	if err != nil {
		sched.Version = expectedVersion
		return nil, writeErr(ctx, "commit schedule", err)
	}

	s.logger.Info().
		Str("schedule_id", sched.ScheduleID).
		Int("version", next).
		Str("change_type", string(entry.ChangeType)).
		Msg("schedule version committed")
	return &entry, nil
}

func (s *Store) appendVersion(tx *gorm.DB, sched *models.Schedule, before int, entry *models.AuditLogEntry, now time.Time) error {
	snapshot := models.ScheduleVersion{
		ScheduleID: sched.ScheduleID,
		EventID:    sched.EventID,
		Version:    sched.Version,
		ChangeType: entry.ChangeType,
		CreatedBy:  entry.UserID,
		Snapshot:   *sched,
		CreatedAt:  now,
	}
	if err := tx.Create(&snapshot).Error; err != nil {
		return fmt.Errorf("insert snapshot v%d: %w", sched.Version, err)
	}

	var prev models.AuditLogEntry
	res := tx.Where("schedule_id = ?", sched.ScheduleID).Order("sequence_number DESC").Limit(1).Find(&prev)
	if res.Error != nil {
		return fmt.Errorf("load last audit entry: %w", res.Error)
	}

	entry.ScheduleID = sched.ScheduleID
	entry.EventID = sched.EventID
	entry.BeforeVersion = before
	entry.AfterVersion = sched.Version
	entry.Timestamp = now
	var prevPtr *models.AuditLogEntry
	entry.SequenceNumber = 1
	if res.RowsAffected > 0 {
		prevPtr = &prev
		entry.SequenceNumber = prev.SequenceNumber + 1
	}
	audit.Seal(entry, prevPtr)

	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Get returns the schedule at version, or the latest version when version <= 0.
func (s *Store) Get(ctx context.Context, eventID, scheduleID string, version int) (*models.Schedule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	db := s.db.WithContext(ctx)
	if version <= 0 {
		var head models.ScheduleRecord
		res := db.Where("schedule_id = ? AND event_id = ?", scheduleID, eventID).Limit(1).Find(&head)
		if res.Error != nil {
			return nil, fmt.Errorf("load schedule head: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, scheduling.NotFound("schedule", scheduleID)
		}
		version = head.Version
	}

	var row models.ScheduleVersion
	res := db.Where("schedule_id = ? AND event_id = ? AND version = ?", scheduleID, eventID, version).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("load schedule v%d: %w", version, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, scheduling.NotFound("schedule version", fmt.Sprintf("%s@%d", scheduleID, version))
	}

	sched := row.Snapshot
	return &sched, nil
}

// Versions lists a schedule's history, newest first, without snapshots.
func (s *Store) Versions(ctx context.Context, eventID, scheduleID string) ([]models.ScheduleVersion, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []models.ScheduleVersion
	err := s.db.WithContext(ctx).
		Select("id", "schedule_id", "event_id", "version", "change_type", "created_by", "created_at").
		Where("schedule_id = ? AND event_id = ?", scheduleID, eventID).
		Order("version DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	if len(rows) == 0 {
		return nil, scheduling.NotFound("schedule", scheduleID)
	}
	return rows, nil
}

// ListSchedules returns the head rows of every schedule of an event.
func (s *Store) ListSchedules(ctx context.Context, eventID string) ([]models.ScheduleRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []models.ScheduleRecord
	if err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return rows, nil
}

// AuditLog returns a schedule's audit entries ordered by sequence number.
func (s *Store) AuditLog(ctx context.Context, scheduleID string, filters audit.QueryFilters) ([]models.AuditLogEntry, int64, error) {
	return s.audit.Query(ctx, scheduleID, filters)
}

// VerifyAudit recomputes a schedule's audit hash chain.
func (s *Store) VerifyAudit(ctx context.Context, scheduleID string) (audit.VerifyResult, error) {
	return s.audit.Verify(ctx, scheduleID)
}
