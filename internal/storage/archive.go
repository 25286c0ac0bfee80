/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

// SnapshotKey is the object key of one schedule version.
func SnapshotKey(eventID, scheduleID string, version int) string {
	return fmt.Sprintf("schedules/%s/%s/v%d.json", eventID, scheduleID, version)
}

// Archiver copies committed schedule snapshots to an object store.
type Archiver struct {
	store  ObjectStore
	logger zerolog.Logger
}

// NewArchiver creates an archiver writing to store.
func NewArchiver(store ObjectStore, logger zerolog.Logger) *Archiver {
	return &Archiver{
		store:  store,
		logger: logger.With().Str("component", "snapshot_archiver").Logger(),
	}
}

// ArchiveVersion writes the schedule under its versioned key.
func (a *Archiver) ArchiveVersion(ctx context.Context, sched *models.Schedule) error {
	data, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	key := SnapshotKey(sched.EventID, sched.ScheduleID, sched.Version)
	if err := a.store.Put(ctx, key, data); err != nil {
		return err
	}
	a.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("schedule snapshot archived")
	return nil
}

// LoadVersion reads an archived snapshot back.
func (a *Archiver) LoadVersion(ctx context.Context, eventID, scheduleID string, version int) (*models.Schedule, error) {
	data, err := a.store.Get(ctx, SnapshotKey(eventID, scheduleID, version))
	if err != nil {
		return nil, err
	}
	var sched models.Schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &sched, nil
}
