/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ChangeType identifies the operation that produced a schedule version.
type ChangeType string

// Change types recorded in the audit log.
const (
	ChangeTypeGenerate     ChangeType = "generate"
	ChangeTypeUpdateStatus ChangeType = "update_status"
	ChangeTypeSubstitute   ChangeType = "substitute"
	ChangeTypeSwap         ChangeType = "swap"
	ChangeTypeAdjustTime   ChangeType = "adjust_time"
	ChangeTypeMoveAthlete  ChangeType = "move_athlete"
	ChangeTypeAddHeat      ChangeType = "add_heat"
	ChangeTypeRemoveHeat   ChangeType = "remove_heat"
	ChangeTypeRevert       ChangeType = "revert"
)

// AuditLogEntry records one committed change to a schedule.
// Entries are append-only and ordered by SequenceNumber within a schedule.
type AuditLogEntry struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"-"`
	ScheduleID     string         `gorm:"type:varchar(64);uniqueIndex:idx_audit_schedule_seq;not null" json:"scheduleId"`
	EventID        string         `gorm:"type:varchar(64);index:idx_audit_event" json:"eventId"`
	SequenceNumber int            `gorm:"uniqueIndex:idx_audit_schedule_seq;not null" json:"sequenceNumber"`
	Timestamp      time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	UserID         string         `gorm:"type:varchar(64);index:idx_audit_user" json:"userId"`
	ChangeType     ChangeType     `gorm:"type:varchar(32);index:idx_audit_change_type;not null" json:"changeType"`
	BeforeVersion  int            `json:"beforeVersion"`
	AfterVersion   int            `json:"afterVersion"`
	Details        map[string]any `gorm:"type:jsonb;serializer:json" json:"details,omitempty"`
	PrevHash       string         `gorm:"type:varchar(64)" json:"prevHash,omitempty"`
	Hash           string         `gorm:"type:varchar(64)" json:"hash"`
}

// TableName returns the table name for GORM.
func (AuditLogEntry) TableName() string {
	return "schedule_audit_logs"
}
