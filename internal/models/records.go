/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ScheduleRecord is the head row of a schedule. Version is the
// compare-and-swap counter guarding every commit.
type ScheduleRecord struct {
	ScheduleID string    `gorm:"type:varchar(64);primaryKey" json:"scheduleId"`
	EventID    string    `gorm:"type:varchar(64);index:idx_schedules_event;not null" json:"eventId"`
	Version    int       `gorm:"not null" json:"version"`
	CreatedBy  string    `gorm:"type:varchar(64)" json:"createdBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName returns the table name for GORM.
func (ScheduleRecord) TableName() string {
	return "schedules"
}

// ScheduleVersion is an immutable snapshot of a schedule at one version.
type ScheduleVersion struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"-"`
	ScheduleID string     `gorm:"type:varchar(64);uniqueIndex:idx_schedule_versions_key;not null" json:"scheduleId"`
	EventID    string     `gorm:"type:varchar(64);index" json:"eventId"`
	Version    int        `gorm:"uniqueIndex:idx_schedule_versions_key;not null" json:"version"`
	ChangeType ChangeType `gorm:"type:varchar(32)" json:"changeType"`
	CreatedBy  string     `gorm:"type:varchar(64)" json:"createdBy,omitempty"`
	Snapshot   Schedule   `gorm:"type:jsonb;serializer:json" json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// TableName returns the table name for GORM.
func (ScheduleVersion) TableName() string {
	return "schedule_versions"
}
