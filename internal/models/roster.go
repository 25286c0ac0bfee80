/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// RegisteredAthlete is an athlete registration for an event.
type RegisteredAthlete struct {
	ID         uint          `gorm:"primaryKey;autoIncrement"`
	EventID    string        `gorm:"type:varchar(64);uniqueIndex:idx_roster_athlete;not null"`
	AthleteID  string        `gorm:"type:varchar(64);uniqueIndex:idx_roster_athlete;not null"`
	FirstName  string        `gorm:"type:varchar(128)"`
	LastName   string        `gorm:"type:varchar(128)"`
	CategoryID string        `gorm:"type:varchar(64);index"`
	Status     AthleteStatus `gorm:"type:varchar(32)"`
	Position   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName returns the table name for GORM.
func (RegisteredAthlete) TableName() string {
	return "roster_athletes"
}

// EventCategory is a category offered by an event.
type EventCategory struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	EventID    string `gorm:"type:varchar(64);uniqueIndex:idx_roster_category;not null"`
	CategoryID string `gorm:"type:varchar(64);uniqueIndex:idx_roster_category;not null"`
	Name       string `gorm:"type:varchar(128)"`
	Position   int
}

// TableName returns the table name for GORM.
func (EventCategory) TableName() string {
	return "roster_categories"
}

// EventWod is a workout offered by an event.
type EventWod struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	EventID  string `gorm:"type:varchar(64);uniqueIndex:idx_roster_wod;not null"`
	WodID    string `gorm:"type:varchar(64);uniqueIndex:idx_roster_wod;not null"`
	Name     string `gorm:"type:varchar(128)"`
	DayID    string `gorm:"type:varchar(64)"`
	Position int
}

// TableName returns the table name for GORM.
func (EventWod) TableName() string {
	return "roster_wods"
}

// ToScheduleAthlete converts a registration into its schedule view.
func (a RegisteredAthlete) ToScheduleAthlete() ScheduleAthlete {
	return ScheduleAthlete{
		AthleteID:  a.AthleteID,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		CategoryID: a.CategoryID,
		Status:     a.Status,
	}
}
