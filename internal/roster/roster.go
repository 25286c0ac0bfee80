/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package roster stores event registrations: athletes, categories and WODs.
package roster

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/athleon_scheduler/internal/models"
	"github.com/friendsincode/athleon_scheduler/internal/scheduling"
)

// File is the YAML document accepted by Import.
type File struct {
	EventID    string                     `yaml:"eventId"`
	Categories []scheduling.CategoryInput `yaml:"categories"`
	Wods       []scheduling.WodInput      `yaml:"wods"`
	Athletes   []scheduling.AthleteInput  `yaml:"athletes"`
}

// LoadFile reads a roster YAML file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster file: %w", err)
	}
	return &f, nil
}

// Roster is everything registered for one event, in registration order.
type Roster struct {
	Categories []scheduling.CategoryInput
	Wods       []scheduling.WodInput
	Athletes   []scheduling.AthleteInput
}

// ImportResult counts rows written by Import.
type ImportResult struct {
	Categories int `json:"categories"`
	Wods       int `json:"wods"`
	Athletes   int `json:"athletes"`
}

// Repository reads and writes roster tables.
type Repository struct {
	db      *gorm.DB
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRepository creates a roster repository.
func NewRepository(db *gorm.DB, timeout time.Duration, logger zerolog.Logger) *Repository {
	return &Repository{
		db:      db,
		timeout: timeout,
		logger:  logger.With().Str("component", "roster").Logger(),
	}
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Athlete looks up one registered athlete.
func (r *Repository) Athlete(ctx context.Context, eventID, athleteID string) (*models.ScheduleAthlete, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var row models.RegisteredAthlete
	res := r.db.WithContext(ctx).
		Where("event_id = ? AND athlete_id = ?", eventID, athleteID).
		Limit(1).
		Find(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("load athlete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, scheduling.NotFound("athlete", athleteID)
	}
	a := row.ToScheduleAthlete()
	return &a, nil
}

// Roster loads the whole registration of an event.
func (r *Repository) Roster(ctx context.Context, eventID string) (*Roster, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	db := r.db.WithContext(ctx)

	var cats []models.EventCategory
	if err := db.Where("event_id = ?", eventID).Order("position ASC, id ASC").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	var wods []models.EventWod
	if err := db.Where("event_id = ?", eventID).Order("position ASC, id ASC").Find(&wods).Error; err != nil {
		return nil, fmt.Errorf("load wods: %w", err)
	}
	var athletes []models.RegisteredAthlete
	if err := db.Where("event_id = ?", eventID).Order("position ASC, id ASC").Find(&athletes).Error; err != nil {
		return nil, fmt.Errorf("load athletes: %w", err)
	}

	out := &Roster{}
	for _, c := range cats {
		out.Categories = append(out.Categories, scheduling.CategoryInput{CategoryID: c.CategoryID, Name: c.Name})
	}
	for _, w := range wods {
		out.Wods = append(out.Wods, scheduling.WodInput{WodID: w.WodID, Name: w.Name, DayID: w.DayID})
	}
	for _, a := range athletes {
		out.Athletes = append(out.Athletes, scheduling.AthleteInput{
			UserID:     a.AthleteID,
			FirstName:  a.FirstName,
			LastName:   a.LastName,
			CategoryID: a.CategoryID,
			Status:     a.Status,
		})
	}
	return out, nil
}

// Fill completes constraints from the roster. Only lists the request left
// empty are filled.
func (r *Repository) Fill(ctx context.Context, eventID string, c *scheduling.Constraints) error {
	if len(c.Categories) > 0 && len(c.Wods) > 0 && len(c.Athletes) > 0 {
		return nil
	}
	ros, err := r.Roster(ctx, eventID)
	if err != nil {
		return err
	}
	if len(c.Categories) == 0 {
		c.Categories = ros.Categories
	}
	if len(c.Wods) == 0 {
		c.Wods = ros.Wods
	}
	if len(c.Athletes) == 0 {
		c.Athletes = ros.Athletes
	}
	return nil
}

// Import upserts a roster file. Rows are matched by event and id; existing
// rows are updated in place.
func (r *Repository) Import(ctx context.Context, f *File) (ImportResult, error) {
	if f.EventID == "" {
		return ImportResult{}, fmt.Errorf("roster file has no eventId")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var res ImportResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, c := range f.Categories {
			row := models.EventCategory{EventID: f.EventID, CategoryID: c.CategoryID, Name: c.Name, Position: i}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}, {Name: "category_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "position"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("upsert category %s: %w", c.CategoryID, err)
			}
			res.Categories++
		}
		for i, w := range f.Wods {
			row := models.EventWod{EventID: f.EventID, WodID: w.WodID, Name: w.Name, DayID: w.DayID, Position: i}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}, {Name: "wod_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "day_id", "position"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("upsert wod %s: %w", w.WodID, err)
			}
			res.Wods++
		}
		for i, a := range f.Athletes {
			status := a.Status
			if status == "" {
				status = models.AthleteStatusReady
			}
			if !status.Valid() {
				return fmt.Errorf("athlete %s: unknown status %q", a.UserID, status)
			}
			row := models.RegisteredAthlete{
				EventID:    f.EventID,
				AthleteID:  a.UserID,
				FirstName:  a.FirstName,
				LastName:   a.LastName,
				CategoryID: a.CategoryID,
				Status:     status,
				Position:   i,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}, {Name: "athlete_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "category_id", "status", "position", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("upsert athlete %s: %w", a.UserID, err)
			}
			res.Athletes++
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	r.logger.Info().
		Str("event_id", f.EventID).
		Int("categories", res.Categories).
		Int("wods", res.Wods).
		Int("athletes", res.Athletes).
		Msg("roster imported")
	return res, nil
}
