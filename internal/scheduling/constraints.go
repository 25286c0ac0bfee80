/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"math"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

// CompetitionModeHeats is the only supported competition mode.
const CompetitionModeHeats = "HEATS"

// Defaults holds values used for omitted constraint fields.
type Defaults struct {
	SetupTime     int
	HeatDuration  int
	BreakDuration int
	DayStart      string
}

// DefaultDefaults returns the built-in defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		SetupTime:     10,
		HeatDuration:  20,
		BreakDuration: 5,
		DayStart:      "08:00",
	}
}

// DayInput describes one competition day.
type DayInput struct {
	DayID       string `json:"dayId" yaml:"dayId" validate:"required"`
	Date        string `json:"date,omitempty" yaml:"date" validate:"omitempty,datetime=2006-01-02"`
	Name        string `json:"name,omitempty" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	StartTime   string `json:"startTime,omitempty" yaml:"startTime"`
}

// WodInput describes one workout. DayID pins it to a day; otherwise it is
// distributed round-robin.
type WodInput struct {
	WodID string `json:"wodId" yaml:"wodId" validate:"required"`
	Name  string `json:"name" yaml:"name"`
	DayID string `json:"dayId,omitempty" yaml:"dayId"`
}

// CategoryInput describes one category.
type CategoryInput struct {
	CategoryID string `json:"categoryId" yaml:"categoryId" validate:"required"`
	Name       string `json:"name" yaml:"name"`
}

// AthleteInput describes one registered athlete.
type AthleteInput struct {
	UserID     string               `json:"userId" yaml:"userId" validate:"required"`
	FirstName  string               `json:"firstName,omitempty" yaml:"firstName"`
	LastName   string               `json:"lastName,omitempty" yaml:"lastName"`
	CategoryID string               `json:"categoryId" yaml:"categoryId" validate:"required"`
	Status     models.AthleteStatus `json:"status,omitempty" yaml:"status"`
}

// Constraints is the input to one scheduling run. Durations are minutes.
type Constraints struct {
	ScheduleID      string          `json:"scheduleId,omitempty" yaml:"scheduleId"`
	CompetitionMode string          `json:"competitionMode,omitempty" yaml:"competitionMode"`
	MaxDayHours     float64         `json:"maxDayHours" yaml:"maxDayHours" validate:"gt=0,lte=24"`
	LunchBreakHours float64         `json:"lunchBreakHours" yaml:"lunchBreakHours" validate:"gte=0"`
	AthletesPerHeat int             `json:"athletesPerHeat" yaml:"athletesPerHeat"`
	SetupTime       *int            `json:"setupTime,omitempty" yaml:"setupTime" validate:"omitempty,gte=0"`
	HeatDuration    int             `json:"heatDuration,omitempty" yaml:"heatDuration" validate:"gte=0"`
	BreakDuration   *int            `json:"breakDuration,omitempty" yaml:"breakDuration" validate:"omitempty,gte=0"`
	DayStartTime    string          `json:"dayStartTime,omitempty" yaml:"dayStartTime"`
	Days            []DayInput      `json:"days" yaml:"days" validate:"dive"`
	Wods            []WodInput      `json:"wods" yaml:"wods" validate:"dive"`
	Categories      []CategoryInput `json:"categories" yaml:"categories" validate:"dive"`
	Athletes        []AthleteInput  `json:"athletes" yaml:"athletes" validate:"dive"`
}

// ApplyDefaults fills omitted fields. SetupTime and BreakDuration are
// pointers so an explicit zero survives.
func (c *Constraints) ApplyDefaults(d Defaults) {
	if c.CompetitionMode == "" {
		c.CompetitionMode = CompetitionModeHeats
	}
	if c.HeatDuration == 0 {
		c.HeatDuration = d.HeatDuration
	}
	if c.SetupTime == nil {
		v := d.SetupTime
		c.SetupTime = &v
	}
	if c.BreakDuration == nil {
		v := d.BreakDuration
		c.BreakDuration = &v
	}
	if c.DayStartTime == "" {
		c.DayStartTime = d.DayStart
	}
}

// Setup returns the setup time, zero when unset.
func (c *Constraints) Setup() int {
	if c.SetupTime == nil {
		return 0
	}
	return *c.SetupTime
}

// Break returns the break duration, zero when unset.
func (c *Constraints) Break() int {
	if c.BreakDuration == nil {
		return 0
	}
	return *c.BreakDuration
}

// BudgetMinutes is the schedulable time per day.
func (c *Constraints) BudgetMinutes() int {
	return int(math.Round((c.MaxDayHours - c.LunchBreakHours) * 60))
}

// Validate checks the shape of the constraints.
func (c *Constraints) Validate() error {
	if c.CompetitionMode != CompetitionModeHeats {
		return configErr("competitionMode", "unsupported mode %q", c.CompetitionMode)
	}
	if c.AthletesPerHeat <= 0 {
		return configErr("athletesPerHeat", "must be positive, got %d", c.AthletesPerHeat)
	}
	if c.MaxDayHours <= 0 || c.MaxDayHours > 24 {
		return configErr("maxDayHours", "must be in (0, 24], got %g", c.MaxDayHours)
	}
	if c.LunchBreakHours < 0 {
		return configErr("lunchBreakHours", "must not be negative")
	}
	if c.BudgetMinutes() <= 0 {
		return configErr("lunchBreakHours", "leaves no schedulable time (maxDayHours %g)", c.MaxDayHours)
	}
	if c.Setup() < 0 || c.HeatDuration <= 0 || c.Break() < 0 {
		return configErr("durations", "setupTime and breakDuration must be >= 0 and heatDuration > 0")
	}
	if _, err := models.ParseClock(c.DayStartTime); err != nil {
		return configErr("dayStartTime", "%v", err)
	}
	if len(c.Days) == 0 {
		return configErr("days", "at least one day is required")
	}
	if len(c.Wods) == 0 {
		return configErr("wods", "at least one wod is required")
	}
	if len(c.Categories) == 0 {
		return configErr("categories", "at least one category is required")
	}

	days := make(map[string]bool, len(c.Days))
	for _, d := range c.Days {
		if d.DayID == "" {
			return configErr("days", "dayId is required")
		}
		if days[d.DayID] {
			return configErr("days", "duplicate dayId %q", d.DayID)
		}
		days[d.DayID] = true
		if d.StartTime != "" {
			if _, err := models.ParseClock(d.StartTime); err != nil {
				return configErr("days", "day %s: %v", d.DayID, err)
			}
		}
	}

	wods := make(map[string]bool, len(c.Wods))
	for _, w := range c.Wods {
		if w.WodID == "" {
			return configErr("wods", "wodId is required")
		}
		if wods[w.WodID] {
			return configErr("wods", "duplicate wodId %q", w.WodID)
		}
		wods[w.WodID] = true
		if w.DayID != "" && !days[w.DayID] {
			return configErr("wods", "wod %s references unknown day %q", w.WodID, w.DayID)
		}
	}

	categories := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.CategoryID == "" {
			return configErr("categories", "categoryId is required")
		}
		if categories[cat.CategoryID] {
			return configErr("categories", "duplicate categoryId %q", cat.CategoryID)
		}
		categories[cat.CategoryID] = true
	}

	athletes := make(map[string]bool, len(c.Athletes))
	for _, a := range c.Athletes {
		if a.UserID == "" {
			return configErr("athletes", "userId is required")
		}
		if athletes[a.UserID] {
			return configErr("athletes", "duplicate userId %q", a.UserID)
		}
		athletes[a.UserID] = true
		if !categories[a.CategoryID] {
			return configErr("athletes", "athlete %s references unknown category %q", a.UserID, a.CategoryID)
		}
		if a.Status != "" && !a.Status.Valid() {
			return configErr("athletes", "athlete %s has unknown status %q", a.UserID, a.Status)
		}
	}
	return nil
}
