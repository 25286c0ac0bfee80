/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

// Builder generates the first version of a schedule from constraints.
type Builder struct {
	newID func() string
	now   func() time.Time
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithIDGenerator overrides identifier generation.
func WithIDGenerator(fn func() string) BuilderOption {
	return func(b *Builder) { b.newID = fn }
}

// WithClock overrides the clock used for timestamps.
func WithClock(fn func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = fn }
}

// NewBuilder creates a schedule builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewID returns a fresh identifier from the builder's generator.
func (b *Builder) NewID() string {
	return b.newID()
}

// Build lays out every WOD of every day into sessions and heats. It either
// returns a complete schedule at version 1 or an error; no athlete is ever
// silently dropped.
func (b *Builder) Build(eventID string, c Constraints) (*models.Schedule, error) {
	if eventID == "" {
		return nil, configErr("eventId", "is required")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	dayStart, _ := models.ParseClock(c.DayStartTime)
	budget := c.BudgetMinutes()

	now := b.now()
	scheduleID := c.ScheduleID
	if scheduleID == "" {
		scheduleID = b.newID()
	}

	sched := &models.Schedule{
		EventID:    eventID,
		ScheduleID: scheduleID,
		Version:    1,
		Config: models.ScheduleConfig{
			CompetitionMode: c.CompetitionMode,
			MaxDayHours:     c.MaxDayHours,
			LunchBreakHours: c.LunchBreakHours,
			AthletesPerHeat: c.AthletesPerHeat,
			SetupTime:       c.Setup(),
			HeatDuration:    c.HeatDuration,
			BreakDuration:   c.Break(),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, cat := range c.Categories {
		sched.Categories = append(sched.Categories, models.Category{CategoryID: cat.CategoryID, Name: cat.Name})
	}
	for _, w := range c.Wods {
		sched.Wods = append(sched.Wods, models.Wod{WodID: w.WodID, Name: w.Name, DayID: w.DayID})
	}

	var eligible []models.ScheduleAthlete
	for _, a := range c.Athletes {
		sa := models.ScheduleAthlete{
			AthleteID:  a.UserID,
			FirstName:  a.FirstName,
			LastName:   a.LastName,
			CategoryID: a.CategoryID,
			Status:     a.Status,
		}
		if sa.Status.Eligible() {
			sa.Status = models.AthleteStatusActive
			eligible = append(eligible, sa)
		}
		sched.Athletes = append(sched.Athletes, sa)
	}

	wodsByDay := distributeWods(c.Days, c.Wods)

	for _, in := range c.Days {
		start := dayStart
		if in.StartTime != "" {
			start, _ = models.ParseClock(in.StartTime)
		}
		day := models.Day{
			DayID:         in.DayID,
			Date:          in.Date,
			Name:          in.Name,
			Description:   in.Description,
			StartTime:     start,
			BudgetMinutes: budget,
			Sessions:      []models.Session{},
		}

		cursor := start
		for _, w := range wodsByDay[in.DayID] {
			session, err := b.buildSession(&c, day.DayID, w, cursor, eligible)
			if err != nil {
				return nil, err
			}
			if len(session.Heats) == 0 {
				continue
			}
			day.Sessions = append(day.Sessions, session)
			cursor = session.End().Add(c.Break())
		}

		if err := CheckDayBudget(&day); err != nil {
			return nil, err
		}
		if err := CheckDayEnds(&day); err != nil {
			return nil, err
		}
		sched.Days = append(sched.Days, day)
	}

	return sched, nil
}

func (b *Builder) buildSession(c *Constraints, dayID string, w WodInput, start models.ClockTime, eligible []models.ScheduleAthlete) (models.Session, error) {
	session := models.Session{
		SessionID:     b.newID(),
		WodID:         w.WodID,
		WodName:       w.Name,
		DayID:         dayID,
		StartTime:     start,
		SetupTime:     c.Setup(),
		HeatDuration:  c.HeatDuration,
		BreakDuration: c.Break(),
		Heats:         []models.Heat{},
	}

	heatStart := start.Add(c.Setup())
	number := 1
	for _, cat := range c.Categories {
		groups, err := AllocateHeats(eligible, cat.CategoryID, c.AthletesPerHeat)
		if err != nil {
			return models.Session{}, err
		}
		for _, group := range groups {
			heat := models.Heat{
				HeatID:      b.newID(),
				HeatNumber:  number,
				CategoryID:  cat.CategoryID,
				Capacity:    c.AthletesPerHeat,
				StartTime:   heatStart,
				Assignments: make([]models.HeatAssignment, 0, len(group)),
			}
			for i, a := range group {
				heat.Assignments = append(heat.Assignments, models.HeatAssignment{
					AthleteID:  a.AthleteID,
					CategoryID: a.CategoryID,
					Slot:       i + 1,
				})
			}
			session.Heats = append(session.Heats, heat)
			heatStart = heatStart.Add(c.HeatDuration + c.Break())
			number++
		}
	}
	return session, nil
}

// distributeWods maps each day to its WODs. Pinned WODs go to their day and
// the rest are dealt round-robin in input order.
func distributeWods(days []DayInput, wods []WodInput) map[string][]WodInput {
	out := make(map[string][]WodInput, len(days))
	next := 0
	for _, w := range wods {
		dayID := w.DayID
		if dayID == "" {
			dayID = days[next%len(days)].DayID
			next++
		}
		out[dayID] = append(out[dayID], w)
	}
	return out
}

// DaySpan returns the minutes covered by a day's sessions, measured from the
// earlier of the day start and the first session start.
func DaySpan(day *models.Day) int {
	if len(day.Sessions) == 0 {
		return 0
	}
	first := day.StartTime
	last := day.StartTime
	for i := range day.Sessions {
		s := &day.Sessions[i]
		if s.StartTime < first {
			first = s.StartTime
		}
		if end := s.End(); end > last {
			last = end
		}
	}
	return int(last - first)
}

// CheckDayBudget returns a CapacityExceededError when the day is over budget.
func CheckDayBudget(day *models.Day) error {
	span := DaySpan(day)
	if span > day.BudgetMinutes {
		return &CapacityExceededError{
			DayID:           day.DayID,
			BudgetMinutes:   day.BudgetMinutes,
			RequiredMinutes: span,
		}
	}
	return nil
}

// CheckDayEnds returns a ConfigurationError when a session of the day runs
// past midnight. Heats never spill into the next calendar day.
func CheckDayEnds(day *models.Day) error {
	for i := range day.Sessions {
		if end := day.Sessions[i].End(); !end.InDay() {
			return configErr("startTime", "day %s would run until %s, past midnight", day.DayID, end)
		}
	}
	return nil
}
