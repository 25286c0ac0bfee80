package scheduling

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

var fixedNow = time.Date(2025, 11, 17, 7, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func intPtr(v int) *int { return &v }

// twoCategoryConstraints is one day, two WODs, nine athletes in "rx" and
// three in "scaled", eight per heat.
func twoCategoryConstraints() Constraints {
	c := Constraints{
		ScheduleID:      "sched-1",
		MaxDayHours:     10,
		LunchBreakHours: 1,
		AthletesPerHeat: 8,
		SetupTime:       intPtr(10),
		HeatDuration:    20,
		BreakDuration:   intPtr(5),
		Days:            []DayInput{{DayID: "day-1", Date: "2025-11-17", Name: "Day 1"}},
		Wods:            []WodInput{{WodID: "wod-1", Name: "Fran"}, {WodID: "wod-2", Name: "Grace"}},
		Categories:      []CategoryInput{{CategoryID: "rx", Name: "RX"}, {CategoryID: "scaled", Name: "Scaled"}},
	}
	for i := 1; i <= 9; i++ {
		c.Athletes = append(c.Athletes, AthleteInput{UserID: fmt.Sprintf("rx-%d", i), CategoryID: "rx", Status: models.AthleteStatusReady})
	}
	for i := 1; i <= 3; i++ {
		c.Athletes = append(c.Athletes, AthleteInput{UserID: fmt.Sprintf("sc-%d", i), CategoryID: "scaled"})
	}
	c.ApplyDefaults(DefaultDefaults())
	return c
}

func buildSchedule(t *testing.T, c Constraints) *models.Schedule {
	t.Helper()
	b := NewBuilder(WithIDGenerator(sequentialIDs()), WithClock(func() time.Time { return fixedNow }))
	s, err := b.Build("event-1", c)
	if err != nil {
		t.Fatalf("build schedule: %v", err)
	}
	return s
}

func mustValid(t *testing.T, s *models.Schedule) {
	t.Helper()
	res := NewValidator(zerolog.Nop()).Validate(s)
	if !res.Valid {
		t.Fatalf("expected valid schedule, got issues: %+v", res.Errors())
	}
}

// lateConstraints is one day starting at start with a single WOD and n "rx"
// athletes, four per heat.
func lateConstraints(start string, n int) Constraints {
	c := Constraints{
		ScheduleID:      "sched-late",
		MaxDayHours:     10,
		LunchBreakHours: 1,
		AthletesPerHeat: 4,
		SetupTime:       intPtr(10),
		HeatDuration:    20,
		BreakDuration:   intPtr(5),
		Days:            []DayInput{{DayID: "day-1", Date: "2025-11-17", Name: "Night", StartTime: start}},
		Wods:            []WodInput{{WodID: "wod-1", Name: "Fran"}},
		Categories:      []CategoryInput{{CategoryID: "rx", Name: "RX"}},
	}
	for i := 1; i <= n; i++ {
		c.Athletes = append(c.Athletes, AthleteInput{UserID: fmt.Sprintf("rx-%d", i), CategoryID: "rx"})
	}
	c.ApplyDefaults(DefaultDefaults())
	return c
}
