package scheduling

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

func hasIssue(res *ValidationResult, kind IssueKind) bool {
	for _, i := range res.Issues {
		if i.Kind == kind {
			return true
		}
	}
	return false
}

func TestValidatorDetectsIssues(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(s *models.Schedule)
		kind    IssueKind
		blocks  bool
	}{
		{
			name: "athlete twice in session",
			corrupt: func(s *models.Schedule) {
				h := &s.Days[0].Sessions[0].Heats[1]
				h.Assignments = append(h.Assignments, models.HeatAssignment{AthleteID: "rx-1", CategoryID: "rx", Slot: 2})
			},
			kind:   IssueDuplicateAssignment,
			blocks: true,
		},
		{
			name: "heat over capacity",
			corrupt: func(s *models.Schedule) {
				s.Days[0].Sessions[0].Heats[0].Capacity = 4
			},
			kind:   IssueHeatOverCapacity,
			blocks: true,
		},
		{
			name: "unregistered athlete",
			corrupt: func(s *models.Schedule) {
				h := &s.Days[0].Sessions[0].Heats[1]
				h.Assignments = append(h.Assignments, models.HeatAssignment{AthleteID: "ghost", CategoryID: "rx", Slot: 2})
			},
			kind:   IssueUnknownAthlete,
			blocks: true,
		},
		{
			name: "category mismatch",
			corrupt: func(s *models.Schedule) {
				s.Days[0].Sessions[0].Heats[2].CategoryID = "rx"
			},
			kind:   IssueCategoryMismatch,
			blocks: true,
		},
		{
			name: "withdrawn athlete still assigned",
			corrupt: func(s *models.Schedule) {
				s.FindAthlete("rx-1").Status = models.AthleteStatusWithdrawn
			},
			kind:   IssueInactiveAssigned,
			blocks: true,
		},
		{
			name: "overlapping heats",
			corrupt: func(s *models.Schedule) {
				heats := s.Days[0].Sessions[0].Heats
				heats[1].StartTime = heats[0].StartTime.Add(5)
			},
			kind:   IssueHeatOverlap,
			blocks: true,
		},
		{
			name: "day over budget",
			corrupt: func(s *models.Schedule) {
				s.Days[0].BudgetMinutes = 30
			},
			kind:   IssueDayOverBudget,
			blocks: true,
		},
		{
			name: "session without heats",
			corrupt: func(s *models.Schedule) {
				s.Days[0].Sessions[1].Heats = nil
			},
			kind:   IssueEmptySession,
			blocks: true,
		},
		{
			name: "athlete in two sessions of one wod",
			corrupt: func(s *models.Schedule) {
				s.Days[0].Sessions[1].WodID = s.Days[0].Sessions[0].WodID
			},
			kind:   IssueDuplicateWodAssignment,
			blocks: true,
		},
		{
			name: "empty heat is informational",
			corrupt: func(s *models.Schedule) {
				s.Days[0].Sessions[0].Heats[1].Assignments = nil
				s.FindAthlete("rx-9").Status = models.AthleteStatusInjured
			},
			kind:   IssueEmptyHeat,
			blocks: false,
		},
		{
			name: "session running past midnight",
			corrupt: func(s *models.Schedule) {
				second := &s.Days[0].Sessions[1]
				delta := models.MinutesPerDay - 10 - int(second.StartTime)
				second.StartTime = second.StartTime.Add(delta)
				for i := range second.Heats {
					second.Heats[i].StartTime = second.Heats[i].StartTime.Add(delta)
				}
			},
			kind:   IssueSessionPastMidnight,
			blocks: true,
		},
		{
			name: "overlapping sessions only warn",
			corrupt: func(s *models.Schedule) {
				second := &s.Days[0].Sessions[1]
				delta := int(s.Days[0].Sessions[0].StartTime - second.StartTime)
				second.StartTime = second.StartTime.Add(delta)
				for i := range second.Heats {
					second.Heats[i].StartTime = second.Heats[i].StartTime.Add(delta)
				}
			},
			kind:   IssueSessionOverlap,
			blocks: false,
		},
	}

	v := NewValidator(zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := buildSchedule(t, twoCategoryConstraints())
			tt.corrupt(s)
			res := v.Validate(s)
			if !hasIssue(res, tt.kind) {
				t.Fatalf("expected issue %s, got %+v", tt.kind, res.Issues)
			}
			if res.Valid == tt.blocks {
				t.Errorf("valid = %v, want %v", res.Valid, !tt.blocks)
			}
		})
	}
}

func TestValidatorStatistics(t *testing.T) {
	c := twoCategoryConstraints()
	c.Athletes[0].Status = models.AthleteStatusPendingPayment
	s := buildSchedule(t, c)

	res := NewValidator(zerolog.Nop()).Validate(s)
	if !res.Valid {
		t.Fatalf("unexpected issues: %+v", res.Issues)
	}
	st := res.Statistics
	if st.Days != 1 || st.Sessions != 2 || st.Heats != 4 {
		t.Errorf("counts = %d days, %d sessions, %d heats", st.Days, st.Sessions, st.Heats)
	}
	if st.Assignments != 22 {
		t.Errorf("assignments = %d, want 22", st.Assignments)
	}
	if st.AthletesByStatus[models.AthleteStatusActive] != 11 || st.AthletesByStatus[models.AthleteStatusPendingPayment] != 1 {
		t.Errorf("status counts = %v", st.AthletesByStatus)
	}
	if st.UnassignedActiveAthletes != 0 {
		t.Errorf("unassigned active = %d", st.UnassignedActiveAthletes)
	}
	if len(st.DayUtilization) != 1 || st.DayUtilization[0].UsedMinutes != 115 {
		t.Errorf("utilization = %+v", st.DayUtilization)
	}
}

func TestValidatorDoesNotMutate(t *testing.T) {
	s := buildSchedule(t, twoCategoryConstraints())
	before := s.Clone()
	NewValidator(zerolog.Nop()).Validate(s)
	if len(s.Days[0].Sessions[0].Heats[0].Assignments) != len(before.Days[0].Sessions[0].Heats[0].Assignments) {
		t.Fatal("validator changed the schedule")
	}
}
