/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

// IssueKind identifies a class of schedule problem.
type IssueKind string

// Issue kinds reported by the validator and by rejected operations.
const (
	IssueDuplicateAssignment    IssueKind = "duplicate_assignment"
	IssueDuplicateWodAssignment IssueKind = "duplicate_wod_assignment"
	IssueHeatOverCapacity       IssueKind = "heat_over_capacity"
	IssueUnknownAthlete         IssueKind = "unknown_athlete"
	IssueCategoryMismatch       IssueKind = "category_mismatch"
	IssueInactiveAssigned       IssueKind = "inactive_athlete_assigned"
	IssueHeatOverlap            IssueKind = "heat_overlap"
	IssueDayOverBudget          IssueKind = "day_over_budget"
	IssueEmptySession           IssueKind = "empty_session"
	IssueSessionOverlap         IssueKind = "session_overlap"
	IssueEmptyHeat              IssueKind = "empty_heat"
	IssueSessionPastMidnight    IssueKind = "session_past_midnight"

	IssueTerminalStatus         IssueKind = "terminal_status"
	IssueAthleteAlreadyAssigned IssueKind = "athlete_already_assigned"
	IssueAthleteNotAssigned     IssueKind = "athlete_not_assigned"
	IssueAthleteNotActive       IssueKind = "athlete_not_active"
	IssueAthleteAlreadyInHeat   IssueKind = "athlete_already_in_heat"
	IssueHeatFull               IssueKind = "heat_full"
	IssueHeatNotEmpty           IssueKind = "heat_not_empty"
)

// Severity grades an issue. Only errors block a commit.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is a single finding about a schedule.
type Issue struct {
	Kind      IssueKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	DayID     string    `json:"dayId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	HeatID    string    `json:"heatId,omitempty"`
	AthleteID string    `json:"athleteId,omitempty"`
}

// DayUtilization reports how much of a day's budget is used.
type DayUtilization struct {
	DayID         string `json:"dayId"`
	UsedMinutes   int    `json:"usedMinutes"`
	BudgetMinutes int    `json:"budgetMinutes"`
}

// Statistics summarizes a schedule.
type Statistics struct {
	Days                     int                          `json:"days"`
	Sessions                 int                          `json:"sessions"`
	Heats                    int                          `json:"heats"`
	EmptyHeats               int                          `json:"emptyHeats"`
	Assignments              int                          `json:"assignments"`
	AthletesByStatus         map[models.AthleteStatus]int `json:"athletesByStatus"`
	UnassignedActiveAthletes int                          `json:"unassignedActiveAthletes"`
	DayUtilization           []DayUtilization             `json:"dayUtilization"`
}

// ValidationResult is the outcome of validating one snapshot.
type ValidationResult struct {
	Valid      bool       `json:"valid"`
	Issues     []Issue    `json:"issues"`
	Statistics Statistics `json:"statistics"`
}

// Errors returns the issues with error severity.
func (r *ValidationResult) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Validator inspects schedule snapshots. It never mutates its input.
type Validator struct {
	logger zerolog.Logger
}

// NewValidator creates a new schedule validator.
func NewValidator(logger zerolog.Logger) *Validator {
	return &Validator{
		logger: logger.With().Str("component", "schedule_validator").Logger(),
	}
}

// Validate runs every structural check against the schedule.
func (v *Validator) Validate(s *models.Schedule) *ValidationResult {
	result := &ValidationResult{
		Valid:  true,
		Issues: []Issue{},
		Statistics: Statistics{
			AthletesByStatus: map[models.AthleteStatus]int{},
			DayUtilization:   []DayUtilization{},
		},
	}
	add := func(issue Issue) {
		result.Issues = append(result.Issues, issue)
		if issue.Severity == SeverityError {
			result.Valid = false
		}
	}

	roster := make(map[string]*models.ScheduleAthlete, len(s.Athletes))
	for i := range s.Athletes {
		a := &s.Athletes[i]
		roster[a.AthleteID] = a
		result.Statistics.AthletesByStatus[a.Status]++
	}

	assigned := map[string]bool{}
	// wod -> athlete -> session holding the athlete
	wodSeen := map[string]map[string]string{}

	for di := range s.Days {
		day := &s.Days[di]
		result.Statistics.Days++

		span := DaySpan(day)
		result.Statistics.DayUtilization = append(result.Statistics.DayUtilization, DayUtilization{
			DayID:         day.DayID,
			UsedMinutes:   span,
			BudgetMinutes: day.BudgetMinutes,
		})
		if span > day.BudgetMinutes {
			add(Issue{
				Kind:     IssueDayOverBudget,
				Severity: SeverityError,
				Message:  fmt.Sprintf("day %s spans %d minutes, budget is %d", day.DayID, span, day.BudgetMinutes),
				DayID:    day.DayID,
			})
		}

		for _, issue := range sessionOverlaps(day) {
			add(issue)
		}

		for si := range day.Sessions {
			sess := &day.Sessions[si]
			result.Statistics.Sessions++

			if len(sess.Heats) == 0 {
				add(Issue{
					Kind:      IssueEmptySession,
					Severity:  SeverityError,
					Message:   fmt.Sprintf("session %s has no heats", sess.SessionID),
					DayID:     day.DayID,
					SessionID: sess.SessionID,
				})
			}

			if end := sess.End(); !sess.StartTime.InDay() || !end.InDay() {
				add(Issue{
					Kind:      IssueSessionPastMidnight,
					Severity:  SeverityError,
					Message:   fmt.Sprintf("session %s runs from %s to %s, outside the day", sess.SessionID, sess.StartTime, end),
					DayID:     day.DayID,
					SessionID: sess.SessionID,
				})
			}

			if wodSeen[sess.WodID] == nil {
				wodSeen[sess.WodID] = map[string]string{}
			}
			inSession := map[string]bool{}

			for hi := range sess.Heats {
				heat := &sess.Heats[hi]
				result.Statistics.Heats++
				result.Statistics.Assignments += len(heat.Assignments)

				if hi > 0 {
					prev := &sess.Heats[hi-1]
					if heat.StartTime < prev.StartTime.Add(sess.HeatDuration) {
						add(Issue{
							Kind:      IssueHeatOverlap,
							Severity:  SeverityError,
							Message:   fmt.Sprintf("heat %d starts at %s before heat %d ends", heat.HeatNumber, heat.StartTime, prev.HeatNumber),
							DayID:     day.DayID,
							SessionID: sess.SessionID,
							HeatID:    heat.HeatID,
						})
					}
				}

				if len(heat.Assignments) == 0 {
					result.Statistics.EmptyHeats++
					add(Issue{
						Kind:      IssueEmptyHeat,
						Severity:  SeverityInfo,
						Message:   fmt.Sprintf("heat %d has no athletes", heat.HeatNumber),
						DayID:     day.DayID,
						SessionID: sess.SessionID,
						HeatID:    heat.HeatID,
					})
				}
				if len(heat.Assignments) > heat.Capacity {
					add(Issue{
						Kind:      IssueHeatOverCapacity,
						Severity:  SeverityError,
						Message:   fmt.Sprintf("heat %d holds %d athletes, capacity is %d", heat.HeatNumber, len(heat.Assignments), heat.Capacity),
						DayID:     day.DayID,
						SessionID: sess.SessionID,
						HeatID:    heat.HeatID,
					})
				}

				for _, a := range heat.Assignments {
					base := Issue{
						Severity:  SeverityError,
						DayID:     day.DayID,
						SessionID: sess.SessionID,
						HeatID:    heat.HeatID,
						AthleteID: a.AthleteID,
					}
					if inSession[a.AthleteID] {
						base.Kind = IssueDuplicateAssignment
						base.Message = fmt.Sprintf("athlete %s is in more than one heat of session %s", a.AthleteID, sess.SessionID)
						add(base)
						continue
					}
					inSession[a.AthleteID] = true
					assigned[a.AthleteID] = true

					if other, ok := wodSeen[sess.WodID][a.AthleteID]; ok && other != sess.SessionID {
						base.Kind = IssueDuplicateWodAssignment
						base.Message = fmt.Sprintf("athlete %s is in two sessions of wod %s", a.AthleteID, sess.WodID)
						add(base)
					}
					wodSeen[sess.WodID][a.AthleteID] = sess.SessionID

					athlete, ok := roster[a.AthleteID]
					if !ok {
						base.Kind = IssueUnknownAthlete
						base.Message = fmt.Sprintf("athlete %s is not registered", a.AthleteID)
						add(base)
						continue
					}
					if a.CategoryID != heat.CategoryID || athlete.CategoryID != heat.CategoryID {
						base.Kind = IssueCategoryMismatch
						base.Message = fmt.Sprintf("athlete %s (category %s) is in a %s heat", a.AthleteID, athlete.CategoryID, heat.CategoryID)
						add(base)
					}
					if athlete.Status.Terminal() {
						base.Kind = IssueInactiveAssigned
						base.Message = fmt.Sprintf("athlete %s is %s but still assigned", a.AthleteID, athlete.Status)
						add(base)
					}
				}
			}
		}
	}

	for _, a := range s.Athletes {
		if a.Status == models.AthleteStatusActive && !assigned[a.AthleteID] {
			result.Statistics.UnassignedActiveAthletes++
		}
	}

	if !result.Valid {
		v.logger.Debug().
			Str("schedule_id", s.ScheduleID).
			Int("version", s.Version).
			Int("issues", len(result.Issues)).
			Msg("schedule failed validation")
	}
	return result
}

func sessionOverlaps(day *models.Day) []Issue {
	var issues []Issue
	for i := 0; i < len(day.Sessions); i++ {
		a := &day.Sessions[i]
		for j := i + 1; j < len(day.Sessions); j++ {
			b := &day.Sessions[j]
			if a.StartTime < b.End() && b.StartTime < a.End() {
				issues = append(issues, Issue{
					Kind:      IssueSessionOverlap,
					Severity:  SeverityWarning,
					Message:   fmt.Sprintf("sessions %s and %s overlap", a.SessionID, b.SessionID),
					DayID:     day.DayID,
					SessionID: b.SessionID,
				})
			}
		}
	}
	return issues
}
