/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AthleteStatus is the per-schedule state of a registered athlete.
type AthleteStatus string

// Athlete statuses.
const (
	AthleteStatusPendingPayment AthleteStatus = "pending_payment"
	AthleteStatusReady          AthleteStatus = "ready"
	AthleteStatusActive         AthleteStatus = "active"
	AthleteStatusWithdrawn      AthleteStatus = "withdrawn"
	AthleteStatusDisqualified   AthleteStatus = "disqualified"
	AthleteStatusInjured        AthleteStatus = "injured"
)

// Valid reports whether s is a known status.
func (s AthleteStatus) Valid() bool {
	switch s {
	case AthleteStatusPendingPayment, AthleteStatusReady, AthleteStatusActive,
		AthleteStatusWithdrawn, AthleteStatusDisqualified, AthleteStatusInjured:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s AthleteStatus) Terminal() bool {
	return s == AthleteStatusWithdrawn || s == AthleteStatusDisqualified
}

// Eligible reports whether an athlete with status s is placed by generation.
// An empty status is treated as ready.
func (s AthleteStatus) Eligible() bool {
	return s == "" || s == AthleteStatusReady || s == AthleteStatusActive
}

// ScheduleAthlete is a registered athlete as seen by one schedule.
type ScheduleAthlete struct {
	AthleteID  string        `json:"athleteId"`
	FirstName  string        `json:"firstName,omitempty"`
	LastName   string        `json:"lastName,omitempty"`
	CategoryID string        `json:"categoryId"`
	Status     AthleteStatus `json:"status"`
}

// Category groups athletes. Heats never mix categories.
type Category struct {
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
}

// Wod is one scored workout.
type Wod struct {
	WodID string `json:"wodId"`
	Name  string `json:"name"`
	DayID string `json:"dayId,omitempty"`
}

// HeatAssignment binds one athlete to a lane of a heat.
type HeatAssignment struct {
	AthleteID  string `json:"athleteId"`
	CategoryID string `json:"categoryId"`
	Slot       int    `json:"slot"`
}

// Heat is one concurrent run-group within a session.
type Heat struct {
	HeatID      string           `json:"heatId"`
	HeatNumber  int              `json:"heatNumber"`
	CategoryID  string           `json:"categoryId"`
	Capacity    int              `json:"capacity"`
	StartTime   ClockTime        `json:"startTime"`
	Assignments []HeatAssignment `json:"assignments"`
}

// Full reports whether the heat has no free lane.
func (h *Heat) Full() bool {
	return len(h.Assignments) >= h.Capacity
}

// NextSlot returns the lowest lane number not yet taken.
func (h *Heat) NextSlot() int {
	taken := make(map[int]bool, len(h.Assignments))
	for _, a := range h.Assignments {
		taken[a.Slot] = true
	}
	slot := 1
	for taken[slot] {
		slot++
	}
	return slot
}

// Session is one WOD running across one or more heats on a day.
// StartTime marks the beginning of setup; the first heat follows after SetupTime.
type Session struct {
	SessionID     string    `json:"sessionId"`
	WodID         string    `json:"wodId"`
	WodName       string    `json:"wodName,omitempty"`
	DayID         string    `json:"dayId"`
	StartTime     ClockTime `json:"startTime"`
	SetupTime     int       `json:"setupTime"`
	HeatDuration  int       `json:"heatDuration"`
	BreakDuration int       `json:"breakDuration"`
	Heats         []Heat    `json:"heats"`
}

// End returns the time the last heat finishes.
func (s *Session) End() ClockTime {
	if len(s.Heats) == 0 {
		return s.StartTime.Add(s.SetupTime)
	}
	last := s.Heats[len(s.Heats)-1].StartTime
	for _, h := range s.Heats {
		if h.StartTime > last {
			last = h.StartTime
		}
	}
	return last.Add(s.HeatDuration)
}

// FindHeat returns the heat with the given id.
func (s *Session) FindHeat(heatID string) (*Heat, int) {
	for i := range s.Heats {
		if s.Heats[i].HeatID == heatID {
			return &s.Heats[i], i
		}
	}
	return nil, -1
}

// Locate returns the heat index and assignment index holding the athlete.
func (s *Session) Locate(athleteID string) (heatIdx, assignIdx int, ok bool) {
	for hi := range s.Heats {
		for ai, a := range s.Heats[hi].Assignments {
			if a.AthleteID == athleteID {
				return hi, ai, true
			}
		}
	}
	return -1, -1, false
}

// Day is one calendar day of the competition.
type Day struct {
	DayID         string    `json:"dayId"`
	Date          string    `json:"date,omitempty"`
	Name          string    `json:"name,omitempty"`
	Description   string    `json:"description,omitempty"`
	StartTime     ClockTime `json:"startTime"`
	BudgetMinutes int       `json:"budgetMinutes"`
	Sessions      []Session `json:"sessions"`
}

// ScheduleConfig records the parameters a schedule was generated with.
type ScheduleConfig struct {
	CompetitionMode string  `json:"competitionMode"`
	MaxDayHours     float64 `json:"maxDayHours"`
	LunchBreakHours float64 `json:"lunchBreakHours"`
	AthletesPerHeat int     `json:"athletesPerHeat"`
	SetupTime       int     `json:"setupTime"`
	HeatDuration    int     `json:"heatDuration"`
	BreakDuration   int     `json:"breakDuration"`
}

// Schedule is the root aggregate for one event's heat schedule.
type Schedule struct {
	EventID    string            `json:"eventId"`
	ScheduleID string            `json:"scheduleId"`
	Version    int               `json:"version"`
	Config     ScheduleConfig    `json:"config"`
	Days       []Day             `json:"days"`
	Athletes   []ScheduleAthlete `json:"athletes"`
	Categories []Category        `json:"categories"`
	Wods       []Wod             `json:"wods"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// FindSession returns the session and its owning day.
func (s *Schedule) FindSession(sessionID string) (*Session, *Day) {
	for di := range s.Days {
		for si := range s.Days[di].Sessions {
			if s.Days[di].Sessions[si].SessionID == sessionID {
				return &s.Days[di].Sessions[si], &s.Days[di]
			}
		}
	}
	return nil, nil
}

// FindAthlete returns the roster entry for athleteID.
func (s *Schedule) FindAthlete(athleteID string) *ScheduleAthlete {
	for i := range s.Athletes {
		if s.Athletes[i].AthleteID == athleteID {
			return &s.Athletes[i]
		}
	}
	return nil
}

// HasCategory reports whether categoryID belongs to the schedule.
func (s *Schedule) HasCategory(categoryID string) bool {
	for _, c := range s.Categories {
		if c.CategoryID == categoryID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy sharing no slices with s.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	out := *s
	out.Athletes = append([]ScheduleAthlete(nil), s.Athletes...)
	out.Categories = append([]Category(nil), s.Categories...)
	out.Wods = append([]Wod(nil), s.Wods...)
	out.Days = make([]Day, len(s.Days))
	for di, d := range s.Days {
		nd := d
		nd.Sessions = make([]Session, len(d.Sessions))
		for si, sess := range d.Sessions {
			ns := sess
			ns.Heats = make([]Heat, len(sess.Heats))
			for hi, h := range sess.Heats {
				nh := h
				nh.Assignments = append([]HeatAssignment{}, h.Assignments...)
				ns.Heats[hi] = nh
			}
			nd.Sessions[si] = ns
		}
		out.Days[di] = nd
	}
	return &out
}
