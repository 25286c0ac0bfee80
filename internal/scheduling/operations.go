/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"github.com/google/uuid"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

// Operation is one edit to a schedule. The set of implementations is closed:
// every edit accepted by the engine is one of the types in this file.
type Operation interface {
	// Kind is the audit change type recorded for the edit.
	Kind() models.ChangeType
	// Validate checks the payload shape before the schedule is touched.
	Validate() error
	// Apply transforms s in place. Callers pass a clone.
	Apply(s *models.Schedule) error
	// Details describes the edit for the audit log.
	Details() map[string]any

	operation()
}

// SessionOperation is an operation scoped to a single session.
type SessionOperation interface {
	Operation
	Session() string
}

func required(field, value string) error {
	if value == "" {
		return configErr(field, "is required")
	}
	return nil
}

func findSession(s *models.Schedule, sessionID string) (*models.Session, *models.Day, error) {
	sess, day := s.FindSession(sessionID)
	if sess == nil {
		return nil, nil, NotFound("session", sessionID)
	}
	return sess, day, nil
}

func requireActive(s *models.Schedule, athleteID string) error {
	a := s.FindAthlete(athleteID)
	if a == nil {
		return NotFound("athlete", athleteID)
	}
	if a.Status != models.AthleteStatusActive {
		return reject(IssueAthleteNotActive, "athlete %s is %s, only active athletes can be reassigned", athleteID, a.Status)
	}
	return nil
}

func dropAssignments(s *models.Schedule, athleteID string) int {
	removed := 0
	for di := range s.Days {
		for si := range s.Days[di].Sessions {
			sess := &s.Days[di].Sessions[si]
			for hi := range sess.Heats {
				heat := &sess.Heats[hi]
				kept := heat.Assignments[:0]
				for _, a := range heat.Assignments {
					if a.AthleteID == athleteID {
						removed++
						continue
					}
					kept = append(kept, a)
				}
				heat.Assignments = kept
			}
		}
	}
	return removed
}

// UpdateAthleteStatus sets an athlete's status. Moving an athlete to a
// terminal status also removes all of their heat assignments.
type UpdateAthleteStatus struct {
	AthleteID string
	NewStatus models.AthleteStatus
}

func (UpdateAthleteStatus) operation() {}

func (UpdateAthleteStatus) Kind() models.ChangeType { return models.ChangeTypeUpdateStatus }

func (o UpdateAthleteStatus) Validate() error {
	if err := required("athleteId", o.AthleteID); err != nil {
		return err
	}
	if !o.NewStatus.Valid() {
		return configErr("newStatus", "unknown status %q", o.NewStatus)
	}
	return nil
}

func (o UpdateAthleteStatus) Apply(s *models.Schedule) error {
	a := s.FindAthlete(o.AthleteID)
	if a == nil {
		return NotFound("athlete", o.AthleteID)
	}
	if a.Status.Terminal() && a.Status != o.NewStatus {
		return reject(IssueTerminalStatus, "athlete %s is %s and cannot become %s", o.AthleteID, a.Status, o.NewStatus)
	}
	a.Status = o.NewStatus
	if o.NewStatus.Terminal() {
		dropAssignments(s, o.AthleteID)
	}
	return nil
}

func (o UpdateAthleteStatus) Details() map[string]any {
	return map[string]any{"athleteId": o.AthleteID, "newStatus": string(o.NewStatus)}
}

// SubstituteAthlete replaces one athlete with another in the same heat and
// lane. NewAthlete carries the roster entry when the replacement is not yet
// part of the schedule.
type SubstituteAthlete struct {
	SessionID    string
	OldAthleteID string
	NewAthleteID string
	NewAthlete   *models.ScheduleAthlete
}

func (SubstituteAthlete) operation() {}

func (SubstituteAthlete) Kind() models.ChangeType { return models.ChangeTypeSubstitute }

func (o SubstituteAthlete) Session() string { return o.SessionID }

func (o SubstituteAthlete) Validate() error {
	for field, v := range map[string]string{"sessionId": o.SessionID, "oldAthleteId": o.OldAthleteID, "newAthleteId": o.NewAthleteID} {
		if err := required(field, v); err != nil {
			return err
		}
	}
	if o.OldAthleteID == o.NewAthleteID {
		return configErr("newAthleteId", "must differ from oldAthleteId")
	}
	return nil
}

func (o SubstituteAthlete) Apply(s *models.Schedule) error {
	sess, _, err := findSession(s, o.SessionID)
	if err != nil {
		return err
	}
	hi, ai, ok := sess.Locate(o.OldAthleteID)
	if !ok {
		return reject(IssueAthleteNotAssigned, "athlete %s is not assigned in session %s", o.OldAthleteID, o.SessionID)
	}
	if _, _, taken := sess.Locate(o.NewAthleteID); taken {
		return reject(IssueAthleteAlreadyAssigned, "athlete %s is already assigned in session %s", o.NewAthleteID, o.SessionID)
	}

	incoming := s.FindAthlete(o.NewAthleteID)
	if incoming == nil {
		if o.NewAthlete == nil {
			return NotFound("athlete", o.NewAthleteID)
		}
		s.Athletes = append(s.Athletes, *o.NewAthlete)
		incoming = &s.Athletes[len(s.Athletes)-1]
	}
	if incoming.Status.Terminal() {
		return reject(IssueTerminalStatus, "athlete %s is %s and cannot be substituted in", o.NewAthleteID, incoming.Status)
	}
	incoming.Status = models.AthleteStatusActive

	assignment := &sess.Heats[hi].Assignments[ai]
	assignment.AthleteID = incoming.AthleteID
	assignment.CategoryID = incoming.CategoryID
	return nil
}

func (o SubstituteAthlete) Details() map[string]any {
	return map[string]any{"sessionId": o.SessionID, "oldAthleteId": o.OldAthleteID, "newAthleteId": o.NewAthleteID}
}

// SwapAthletes exchanges the heats and lanes of two athletes in a session.
type SwapAthletes struct {
	SessionID  string
	Athlete1ID string
	Athlete2ID string
}

func (SwapAthletes) operation() {}

func (SwapAthletes) Kind() models.ChangeType { return models.ChangeTypeSwap }

func (o SwapAthletes) Session() string { return o.SessionID }

func (o SwapAthletes) Validate() error {
	for field, v := range map[string]string{"sessionId": o.SessionID, "athlete1Id": o.Athlete1ID, "athlete2Id": o.Athlete2ID} {
		if err := required(field, v); err != nil {
			return err
		}
	}
	if o.Athlete1ID == o.Athlete2ID {
		return configErr("athlete2Id", "must differ from athlete1Id")
	}
	return nil
}

func (o SwapAthletes) Apply(s *models.Schedule) error {
	sess, _, err := findSession(s, o.SessionID)
	if err != nil {
		return err
	}
	h1, a1, ok := sess.Locate(o.Athlete1ID)
	if !ok {
		return reject(IssueAthleteNotAssigned, "athlete %s is not assigned in session %s", o.Athlete1ID, o.SessionID)
	}
	h2, a2, ok := sess.Locate(o.Athlete2ID)
	if !ok {
		return reject(IssueAthleteNotAssigned, "athlete %s is not assigned in session %s", o.Athlete2ID, o.SessionID)
	}
	if err := requireActive(s, o.Athlete1ID); err != nil {
		return err
	}
	if err := requireActive(s, o.Athlete2ID); err != nil {
		return err
	}

	first := &sess.Heats[h1].Assignments[a1]
	second := &sess.Heats[h2].Assignments[a2]
	first.AthleteID, second.AthleteID = second.AthleteID, first.AthleteID
	first.CategoryID, second.CategoryID = second.CategoryID, first.CategoryID
	return nil
}

func (o SwapAthletes) Details() map[string]any {
	return map[string]any{"sessionId": o.SessionID, "athlete1Id": o.Athlete1ID, "athlete2Id": o.Athlete2ID}
}

// AdjustSessionTime moves a session so that its first heat starts at
// NewStartTime. Every heat shifts by the same amount and the setup window
// moves with them.
type AdjustSessionTime struct {
	SessionID    string
	NewStartTime string
}

func (AdjustSessionTime) operation() {}

func (AdjustSessionTime) Kind() models.ChangeType { return models.ChangeTypeAdjustTime }

func (o AdjustSessionTime) Session() string { return o.SessionID }

func (o AdjustSessionTime) Validate() error {
	if err := required("sessionId", o.SessionID); err != nil {
		return err
	}
	if _, err := models.ParseClock(o.NewStartTime); err != nil {
		return configErr("newStartTime", "%v", err)
	}
	return nil
}

func (o AdjustSessionTime) Apply(s *models.Schedule) error {
	sess, day, err := findSession(s, o.SessionID)
	if err != nil {
		return err
	}
	start, err := models.ParseClock(o.NewStartTime)
	if err != nil {
		return configErr("newStartTime", "%v", err)
	}

	// The first heat lands on start; setup happens before it.
	first := sess.StartTime.Add(sess.SetupTime)
	for i, h := range sess.Heats {
		if i == 0 || h.StartTime < first {
			first = h.StartTime
		}
	}
	delta := int(start - first)
	sess.StartTime = sess.StartTime.Add(delta)
	for i := range sess.Heats {
		sess.Heats[i].StartTime = sess.Heats[i].StartTime.Add(delta)
	}
	if !sess.StartTime.InDay() {
		return configErr("newStartTime", "setup would begin before midnight (%s)", sess.StartTime)
	}
	if !sess.End().InDay() {
		return configErr("newStartTime", "session would end after midnight (%s)", sess.End())
	}
	return CheckDayBudget(day)
}

func (o AdjustSessionTime) Details() map[string]any {
	return map[string]any{"sessionId": o.SessionID, "newStartTime": o.NewStartTime}
}

// MoveAthlete moves an athlete from their current heat into another heat of
// the same session, taking the lowest free lane.
type MoveAthlete struct {
	SessionID    string
	AthleteID    string
	TargetHeatID string
}

func (MoveAthlete) operation() {}

func (MoveAthlete) Kind() models.ChangeType { return models.ChangeTypeMoveAthlete }

func (o MoveAthlete) Session() string { return o.SessionID }

func (o MoveAthlete) Validate() error {
	for field, v := range map[string]string{"sessionId": o.SessionID, "athleteId": o.AthleteID, "targetHeatId": o.TargetHeatID} {
		if err := required(field, v); err != nil {
			return err
		}
	}
	return nil
}

func (o MoveAthlete) Apply(s *models.Schedule) error {
	sess, _, err := findSession(s, o.SessionID)
	if err != nil {
		return err
	}
	target, ti := sess.FindHeat(o.TargetHeatID)
	if target == nil {
		return NotFound("heat", o.TargetHeatID)
	}
	hi, ai, ok := sess.Locate(o.AthleteID)
	if !ok {
		return reject(IssueAthleteNotAssigned, "athlete %s is not assigned in session %s", o.AthleteID, o.SessionID)
	}
	if err := requireActive(s, o.AthleteID); err != nil {
		return err
	}
	if hi == ti {
		return reject(IssueAthleteAlreadyInHeat, "athlete %s is already in heat %d", o.AthleteID, target.HeatNumber)
	}
	if target.Full() {
		return reject(IssueHeatFull, "heat %d is at capacity (%d)", target.HeatNumber, target.Capacity)
	}

	source := &sess.Heats[hi]
	moved := source.Assignments[ai]
	source.Assignments = append(source.Assignments[:ai], source.Assignments[ai+1:]...)
	moved.Slot = target.NextSlot()
	target.Assignments = append(target.Assignments, moved)
	return nil
}

func (o MoveAthlete) Details() map[string]any {
	return map[string]any{"sessionId": o.SessionID, "athleteId": o.AthleteID, "targetHeatId": o.TargetHeatID}
}

// AddHeat appends an empty heat after the last heat of a session. CategoryID
// defaults to the category of the last heat. HeatID is generated when empty.
type AddHeat struct {
	SessionID  string
	CategoryID string
	HeatID     string
}

func (AddHeat) operation() {}

func (AddHeat) Kind() models.ChangeType { return models.ChangeTypeAddHeat }

func (o AddHeat) Session() string { return o.SessionID }

func (o AddHeat) Validate() error {
	return required("sessionId", o.SessionID)
}

func (o *AddHeat) Apply(s *models.Schedule) error {
	sess, day, err := findSession(s, o.SessionID)
	if err != nil {
		return err
	}

	category := o.CategoryID
	start := sess.StartTime.Add(sess.SetupTime)
	number := 1
	for _, h := range sess.Heats {
		if h.HeatNumber >= number {
			number = h.HeatNumber + 1
		}
	}
	if n := len(sess.Heats); n > 0 {
		last := sess.Heats[n-1]
		start = last.StartTime.Add(sess.HeatDuration + sess.BreakDuration)
		if category == "" {
			category = last.CategoryID
		}
	}
	if category == "" {
		return configErr("categoryId", "is required for a session without heats")
	}
	if !s.HasCategory(category) {
		return NotFound("category", category)
	}
	if o.HeatID == "" {
		o.HeatID = uuid.NewString()
	}

	capacity := s.Config.AthletesPerHeat
	if capacity <= 0 && len(sess.Heats) > 0 {
		capacity = sess.Heats[0].Capacity
	}
	sess.Heats = append(sess.Heats, models.Heat{
		HeatID:      o.HeatID,
		HeatNumber:  number,
		CategoryID:  category,
		Capacity:    capacity,
		StartTime:   start,
		Assignments: []models.HeatAssignment{},
	})
	if err := CheckDayBudget(day); err != nil {
		return err
	}
	return CheckDayEnds(day)
}

func (o AddHeat) Details() map[string]any {
	return map[string]any{"sessionId": o.SessionID, "categoryId": o.CategoryID, "heatId": o.HeatID}
}

// RemoveHeat deletes a heat. A heat with athletes is only removed when
// ForceRemove is set, and its athletes are left unassigned.
type RemoveHeat struct {
	SessionID   string
	HeatID      string
	ForceRemove bool

	unassigned []string
}

func (RemoveHeat) operation() {}

func (RemoveHeat) Kind() models.ChangeType { return models.ChangeTypeRemoveHeat }

func (o RemoveHeat) Session() string { return o.SessionID }

func (o RemoveHeat) Validate() error {
	if err := required("sessionId", o.SessionID); err != nil {
		return err
	}
	return required("heatId", o.HeatID)
}

func (o *RemoveHeat) Apply(s *models.Schedule) error {
	sess, _, err := findSession(s, o.SessionID)
	if err != nil {
		return err
	}
	heat, idx := sess.FindHeat(o.HeatID)
	if heat == nil {
		return NotFound("heat", o.HeatID)
	}
	if len(heat.Assignments) > 0 && !o.ForceRemove {
		return reject(IssueHeatNotEmpty, "heat %d holds %d athletes; set forceRemove to remove it", heat.HeatNumber, len(heat.Assignments))
	}
	o.unassigned = o.unassigned[:0]
	for _, a := range heat.Assignments {
		o.unassigned = append(o.unassigned, a.AthleteID)
	}
	sess.Heats = append(sess.Heats[:idx], sess.Heats[idx+1:]...)
	return nil
}

// Unassigned lists the athletes left without a heat by the last Apply.
func (o *RemoveHeat) Unassigned() []string {
	return o.unassigned
}

func (o RemoveHeat) Details() map[string]any {
	d := map[string]any{"sessionId": o.SessionID, "heatId": o.HeatID, "forceRemove": o.ForceRemove}
	if len(o.unassigned) > 0 {
		d["unassignedAthletes"] = append([]string(nil), o.unassigned...)
	}
	return d
}
