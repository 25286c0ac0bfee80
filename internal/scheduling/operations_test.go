package scheduling

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

func rejectedWith(t *testing.T, err error, kind IssueKind) {
	t.Helper()
	var vf *ValidationFailure
	if !errors.As(err, &vf) {
		t.Fatalf("expected ValidationFailure(%s), got %v", kind, err)
	}
	if len(vf.Issues) == 0 || vf.Issues[0].Kind != kind {
		t.Fatalf("expected issue %s, got %+v", kind, vf.Issues)
	}
}

func TestSwapIsSelfInverse(t *testing.T) {
	s := buildSchedule(t, twoCategoryConstraints())
	original := s.Clone()
	sessionID := s.Days[0].Sessions[0].SessionID

	op := SwapAthletes{SessionID: sessionID, Athlete1ID: "rx-1", Athlete2ID: "rx-9"}
	if err := op.Apply(s); err != nil {
		t.Fatalf("first swap: %v", err)
	}
	heats := s.Days[0].Sessions[0].Heats
	if heats[0].Assignments[0].AthleteID != "rx-9" || heats[1].Assignments[0].AthleteID != "rx-1" {
		t.Fatalf("swap did not exchange athletes: %+v / %+v", heats[0].Assignments[0], heats[1].Assignments[0])
	}
	mustValid(t, s)

	if err := op.Apply(s); err != nil {
		t.Fatalf("second swap: %v", err)
	}
	if !reflect.DeepEqual(s.Days[0].Sessions[0], original.Days[0].Sessions[0]) {
		t.Fatal("double swap did not restore the session")
	}
}

func TestSwapRejections(t *testing.T) {
	s := buildSchedule(t, twoCategoryConstraints())
	sessionID := s.Days[0].Sessions[0].SessionID

	err := SwapAthletes{SessionID: sessionID, Athlete1ID: "rx-1", Athlete2ID: "nobody"}.Apply(s)
	rejectedWith(t, err, IssueAthleteNotAssigned)

	s.FindAthlete("rx-2").Status = models.AthleteStatusInjured
	err = SwapAthletes{SessionID: sessionID, Athlete1ID: "rx-1", Athlete2ID: "rx-2"}.Apply(s)
	rejectedWith(t, err, IssueAthleteNotActive)

	err = SwapAthletes{SessionID: "missing", Athlete1ID: "rx-1", Athlete2ID: "rx-3"}.Apply(s)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := (SwapAthletes{SessionID: sessionID, Athlete1ID: "rx-1", Athlete2ID: "rx-1"}).Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error for self swap, got %v", err)
	}
}

func TestUpdateAthleteStatus(t *testing.T) {
	s := buildSchedule(t, twoCategoryConstraints())

	if err := (UpdateAthleteStatus{AthleteID: "rx-1", NewStatus: models.AthleteStatusWithdrawn}).Apply(s); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	for _, sess := range s.Days[0].Sessions {
		if _, _, ok := sess.Locate("rx-1"); ok {
			t.Fatalf("withdrawn athlete still assigned in %s", sess.SessionID)
		}
	}
	mustValid(t, s)

	err := UpdateAthleteStatus{AthleteID: "rx-1", NewStatus: models.AthleteStatusActive}.Apply(s)
	rejectedWith(t, err, IssueTerminalStatus)

	if err := (UpdateAthleteStatus{AthleteID: "rx-2", NewStatus: models.AthleteStatusInjured}).Apply(s); err != nil {
		t.Fatalf("injure: %v", err)
	}
	if _, _, ok := s.Days[0].Sessions[0].Locate("rx-2"); !ok {
		t.Error("injured athlete should keep assignments")
	}

	err = UpdateAthleteStatus{AthleteID: "ghost", NewStatus: models.AthleteStatusActive}.Apply(s)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := (UpdateAthleteStatus{AthleteID: "rx-3", NewStatus: "retired"}).Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSubstituteAthlete(t *testing.T) {
	s := buildSchedule(t, twoCategoryConstraints())
	sessionID := s.Days[0].Sessions[0].SessionID

	op := SubstituteAthlete{
		SessionID:    sessionID,
		OldAthleteID: "rx-4",
		NewAthleteID: "rx-10",
		NewAthlete:   &models.ScheduleAthlete{AthleteID: "rx-10", CategoryID: "rx", Status: models.AthleteStatusReady},
	}
	if err := op.Apply(s); err != nil {
		t.Fatalf("substitute: %v", err)
	}
	slot := s.Days[0].Sessions[0].Heats[0].Assignments[3]
	if slot.AthleteID != "rx-10" || slot.Slot != 4 {
		t.Fatalf("substitution not in place: %+v", slot)
	}
	if s.FindAthlete("rx-10").Status != models.AthleteStatusActive {
		t.Error("substituted athlete should become active")
	}

	err := SubstituteAthlete{SessionID: sessionID, OldAthleteID: "rx-5", NewAthleteID: "rx-9"}.Apply(s)
	rejectedWith(t, err, IssueAthleteAlreadyAssigned)

	err = SubstituteAthlete{
		SessionID:    sessionID,
		OldAthleteID: "rx-5",
		NewAthleteID: "rx-11",
		NewAthlete:   &models.ScheduleAthlete{AthleteID: "rx-11", CategoryID: "rx", Status: models.AthleteStatusDisqualified},
	}.Apply(s.Clone())
	rejectedWith(t, err, IssueTerminalStatus)

	err = SubstituteAthlete{SessionID: sessionID, OldAthleteID: "rx-5", NewAthleteID: "unknown"}.Apply(s)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdjustSessionTime(t *testing.T) {
	s := buildSchedule(t, twoCategoryConstraints())
	sess := &s.Days[0].Sessions[1]
	before := []models.ClockTime{sess.Heats[0].StartTime, sess.Heats[1].StartTime, sess.Heats[2].StartTime}

	op := AdjustSessionTime{SessionID: sess.SessionID, NewStartTime: "10:00"}
	if err := op.Apply(s); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if sess.Heats[0].StartTime.String() != "10:00" || sess.StartTime.String() != "09:50" {
		t.Fatalf("session not moved: start %s first heat %s", sess.StartTime, sess.Heats[0].StartTime)
	}
	for i := 1; i < 3; i++ {
		if sess.Heats[i].StartTime-sess.Heats[i-1].StartTime != before[i]-before[i-1] {
			t.Errorf("spacing changed between heats %d and %d", i, i+1)
		}
	}
	mustValid(t, s)

	err := AdjustSessionTime{SessionID: sess.SessionID, NewStartTime: "16:00"}.Apply(s)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	if err := (AdjustSessionTime{SessionID: sess.SessionID, NewStartTime: "00:05"}).Apply(s); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("setup before midnight: expected configuration error, got %v", err)
	}
	if err := (AdjustSessionTime{SessionID: sess.SessionID, NewStartTime: "noon"}).Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestMoveAthlete(t *testing.T) {
	s := buildSchedule(t, twoCategoryConstraints())
	sess := &s.Days[0].Sessions[0]
	full, partial := sess.Heats[0], sess.Heats[1]

	if err := (MoveAthlete{SessionID: sess.SessionID, AthleteID: "rx-1", TargetHeatID: partial.HeatID}).Apply(s); err != nil {
		t.Fatalf("move: %v", err)
	}
	if len(sess.Heats[0].Assignments) != 7 || len(sess.Heats[1].Assignments) != 2 {
		t.Fatalf("unexpected heat sizes %d/%d", len(sess.Heats[0].Assignments), len(sess.Heats[1].Assignments))
	}
	if moved := sess.Heats[1].Assignments[1]; moved.AthleteID != "rx-1" || moved.Slot != 2 {
		t.Fatalf("moved assignment = %+v", moved)
	}
	mustValid(t, s)

	// refill the first heat and try to move into it
	if err := (MoveAthlete{SessionID: sess.SessionID, AthleteID: "rx-1", TargetHeatID: full.HeatID}).Apply(s); err != nil {
		t.Fatalf("move back: %v", err)
	}
	if moved := sess.Heats[0].Assignments[7]; moved.Slot != 1 {
		t.Errorf("expected lowest free slot 1, got %d", moved.Slot)
	}
	err := MoveAthlete{SessionID: sess.SessionID, AthleteID: "rx-9", TargetHeatID: full.HeatID}.Apply(s)
	rejectedWith(t, err, IssueHeatFull)

	err = MoveAthlete{SessionID: sess.SessionID, AthleteID: "rx-9", TargetHeatID: partial.HeatID}.Apply(s)
	rejectedWith(t, err, IssueAthleteAlreadyInHeat)

	err = MoveAthlete{SessionID: sess.SessionID, AthleteID: "rx-9", TargetHeatID: "nope"}.Apply(s)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddHeat(t *testing.T) {
	s := buildSchedule(t, twoCategoryConstraints())
	sess := &s.Days[0].Sessions[0]
	last := sess.Heats[2]

	op := &AddHeat{SessionID: sess.SessionID, HeatID: "heat-new"}
	if err := op.Apply(s); err != nil {
		t.Fatalf("add heat: %v", err)
	}
	if len(sess.Heats) != 4 {
		t.Fatalf("expected 4 heats, got %d", len(sess.Heats))
	}
	added := sess.Heats[3]
	if added.HeatID != "heat-new" || added.HeatNumber != 4 || added.CategoryID != last.CategoryID || added.Capacity != 8 {
		t.Errorf("unexpected heat %+v", added)
	}
	if added.StartTime != last.StartTime.Add(25) || len(added.Assignments) != 0 {
		t.Errorf("heat start %s, want %s", added.StartTime, last.StartTime.Add(25))
	}
	mustValid(t, s)

	s.Days[0].BudgetMinutes = DaySpan(&s.Days[0])
	lastSession := s.Days[0].Sessions[1].SessionID
	err := (&AddHeat{SessionID: lastSession}).Apply(s)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}

	err = (&AddHeat{SessionID: sess.SessionID, CategoryID: "masters"}).Apply(buildSchedule(t, twoCategoryConstraints()))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unknown category, got %v", err)
	}
}

func TestAddHeatRejectsHeatPastMidnight(t *testing.T) {
	s := buildSchedule(t, lateConstraints("21:00", 28))
	sess := &s.Days[0].Sessions[0]

	err := (&AddHeat{SessionID: sess.SessionID}).Apply(s)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if res := NewValidator(zerolog.Nop()).Validate(s); !hasIssue(res, IssueSessionPastMidnight) || res.Valid {
		t.Fatalf("validator should block the overflowing session, got %+v", res.Issues)
	}
}

func TestRemoveHeat(t *testing.T) {
	s := buildSchedule(t, twoCategoryConstraints())
	sess := &s.Days[0].Sessions[0]
	heat := sess.Heats[2] // three scaled athletes

	err := (&RemoveHeat{SessionID: sess.SessionID, HeatID: heat.HeatID}).Apply(s)
	rejectedWith(t, err, IssueHeatNotEmpty)

	op := &RemoveHeat{SessionID: sess.SessionID, HeatID: heat.HeatID, ForceRemove: true}
	if err := op.Apply(s); err != nil {
		t.Fatalf("force remove: %v", err)
	}
	if len(sess.Heats) != 2 {
		t.Fatalf("expected 2 heats, got %d", len(sess.Heats))
	}
	if got := op.Unassigned(); !reflect.DeepEqual(got, []string{"sc-1", "sc-2", "sc-3"}) {
		t.Errorf("unassigned = %v", got)
	}
	if d := op.Details(); d["unassignedAthletes"] == nil {
		t.Error("details should list unassigned athletes")
	}
	for _, a := range s.Athletes {
		if a.AthleteID == "sc-1" && a.Status != models.AthleteStatusActive {
			t.Error("unassigned athletes keep their status")
		}
	}
	res := NewValidator(zerolog.Nop()).Validate(s)
	if !res.Valid {
		t.Fatalf("unexpected issues: %+v", res.Errors())
	}
	if res.Statistics.UnassignedActiveAthletes != 0 {
		// still placed in the second session
		t.Errorf("unassigned active = %d", res.Statistics.UnassignedActiveAthletes)
	}

	err = (&RemoveHeat{SessionID: sess.SessionID, HeatID: "gone"}).Apply(s)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
