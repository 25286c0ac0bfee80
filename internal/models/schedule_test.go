package models

import "testing"

func sampleSchedule() *Schedule {
	return &Schedule{
		ScheduleID: "s1",
		Version:    3,
		Athletes:   []ScheduleAthlete{{AthleteID: "a1", CategoryID: "rx", Status: AthleteStatusActive}},
		Categories: []Category{{CategoryID: "rx"}},
		Days: []Day{{
			DayID: "d1",
			Sessions: []Session{{
				SessionID:    "sess",
				StartTime:    480,
				SetupTime:    10,
				HeatDuration: 20,
				Heats: []Heat{
					{HeatID: "h1", Capacity: 2, StartTime: 490, Assignments: []HeatAssignment{{AthleteID: "a1", Slot: 1}}},
					{HeatID: "h2", Capacity: 2, StartTime: 515},
				},
			}},
		}},
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := sampleSchedule()
	clone := orig.Clone()

	clone.Athletes[0].Status = AthleteStatusWithdrawn
	clone.Days[0].Sessions[0].Heats[0].Assignments[0].AthleteID = "other"
	clone.Days[0].Sessions[0].Heats = append(clone.Days[0].Sessions[0].Heats, Heat{HeatID: "h3"})

	if orig.Athletes[0].Status != AthleteStatusActive {
		t.Error("athlete status leaked into original")
	}
	if orig.Days[0].Sessions[0].Heats[0].Assignments[0].AthleteID != "a1" {
		t.Error("assignment leaked into original")
	}
	if len(orig.Days[0].Sessions[0].Heats) != 2 {
		t.Error("heat slice shared with original")
	}
}

func TestSessionHelpers(t *testing.T) {
	s := sampleSchedule()
	sess, day := s.FindSession("sess")
	if sess == nil || day.DayID != "d1" {
		t.Fatal("session lookup failed")
	}
	if sess.End() != 535 {
		t.Errorf("end = %s, want 08:55", sess.End())
	}
	if hi, ai, ok := sess.Locate("a1"); !ok || hi != 0 || ai != 0 {
		t.Errorf("locate = %d,%d,%v", hi, ai, ok)
	}
	heat, _ := sess.FindHeat("h1")
	if heat.Full() || heat.NextSlot() != 2 {
		t.Errorf("heat full=%v next=%d", heat.Full(), heat.NextSlot())
	}
	if !AthleteStatusDisqualified.Terminal() || AthleteStatusInjured.Terminal() {
		t.Error("terminal status mismatch")
	}
	if !AthleteStatus("").Eligible() || AthleteStatusPendingPayment.Eligible() {
		t.Error("eligibility mismatch")
	}
}
