package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/friendsincode/athleon_scheduler/internal/models"
	"github.com/friendsincode/athleon_scheduler/internal/scheduling"
)

const constraintYAML = `
scheduleId: sched-cli
maxDayHours: 10
lunchBreakHours: 1
athletesPerHeat: 8
days:
  - dayId: day-1
    date: "2025-11-17"
wods:
  - wodId: wod-1
    name: Fran
  - wodId: wod-2
    name: Grace
categories:
  - categoryId: rx
    name: RX
  - categoryId: scaled
    name: Scaled
athletes:
  - {userId: a1, categoryId: rx}
  - {userId: a2, categoryId: rx}
  - {userId: a3, categoryId: scaled}
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "constraints.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestLoadConstraints(t *testing.T) {
	c, err := loadConstraints(writeFile(t, constraintYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ScheduleID != "sched-cli" || len(c.Wods) != 2 || len(c.Athletes) != 3 {
		t.Fatalf("unexpected constraints %+v", c)
	}

	if _, err := loadConstraints(writeFile(t, "maxDayHours: 40\nathletesPerHeat: 2\n")); err == nil {
		t.Fatal("expected validation error for maxDayHours")
	}
	if _, err := loadConstraints(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWriteSchedule(t *testing.T) {
	c, err := loadConstraints(writeFile(t, constraintYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c.ApplyDefaults(scheduling.DefaultDefaults())
	sched, err := scheduling.NewBuilder().Build("event-cli", *c)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var jsonOut bytes.Buffer
	if err := writeSchedule(&jsonOut, sched, "json"); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded models.Schedule
	if err := json.Unmarshal(jsonOut.Bytes(), &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.ScheduleID != "sched-cli" || len(decoded.Days[0].Sessions) != 2 {
		t.Fatalf("unexpected schedule %+v", decoded)
	}

	var yamlOut bytes.Buffer
	if err := writeSchedule(&yamlOut, sched, "yaml"); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(yamlOut.String(), "scheduleId: sched-cli") {
		t.Fatalf("yaml output missing schedule id:\n%s", yamlOut.String())
	}

	if err := writeSchedule(&bytes.Buffer{}, sched, "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
