package roster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/athleon_scheduler/internal/db"
	"github.com/friendsincode/athleon_scheduler/internal/models"
	"github.com/friendsincode/athleon_scheduler/internal/scheduling"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, _ := database.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepository(database, 5*time.Second, zerolog.Nop())
}

const rosterYAML = `
eventId: event-1
categories:
  - categoryId: rx
    name: RX
  - categoryId: scaled
    name: Scaled
wods:
  - wodId: wod-1
    name: Fran
  - wodId: wod-2
    name: Grace
    dayId: day-2
athletes:
  - userId: a1
    firstName: Ana
    lastName: Silva
    categoryId: rx
  - userId: a2
    categoryId: scaled
    status: pending_payment
`

func writeRoster(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func TestImportAndLookup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	f, err := LoadFile(writeRoster(t, rosterYAML))
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	res, err := repo.Import(ctx, f)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Categories != 2 || res.Wods != 2 || res.Athletes != 2 {
		t.Fatalf("unexpected import counts: %+v", res)
	}

	a, err := repo.Athlete(ctx, "event-1", "a1")
	if err != nil {
		t.Fatalf("athlete: %v", err)
	}
	if a.FirstName != "Ana" || a.Status != models.AthleteStatusReady {
		t.Fatalf("unexpected athlete: %+v", a)
	}

	if _, err := repo.Athlete(ctx, "event-2", "a1"); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("expected not found for other event, got %v", err)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	f, _ := LoadFile(writeRoster(t, rosterYAML))
	if _, err := repo.Import(ctx, f); err != nil {
		t.Fatalf("first import: %v", err)
	}
	f.Athletes[0].CategoryID = "scaled"
	if _, err := repo.Import(ctx, f); err != nil {
		t.Fatalf("second import: %v", err)
	}

	ros, err := repo.Roster(ctx, "event-1")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(ros.Athletes) != 2 || ros.Athletes[0].CategoryID != "scaled" {
		t.Fatalf("unexpected athletes after re-import: %+v", ros.Athletes)
	}
	if len(ros.Wods) != 2 || ros.Wods[1].DayID != "day-2" {
		t.Fatalf("unexpected wods: %+v", ros.Wods)
	}
}

func TestImportRejectsBadStatus(t *testing.T) {
	repo := newTestRepo(t)
	f := &File{EventID: "event-1", Athletes: []scheduling.AthleteInput{{UserID: "a1", CategoryID: "rx", Status: "retired"}}}
	if _, err := repo.Import(context.Background(), f); err == nil {
		t.Fatal("expected error for unknown status")
	}
	ros, _ := repo.Roster(context.Background(), "event-1")
	if len(ros.Athletes) != 0 {
		t.Fatal("failed import must not leave rows behind")
	}
}

func TestFillOnlyEmptyLists(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f, _ := LoadFile(writeRoster(t, rosterYAML))
	if _, err := repo.Import(ctx, f); err != nil {
		t.Fatalf("import: %v", err)
	}

	c := scheduling.Constraints{
		Categories: []scheduling.CategoryInput{{CategoryID: "open", Name: "Open"}},
	}
	if err := repo.Fill(ctx, "event-1", &c); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if len(c.Categories) != 1 || c.Categories[0].CategoryID != "open" {
		t.Fatalf("explicit categories must be kept: %+v", c.Categories)
	}
	if len(c.Wods) != 2 || len(c.Athletes) != 2 {
		t.Fatalf("expected wods and athletes from roster, got %d/%d", len(c.Wods), len(c.Athletes))
	}
}
