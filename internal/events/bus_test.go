package events

import (
	"context"
	"testing"
	"time"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

func TestTypeFor(t *testing.T) {
	tests := []struct {
		change models.ChangeType
		want   EventType
	}{
		{models.ChangeTypeGenerate, EventScheduleGenerated},
		{models.ChangeTypeRevert, EventScheduleReverted},
		{models.ChangeTypeSwap, EventScheduleUpdated},
		{models.ChangeTypeRemoveHeat, EventScheduleUpdated},
	}
	for _, tt := range tests {
		if got := TypeFor(tt.change); got != tt.want {
			t.Errorf("TypeFor(%s) = %s, want %s", tt.change, got, tt.want)
		}
	}
}

func TestNotifyDeliversPayload(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventScheduleUpdated)
	defer bus.Unsubscribe(EventScheduleUpdated, sub)

	change := ScheduleChange{
		EventID:    "event-1",
		ScheduleID: "sched-1",
		Version:    3,
		ChangeType: models.ChangeTypeMoveAthlete,
		UserID:     "org-1",
		Timestamp:  time.Date(2025, 11, 17, 9, 0, 0, 0, time.UTC),
	}
	if err := bus.Notify(context.Background(), change); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case p := <-sub:
		if p["schedule_id"] != "sched-1" || p["version"] != 3 || p["change_type"] != "move_athlete" {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventScheduleGenerated)

	for i := 0; i < 20; i++ {
		bus.Publish(EventScheduleGenerated, Payload{"n": i})
	}
	if len(sub) != cap(sub) {
		t.Fatalf("expected buffer full at %d, got %d", cap(sub), len(sub))
	}

	bus.Unsubscribe(EventScheduleGenerated, sub)
	if _, open := <-drain(sub); open {
		t.Fatal("subscriber channel should be closed after unsubscribe")
	}
}

func drain(sub Subscriber) chan struct{} {
	done := make(chan struct{})
	go func() {
		for range sub {
		}
		close(done)
	}()
	return done
}
