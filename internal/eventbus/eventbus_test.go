package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/athleon_scheduler/internal/events"
	"github.com/friendsincode/athleon_scheduler/internal/models"
)

func TestMessageRoundTrip(t *testing.T) {
	change := events.ScheduleChange{
		EventID:    "event-1",
		ScheduleID: "sched-1",
		Version:    4,
		ChangeType: models.ChangeTypeAddHeat,
		Timestamp:  time.Date(2025, 11, 17, 9, 0, 0, 0, time.UTC),
	}
	data, err := marshalMessage(change, "node-a")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	msg, err := unmarshalMessage(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.NodeID != "node-a" || msg.MessageID == "" {
		t.Fatalf("unexpected envelope: %+v", msg)
	}
	got := msg.Change
	if got.ScheduleID != change.ScheduleID || got.Version != 4 || got.ChangeType != change.ChangeType || !got.Timestamp.Equal(change.Timestamp) {
		t.Fatalf("change mismatch: %+v", msg.Change)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := unmarshalMessage([]byte("{not json")); err == nil {
		t.Fatal("expected error")
	}
}

func TestSubjectAndChannel(t *testing.T) {
	n := &NATSNotifier{subject: DefaultNATSConfig().Subject}
	if got := n.SubjectFor("event-1"); got != "athleon.schedules.event-1" {
		t.Fatalf("unexpected subject %q", got)
	}
	if got := ChannelFor("event-1"); got != "athleon:schedules:event-1" {
		t.Fatalf("unexpected channel %q", got)
	}
}

func TestNATSSubjectPatternRequired(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.Subject = "athleon.schedules"
	if _, err := NewNATSNotifier(cfg, "node-a", zerolog.Nop()); err == nil {
		t.Fatal("expected error for subject without placeholder")
	}
}

func TestRedisBusFallsBackWhenUnreachable(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 200 * time.Millisecond

	rb := NewRedisBus(cfg, "node-a", events.NewBus(), zerolog.Nop())
	defer rb.Close()

	if !rb.Fallback() {
		t.Fatal("expected fallback mode")
	}
	if err := rb.Notify(context.Background(), events.ScheduleChange{EventID: "event-1"}); err != nil {
		t.Fatalf("notify in fallback mode should be a no-op, got %v", err)
	}
}
