package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitTracerDisabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  TracerConfig
	}{
		{"disabled", TracerConfig{ServiceName: "athleon-scheduler", OTLPEndpoint: "localhost:4317"}},
		{"no endpoint", TracerConfig{ServiceName: "athleon-scheduler", Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, err := InitTracer(context.Background(), tt.cfg, zerolog.Nop())
			if err != nil {
				t.Fatalf("init: %v", err)
			}
			if err := tp.Shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown: %v", err)
			}

			_, span := StartSpan(context.Background(), "test", "scheduler.generate")
			ScheduleAttributes(span, "event-1", "sched-1", 1)
			RecordError(span, errors.New("boom"))
			span.End()
			if span.SpanContext().IsValid() {
				t.Fatal("noop provider should not produce recording spans")
			}
		})
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		got := samplerFor(tt.rate).Description()
		if !strings.HasPrefix(got, "ParentBased{root:"+tt.want) {
			t.Errorf("rate %v: sampler %q", tt.rate, got)
		}
	}
}

func TestShutdownNilProvider(t *testing.T) {
	var tp *TracerProvider
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil shutdown: %v", err)
	}
}
