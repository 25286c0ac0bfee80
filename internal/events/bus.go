/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"context"
	"sync"
	"time"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

// EventType enumerates event categories.
type EventType string

const (
	EventScheduleGenerated EventType = "schedule.generated"
	EventScheduleUpdated   EventType = "schedule.updated"
	EventScheduleReverted  EventType = "schedule.reverted"
)

// ScheduleEventTypes lists every schedule change event type.
var ScheduleEventTypes = []EventType{EventScheduleGenerated, EventScheduleUpdated, EventScheduleReverted}

// TypeFor maps a committed change to the event type it is published under.
func TypeFor(changeType models.ChangeType) EventType {
	switch changeType {
	case models.ChangeTypeGenerate:
		return EventScheduleGenerated
	case models.ChangeTypeRevert:
		return EventScheduleReverted
	default:
		return EventScheduleUpdated
	}
}

// ScheduleChange describes one committed schedule version.
type ScheduleChange struct {
	EventID    string            `json:"eventId"`
	ScheduleID string            `json:"scheduleId"`
	Version    int               `json:"version"`
	ChangeType models.ChangeType `json:"changeType"`
	UserID     string            `json:"userId,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Type returns the event type of the change.
func (c ScheduleChange) Type() EventType {
	return TypeFor(c.ChangeType)
}

// Payload flattens the change for bus subscribers.
func (c ScheduleChange) Payload() Payload {
	return Payload{
		"event_id":    c.EventID,
		"schedule_id": c.ScheduleID,
		"version":     c.Version,
		"change_type": string(c.ChangeType),
		"user_id":     c.UserID,
		"timestamp":   c.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss events rather
// than block the publisher.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Notify publishes a committed change. It never blocks and never fails.
func (b *Bus) Notify(_ context.Context, change ScheduleChange) error {
	b.Publish(change.Type(), change.Payload())
	return nil
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}
