/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler runs schedule generation and edits against the version
// store: lock, load, check version, apply to a clone, validate, commit, then
// notify and archive.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/athleon_scheduler/internal/audit"
	"github.com/friendsincode/athleon_scheduler/internal/cache"
	"github.com/friendsincode/athleon_scheduler/internal/events"
	"github.com/friendsincode/athleon_scheduler/internal/locking"
	"github.com/friendsincode/athleon_scheduler/internal/models"
	"github.com/friendsincode/athleon_scheduler/internal/scheduling"
	"github.com/friendsincode/athleon_scheduler/internal/telemetry"
)

const tracerName = "athleon/scheduler"

// VersionStore persists schedule versions and the audit trail.
type VersionStore interface {
	Create(ctx context.Context, sched *models.Schedule, entry models.AuditLogEntry) (*models.AuditLogEntry, error)
	Commit(ctx context.Context, sched *models.Schedule, expectedVersion int, entry models.AuditLogEntry) (*models.AuditLogEntry, error)
	Get(ctx context.Context, eventID, scheduleID string, version int) (*models.Schedule, error)
	Versions(ctx context.Context, eventID, scheduleID string) ([]models.ScheduleVersion, error)
	ListSchedules(ctx context.Context, eventID string) ([]models.ScheduleRecord, error)
	AuditLog(ctx context.Context, scheduleID string, filters audit.QueryFilters) ([]models.AuditLogEntry, int64, error)
	VerifyAudit(ctx context.Context, scheduleID string) (audit.VerifyResult, error)
}

// Notifier receives committed changes. Failures are logged, never returned
// to the editor.
type Notifier interface {
	Notify(ctx context.Context, change events.ScheduleChange) error
}

// RosterLookup resolves athletes and fills generation input from the
// event's registrations.
type RosterLookup interface {
	Athlete(ctx context.Context, eventID, athleteID string) (*models.ScheduleAthlete, error)
	Fill(ctx context.Context, eventID string, c *scheduling.Constraints) error
}

// Archiver keeps an out-of-database copy of every committed version.
type Archiver interface {
	ArchiveVersion(ctx context.Context, sched *models.Schedule) error
}

// Cache serves the latest version of a schedule.
type Cache interface {
	Latest(ctx context.Context, eventID, scheduleID string, load cache.Loader) (*models.Schedule, error)
	SetSchedule(ctx context.Context, sched *models.Schedule) error
	Invalidate(ctx context.Context, scheduleID string) error
}

// Ref addresses a schedule edit.
type Ref struct {
	EventID         string
	ScheduleID      string
	ExpectedVersion int
	UserID          string
}

// Result is the outcome of a committed edit.
type Result struct {
	Schedule   *models.Schedule
	Version    int
	Entry      *models.AuditLogEntry
	Session    *models.Session // set for session-scoped edits
	Unassigned []string        // athletes left without a heat by remove_heat
}

type namedNotifier struct {
	name string
	n    Notifier
}

// Engine is the schedule edit engine.
type Engine struct {
	store     VersionStore
	builder   *scheduling.Builder
	validator *scheduling.Validator
	defaults  scheduling.Defaults
	logger    zerolog.Logger

	locker         locking.Locker
	lockTimeout    time.Duration
	publishTimeout time.Duration

	roster    RosterLookup
	cache     Cache
	archiver  Archiver
	notifiers []namedNotifier

	wg sync.WaitGroup
}

// New constructs the engine with an in-process lock and no optional
// collaborators.
func New(store VersionStore, builder *scheduling.Builder, defaults scheduling.Defaults, logger zerolog.Logger) *Engine {
	return &Engine{
		store:          store,
		builder:        builder,
		validator:      scheduling.NewValidator(logger),
		defaults:       defaults,
		logger:         logger.With().Str("component", "schedule_engine").Logger(),
		locker:         locking.NewKeyedMutex(),
		lockTimeout:    3 * time.Second,
		publishTimeout: 2 * time.Second,
	}
}

// SetLocker replaces the per-schedule lock.
func (e *Engine) SetLocker(l locking.Locker, timeout time.Duration) {
	e.locker = l
	if timeout > 0 {
		e.lockTimeout = timeout
	}
}

// SetPublishTimeout bounds each notifier and archive call.
func (e *Engine) SetPublishTimeout(d time.Duration) {
	if d > 0 {
		e.publishTimeout = d
	}
}

// SetRoster sets the roster lookup.
func (e *Engine) SetRoster(r RosterLookup) { e.roster = r }

// SetCache sets the latest-schedule cache.
func (e *Engine) SetCache(c Cache) { e.cache = c }

// SetArchiver sets the snapshot archiver.
func (e *Engine) SetArchiver(a Archiver) { e.archiver = a }

// AddNotifier registers a change notifier under a metrics label.
func (e *Engine) AddNotifier(name string, n Notifier) {
	e.notifiers = append(e.notifiers, namedNotifier{name: name, n: n})
}

// Wait blocks until background notifications and archiving have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Generate builds version 1 of a schedule.
func (e *Engine) Generate(ctx context.Context, eventID, userID string, c scheduling.Constraints) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "scheduler.generate")
	defer span.End()
	start := time.Now()

	c.ApplyDefaults(e.defaults)
	if e.roster != nil {
		if err := e.roster.Fill(ctx, eventID, &c); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("load roster: %w", err)
		}
	}

	sched, err := e.builder.Build(eventID, c)
	if err != nil {
		e.rejected(models.ChangeTypeGenerate, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if issues := e.validator.Validate(sched).Errors(); len(issues) > 0 {
		err := &scheduling.ValidationFailure{Issues: issues}
		e.rejected(models.ChangeTypeGenerate, err)
		return nil, err
	}

	entry, err := e.store.Create(ctx, sched, models.AuditLogEntry{
		UserID:     userID,
		ChangeType: models.ChangeTypeGenerate,
		Details: map[string]any{
			"days":       len(sched.Days),
			"wods":       len(sched.Wods),
			"categories": len(sched.Categories),
			"athletes":   len(sched.Athletes),
		},
	})
	if err != nil {
		e.rejected(models.ChangeTypeGenerate, err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.ScheduleGenerationDuration.Observe(time.Since(start).Seconds())
	telemetry.ScheduleCommitsTotal.WithLabelValues(string(models.ChangeTypeGenerate)).Inc()
	telemetry.ScheduleAttributes(span, eventID, sched.ScheduleID, sched.Version)

	e.logger.Info().
		Str("event_id", eventID).
		Str("schedule_id", sched.ScheduleID).
		Int("sessions", countSessions(sched)).
		Dur("took", time.Since(start)).
		Msg("schedule generated")

	e.refreshCache(sched)
	e.afterCommit(sched, entry)
	return &Result{Schedule: sched, Version: sched.Version, Entry: entry}, nil
}

// Apply runs one edit under the schedule lock.
func (e *Engine) Apply(ctx context.Context, ref Ref, op scheduling.Operation) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "scheduler.apply."+string(op.Kind()))
	defer span.End()

	if err := op.Validate(); err != nil {
		e.rejected(op.Kind(), err)
		return nil, err
	}

	res, err := e.mutate(ctx, ref, op.Kind(), func(ctx context.Context, current *models.Schedule) (*models.Schedule, error) {
		if err := e.resolveSubstitute(ctx, ref.EventID, current, op); err != nil {
			return nil, err
		}
		next := current.Clone()
		if err := op.Apply(next); err != nil {
			return nil, err
		}
		return next, nil
	}, func() map[string]any { return op.Details() })
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if so, ok := op.(scheduling.SessionOperation); ok {
		if sess, _ := res.Schedule.FindSession(so.Session()); sess != nil {
			res.Session = sess
		}
	}
	if rh, ok := op.(*scheduling.RemoveHeat); ok {
		res.Unassigned = rh.Unassigned()
	}
	telemetry.ScheduleAttributes(span, ref.EventID, ref.ScheduleID, res.Version)
	return res, nil
}

// Revert commits a copy of an earlier version as the next version.
func (e *Engine) Revert(ctx context.Context, ref Ref, targetVersion int) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "scheduler.revert")
	defer span.End()

	if targetVersion < 1 {
		err := &scheduling.ConfigurationError{Field: "versionId", Reason: "must be at least 1"}
		e.rejected(models.ChangeTypeRevert, err)
		return nil, err
	}

	res, err := e.mutate(ctx, ref, models.ChangeTypeRevert, func(ctx context.Context, current *models.Schedule) (*models.Schedule, error) {
		if targetVersion >= current.Version {
			return nil, &scheduling.ConfigurationError{
				Field:  "versionId",
				Reason: fmt.Sprintf("must be an earlier version than %d", current.Version),
			}
		}
		target, err := e.store.Get(ctx, ref.EventID, ref.ScheduleID, targetVersion)
		if err != nil {
			return nil, err
		}
		next := target.Clone()
		next.Version = current.Version
		next.CreatedAt = current.CreatedAt
		return next, nil
	}, func() map[string]any {
		return map[string]any{"targetVersion": targetVersion}
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return res, nil
}

type transform func(ctx context.Context, current *models.Schedule) (*models.Schedule, error)

func (e *Engine) mutate(ctx context.Context, ref Ref, kind models.ChangeType, fn transform, details func() map[string]any) (*Result, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	unlock, err := e.locker.Lock(lockCtx, lockKey(ref.EventID, ref.ScheduleID))
	cancel()
	if err != nil {
		e.rejected(kind, err)
		return nil, err
	}

	next, entry, err := func() (*models.Schedule, *models.AuditLogEntry, error) {
		defer unlock()

		current, err := e.store.Get(ctx, ref.EventID, ref.ScheduleID, 0)
		if err != nil {
			return nil, nil, err
		}
		if current.Version != ref.ExpectedVersion {
			return nil, nil, &scheduling.VersionConflictError{
				ScheduleID: ref.ScheduleID,
				Expected:   ref.ExpectedVersion,
				Current:    current.Version,
			}
		}

		next, err := fn(ctx, current)
		if err != nil {
			return nil, nil, err
		}
		if issues := e.validator.Validate(next).Errors(); len(issues) > 0 {
			return nil, nil, &scheduling.ValidationFailure{Issues: issues}
		}

		// Details are read after the transformation so generated ids and
		// unassigned athletes are recorded.
		entry, err := e.store.Commit(ctx, next, ref.ExpectedVersion, models.AuditLogEntry{
			UserID:     ref.UserID,
			ChangeType: kind,
			Details:    details(),
		})
		if err != nil {
			return nil, nil, err
		}
		// Refreshed under the lock so a slower writer cannot cache an older version.
		e.refreshCache(next)
		return next, entry, nil
	}()
	if err != nil {
		e.rejected(kind, err)
		if errors.Is(err, scheduling.ErrUnknownOutcome) && e.cache != nil {
			_ = e.cache.Invalidate(context.WithoutCancel(ctx), ref.ScheduleID)
		}
		return nil, err
	}

	telemetry.ScheduleCommitsTotal.WithLabelValues(string(kind)).Inc()
	e.logger.Info().
		Str("event_id", ref.EventID).
		Str("schedule_id", ref.ScheduleID).
		Str("change_type", string(kind)).
		Str("user_id", ref.UserID).
		Int("version", next.Version).
		Msg("schedule updated")

	e.afterCommit(next, entry)
	return &Result{Schedule: next, Version: next.Version, Entry: entry}, nil
}

// resolveSubstitute fills in the incoming athlete from the roster when the
// schedule does not know them yet.
func (e *Engine) resolveSubstitute(ctx context.Context, eventID string, current *models.Schedule, op scheduling.Operation) error {
	sub, ok := op.(*scheduling.SubstituteAthlete)
	if !ok || sub.NewAthlete != nil || current.FindAthlete(sub.NewAthleteID) != nil || e.roster == nil {
		return nil
	}
	athlete, err := e.roster.Athlete(ctx, eventID, sub.NewAthleteID)
	if err != nil {
		return err
	}
	sub.NewAthlete = athlete
	return nil
}

func (e *Engine) refreshCache(sched *models.Schedule) {
	if e.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.publishTimeout)
	defer cancel()
	if err := e.cache.SetSchedule(ctx, sched); err != nil {
		_ = e.cache.Invalidate(ctx, sched.ScheduleID)
	}
}

// afterCommit notifies and archives in the background. None of it can fail
// the committed edit.
func (e *Engine) afterCommit(sched *models.Schedule, entry *models.AuditLogEntry) {
	ctx := context.Background()

	change := events.ScheduleChange{
		EventID:    sched.EventID,
		ScheduleID: sched.ScheduleID,
		Version:    sched.Version,
		ChangeType: entry.ChangeType,
		UserID:     entry.UserID,
		Timestamp:  entry.Timestamp,
	}

	for _, nn := range e.notifiers {
		nn := nn
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			pctx, cancel := context.WithTimeout(ctx, e.publishTimeout)
			defer cancel()
			if err := nn.n.Notify(pctx, change); err != nil {
				telemetry.NotificationFailuresTotal.WithLabelValues(nn.name).Inc()
				e.logger.Warn().Err(err).
					Str("sink", nn.name).
					Str("schedule_id", change.ScheduleID).
					Int("version", change.Version).
					Msg("schedule change notification failed")
			}
		}()
	}

	if e.archiver != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			actx, cancel := context.WithTimeout(ctx, e.publishTimeout)
			defer cancel()
			if err := e.archiver.ArchiveVersion(actx, sched); err != nil {
				telemetry.NotificationFailuresTotal.WithLabelValues("archive").Inc()
				e.logger.Warn().Err(err).
					Str("schedule_id", sched.ScheduleID).
					Int("version", sched.Version).
					Msg("schedule snapshot archive failed")
			}
		}()
	}
}

// Get returns the latest schedule, or a specific version when version > 0.
func (e *Engine) Get(ctx context.Context, eventID, scheduleID string, version int) (*models.Schedule, error) {
	if version > 0 || e.cache == nil {
		return e.store.Get(ctx, eventID, scheduleID, version)
	}
	return e.cache.Latest(ctx, eventID, scheduleID, func(ctx context.Context) (*models.Schedule, error) {
		return e.store.Get(ctx, eventID, scheduleID, 0)
	})
}

// Validate runs the validator on the latest version.
func (e *Engine) Validate(ctx context.Context, eventID, scheduleID string) (*scheduling.ValidationResult, error) {
	sched, err := e.Get(ctx, eventID, scheduleID, 0)
	if err != nil {
		return nil, err
	}
	return e.validator.Validate(sched), nil
}

// Versions lists the version history, newest first.
func (e *Engine) Versions(ctx context.Context, eventID, scheduleID string) ([]models.ScheduleVersion, error) {
	return e.store.Versions(ctx, eventID, scheduleID)
}

// ListSchedules lists the schedules of an event.
func (e *Engine) ListSchedules(ctx context.Context, eventID string) ([]models.ScheduleRecord, error) {
	return e.store.ListSchedules(ctx, eventID)
}

// AuditLog returns filtered audit entries of a schedule that belongs to eventID.
func (e *Engine) AuditLog(ctx context.Context, eventID, scheduleID string, filters audit.QueryFilters) ([]models.AuditLogEntry, int64, error) {
	if _, err := e.Get(ctx, eventID, scheduleID, 0); err != nil {
		return nil, 0, err
	}
	return e.store.AuditLog(ctx, scheduleID, filters)
}

// VerifyAudit checks the audit hash chain of a schedule.
func (e *Engine) VerifyAudit(ctx context.Context, eventID, scheduleID string) (audit.VerifyResult, error) {
	if _, err := e.Get(ctx, eventID, scheduleID, 0); err != nil {
		return audit.VerifyResult{}, err
	}
	return e.store.VerifyAudit(ctx, scheduleID)
}

func (e *Engine) rejected(kind models.ChangeType, err error) {
	reason := Reason(err)
	telemetry.ScheduleRejectionsTotal.WithLabelValues(string(kind), reason).Inc()
	ev := e.logger.Debug()
	if reason == "internal" || reason == "unknown_outcome" {
		ev = e.logger.Error()
	}
	ev.Err(err).Str("change_type", string(kind)).Str("reason", reason).Msg("schedule change rejected")
}

// Reason classifies an engine error for metrics and API responses.
func Reason(err error) string {
	switch {
	case errors.Is(err, scheduling.ErrConfiguration):
		return "invalid_request"
	case errors.Is(err, scheduling.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, scheduling.ErrValidation):
		return "validation_failed"
	case errors.Is(err, scheduling.ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, scheduling.ErrNotFound):
		return "not_found"
	case errors.Is(err, scheduling.ErrUnknownOutcome):
		return "unknown_outcome"
	case errors.Is(err, locking.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "internal"
	}
}

func lockKey(eventID, scheduleID string) string {
	return eventID + "/" + scheduleID
}

func countSessions(s *models.Schedule) int {
	n := 0
	for _, d := range s.Days {
		n += len(d.Sessions)
	}
	return n
}
