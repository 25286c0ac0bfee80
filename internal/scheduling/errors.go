/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below unwraps to one of these.
var (
	ErrConfiguration    = errors.New("invalid configuration")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrValidation       = errors.New("validation failed")
	ErrVersionConflict  = errors.New("version conflict")
	ErrNotFound         = errors.New("not found")
	// ErrUnknownOutcome means a commit did not report back before its deadline.
	// The caller must re-read the current version before retrying.
	ErrUnknownOutcome = errors.New("commit outcome unknown")
)

// ConfigurationError reports malformed constraint or operation input.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// CapacityExceededError reports a day whose scheduled span is over its budget.
type CapacityExceededError struct {
	DayID           string
	BudgetMinutes   int
	RequiredMinutes int
}

// OverageMinutes is the amount by which the day is over budget.
func (e *CapacityExceededError) OverageMinutes() int {
	return e.RequiredMinutes - e.BudgetMinutes
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("day %s needs %d minutes but has %d (over by %d)",
		e.DayID, e.RequiredMinutes, e.BudgetMinutes, e.OverageMinutes())
}

func (e *CapacityExceededError) Unwrap() error { return ErrCapacityExceeded }

// ValidationFailure carries the issues that blocked a commit.
type ValidationFailure struct {
	Issues []Issue
}

func (e *ValidationFailure) Error() string {
	if len(e.Issues) == 0 {
		return ErrValidation.Error()
	}
	if len(e.Issues) == 1 {
		return fmt.Sprintf("validation failed: %s", e.Issues[0].Message)
	}
	return fmt.Sprintf("validation failed: %s (and %d more)", e.Issues[0].Message, len(e.Issues)-1)
}

func (e *ValidationFailure) Unwrap() error { return ErrValidation }

func reject(kind IssueKind, format string, args ...any) *ValidationFailure {
	return &ValidationFailure{Issues: []Issue{{
		Kind:     kind,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}}}
}

// VersionConflictError reports an optimistic concurrency miss.
type VersionConflictError struct {
	ScheduleID string
	Expected   int
	Current    int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("schedule %s: expected version %d, current is %d", e.ScheduleID, e.Expected, e.Current)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// NotFoundError reports a missing schedule, version, session, heat or athlete.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}
