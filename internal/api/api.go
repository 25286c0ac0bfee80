/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/friendsincode/athleon_scheduler/internal/auth"
	"github.com/friendsincode/athleon_scheduler/internal/events"
	"github.com/friendsincode/athleon_scheduler/internal/locking"
	"github.com/friendsincode/athleon_scheduler/internal/scheduler"
	"github.com/friendsincode/athleon_scheduler/internal/scheduling"
)

// maxBodyBytes caps request bodies. Constraint models for large events are
// the biggest payloads.
const maxBodyBytes = 4 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// API exposes HTTP handlers.
type API struct {
	engine    *scheduler.Engine
	bus       *events.Bus
	jwtSecret []byte
	generate  *rate.Limiter
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(engine *scheduler.Engine, bus *events.Bus, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		engine:    engine,
		bus:       bus,
		jwtSecret: jwtSecret,
		generate:  rate.NewLimiter(rate.Inf, 0),
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// SetGenerateLimit bounds schedule generation to perSecond requests with the
// given burst. A non-positive rate removes the limit.
func (a *API) SetGenerateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		a.generate = rate.NewLimiter(rate.Inf, 0)
		return
	}
	if burst < 1 {
		burst = 1
	}
	a.generate = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Get("/events", a.handleEvents)

			pr.Route("/scheduler/{eventID}", func(r chi.Router) {
				r.Get("/", a.handleSchedulesList)
				r.With(a.editors()).Post("/", a.handleGenerate)

				r.Route("/{scheduleID}", func(r chi.Router) {
					r.Get("/", a.handleScheduleGet)
					r.Get("/validate", a.handleValidate)
					r.Get("/versions", a.handleVersions)
					r.Get("/audit-log", a.handleAuditLog)
					r.Get("/audit-log/verify", a.handleAuditVerify)

					r.Group(func(r chi.Router) {
						r.Use(a.editors())
						r.Put("/athletes/{athleteID}", a.handleAthleteStatus)
						r.Post("/substitute", a.handleSubstitute)
						r.Post("/swap", a.handleSwap)
						r.Put("/sessions/{sessionID}/time", a.handleSessionTime)
						r.Post("/heats/move", a.handleMoveAthlete)
						r.Post("/heats", a.handleAddHeat)
						r.Delete("/heats/{heatID}", a.handleRemoveHeat)
						r.Post("/revert", a.handleRevert)
					})
				})
			})
		})
	})
}

func (a *API) editors() func(http.Handler) http.Handler {
	return auth.RequireRoles(auth.RoleOrganizer, auth.RoleAdmin)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeEngineError maps engine errors onto HTTP responses.
func (a *API) writeEngineError(w http.ResponseWriter, err error) {
	var (
		cfgErr      *scheduling.ConfigurationError
		capacityErr *scheduling.CapacityExceededError
		validErr    *scheduling.ValidationFailure
		conflictErr *scheduling.VersionConflictError
	)

	switch {
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "invalid_request",
			"message": cfgErr.Error(),
			"field":   cfgErr.Field,
		})
	case errors.As(err, &capacityErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":           "capacity_exceeded",
			"message":         capacityErr.Error(),
			"dayId":           capacityErr.DayID,
			"budgetMinutes":   capacityErr.BudgetMinutes,
			"requiredMinutes": capacityErr.RequiredMinutes,
			"overageMinutes":  capacityErr.OverageMinutes(),
		})
	case errors.As(err, &validErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "validation_failed",
			"message": validErr.Error(),
			"issues":  validErr.Issues,
		})
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":          "version_conflict",
			"message":        conflictErr.Error(),
			"currentVersion": conflictErr.Current,
		})
	case errors.Is(err, scheduling.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduling.ErrUnknownOutcome):
		writeErrorMessage(w, http.StatusServiceUnavailable, "unknown_outcome",
			"the change may or may not have been saved; reload the schedule before retrying")
	case errors.Is(err, locking.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "lock_timeout")
	default:
		a.logger.Error().Err(err).Msg("scheduler request failed")
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

// decodeBody decodes a JSON body into dst and runs struct validation. An
// empty body is allowed when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "malformed JSON body: "+err.Error())
			return false
		}
	}
	if err := validate.Struct(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// etag renders a schedule version as an entity tag.
func etag(version int) string {
	return `"v` + strconv.Itoa(version) + `"`
}

// parseETag accepts "v3", v3 and W/"v3".
func parseETag(value string) (int, bool) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "W/")
	value = strings.Trim(value, `"`)
	if !strings.HasPrefix(value, "v") {
		return 0, false
	}
	n, err := strconv.Atoi(value[1:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// expectedVersion resolves the caller's base version from the body or the
// If-Match header, writing the error response when neither is usable.
func expectedVersion(w http.ResponseWriter, r *http.Request, fromBody *int) (int, bool) {
	if fromBody != nil {
		return *fromBody, true
	}
	header := r.Header.Get("If-Match")
	if header == "" {
		writeErrorMessage(w, http.StatusPreconditionRequired, "precondition_required",
			"expectedVersion or an If-Match header is required")
		return 0, false
	}
	v, ok := parseETag(header)
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "If-Match must look like \"v{n}\"")
		return 0, false
	}
	return v, true
}
