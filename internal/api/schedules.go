/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/athleon_scheduler/internal/audit"
	"github.com/friendsincode/athleon_scheduler/internal/auth"
	"github.com/friendsincode/athleon_scheduler/internal/models"
	"github.com/friendsincode/athleon_scheduler/internal/scheduler"
	"github.com/friendsincode/athleon_scheduler/internal/scheduling"
)

type athleteStatusRequest struct {
	NewStatus       models.AthleteStatus `json:"newStatus" validate:"required"`
	ExpectedVersion *int                 `json:"expectedVersion" validate:"omitempty,gte=1"`
}

type substituteRequest struct {
	SessionID       string `json:"sessionId" validate:"required"`
	OldAthleteID    string `json:"oldAthleteId" validate:"required"`
	NewAthleteID    string `json:"newAthleteId" validate:"required,nefield=OldAthleteID"`
	ExpectedVersion *int   `json:"expectedVersion" validate:"omitempty,gte=1"`
}

type swapRequest struct {
	SessionID       string `json:"sessionId" validate:"required"`
	Athlete1ID      string `json:"athlete1Id" validate:"required"`
	Athlete2ID      string `json:"athlete2Id" validate:"required"`
	ExpectedVersion *int   `json:"expectedVersion" validate:"omitempty,gte=1"`
}

type sessionTimeRequest struct {
	NewStartTime    string `json:"newStartTime" validate:"required"`
	ExpectedVersion *int   `json:"expectedVersion" validate:"omitempty,gte=1"`
}

type moveAthleteRequest struct {
	SessionID       string `json:"sessionId" validate:"required"`
	AthleteID       string `json:"athleteId" validate:"required"`
	TargetHeatID    string `json:"targetHeatId" validate:"required"`
	ExpectedVersion *int   `json:"expectedVersion" validate:"omitempty,gte=1"`
}

type addHeatRequest struct {
	SessionID       string `json:"sessionId" validate:"required"`
	CategoryID      string `json:"categoryId,omitempty"`
	ExpectedVersion *int   `json:"expectedVersion" validate:"omitempty,gte=1"`
}

// removeHeatRequest may also arrive as query parameters, since some clients
// cannot send a DELETE body.
type removeHeatRequest struct {
	SessionID       string `json:"sessionId"`
	ForceRemove     bool   `json:"forceRemove"`
	ExpectedVersion *int   `json:"expectedVersion" validate:"omitempty,gte=1"`
}

type revertRequest struct {
	VersionID       int  `json:"versionId" validate:"required"`
	ExpectedVersion *int `json:"expectedVersion" validate:"omitempty,gte=1"`
}

type sessionResponse struct {
	Session *models.Session `json:"session"`
	HeatID  string          `json:"heatId,omitempty"`
	Version int             `json:"version"`
}

type removeHeatResponse struct {
	Success    bool     `json:"success"`
	Version    int      `json:"version"`
	Unassigned []string `json:"unassignedAthletes,omitempty"`
}

func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !a.generate.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	var c scheduling.Constraints
	if !decodeBody(w, r, &c, false) {
		return
	}

	eventID := chi.URLParam(r, "eventID")
	res, err := a.engine.Generate(r.Context(), eventID, auth.UserID(r.Context()), c)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}

	w.Header().Set("ETag", etag(res.Version))
	w.Header().Set("Location", "/api/v1/scheduler/"+eventID+"/"+res.Schedule.ScheduleID)
	writeJSON(w, http.StatusCreated, res.Schedule)
}

func (a *API) handleSchedulesList(w http.ResponseWriter, r *http.Request) {
	rows, err := a.engine.ListSchedules(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	if rows == nil {
		rows = []models.ScheduleRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": rows})
}

func (a *API) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	version := 0
	if v := r.URL.Query().Get("version"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "version must be a positive integer")
			return
		}
		version = parsed
	}

	sched, err := a.engine.Get(r.Context(), chi.URLParam(r, "eventID"), chi.URLParam(r, "scheduleID"), version)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}

	w.Header().Set("ETag", etag(sched.Version))
	writeJSON(w, http.StatusOK, sched)
}

func (a *API) handleAthleteStatus(w http.ResponseWriter, r *http.Request) {
	var req athleteStatusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	res, ok := a.apply(w, r, req.ExpectedVersion, &scheduling.UpdateAthleteStatus{
		AthleteID: chi.URLParam(r, "athleteID"),
		NewStatus: req.NewStatus,
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res.Schedule)
}

func (a *API) handleSubstitute(w http.ResponseWriter, r *http.Request) {
	var req substituteRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	res, ok := a.apply(w, r, req.ExpectedVersion, &scheduling.SubstituteAthlete{
		SessionID:    req.SessionID,
		OldAthleteID: req.OldAthleteID,
		NewAthleteID: req.NewAthleteID,
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: res.Session, Version: res.Version})
}

func (a *API) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	res, ok := a.apply(w, r, req.ExpectedVersion, &scheduling.SwapAthletes{
		SessionID:  req.SessionID,
		Athlete1ID: req.Athlete1ID,
		Athlete2ID: req.Athlete2ID,
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: res.Session, Version: res.Version})
}

func (a *API) handleSessionTime(w http.ResponseWriter, r *http.Request) {
	var req sessionTimeRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	res, ok := a.apply(w, r, req.ExpectedVersion, &scheduling.AdjustSessionTime{
		SessionID:    chi.URLParam(r, "sessionID"),
		NewStartTime: req.NewStartTime,
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res.Schedule)
}

func (a *API) handleMoveAthlete(w http.ResponseWriter, r *http.Request) {
	var req moveAthleteRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	res, ok := a.apply(w, r, req.ExpectedVersion, &scheduling.MoveAthlete{
		SessionID:    req.SessionID,
		AthleteID:    req.AthleteID,
		TargetHeatID: req.TargetHeatID,
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: res.Session, Version: res.Version})
}

func (a *API) handleAddHeat(w http.ResponseWriter, r *http.Request) {
	var req addHeatRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	op := &scheduling.AddHeat{SessionID: req.SessionID, CategoryID: req.CategoryID}
	res, ok := a.apply(w, r, req.ExpectedVersion, op)
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: res.Session, HeatID: op.HeatID, Version: res.Version})
}

func (a *API) handleRemoveHeat(w http.ResponseWriter, r *http.Request) {
	var req removeHeatRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	q := r.URL.Query()
	if req.SessionID == "" {
		req.SessionID = q.Get("sessionId")
	}
	if !req.ForceRemove {
		req.ForceRemove, _ = strconv.ParseBool(q.Get("forceRemove"))
	}

	res, ok := a.apply(w, r, req.ExpectedVersion, &scheduling.RemoveHeat{
		SessionID:   req.SessionID,
		HeatID:      chi.URLParam(r, "heatID"),
		ForceRemove: req.ForceRemove,
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, removeHeatResponse{Success: true, Version: res.Version, Unassigned: res.Unassigned})
}

func (a *API) handleRevert(w http.ResponseWriter, r *http.Request) {
	var req revertRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	ref, ok := a.ref(w, r, req.ExpectedVersion)
	if !ok {
		return
	}
	res, err := a.engine.Revert(r.Context(), ref, req.VersionID)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	w.Header().Set("ETag", etag(res.Version))
	writeJSON(w, http.StatusOK, res.Schedule)
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	result, err := a.engine.Validate(r.Context(), chi.URLParam(r, "eventID"), chi.URLParam(r, "scheduleID"))
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := a.engine.Versions(r.Context(), chi.URLParam(r, "eventID"), chi.URLParam(r, "scheduleID"))
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (a *API) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := audit.QueryFilters{
		UserID:     q.Get("userId"),
		ChangeType: models.ChangeType(q.Get("changeType")),
		Limit:      50,
	}

	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			filters.Limit = parsed
		}
	}
	if o := q.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			filters.Offset = parsed
		}
	}
	if s := q.Get("startDate"); s != "" {
		t, err := parseQueryTime(s, false)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "startDate: "+err.Error())
			return
		}
		filters.StartTime = &t
	}
	if s := q.Get("endDate"); s != "" {
		t, err := parseQueryTime(s, true)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "endDate: "+err.Error())
			return
		}
		filters.EndTime = &t
	}

	entries, total, err := a.engine.AuditLog(r.Context(), chi.URLParam(r, "eventID"), chi.URLParam(r, "scheduleID"), filters)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []models.AuditLogEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"limit":   filters.Limit,
		"offset":  filters.Offset,
	})
}

func (a *API) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	result, err := a.engine.VerifyAudit(r.Context(), chi.URLParam(r, "eventID"), chi.URLParam(r, "scheduleID"))
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) ref(w http.ResponseWriter, r *http.Request, bodyVersion *int) (scheduler.Ref, bool) {
	version, ok := expectedVersion(w, r, bodyVersion)
	if !ok {
		return scheduler.Ref{}, false
	}
	return scheduler.Ref{
		EventID:         chi.URLParam(r, "eventID"),
		ScheduleID:      chi.URLParam(r, "scheduleID"),
		ExpectedVersion: version,
		UserID:          auth.UserID(r.Context()),
	}, true
}

func (a *API) apply(w http.ResponseWriter, r *http.Request, bodyVersion *int, op scheduling.Operation) (*scheduler.Result, bool) {
	ref, ok := a.ref(w, r, bodyVersion)
	if !ok {
		return nil, false
	}
	res, err := a.engine.Apply(r.Context(), ref, op)
	if err != nil {
		a.writeEngineError(w, err)
		return nil, false
	}
	w.Header().Set("ETag", etag(res.Version))
	return res, true
}

// parseQueryTime accepts RFC 3339 timestamps or plain dates. A plain end
// date covers the whole day.
func parseQueryTime(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
