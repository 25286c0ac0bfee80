/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

// TimestampPrecision is the resolution audit timestamps are stored at. Every
// supported database keeps at least millisecond precision, so hashes computed
// before insert still match after a round trip.
const TimestampPrecision = time.Millisecond

// Hash returns the integrity hash of entry chained to entry.PrevHash.
func Hash(entry *models.AuditLogEntry) string {
	details := canonicalDetails(entry.Details)

	h := sha256.New()
	for _, part := range []string{
		entry.PrevHash,
		entry.ScheduleID,
		entry.EventID,
		strconv.Itoa(entry.SequenceNumber),
		entry.Timestamp.UTC().Truncate(TimestampPrecision).Format(time.RFC3339Nano),
		entry.UserID,
		string(entry.ChangeType),
		strconv.Itoa(entry.BeforeVersion),
		strconv.Itoa(entry.AfterVersion),
		string(details),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalDetails encodes details the way they read back from the json
// column: struct values become objects with sorted keys.
func canonicalDetails(details map[string]any) []byte {
	raw, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return raw
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return raw
	}
	return out
}

// Seal links entry to its predecessor and stamps its hash. prev is nil for
// the first entry of a schedule.
func Seal(entry *models.AuditLogEntry, prev *models.AuditLogEntry) {
	entry.Timestamp = entry.Timestamp.UTC().Truncate(TimestampPrecision)
	entry.PrevHash = ""
	if prev != nil {
		entry.PrevHash = prev.Hash
	}
	entry.Hash = Hash(entry)
}

// VerifyResult reports the outcome of checking a schedule's audit chain.
type VerifyResult struct {
	Valid    bool   `json:"valid"`
	Entries  int    `json:"entries"`
	BrokenAt int    `json:"brokenAt,omitempty"`
	Reason   string `json:"reason,omitempty"`
	LastHash string `json:"lastHash,omitempty"`
}

// Verify checks that entries, ordered by sequence number, form an unbroken
// hash chain with contiguous sequence numbers starting at 1.
func Verify(entries []models.AuditLogEntry) VerifyResult {
	res := VerifyResult{Valid: true, Entries: len(entries)}
	prevHash := ""
	for i := range entries {
		e := &entries[i]
		switch {
		case e.SequenceNumber != i+1:
			return broken(res, e.SequenceNumber, fmt.Sprintf("expected sequence %d", i+1))
		case e.PrevHash != prevHash:
			return broken(res, e.SequenceNumber, "previous hash does not match")
		case Hash(e) != e.Hash:
			return broken(res, e.SequenceNumber, "entry hash does not match its contents")
		}
		prevHash = e.Hash
	}
	res.LastHash = prevHash
	return res
}

func broken(res VerifyResult, seq int, reason string) VerifyResult {
	res.Valid = false
	res.BrokenAt = seq
	res.Reason = reason
	return res
}
