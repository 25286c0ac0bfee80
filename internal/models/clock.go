/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MinutesPerDay bounds every ClockTime.
const MinutesPerDay = 24 * 60

// ClockTime is a wall-clock time of day expressed in minutes after midnight.
// It is encoded as "HH:MM".
type ClockTime int

// ParseClock parses an "HH:MM" wall-clock time between 00:00 and 23:59.
func ParseClock(s string) (ClockTime, error) {
	c, err := parseClock(s)
	if err != nil {
		return 0, err
	}
	if c < 0 || c >= MinutesPerDay {
		return 0, fmt.Errorf("clock time %q: invalid hour", s)
	}
	return c, nil
}

// parseClock reads the output of String, which may carry a sign and an
// hour past 23 for times that overflow the day.
func parseClock(s string) (ClockTime, error) {
	raw := strings.TrimSpace(s)
	sign := 1
	if rest, ok := strings.CutPrefix(raw, "-"); ok {
		sign, raw = -1, rest
	}
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, fmt.Errorf("clock time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 {
		return 0, fmt.Errorf("clock time %q: invalid hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("clock time %q: invalid minute", s)
	}
	return ClockTime(sign * (h*60 + m)), nil
}

// InDay reports whether c falls within a single calendar day, midnight at
// the end included.
func (c ClockTime) InDay() bool {
	return c >= 0 && c <= MinutesPerDay
}

// Add returns c shifted by the given number of minutes.
func (c ClockTime) Add(minutes int) ClockTime {
	return c + ClockTime(minutes)
}

func (c ClockTime) String() string {
	v := int(c)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%02d:%02d", sign, v/60, v%60)
}

// MarshalJSON implements json.Marshaler.
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts either "HH:MM" or a minute count. Stored snapshots
// are read back exactly as MarshalJSON wrote them, even past midnight.
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := parseClock(s)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("clock time: %w", err)
	}
	*c = ClockTime(n)
	return nil
}

// UnmarshalYAML accepts "HH:MM" scalars.
func (c *ClockTime) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
