/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import "github.com/friendsincode/athleon_scheduler/internal/models"

// AllocateHeats partitions the athletes of one category into heats of at most
// capacity athletes. Athletes keep their input order and each heat is filled
// before the next one is opened. A category without athletes yields no heats.
func AllocateHeats(athletes []models.ScheduleAthlete, categoryID string, capacity int) ([][]models.ScheduleAthlete, error) {
	if capacity <= 0 {
		return nil, configErr("athletesPerHeat", "must be positive, got %d", capacity)
	}

	var heats [][]models.ScheduleAthlete
	var current []models.ScheduleAthlete
	for _, a := range athletes {
		if a.CategoryID != categoryID {
			continue
		}
		current = append(current, a)
		if len(current) == capacity {
			heats = append(heats, current)
			current = nil
		}
	}
	if len(current) > 0 {
		heats = append(heats, current)
	}
	return heats, nil
}
