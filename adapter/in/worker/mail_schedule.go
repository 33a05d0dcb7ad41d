package worker

import (
	"sort"
	"time"

	"maildigest/core/domain"
)

// staggerWindow spreads interval triggers so users do not all fire at the
// same instant.
const staggerWindow = 30

// StartOffset returns the per-user stagger applied to the first interval
// fire.
func StartOffset(userID int64) time.Duration {
	return time.Duration((userID*3)%staggerWindow) * time.Minute
}

// NextFire computes the first fire time strictly after the given instant.
func NextFire(spec domain.ScheduleSpec, after time.Time) time.Time {
	switch spec.Type {
	case domain.ScheduleCron:
		return nextCron(spec.CronHours, spec.CronMinutes, after)
	case domain.ScheduleCustom:
		return nextCustom(spec, after)
	default:
		minutes := spec.IntervalMinutes
		if minutes <= 0 {
			minutes = 30
		}
		return after.Add(time.Duration(minutes) * time.Minute)
	}
}

// nextCron walks the hour x minute grid. Empty lists fall back to every
// hour on the hour.
func nextCron(hours, minutes []int, after time.Time) time.Time {
	if len(hours) == 0 {
		for h := 0; h < 24; h++ {
			hours = append(hours, h)
		}
	}
	if len(minutes) == 0 {
		minutes = []int{0}
	}
	hours = sortedValid(hours, 23)
	minutes = sortedValid(minutes, 59)
	if len(hours) == 0 || len(minutes) == 0 {
		return after.Add(time.Hour)
	}

	// Same day first, then tomorrow's earliest slot.
	for day := 0; day < 2; day++ {
		base := after.AddDate(0, 0, day)
		for _, h := range hours {
			for _, m := range minutes {
				candidate := time.Date(base.Year(), base.Month(), base.Day(), h, m, 0, 0, after.Location())
				if candidate.After(after) {
					return candidate
				}
			}
		}
	}
	return after.Add(time.Hour)
}

func nextCustom(spec domain.ScheduleSpec, after time.Time) time.Time {
	minute := spec.CustomMinute
	if minute < 0 || minute > 59 {
		minute = 0
	}

	match := func(hour int) bool {
		switch spec.CustomRule {
		case domain.CustomEvenHours:
			return hour%2 == 0
		case domain.CustomOddHours:
			return hour%2 == 1
		case domain.CustomEveryNHours:
			n := spec.NHours
			if n <= 0 {
				n = 2
			}
			return hour%n == 0
		default: // hourly
			return true
		}
	}

	candidate := time.Date(after.Year(), after.Month(), after.Day(), after.Hour(), minute, 0, 0, after.Location())
	for i := 0; i < 49; i++ {
		if candidate.After(after) && match(candidate.Hour()) {
			return candidate
		}
		candidate = candidate.Add(time.Hour)
	}
	return after.Add(time.Hour)
}

func sortedValid(values []int, max int) []int {
	var out []int
	for _, v := range values {
		if v >= 0 && v <= max {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
