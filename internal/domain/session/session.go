// Package session provides the completed-session Record entity and
// streak computation over session history.
package session

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Record represents one completed session.
type Record struct {
	ID          string    // UUID
	TemplateID  string    // Template the session ran from
	StartedAt   time.Time // First phase start
	CompletedAt time.Time // Completion time
}

// NewRecord creates a new completed-session record.
func NewRecord(templateID string, startedAt, completedAt time.Time) Record {
	return Record{
		ID:          uuid.New().String(),
		TemplateID:  templateID,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	}
}

// Duration returns the wall-clock span the session covered,
// including paused and suspended time.
func (r Record) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Streaks holds daily-streak statistics over completed sessions.
type Streaks struct {
	Current int // Consecutive days ending today or yesterday
	Longest int // Longest run of consecutive days ever
}

// ComputeStreaks buckets completion times into calendar days (in today's
// location) and computes current and longest daily streaks. Both use the
// same rule: a gap of more than one day breaks the run.
func ComputeStreaks(records []Record, today time.Time) Streaks {
	if len(records) == 0 {
		return Streaks{}
	}

	loc := today.Location()
	seen := make(map[int64]struct{}, len(records))
	days := make([]int64, 0, len(records))
	for _, r := range records {
		d := dayOrdinal(r.CompletedAt.In(loc))
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	var s Streaks
	run := 1
	for i := 1; i < len(days); i++ {
		if days[i] == days[i-1]+1 {
			run++
		} else {
			run = 1
		}
		if run > s.Longest {
			s.Longest = run
		}
	}
	if s.Longest == 0 {
		s.Longest = 1
	}

	// The current streak must reach today or yesterday to still be alive.
	todayOrd := dayOrdinal(today)
	last := days[len(days)-1]
	if last != todayOrd && last != todayOrd-1 {
		return s
	}
	s.Current = 1
	for i := len(days) - 1; i > 0; i-- {
		if days[i-1] != days[i]-1 {
			break
		}
		s.Current++
	}
	return s
}

// dayOrdinal collapses a timestamp to a calendar-day ordinal.
func dayOrdinal(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
