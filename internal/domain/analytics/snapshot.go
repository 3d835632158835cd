// Package analytics derives learner-facing statistics from the progress ledger
// and enrollment aggregates. Nothing here is persisted.
package analytics

import (
	"sort"
	"time"

	"github.com/learnhub/lms-core/internal/domain/enrollment"
	"github.com/learnhub/lms-core/internal/domain/progress"
	"github.com/learnhub/lms-core/internal/domain/shared"
	"github.com/learnhub/lms-core/pkg/timeutil"
)

// StreakWindow is the number of most recent activity timestamps the streak looks at.
const StreakWindow = 30

// Snapshot is a read-time summary of one learner.
type Snapshot struct {
	LearnerID            string `json:"learner_id"`
	TotalCourses         int    `json:"total_courses"`
	CompletedCourses     int    `json:"completed_courses"`
	InProgressCourses    int    `json:"in_progress_courses"`
	AverageProgress      int    `json:"average_progress"`
	CompletedLessonCount int    `json:"completed_lesson_count"`
	StreakDays           int    `json:"streak_days"`
	TotalHours           int    `json:"total_hours"`
}

// Input bundles everything Compute reads.
type Input struct {
	LearnerID   string
	Enrollments []*enrollment.Aggregate
	Totals      progress.Totals
	Activity    []time.Time
	Now         time.Time
	Location    *time.Location
}

// Compute builds the snapshot. TotalHours is floor(seconds / 3600) because the
// ledger accumulates seconds.
func Compute(in Input) *Snapshot {
	s := &Snapshot{
		LearnerID:            in.LearnerID,
		TotalCourses:         len(in.Enrollments),
		CompletedLessonCount: in.Totals.CompletedLessons,
		TotalHours:           int(in.Totals.TimeSpentSeconds / 3600),
		StreakDays:           Streak(in.Activity, in.Now, in.Location),
	}

	sum := 0
	for _, e := range in.Enrollments {
		switch {
		case e.ProgressPercent >= 100:
			s.CompletedCourses++
		case e.ProgressPercent > 0:
			s.InProgressCourses++
		}
		sum += e.ProgressPercent
	}
	s.AverageProgress = shared.RoundDiv(sum, len(in.Enrollments))

	return s
}

// Streak counts consecutive active days ending today.
//
// Timestamps are sorted newest first and truncated to dates in loc. Walking them,
// a record exactly `streak` days before today extends the streak, a record further
// back ends it, and a record closer than `streak` days is skipped. Several records
// on the same date can therefore advance the streak more than once.
func Streak(timestamps []time.Time, now time.Time, loc *time.Location) int {
	if len(timestamps) == 0 {
		return 0
	}

	sorted := make([]time.Time, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })
	if len(sorted) > StreakWindow {
		sorted = sorted[:StreakWindow]
	}

	streak := 0
	for _, ts := range sorted {
		daysDiff := timeutil.DaysBetween(ts, now, loc)
		if daysDiff == streak {
			streak++
			continue
		}
		if daysDiff > streak {
			break
		}
	}
	return streak
}
