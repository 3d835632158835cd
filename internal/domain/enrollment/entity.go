// Package enrollment contains the derived, per-course completion summary of a learner.
package enrollment

import (
	"time"

	"github.com/learnhub/lms-core/internal/domain/shared"
)

// Aggregate is the course-level completion state for one learner.
//
// Invariants after every Apply:
//   - ProgressPercent == round(100 * completed / total), 0 when total is 0
//   - Completed == (ProgressPercent == 100)
//   - CompletedAt is set on the transition to 100, kept while at 100, cleared below 100
type Aggregate struct {
	LearnerID       string     `json:"learner_id"`
	CourseID        string     `json:"course_id"`
	ProgressPercent int        `json:"progress_percent"`
	Completed       bool       `json:"completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	LastAccessedAt  time.Time  `json:"last_accessed_at"`
	EnrolledAt      time.Time  `json:"enrolled_at"`
}

// New creates a fresh enrollment at 0%.
func New(learnerID, courseID string, now time.Time) *Aggregate {
	return &Aggregate{
		LearnerID:      learnerID,
		CourseID:       courseID,
		LastAccessedAt: now,
		EnrolledAt:     now,
	}
}

// Apply recomputes the derived fields from authoritative counts.
// It returns true when the aggregate transitioned from not completed to completed.
func (a *Aggregate) Apply(completedLessons, totalLessons int, now time.Time) bool {
	wasCompleted := a.Completed

	percent := shared.PercentOf(completedLessons, totalLessons)
	if percent > shared.MaxPercent {
		percent = shared.MaxPercent
	}
	a.ProgressPercent = percent.Int()
	a.Completed = percent.IsComplete()
	a.LastAccessedAt = now

	switch {
	case a.Completed && !wasCompleted:
		completedAt := now
		a.CompletedAt = &completedAt
		return true
	case a.Completed && a.CompletedAt == nil:
		completedAt := now
		a.CompletedAt = &completedAt
	case !a.Completed:
		a.CompletedAt = nil
	}
	return false
}

// InProgress reports whether the learner has started but not finished the course.
func (a *Aggregate) InProgress() bool {
	return a.ProgressPercent > 0 && a.ProgressPercent < 100
}

// Clone returns a deep copy of the aggregate.
func (a *Aggregate) Clone() *Aggregate {
	if a == nil {
		return nil
	}
	c := *a
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
