// Package progress contains the Progress Ledger: per-(learner, lesson)
// interaction state such as time spent, playback position, and completion.
package progress

import (
	"time"

	"github.com/learnhub/lms-core/internal/domain/shared"
)

// Record is the progress of one learner on one lesson.
// Identity is (LearnerID, LessonID). TimeSpentSeconds never decreases.
type Record struct {
	LearnerID           string     `json:"learner_id"`
	LessonID            string     `json:"lesson_id"`
	CourseID            string     `json:"course_id"`
	Completed           bool       `json:"completed"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	TimeSpentSeconds    int        `json:"time_spent_seconds"`
	LastPositionSeconds int        `json:"last_position_seconds"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NewRecord creates an empty record for a first interaction.
func NewRecord(learnerID, lessonID, courseID string, now time.Time) *Record {
	return &Record{
		LearnerID: learnerID,
		LessonID:  lessonID,
		CourseID:  courseID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Interaction is a single lesson interaction reported by a client.
type Interaction struct {
	LearnerID             string
	LessonID              string
	CourseID              string
	TimeSpentDeltaSeconds int
	LastPositionSeconds   int
}

// Validate checks the interaction payload.
func (i Interaction) Validate() error {
	if i.LearnerID == "" {
		return shared.Required("progress", "RecordInteraction", "learner_id")
	}
	if i.LessonID == "" {
		return shared.Required("progress", "RecordInteraction", "lesson_id")
	}
	if i.TimeSpentDeltaSeconds < 0 {
		return shared.ErrInvalidTimeSpent
	}
	if i.LastPositionSeconds < 0 {
		return shared.ErrInvalidPosition
	}
	return nil
}

// Apply accumulates time and overwrites the position.
func (r *Record) Apply(i Interaction, now time.Time) {
	r.TimeSpentSeconds += i.TimeSpentDeltaSeconds
	r.LastPositionSeconds = i.LastPositionSeconds
	r.UpdatedAt = now
}

// MarkComplete sets the completion fields if not already completed.
// It returns true when the record transitioned from incomplete to complete.
func (r *Record) MarkComplete(now time.Time) bool {
	r.UpdatedAt = now
	if r.Completed {
		return false
	}
	r.Completed = true
	completedAt := now
	r.CompletedAt = &completedAt
	return true
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Totals summarises a learner's ledger across all courses.
type Totals struct {
	CompletedLessons int
	TimeSpentSeconds int64
}
