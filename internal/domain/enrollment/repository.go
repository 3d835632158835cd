package enrollment

import (
	"context"
	"time"
)

// RecountFunc mutates a locked aggregate given the authoritative completed-lesson count.
type RecountFunc func(agg *Aggregate, completedLessons int) error

// Repository defines the interface for enrollment persistence.
type Repository interface {
	// Get returns the aggregate or a NotFound error when the learner is not enrolled.
	Get(ctx context.Context, learnerID, courseID string) (*Aggregate, error)

	// ListByLearner returns every enrollment of a learner.
	ListByLearner(ctx context.Context, learnerID string) ([]*Aggregate, error)

	// Recount runs fn inside one storage transaction scoped to (learner, course):
	// the aggregate row is locked, completed progress is counted, fn applies the
	// new values and the aggregate is written back before commit.
	// Returns NotFound if the learner is not enrolled and Conflict if the write lost a race.
	Recount(ctx context.Context, learnerID, courseID string, fn RecountFunc) (*Aggregate, error)

	// Enroll creates the aggregate at 0%. Enrollment is owned by an external
	// collaborator; this exists for seeding and local development.
	Enroll(ctx context.Context, learnerID, courseID string, now time.Time) (*Aggregate, error)
}
