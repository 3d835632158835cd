package progress

import (
	"context"
	"time"
)

// Repository defines the interface for Progress Ledger persistence.
// This interface is implemented by the infrastructure layer.
type Repository interface {
	// RecordInteraction creates the record on first interaction or accumulates
	// time spent and overwrites the position atomically. Returns the stored record.
	RecordInteraction(ctx context.Context, in Interaction, now time.Time) (*Record, error)

	// MarkComplete creates or updates the record with completed=true.
	// CompletedAt is only set when the record was not already completed.
	// The bool result reports whether this call performed the transition.
	MarkComplete(ctx context.Context, learnerID, lessonID, courseID string, now time.Time) (*Record, bool, error)

	// Get returns a single record or a NotFound error.
	Get(ctx context.Context, learnerID, lessonID string) (*Record, error)

	// ListByCourse returns the learner's records for a course ordered by lesson id.
	ListByCourse(ctx context.Context, learnerID, courseID string) ([]*Record, error)

	// CountCompleted returns the number of completed lessons of a course.
	CountCompleted(ctx context.Context, learnerID, courseID string) (int, error)

	// Totals returns completed lesson count and time spent across all courses.
	Totals(ctx context.Context, learnerID string) (Totals, error)

	// RecentActivity returns up to limit UpdatedAt timestamps, most recent first.
	RecentActivity(ctx context.Context, learnerID string, limit int) ([]time.Time, error)
}
