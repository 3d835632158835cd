// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"github.com/learnhub/lms-core/internal/domain/catalog"
	"github.com/learnhub/lms-core/internal/domain/enrollment"
	"github.com/learnhub/lms-core/internal/domain/shared"
	"github.com/learnhub/lms-core/pkg/logger"
	"github.com/learnhub/lms-core/pkg/retry"
	"github.com/learnhub/lms-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT AGGREGATOR
// Derives an enrollment's progress percentage and completion from the ledger.
// Recompute is called after every lesson completion and can be called again
// at any time: the derived fields only depend on the current counts.
// ══════════════════════════════════════════════════════════════════════════════

// Aggregator recomputes enrollment aggregates.
type Aggregator struct {
	lessons     catalog.LessonCatalog
	enrollments enrollment.Repository
	publisher   shared.EventPublisher
	retrier     *retry.Retrier
	clock       timeutil.Clock
	log         *logger.Logger
}

// NewAggregator creates a new Aggregator.
func NewAggregator(
	lessons catalog.LessonCatalog,
	enrollments enrollment.Repository,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
) *Aggregator {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Aggregator{
		lessons:     lessons,
		enrollments: enrollments,
		publisher:   publisher,
		retrier:     retry.ConflictRetrier(shared.IsConflict),
		clock:       clock,
		log:         log.With(logger.Component("aggregator")),
	}
}

// Recompute recounts completed lessons for (learner, course) and writes the
// derived percentage, completion flag and timestamps. A storage conflict is
// retried once; the retry re-reads authoritative counts.
// Returns NotFound when the learner is not enrolled.
func (a *Aggregator) Recompute(ctx context.Context, learnerID, courseID string) (*enrollment.Aggregate, error) {
	if learnerID == "" {
		return nil, shared.Required("enrollment", "Recompute", "learner_id")
	}
	if courseID == "" {
		return nil, shared.Required("enrollment", "Recompute", "course_id")
	}

	var (
		agg          *enrollment.Aggregate
		transitioned bool
	)

	err := a.retrier.Do(ctx, func(ctx context.Context) error {
		total, err := a.lessons.CountLessons(ctx, courseID)
		if err != nil {
			return fmt.Errorf("count lessons: %w", err)
		}

		now := a.clock()
		transitioned = false
		agg, err = a.enrollments.Recount(ctx, learnerID, courseID, func(e *enrollment.Aggregate, completed int) error {
			transitioned = e.Apply(completed, total, now)
			return nil
		})
		return err
	})
	if err != nil {
		if !shared.IsNotFound(err) {
			a.log.Error("recompute failed",
				logger.LearnerID(learnerID),
				logger.CourseID(courseID),
				logger.Err(err),
			)
		}
		return nil, err
	}

	a.log.Debug("enrollment recomputed",
		logger.LearnerID(learnerID),
		logger.CourseID(courseID),
		logger.Int("progress_percent", agg.ProgressPercent),
	)

	if transitioned && a.publisher != nil {
		event := shared.NewCourseCompletedEvent(learnerID, courseID, a.clock())
		if err := a.publisher.Publish(ctx, event); err != nil {
			a.log.Warn("failed to publish course completed event",
				logger.LearnerID(learnerID),
				logger.CourseID(courseID),
				logger.Err(err),
			)
		}
	}

	return agg, nil
}
