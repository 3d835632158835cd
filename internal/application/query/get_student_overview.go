package query

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/learnhub/lms-core/internal/domain/analytics"
	"github.com/learnhub/lms-core/internal/domain/enrollment"
	"github.com/learnhub/lms-core/internal/domain/progress"
	"github.com/learnhub/lms-core/internal/domain/shared"
	"github.com/learnhub/lms-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT OVERVIEW QUERY
// Builds the analytics snapshot of a learner. Read only: nothing computed here
// is written back.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentOverviewHandler handles the overview query.
type GetStudentOverviewHandler struct {
	enrollments enrollment.Repository
	progress    progress.Repository
	clock       timeutil.Clock
	location    *time.Location
	window      int
}

// NewGetStudentOverviewHandler creates a new GetStudentOverviewHandler.
// Activity is bucketed into days in loc; window bounds how many recent
// timestamps the streak reads.
func NewGetStudentOverviewHandler(
	enrollments enrollment.Repository,
	progressRepo progress.Repository,
	clock timeutil.Clock,
	loc *time.Location,
	window int,
) *GetStudentOverviewHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if loc == nil {
		loc = time.UTC
	}
	if window <= 0 {
		window = analytics.StreakWindow
	}

	return &GetStudentOverviewHandler{
		enrollments: enrollments,
		progress:    progressRepo,
		clock:       clock,
		location:    loc,
		window:      window,
	}
}

// Handle executes the query. A learner with no data gets a zero snapshot.
func (h *GetStudentOverviewHandler) Handle(ctx context.Context, learnerID string) (*analytics.Snapshot, error) {
	if learnerID == "" {
		return nil, shared.Required("analytics", "StudentOverview", "learner_id")
	}

	var (
		enrollments []*enrollment.Aggregate
		totals      progress.Totals
		activity    []time.Time
	)

	// The three reads are independent.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if enrollments, err = h.enrollments.ListByLearner(gctx, learnerID); err != nil {
			return fmt.Errorf("student_overview: list enrollments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if totals, err = h.progress.Totals(gctx, learnerID); err != nil {
			return fmt.Errorf("student_overview: totals: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if activity, err = h.progress.RecentActivity(gctx, learnerID, h.window); err != nil {
			return fmt.Errorf("student_overview: recent activity: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return analytics.Compute(analytics.Input{
		LearnerID:   learnerID,
		Enrollments: enrollments,
		Totals:      totals,
		Activity:    activity,
		Now:         h.clock(),
		Location:    h.location,
	}), nil
}
