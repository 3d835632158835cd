// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"

	"github.com/learnhub/lms-core/internal/domain/enrollment"
	"github.com/learnhub/lms-core/internal/domain/progress"
	"github.com/learnhub/lms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COURSE PROGRESS QUERY
// Returns the enrollment aggregate together with every progress record the
// learner has in the course.
// ══════════════════════════════════════════════════════════════════════════════

// GetCourseProgressQuery identifies one enrollment.
type GetCourseProgressQuery struct {
	LearnerID string
	CourseID  string
}

// Validate validates the query.
func (q GetCourseProgressQuery) Validate() error {
	if q.LearnerID == "" {
		return shared.Required("enrollment", "GetCourseProgress", "learner_id")
	}
	if q.CourseID == "" {
		return shared.Required("enrollment", "GetCourseProgress", "course_id")
	}
	return nil
}

// CourseProgressDTO is the course view of a learner.
type CourseProgressDTO struct {
	Enrollment *enrollment.Aggregate `json:"enrollment"`
	Lessons    []*progress.Record    `json:"lessons"`
}

// GetCourseProgressHandler handles GetCourseProgressQuery.
type GetCourseProgressHandler struct {
	enrollments enrollment.Repository
	progress    progress.Repository
}

// NewGetCourseProgressHandler creates a new GetCourseProgressHandler.
func NewGetCourseProgressHandler(enrollments enrollment.Repository, progressRepo progress.Repository) *GetCourseProgressHandler {
	return &GetCourseProgressHandler{
		enrollments: enrollments,
		progress:    progressRepo,
	}
}

// Handle executes the query. Returns NotFound when the learner is not enrolled.
func (h *GetCourseProgressHandler) Handle(ctx context.Context, q GetCourseProgressQuery) (*CourseProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	agg, err := h.enrollments.Get(ctx, q.LearnerID, q.CourseID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("get_course_progress: get enrollment: %w", err)
	}

	records, err := h.progress.ListByCourse(ctx, q.LearnerID, q.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get_course_progress: list progress: %w", err)
	}

	return &CourseProgressDTO{
		Enrollment: agg,
		Lessons:    records,
	}, nil
}
