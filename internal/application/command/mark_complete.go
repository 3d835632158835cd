package command

import (
	"context"
	"fmt"

	"github.com/learnhub/lms-core/internal/domain/catalog"
	"github.com/learnhub/lms-core/internal/domain/enrollment"
	"github.com/learnhub/lms-core/internal/domain/progress"
	"github.com/learnhub/lms-core/internal/domain/shared"
	"github.com/learnhub/lms-core/pkg/logger"
	"github.com/learnhub/lms-core/pkg/retry"
	"github.com/learnhub/lms-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK COMPLETE COMMAND
// Flags a lesson as completed, recomputes the owning enrollment and publishes
// LessonCompletedEvent, which drives the XP award.
//
// A repeat completion leaves the completion fields untouched but still
// recomputes and still publishes. Whether the repeat earns XP is decided by
// the XP award handler.
// ══════════════════════════════════════════════════════════════════════════════

// MarkCompleteCommand identifies the lesson being completed.
type MarkCompleteCommand struct {
	LearnerID string `json:"learner_id"`
	LessonID  string `json:"lesson_id"`
}

// Validate validates the command.
func (c MarkCompleteCommand) Validate() error {
	if c.LearnerID == "" {
		return shared.Required("progress", "MarkComplete", "learner_id")
	}
	if c.LessonID == "" {
		return shared.Required("progress", "MarkComplete", "lesson_id")
	}
	return nil
}

// MarkCompleteResult contains the outcome of a completion.
type MarkCompleteResult struct {
	// Record is the stored progress record.
	Record *progress.Record `json:"record"`

	// Aggregate is the recomputed enrollment, nil when the learner is not enrolled.
	Aggregate *enrollment.Aggregate `json:"enrollment,omitempty"`

	// Transitioned is true when this call moved the lesson to completed.
	Transitioned bool `json:"transitioned"`
}

// MarkCompleteHandler handles MarkCompleteCommand.
type MarkCompleteHandler struct {
	lessons    catalog.LessonCatalog
	progress   progress.Repository
	aggregator *Aggregator
	publisher  shared.EventPublisher
	retrier    *retry.Retrier
	clock      timeutil.Clock
	log        *logger.Logger
}

// NewMarkCompleteHandler creates a new MarkCompleteHandler.
func NewMarkCompleteHandler(
	lessons catalog.LessonCatalog,
	progressRepo progress.Repository,
	aggregator *Aggregator,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
) *MarkCompleteHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}

	return &MarkCompleteHandler{
		lessons:    lessons,
		progress:   progressRepo,
		aggregator: aggregator,
		publisher:  publisher,
		retrier:    retry.ConflictRetrier(shared.IsConflict),
		clock:      clock,
		log:        log.With(logger.Component("mark_complete")),
	}
}

// Handle executes the command.
func (h *MarkCompleteHandler) Handle(ctx context.Context, cmd MarkCompleteCommand) (*MarkCompleteResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	lesson, err := h.lessons.GetLesson(ctx, cmd.LessonID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("mark_complete: get lesson: %w", err)
	}

	// 1. Ledger write, retried once if a concurrent completion won the row
	var (
		rec          *progress.Record
		transitioned bool
	)
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		rec, transitioned, err = h.progress.MarkComplete(ctx, cmd.LearnerID, cmd.LessonID, lesson.CourseID, h.clock())
		return err
	})
	if err != nil {
		if shared.IsConflict(err) {
			h.log.Warn("completion lost a race twice",
				logger.LearnerID(cmd.LearnerID),
				logger.LessonID(cmd.LessonID),
			)
			return nil, err
		}
		h.log.Error("failed to mark lesson complete",
			logger.LearnerID(cmd.LearnerID),
			logger.LessonID(cmd.LessonID),
			logger.Err(err),
		)
		return nil, fmt.Errorf("mark_complete: %w", err)
	}

	result := &MarkCompleteResult{
		Record:       rec,
		Transitioned: transitioned,
	}

	// 2. Aggregate recompute. The ledger write is authoritative, so a learner
	// who is not enrolled still gets the completion recorded.
	agg, err := h.aggregator.Recompute(ctx, cmd.LearnerID, lesson.CourseID)
	switch {
	case err == nil:
		result.Aggregate = agg
	case shared.IsNotFound(err):
		h.log.Warn("lesson completed outside an enrollment",
			logger.LearnerID(cmd.LearnerID),
			logger.LessonID(cmd.LessonID),
			logger.CourseID(lesson.CourseID),
		)
	default:
		return nil, fmt.Errorf("mark_complete: recompute: %w", err)
	}

	// 3. XP award (asynchronous, never fails the command)
	if h.publisher != nil {
		event := shared.NewLessonCompletedEvent(cmd.LearnerID, cmd.LessonID, lesson.CourseID, transitioned, h.clock())
		if err := h.publisher.Publish(ctx, event); err != nil {
			h.log.Warn("failed to publish lesson completed event",
				logger.LearnerID(cmd.LearnerID),
				logger.LessonID(cmd.LessonID),
				logger.Err(err),
			)
		}
	}

	h.log.Info("lesson completed",
		logger.LearnerID(cmd.LearnerID),
		logger.LessonID(cmd.LessonID),
		logger.Bool("transitioned", transitioned),
	)

	return result, nil
}
