package command

import (
	"context"
	"fmt"

	"github.com/learnhub/lms-core/internal/domain/catalog"
	"github.com/learnhub/lms-core/internal/domain/progress"
	"github.com/learnhub/lms-core/internal/domain/shared"
	"github.com/learnhub/lms-core/pkg/logger"
	"github.com/learnhub/lms-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD INTERACTION COMMAND
// Accumulates time spent on a lesson and stores the last playback position.
// ══════════════════════════════════════════════════════════════════════════════

// RecordInteractionCommand contains the data of one lesson interaction.
type RecordInteractionCommand struct {
	LearnerID             string `json:"learner_id"`
	LessonID              string `json:"lesson_id"`
	TimeSpentDeltaSeconds int    `json:"time_spent_delta_seconds"`
	LastPositionSeconds   int    `json:"last_position_seconds"`
}

// RecordInteractionHandler handles RecordInteractionCommand.
type RecordInteractionHandler struct {
	lessons  catalog.LessonCatalog
	progress progress.Repository
	clock    timeutil.Clock
	log      *logger.Logger
}

// NewRecordInteractionHandler creates a new RecordInteractionHandler.
func NewRecordInteractionHandler(
	lessons catalog.LessonCatalog,
	progressRepo progress.Repository,
	clock timeutil.Clock,
	log *logger.Logger,
) *RecordInteractionHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}

	return &RecordInteractionHandler{
		lessons:  lessons,
		progress: progressRepo,
		clock:    clock,
		log:      log.With(logger.Component("record_interaction")),
	}
}

// Handle executes the command. The first interaction creates the record, later
// ones add to TimeSpentSeconds and overwrite LastPositionSeconds.
func (h *RecordInteractionHandler) Handle(ctx context.Context, cmd RecordInteractionCommand) (*progress.Record, error) {
	in := progress.Interaction{
		LearnerID:             cmd.LearnerID,
		LessonID:              cmd.LessonID,
		TimeSpentDeltaSeconds: cmd.TimeSpentDeltaSeconds,
		LastPositionSeconds:   cmd.LastPositionSeconds,
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	lesson, err := h.lessons.GetLesson(ctx, cmd.LessonID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("record_interaction: get lesson: %w", err)
	}
	in.CourseID = lesson.CourseID

	rec, err := h.progress.RecordInteraction(ctx, in, h.clock())
	if err != nil {
		h.log.Error("failed to record interaction",
			logger.LearnerID(cmd.LearnerID),
			logger.LessonID(cmd.LessonID),
			logger.Err(err),
		)
		return nil, fmt.Errorf("record_interaction: %w", err)
	}

	return rec, nil
}
