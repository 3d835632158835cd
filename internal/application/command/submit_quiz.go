package command

import (
	"context"
	"fmt"

	"github.com/learnhub/lms-core/internal/domain/catalog"
	"github.com/learnhub/lms-core/internal/domain/quiz"
	"github.com/learnhub/lms-core/internal/domain/shared"
	"github.com/learnhub/lms-core/pkg/logger"
	"github.com/learnhub/lms-core/pkg/retry"
	"github.com/learnhub/lms-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT QUIZ COMMAND
// Grades an answer set and appends it to the learner's submission history.
// The attempt bound is enforced inside the repository transaction, so two
// concurrent submissions can never both take the last attempt.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitQuizCommand contains one answer set.
type SubmitQuizCommand struct {
	LearnerID        string       `json:"learner_id"`
	QuizID           string       `json:"quiz_id"`
	Answers          quiz.Answers `json:"answers"`
	TimeSpentSeconds int          `json:"time_spent_seconds"`
}

// Validate validates the command.
func (c SubmitQuizCommand) Validate() error {
	if c.LearnerID == "" {
		return shared.Required("quiz", "Submit", "learner_id")
	}
	if c.QuizID == "" {
		return shared.Required("quiz", "Submit", "quiz_id")
	}
	if c.Answers == nil {
		return shared.ErrAnswersMissing
	}
	if c.TimeSpentSeconds < 0 {
		return shared.NewDomainError("quiz", "Submit", shared.ErrNegativeValue, "time spent cannot be negative")
	}
	return nil
}

// SubmitQuizResult contains the graded submission.
type SubmitQuizResult struct {
	Submission        *quiz.Submission `json:"submission"`
	CorrectCount      int              `json:"correct_count"`
	TotalQuestions    int              `json:"total_questions"`
	Passed            bool             `json:"passed"`
	AttemptsRemaining int              `json:"attempts_remaining"`
}

// SubmitQuizHandler handles SubmitQuizCommand.
type SubmitQuizHandler struct {
	quizzes     catalog.QuizCatalog
	submissions quiz.SubmissionRepository
	publisher   shared.EventPublisher
	retrier     *retry.Retrier
	clock       timeutil.Clock
	log         *logger.Logger
}

// NewSubmitQuizHandler creates a new SubmitQuizHandler.
func NewSubmitQuizHandler(
	quizzes catalog.QuizCatalog,
	submissions quiz.SubmissionRepository,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
) *SubmitQuizHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}

	return &SubmitQuizHandler{
		quizzes:     quizzes,
		submissions: submissions,
		publisher:   publisher,
		retrier:     retry.ConflictRetrier(shared.IsConflict),
		clock:       clock,
		log:         log.With(logger.Component("submit_quiz")),
	}
}

// Handle executes the command.
func (h *SubmitQuizHandler) Handle(ctx context.Context, cmd SubmitQuizCommand) (*SubmitQuizResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	def, err := h.quizzes.GetQuiz(ctx, cmd.QuizID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("submit_quiz: get quiz: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	graded := quiz.Score(def, cmd.Answers)

	var sub *quiz.Submission
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		sub, err = h.submissions.Append(ctx, cmd.LearnerID, cmd.QuizID, def.Attempts, func(attempt int) (*quiz.Submission, error) {
			return quiz.NewSubmission(cmd.LearnerID, cmd.QuizID, cmd.Answers, graded, attempt, cmd.TimeSpentSeconds, h.clock()), nil
		})
		return err
	})
	if err != nil {
		switch {
		case shared.IsAttemptsExceeded(err), shared.IsValidation(err):
			return nil, err
		case shared.IsConflict(err):
			h.log.Warn("submission lost a race twice",
				logger.LearnerID(cmd.LearnerID),
				logger.QuizID(cmd.QuizID),
			)
			return nil, err
		}
		h.log.Error("failed to store submission",
			logger.LearnerID(cmd.LearnerID),
			logger.QuizID(cmd.QuizID),
			logger.Err(err),
		)
		return nil, fmt.Errorf("submit_quiz: %w", err)
	}

	if sub.Passed && h.publisher != nil {
		event := shared.NewQuizPassedEvent(cmd.LearnerID, cmd.QuizID, sub.ID.String(), sub.Score, sub.AttemptNumber, h.clock())
		if err := h.publisher.Publish(ctx, event); err != nil {
			h.log.Warn("failed to publish quiz passed event",
				logger.LearnerID(cmd.LearnerID),
				logger.QuizID(cmd.QuizID),
				logger.Err(err),
			)
		}
	}

	h.log.Info("quiz submitted",
		logger.LearnerID(cmd.LearnerID),
		logger.QuizID(cmd.QuizID),
		logger.Int("attempt", sub.AttemptNumber),
		logger.Int("score", sub.Score),
		logger.Bool("passed", sub.Passed),
	)

	return &SubmitQuizResult{
		Submission:        sub,
		CorrectCount:      graded.CorrectCount,
		TotalQuestions:    graded.TotalQuestions,
		Passed:            sub.Passed,
		AttemptsRemaining: def.Attempts - sub.AttemptNumber,
	}, nil
}
