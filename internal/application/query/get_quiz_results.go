package query

import (
	"context"
	"fmt"

	"github.com/learnhub/lms-core/internal/domain/quiz"
	"github.com/learnhub/lms-core/internal/domain/shared"
)

// GetQuizResultsQuery identifies one (learner, quiz) history.
type GetQuizResultsQuery struct {
	LearnerID string
	QuizID    string
}

// Validate validates the query.
func (q GetQuizResultsQuery) Validate() error {
	if q.LearnerID == "" {
		return shared.Required("quiz", "GetResults", "learner_id")
	}
	if q.QuizID == "" {
		return shared.Required("quiz", "GetResults", "quiz_id")
	}
	return nil
}

// GetQuizResultsHandler returns the submission history, newest attempt first.
type GetQuizResultsHandler struct {
	submissions quiz.SubmissionRepository
}

// NewGetQuizResultsHandler creates a new GetQuizResultsHandler.
func NewGetQuizResultsHandler(submissions quiz.SubmissionRepository) *GetQuizResultsHandler {
	return &GetQuizResultsHandler{submissions: submissions}
}

// Handle executes the query. A learner with no submissions gets an empty slice.
func (h *GetQuizResultsHandler) Handle(ctx context.Context, q GetQuizResultsQuery) ([]*quiz.Submission, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	history, err := h.submissions.ListByLearner(ctx, q.LearnerID, q.QuizID)
	if err != nil {
		return nil, fmt.Errorf("get_quiz_results: %w", err)
	}
	return history, nil
}
