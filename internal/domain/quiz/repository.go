package quiz

import "context"

// BuildFunc creates the submission for the given 1-based attempt number.
type BuildFunc func(attemptNumber int) (*Submission, error)

// SubmissionRepository defines the interface for the append-only submission history.
type SubmissionRepository interface {
	// Append serializes writers per (learner, quiz), counts prior submissions and
	// fails with AttemptsExceeded when prior >= maxAttempts without writing anything.
	// Otherwise it calls build(prior+1) and stores the result. A lost race on the
	// (learner, quiz, attempt) uniqueness constraint is reported as Conflict.
	Append(ctx context.Context, learnerID, quizID string, maxAttempts int, build BuildFunc) (*Submission, error)

	// ListByLearner returns all submissions for the pair, most recent attempt first.
	ListByLearner(ctx context.Context, learnerID, quizID string) ([]*Submission, error)

	// Count returns the number of stored submissions for the pair.
	Count(ctx context.Context, learnerID, quizID string) (int, error)
}
