package memory

import (
	"context"

	"github.com/learnhub/lms-core/internal/domain/quiz"
	"github.com/learnhub/lms-core/internal/domain/shared"
)

// SubmissionRepository implements quiz.SubmissionRepository on top of a Store.
type SubmissionRepository struct {
	s *Store
}

// Append counts and inserts under the store mutex, so the bound check and the
// write can never interleave with another submission.
func (r *SubmissionRepository) Append(ctx context.Context, learnerID, quizID string, maxAttempts int, build quiz.BuildFunc) (*quiz.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pairKey{learnerID, quizID}
	prior := len(r.s.submissions[key])
	if prior >= maxAttempts {
		return nil, shared.ErrNoAttemptsLeft
	}

	sub, err := build(prior + 1)
	if err != nil {
		return nil, err
	}
	stored := sub.Clone()
	r.s.submissions[key] = append(r.s.submissions[key], stored)

	return stored.Clone(), nil
}

// ListByLearner returns the history newest first.
func (r *SubmissionRepository) ListByLearner(ctx context.Context, learnerID, quizID string) ([]*quiz.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	history := r.s.submissions[pairKey{learnerID, quizID}]
	out := make([]*quiz.Submission, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i].Clone())
	}
	return out, nil
}

// Count returns the number of stored submissions.
func (r *SubmissionRepository) Count(ctx context.Context, learnerID, quizID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.submissions[pairKey{learnerID, quizID}]), nil
}
