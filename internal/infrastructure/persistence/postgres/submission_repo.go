package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/learnhub/lms-core/internal/domain/quiz"
	"github.com/learnhub/lms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ SUBMISSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionRepository implements quiz.SubmissionRepository for PostgreSQL.
type SubmissionRepository struct {
	conn *Connection
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(conn *Connection) *SubmissionRepository {
	return &SubmissionRepository{conn: conn}
}

var _ quiz.SubmissionRepository = (*SubmissionRepository)(nil)

const submissionColumns = `
	id, learner_id, quiz_id, answers, score, passed,
	attempt_number, time_spent_seconds, submitted_at
`

// Append takes a transaction-scoped advisory lock on (learner, quiz) before
// counting, so the bound check and the insert are atomic per pair. The unique
// key on (learner_id, quiz_id, attempt_number) is the backstop for writers
// that bypass the lock.
func (r *SubmissionRepository) Append(ctx context.Context, learnerID, quizID string, maxAttempts int, build quiz.BuildFunc) (*quiz.Submission, error) {
	var sub *quiz.Submission

	err := r.conn.WithTx(ctx, SerializedTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, learnerID, quizID); err != nil {
			return fmt.Errorf("failed to lock attempt counter: %w", err)
		}

		var prior int
		count := `SELECT COUNT(*) FROM quiz_submissions WHERE learner_id = $1 AND quiz_id = $2`
		if err := tx.QueryRow(ctx, count, learnerID, quizID).Scan(&prior); err != nil {
			return fmt.Errorf("failed to count attempts: %w", err)
		}
		if prior >= maxAttempts {
			return shared.ErrNoAttemptsLeft
		}

		var err error
		sub, err = build(prior + 1)
		if err != nil {
			return err
		}

		answers, err := json.Marshal(sub.Answers)
		if err != nil {
			return shared.WrapError("quiz", "Submit", shared.ErrInvalidFormat, "answers are not serializable", err)
		}

		insert := `
			INSERT INTO quiz_submissions (` + submissionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err = tx.Exec(ctx, insert,
			sub.ID,
			sub.LearnerID,
			sub.QuizID,
			answers,
			sub.Score,
			sub.Passed,
			sub.AttemptNumber,
			sub.TimeSpentSeconds,
			sub.SubmittedAt,
		)
		return err
	})
	if err != nil {
		switch {
		case IsUniqueViolation(err):
			return nil, shared.ErrAttemptConflict
		case IsSerializationFailure(err):
			return nil, shared.WrapError("quiz", "Submit", shared.ErrConflict, "concurrent submission", err)
		case shared.IsAttemptsExceeded(err), shared.IsValidation(err):
			return nil, err
		}
		return nil, fmt.Errorf("failed to append submission: %w", err)
	}

	return sub, nil
}

// ListByLearner returns the history, most recent attempt first.
func (r *SubmissionRepository) ListByLearner(ctx context.Context, learnerID, quizID string) ([]*quiz.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM quiz_submissions
		WHERE learner_id = $1 AND quiz_id = $2
		ORDER BY attempt_number DESC
	`

	rows, err := r.conn.Query(ctx, query, learnerID, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]*quiz.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		out = append(out, sub)
	}

	return out, rows.Err()
}

// Count returns the number of stored submissions for the pair.
func (r *SubmissionRepository) Count(ctx context.Context, learnerID, quizID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM quiz_submissions WHERE learner_id = $1 AND quiz_id = $2`
	if err := r.conn.QueryRow(ctx, query, learnerID, quizID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return n, nil
}

func scanSubmission(row pgx.Row) (*quiz.Submission, error) {
	var (
		sub     quiz.Submission
		answers []byte
	)
	err := row.Scan(
		&sub.ID,
		&sub.LearnerID,
		&sub.QuizID,
		&answers,
		&sub.Score,
		&sub.Passed,
		&sub.AttemptNumber,
		&sub.TimeSpentSeconds,
		&sub.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &sub.Answers); err != nil {
			return nil, fmt.Errorf("failed to decode answers: %w", err)
		}
	}
	return &sub, nil
}
