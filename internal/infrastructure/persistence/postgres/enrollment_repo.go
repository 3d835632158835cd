package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/learnhub/lms-core/internal/domain/enrollment"
	"github.com/learnhub/lms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository for PostgreSQL.
type EnrollmentRepository struct {
	conn *Connection
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

var _ enrollment.Repository = (*EnrollmentRepository)(nil)

const enrollmentColumns = `
	learner_id, course_id, progress_percent, completed, completed_at,
	last_accessed_at, enrolled_at
`

// Get returns the aggregate or ErrEnrollmentNotFound.
func (r *EnrollmentRepository) Get(ctx context.Context, learnerID, courseID string) (*enrollment.Aggregate, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE learner_id = $1 AND course_id = $2`

	agg, err := scanAggregate(r.conn.QueryRow(ctx, query, learnerID, courseID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	return agg, nil
}

// ListByLearner returns every enrollment of a learner ordered by course id.
func (r *EnrollmentRepository) ListByLearner(ctx context.Context, learnerID string) ([]*enrollment.Aggregate, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE learner_id = $1
		ORDER BY course_id
	`

	rows, err := r.conn.Query(ctx, query, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	out := make([]*enrollment.Aggregate, 0)
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		out = append(out, agg)
	}

	return out, rows.Err()
}

// Recount locks the enrollment row, counts completed progress inside the same
// transaction, and writes the result back. Concurrent recounts for the same pair
// queue on the row lock, so each one reads the completed set committed before it.
func (r *EnrollmentRepository) Recount(ctx context.Context, learnerID, courseID string, fn enrollment.RecountFunc) (*enrollment.Aggregate, error) {
	var agg *enrollment.Aggregate

	err := r.conn.WithTx(ctx, SerializedTxOptions(), func(tx pgx.Tx) error {
		lock := `
			SELECT ` + enrollmentColumns + `
			FROM enrollments
			WHERE learner_id = $1 AND course_id = $2
			FOR UPDATE
		`

		var err error
		agg, err = scanAggregate(tx.QueryRow(ctx, lock, learnerID, courseID))
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrEnrollmentNotFound
			}
			return err
		}

		completed, err := countCompleted(ctx, tx, learnerID, courseID)
		if err != nil {
			return err
		}

		if err := fn(agg, completed); err != nil {
			return err
		}

		update := `
			UPDATE enrollments SET
				progress_percent = $3,
				completed = $4,
				completed_at = $5,
				last_accessed_at = $6
			WHERE learner_id = $1 AND course_id = $2
		`
		_, err = tx.Exec(ctx, update,
			learnerID,
			courseID,
			agg.ProgressPercent,
			agg.Completed,
			agg.CompletedAt,
			agg.LastAccessedAt,
		)
		return err
	})
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		if IsSerializationFailure(err) {
			return nil, shared.WrapError("enrollment", "Recount", shared.ErrConflict, "concurrent aggregate update", err)
		}
		return nil, fmt.Errorf("failed to recompute enrollment: %w", err)
	}

	return agg, nil
}

// Enroll creates the aggregate at 0% if absent and returns the stored row.
func (r *EnrollmentRepository) Enroll(ctx context.Context, learnerID, courseID string, now time.Time) (*enrollment.Aggregate, error) {
	query := `
		INSERT INTO enrollments (learner_id, course_id, last_accessed_at, enrolled_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (learner_id, course_id) DO NOTHING
	`

	if _, err := r.conn.Exec(ctx, query, learnerID, courseID, now); err != nil {
		return nil, fmt.Errorf("failed to enroll: %w", err)
	}

	return r.Get(ctx, learnerID, courseID)
}

func scanAggregate(row pgx.Row) (*enrollment.Aggregate, error) {
	var agg enrollment.Aggregate
	err := row.Scan(
		&agg.LearnerID,
		&agg.CourseID,
		&agg.ProgressPercent,
		&agg.Completed,
		&agg.CompletedAt,
		&agg.LastAccessedAt,
		&agg.EnrolledAt,
	)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}
