package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/learnhub/lms-core/internal/domain/progress"
	"github.com/learnhub/lms-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

var _ progress.Repository = (*ProgressRepository)(nil)

const progressColumns = `
	learner_id, lesson_id, course_id, completed, completed_at,
	time_spent_seconds, last_position_seconds, created_at, updated_at
`

// RecordInteraction upserts in a single statement, so concurrent interactions
// on the same lesson never lose time.
func (r *ProgressRepository) RecordInteraction(ctx context.Context, in progress.Interaction, now time.Time) (*progress.Record, error) {
	query := `
		INSERT INTO progress (
			learner_id, lesson_id, course_id,
			time_spent_seconds, last_position_seconds, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (learner_id, lesson_id) DO UPDATE SET
			time_spent_seconds = progress.time_spent_seconds + EXCLUDED.time_spent_seconds,
			last_position_seconds = EXCLUDED.last_position_seconds,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + progressColumns

	rec, err := scanRecord(r.conn.QueryRow(ctx, query,
		in.LearnerID,
		in.LessonID,
		in.CourseID,
		in.TimeSpentDeltaSeconds,
		in.LastPositionSeconds,
		now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to record interaction: %w", err)
	}

	return rec, nil
}

// MarkComplete sets completion only on rows that are not completed yet. The
// conflicting row is locked by ON CONFLICT, so exactly one concurrent caller
// observes the transition. Repeat completions only bump updated_at.
func (r *ProgressRepository) MarkComplete(ctx context.Context, learnerID, lessonID, courseID string, now time.Time) (*progress.Record, bool, error) {
	var (
		rec          *progress.Record
		transitioned bool
	)

	err := r.conn.WithTx(ctx, SerializedTxOptions(), func(tx pgx.Tx) error {
		complete := `
			INSERT INTO progress (
				learner_id, lesson_id, course_id, completed, completed_at, created_at, updated_at
			) VALUES ($1, $2, $3, TRUE, $4, $4, $4)
			ON CONFLICT (learner_id, lesson_id) DO UPDATE SET
				completed = TRUE,
				completed_at = EXCLUDED.completed_at,
				updated_at = EXCLUDED.updated_at
			WHERE progress.completed = FALSE
			RETURNING ` + progressColumns

		var err error
		rec, err = scanRecord(tx.QueryRow(ctx, complete, learnerID, lessonID, courseID, now))
		if err == nil {
			transitioned = true
			return nil
		}
		if !IsNoRows(err) {
			return err
		}

		touch := `
			UPDATE progress SET updated_at = $3
			WHERE learner_id = $1 AND lesson_id = $2
			RETURNING ` + progressColumns

		rec, err = scanRecord(tx.QueryRow(ctx, touch, learnerID, lessonID, now))
		return err
	})
	if err != nil {
		if IsSerializationFailure(err) {
			return nil, false, shared.WrapError("progress", "MarkComplete", shared.ErrConflict, "concurrent completion", err)
		}
		return nil, false, fmt.Errorf("failed to mark lesson complete: %w", err)
	}

	return rec, transitioned, nil
}

// Get returns a single record.
func (r *ProgressRepository) Get(ctx context.Context, learnerID, lessonID string) (*progress.Record, error) {
	query := `SELECT ` + progressColumns + ` FROM progress WHERE learner_id = $1 AND lesson_id = $2`

	rec, err := scanRecord(r.conn.QueryRow(ctx, query, learnerID, lessonID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewDomainError("progress", "Get", shared.ErrNotFound, "progress record not found")
		}
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	return rec, nil
}

// ListByCourse returns the learner's records for a course ordered by lesson id.
func (r *ProgressRepository) ListByCourse(ctx context.Context, learnerID, courseID string) ([]*progress.Record, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM progress
		WHERE learner_id = $1 AND course_id = $2
		ORDER BY lesson_id
	`

	rows, err := r.conn.Query(ctx, query, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	records := make([]*progress.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CountCompleted returns the number of completed lessons of a course.
func (r *ProgressRepository) CountCompleted(ctx context.Context, learnerID, courseID string) (int, error) {
	return countCompleted(ctx, r.conn, learnerID, courseID)
}

func countCompleted(ctx context.Context, q Querier, learnerID, courseID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM progress
		WHERE learner_id = $1 AND course_id = $2 AND completed
	`

	var n int
	if err := q.QueryRow(ctx, query, learnerID, courseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count completed lessons: %w", err)
	}
	return n, nil
}

// Totals sums completed lessons and time spent across all courses.
func (r *ProgressRepository) Totals(ctx context.Context, learnerID string) (progress.Totals, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE completed),
			COALESCE(SUM(time_spent_seconds), 0)
		FROM progress
		WHERE learner_id = $1
	`

	var t progress.Totals
	if err := r.conn.QueryRow(ctx, query, learnerID).Scan(&t.CompletedLessons, &t.TimeSpentSeconds); err != nil {
		return progress.Totals{}, fmt.Errorf("failed to sum progress: %w", err)
	}
	return t, nil
}

// RecentActivity returns up to limit updated_at values, newest first.
func (r *ProgressRepository) RecentActivity(ctx context.Context, learnerID string, limit int) ([]time.Time, error) {
	if limit <= 0 {
		return []time.Time{}, nil
	}

	query := `
		SELECT updated_at FROM progress
		WHERE learner_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, learnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent activity: %w", err)
	}
	defer rows.Close()

	out := make([]time.Time, 0, limit)
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, ts)
	}

	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanRecord(row pgx.Row) (*progress.Record, error) {
	var rec progress.Record
	err := row.Scan(
		&rec.LearnerID,
		&rec.LessonID,
		&rec.CourseID,
		&rec.Completed,
		&rec.CompletedAt,
		&rec.TimeSpentSeconds,
		&rec.LastPositionSeconds,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
