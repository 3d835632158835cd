package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/learnhub/lms-core/internal/domain/catalog"
	"github.com/learnhub/lms-core/internal/domain/quiz"
	"github.com/learnhub/lms-core/internal/domain/shared"
)

// CatalogRepository reads the collaborator-owned lessons and quizzes tables.
// It implements catalog.LessonCatalog and catalog.QuizCatalog.
type CatalogRepository struct {
	conn *Connection
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

var (
	_ catalog.LessonCatalog = (*CatalogRepository)(nil)
	_ catalog.QuizCatalog   = (*CatalogRepository)(nil)
)

// GetLesson returns the lesson or ErrLessonNotFound.
func (r *CatalogRepository) GetLesson(ctx context.Context, lessonID string) (*catalog.Lesson, error) {
	var l catalog.Lesson
	err := r.conn.QueryRow(ctx, `SELECT id, course_id FROM lessons WHERE id = $1`, lessonID).
		Scan(&l.ID, &l.CourseID)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	return &l, nil
}

// CountLessons returns the current number of lessons in a course.
func (r *CatalogRepository) CountLessons(ctx context.Context, courseID string) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM lessons WHERE course_id = $1`, courseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count lessons: %w", err)
	}
	return n, nil
}

// GetQuiz returns the definition or ErrQuizNotFound.
func (r *CatalogRepository) GetQuiz(ctx context.Context, quizID string) (*quiz.Definition, error) {
	query := `
		SELECT id, course_id, questions, passing_score, attempts
		FROM quizzes
		WHERE id = $1
	`

	var (
		def       quiz.Definition
		questions []byte
	)
	err := r.conn.QueryRow(ctx, query, quizID).Scan(
		&def.ID,
		&def.CourseID,
		&questions,
		&def.PassingScore,
		&def.Attempts,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	if err := json.Unmarshal(questions, &def.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode quiz questions: %w", err)
	}

	return &def, nil
}
