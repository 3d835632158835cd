// Package catalog declares the collaborators this core consumes but does not own:
// the lesson catalog, the quiz catalog, and the XP ledger.
package catalog

import (
	"context"

	"github.com/learnhub/lms-core/internal/domain/quiz"
)

// Lesson is the slice of a catalog lesson the core needs.
type Lesson struct {
	ID       string `json:"id" yaml:"id"`
	CourseID string `json:"course_id" yaml:"course_id"`
}

// LessonCatalog resolves lessons and counts them per course.
type LessonCatalog interface {
	// GetLesson returns the lesson or a NotFound error.
	GetLesson(ctx context.Context, lessonID string) (*Lesson, error)

	// CountLessons returns the current number of lessons in a course.
	CountLessons(ctx context.Context, courseID string) (int, error)
}

// QuizCatalog resolves quiz definitions.
type QuizCatalog interface {
	// GetQuiz returns the definition or a NotFound error.
	GetQuiz(ctx context.Context, quizID string) (*quiz.Definition, error)
}

// XPLedger credits experience points. Calls are fire-and-forget from the
// core's point of view: a failure never aborts the triggering operation.
type XPLedger interface {
	IncrementXP(ctx context.Context, learnerID string, amount int) error
}
