// Package memory provides an in-process implementation of every repository and
// collaborator port. All operations are serialized by a single mutex, which gives
// the same guarantees the postgres layer gets from row locks and advisory locks.
// It backs tests and local development without a database.
package memory

import (
	"context"
	"sync"

	"github.com/learnhub/lms-core/internal/domain/catalog"
	"github.com/learnhub/lms-core/internal/domain/enrollment"
	"github.com/learnhub/lms-core/internal/domain/progress"
	"github.com/learnhub/lms-core/internal/domain/quiz"
	"github.com/learnhub/lms-core/internal/domain/shared"
)

type pairKey struct{ a, b string }

// Store holds all state in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	lessons     map[string]*catalog.Lesson
	quizzes     map[string]*quiz.Definition
	progress    map[pairKey]*progress.Record // (learner, lesson)
	enrollments map[pairKey]*enrollment.Aggregate
	submissions map[pairKey][]*quiz.Submission // (learner, quiz), append order
	xp          map[string]int
	xpErr       error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		lessons:     make(map[string]*catalog.Lesson),
		quizzes:     make(map[string]*quiz.Definition),
		progress:    make(map[pairKey]*progress.Record),
		enrollments: make(map[pairKey]*enrollment.Aggregate),
		submissions: make(map[pairKey][]*quiz.Submission),
		xp:          make(map[string]int),
	}
}

// Compile-time interface checks.
var (
	_ progress.Repository       = (*ProgressRepository)(nil)
	_ enrollment.Repository     = (*EnrollmentRepository)(nil)
	_ quiz.SubmissionRepository = (*SubmissionRepository)(nil)
	_ catalog.LessonCatalog     = (*Store)(nil)
	_ catalog.QuizCatalog       = (*Store)(nil)
	_ catalog.XPLedger          = (*Store)(nil)
)

// Progress returns the Progress Ledger view of the store.
func (s *Store) Progress() *ProgressRepository { return &ProgressRepository{s: s} }

// Enrollments returns the enrollment view of the store.
func (s *Store) Enrollments() *EnrollmentRepository { return &EnrollmentRepository{s: s} }

// Submissions returns the quiz submission view of the store.
func (s *Store) Submissions() *SubmissionRepository { return &SubmissionRepository{s: s} }

// ══════════════════════════════════════════════════════════════════════════════
// SEEDING
// ══════════════════════════════════════════════════════════════════════════════

// AddLesson registers a lesson in the catalog.
func (s *Store) AddLesson(lessonID, courseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lessons[lessonID] = &catalog.Lesson{ID: lessonID, CourseID: courseID}
}

// RemoveLesson drops a lesson from the catalog.
func (s *Store) RemoveLesson(lessonID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lessons, lessonID)
}

// AddQuiz registers a quiz definition.
func (s *Store) AddQuiz(def *quiz.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[def.ID] = def.Clone()
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// GetLesson implements catalog.LessonCatalog.
func (s *Store) GetLesson(ctx context.Context, lessonID string) (*catalog.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lessons[lessonID]
	if !ok {
		return nil, shared.ErrLessonNotFound
	}
	c := *l
	return &c, nil
}

// CountLessons implements catalog.LessonCatalog.
func (s *Store) CountLessons(ctx context.Context, courseID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.lessons {
		if l.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

// GetQuiz implements catalog.QuizCatalog.
func (s *Store) GetQuiz(ctx context.Context, quizID string) (*quiz.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, shared.ErrQuizNotFound
	}
	return q.Clone(), nil
}

// IncrementXP implements catalog.XPLedger.
func (s *Store) IncrementXP(ctx context.Context, learnerID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.xpErr != nil {
		return s.xpErr
	}
	s.xp[learnerID] += amount
	return nil
}

// FailXP makes every following IncrementXP call return err. Pass nil to recover.
func (s *Store) FailXP(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.xpErr = err
}

// XP returns the credited XP of a learner.
func (s *Store) XP(learnerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.xp[learnerID]
}

