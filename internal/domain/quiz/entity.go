// Package quiz contains quiz definitions, immutable submissions, and deterministic scoring.
package quiz

import (
	"time"

	"github.com/google/uuid"

	"github.com/learnhub/lms-core/internal/domain/shared"
)

// Question is one gradable item. Key is stable across quiz revisions; it may be empty
// for legacy quizzes, in which case answers are matched by position.
type Question struct {
	Key           string `json:"key,omitempty" yaml:"key,omitempty"`
	CorrectAnswer any    `json:"correct_answer" yaml:"correct_answer"`
}

// Definition is the read-only quiz owned by the catalog.
type Definition struct {
	ID           string     `json:"id" yaml:"id"`
	CourseID     string     `json:"course_id" yaml:"course_id"`
	Questions    []Question `json:"questions" yaml:"questions"`
	PassingScore int        `json:"passing_score" yaml:"passing_score"`
	Attempts     int        `json:"attempts" yaml:"attempts"`
}

// Validate checks the bounds a definition must respect before it can be graded against.
func (d *Definition) Validate() error {
	if d.PassingScore < 0 || d.PassingScore > 100 {
		return shared.NewDomainError("quiz", "Validate", shared.ErrValidation, "passing score must be between 0 and 100")
	}
	if d.Attempts < 1 {
		return shared.NewDomainError("quiz", "Validate", shared.ErrValidation, "attempts must be at least 1")
	}
	return nil
}

// Submission is one graded attempt. Immutable once stored.
type Submission struct {
	ID               uuid.UUID `json:"id"`
	LearnerID        string    `json:"learner_id"`
	QuizID           string    `json:"quiz_id"`
	Answers          Answers   `json:"answers"`
	Score            int       `json:"score"`
	Passed           bool      `json:"passed"`
	AttemptNumber    int       `json:"attempt_number"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// NewSubmission builds a submission from a grading result.
func NewSubmission(learnerID, quizID string, answers Answers, res Result, attempt, timeSpent int, now time.Time) *Submission {
	return &Submission{
		ID:               uuid.New(),
		LearnerID:        learnerID,
		QuizID:           quizID,
		Answers:          answers,
		Score:            res.Score,
		Passed:           res.Passed,
		AttemptNumber:    attempt,
		TimeSpentSeconds: timeSpent,
		SubmittedAt:      now,
	}
}

// Clone returns a deep copy, so a stored submission cannot be changed through a caller's map.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	c := *s
	c.Answers = s.Answers.Clone()
	return &c
}

// Clone returns a deep copy of the definition and its questions.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	if d.Questions != nil {
		c.Questions = make([]Question, len(d.Questions))
		for i, q := range d.Questions {
			c.Questions[i] = Question{Key: q.Key, CorrectAnswer: cloneValue(q.CorrectAnswer)}
		}
	}
	return &c
}

// Clone returns a deep copy of the answer set. Nested maps and slices are copied too.
func (a Answers) Clone() Answers {
	if a == nil {
		return nil
	}
	c := make(Answers, len(a))
	for k, v := range a {
		c[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Answers:
		return t.Clone()
	case map[string]any:
		c := make(map[string]any, len(t))
		for k, e := range t {
			c[k] = cloneValue(e)
		}
		return c
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = cloneValue(e)
		}
		return c
	default:
		return v
	}
}
