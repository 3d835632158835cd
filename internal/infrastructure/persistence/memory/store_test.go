package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/lms-core/internal/domain/enrollment"
	"github.com/learnhub/lms-core/internal/domain/progress"
	"github.com/learnhub/lms-core/internal/domain/quiz"
	"github.com/learnhub/lms-core/internal/domain/shared"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSubmissionRepository_ConcurrentAppendsRespectBound(t *testing.T) {
	store := NewStore()
	repo := store.Submissions()
	ctx := context.Background()

	const bound = 3
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, exceeded int

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Append(ctx, "l1", "q1", bound, func(n int) (*quiz.Submission, error) {
				return quiz.NewSubmission("l1", "q1", quiz.Answers{}, quiz.Result{}, n, 0, t0), nil
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case shared.IsAttemptsExceeded(err):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, bound, ok)
	assert.Equal(t, 17, exceeded)

	history, err := repo.ListByLearner(ctx, "l1", "q1")
	require.NoError(t, err)
	require.Len(t, history, bound)
	assert.Equal(t, []int{3, 2, 1}, []int{history[0].AttemptNumber, history[1].AttemptNumber, history[2].AttemptNumber})
}

func TestSubmissionRepository_BuildErrorWritesNothing(t *testing.T) {
	repo := NewStore().Submissions()
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := repo.Append(ctx, "l1", "q1", 2, func(int) (*quiz.Submission, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	n, err := repo.Count(ctx, "l1", "q1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmissionRepository_StoredSubmissionsAreImmutable(t *testing.T) {
	repo := NewStore().Submissions()
	ctx := context.Background()

	ans := quiz.Answers{"q1": 0.0, "q2": []any{"a", "b"}}
	returned, err := repo.Append(ctx, "l1", "q1", 2, func(n int) (*quiz.Submission, error) {
		return &quiz.Submission{LearnerID: "l1", QuizID: "q1", Answers: ans, AttemptNumber: n}, nil
	})
	require.NoError(t, err)

	ans["q1"] = 9.0
	ans["q2"].([]any)[0] = "z"
	returned.Answers["q1"] = 8.0

	history, err := repo.ListByLearner(ctx, "l1", "q1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	history[0].Answers["q1"] = 7.0

	again, err := repo.ListByLearner(ctx, "l1", "q1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, again[0].Answers["q1"])
	assert.Equal(t, []any{"a", "b"}, again[0].Answers["q2"])
}

func TestStore_QuizDefinitionsAreCopied(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	def := &quiz.Definition{
		ID:           "q1",
		Questions:    []quiz.Question{{CorrectAnswer: map[string]any{"x": 1.0}}},
		PassingScore: 50,
		Attempts:     1,
	}
	store.AddQuiz(def)
	def.Questions[0].CorrectAnswer.(map[string]any)["x"] = 2.0

	got, err := store.GetQuiz(ctx, "q1")
	require.NoError(t, err)
	got.Questions[0].CorrectAnswer.(map[string]any)["x"] = 3.0

	again, err := store.GetQuiz(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1.0}, again.Questions[0].CorrectAnswer)
}

func TestEnrollmentRepository_RecountConcurrentCompletions(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	enrollments := store.Enrollments()
	ledger := store.Progress()

	_, err := enrollments.Enroll(ctx, "l1", "c1", t0)
	require.NoError(t, err)

	lessons := []string{"a", "b", "c", "d"}
	var wg sync.WaitGroup
	for _, lesson := range lessons {
		wg.Add(1)
		go func(lesson string) {
			defer wg.Done()
			_, _, err := ledger.MarkComplete(ctx, "l1", lesson, "c1", t0)
			assert.NoError(t, err)
			_, err = enrollments.Recount(ctx, "l1", "c1", func(agg *enrollment.Aggregate, completed int) error {
				agg.Apply(completed, len(lessons), t0)
				return nil
			})
			assert.NoError(t, err)
		}(lesson)
	}
	wg.Wait()

	agg, err := enrollments.Get(ctx, "l1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, agg.ProgressPercent)
	assert.True(t, agg.Completed)
}

func TestEnrollmentRepository_RecountNotEnrolled(t *testing.T) {
	_, err := NewStore().Enrollments().Recount(context.Background(), "l1", "c1", func(*enrollment.Aggregate, int) error {
		return nil
	})
	assert.True(t, shared.IsNotFound(err))
}

func TestProgressRepository_ReturnsCopies(t *testing.T) {
	ledger := NewStore().Progress()
	ctx := context.Background()

	rec, err := ledger.RecordInteraction(ctx, progress.Interaction{
		LearnerID: "l1", LessonID: "a", CourseID: "c1", TimeSpentDeltaSeconds: 10,
	}, t0)
	require.NoError(t, err)
	rec.TimeSpentSeconds = 999

	stored, err := ledger.Get(ctx, "l1", "a")
	require.NoError(t, err)
	assert.Equal(t, 10, stored.TimeSpentSeconds)
}

func TestStore_FailXP(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.FailXP(shared.ErrServiceUnavailable)
	assert.Error(t, store.IncrementXP(ctx, "l1", 10))
	store.FailXP(nil)
	require.NoError(t, store.IncrementXP(ctx, "l1", 10))
	assert.Equal(t, 10, store.XP("l1"))
}

func TestStore_LoadSeed(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	seed := `{
		"lessons": [{"id": "l1", "course_id": "c1"}, {"id": "l2", "course_id": "c1"}],
		"quizzes": [{"id": "q1", "questions": [{"correct_answer": "a"}], "passing_score": 100, "attempts": 2}],
		"enrollments": [{"learner_id": "u1", "course_id": "c1"}]
	}`
	require.NoError(t, store.LoadSeed(ctx, strings.NewReader(seed), t0))

	n, err := store.CountLessons(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	def, err := store.GetQuiz(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 2, def.Attempts)

	agg, err := store.Enrollments().Get(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, agg.ProgressPercent)
}

func TestStore_LoadSeedRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	for name, seed := range map[string]string{
		"not json":        `{`,
		"lesson no id":    `{"lessons": [{"course_id": "c1"}]}`,
		"quiz bad score":  `{"quizzes": [{"id": "q1", "passing_score": 140, "attempts": 1}]}`,
		"enrollment hole": `{"enrollments": [{"learner_id": "u1"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, NewStore().LoadSeed(ctx, strings.NewReader(seed), t0))
		})
	}
}

func TestStore_LoadSeedFileYAML(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lessons:
  - id: l1
    course_id: c1
quizzes:
  - id: q1
    course_id: c1
    passing_score: 50
    attempts: 1
    questions:
      - correct_answer: 3
      - key: colour
        correct_answer: blue
enrollments:
  - learner_id: u1
    course_id: c1
`), 0o600))

	store := NewStore()
	require.NoError(t, store.LoadSeedFile(ctx, path, t0))

	n, err := store.CountLessons(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	def, err := store.GetQuiz(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, def.Questions, 2)
	assert.Equal(t, "colour", def.Questions[1].Key)

	res := quiz.Score(def, quiz.Answers{"0": float64(3), "colour": "blue"})
	assert.Equal(t, 100, res.Score)

	_, err = store.Enrollments().Get(ctx, "u1", "c1")
	assert.NoError(t, err)
}

func TestDecodeSeed_UnknownFormat(t *testing.T) {
	_, err := DecodeSeed(strings.NewReader(""), "toml")
	assert.Error(t, err)
}
