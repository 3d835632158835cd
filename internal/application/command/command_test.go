package command_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/lms-core/internal/application/command"
	"github.com/learnhub/lms-core/internal/application/eventhandler"
	"github.com/learnhub/lms-core/internal/domain/enrollment"
	"github.com/learnhub/lms-core/internal/domain/progress"
	"github.com/learnhub/lms-core/internal/domain/quiz"
	"github.com/learnhub/lms-core/internal/domain/shared"
	"github.com/learnhub/lms-core/internal/infrastructure/messaging"
	"github.com/learnhub/lms-core/internal/infrastructure/persistence/memory"
)

// ══════════════════════════════════════════════════════════════════════════════
// HARNESS
// ══════════════════════════════════════════════════════════════════════════════

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) handle(_ context.Context, e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count(t shared.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

type harness struct {
	store    *memory.Store
	clock    *testClock
	events   *recorder
	interact *command.RecordInteractionHandler
	complete *command.MarkCompleteHandler
	agg      *command.Aggregator
	submit   *command.SubmitQuizHandler
}

func newHarness(t *testing.T, xp eventhandler.XPAwardConfig) *harness {
	t.Helper()

	store := memory.NewStore()
	clock := &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	t.Cleanup(func() { _ = bus.Close() })

	events := &recorder{}
	require.NoError(t, bus.SubscribeAll(events.handle))
	require.NoError(t, eventhandler.NewXPAwardHandler(store, xp, nil).Subscribe(bus))

	agg := command.NewAggregator(store, store.Enrollments(), bus, clock.Now, nil)

	return &harness{
		store:    store,
		clock:    clock,
		events:   events,
		interact: command.NewRecordInteractionHandler(store, store.Progress(), clock.Now, nil),
		complete: command.NewMarkCompleteHandler(store, store.Progress(), agg, bus, clock.Now, nil),
		agg:      agg,
		submit:   command.NewSubmitQuizHandler(store, store.Submissions(), bus, clock.Now, nil),
	}
}

// seedCourse adds n lessons l1..ln to course c1 and enrolls learner u1.
func (h *harness) seedCourse(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id := "l" + string(rune('0'+i))
		h.store.AddLesson(id, "c1")
		ids = append(ids, id)
	}
	_, err := h.store.Enrollments().Enroll(context.Background(), "u1", "c1", h.clock.Now())
	require.NoError(t, err)
	return ids
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD INTERACTION
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordInteraction_Accumulates(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	h.seedCourse(t, 1)
	ctx := context.Background()

	rec, err := h.interact.Handle(ctx, command.RecordInteractionCommand{
		LearnerID: "u1", LessonID: "l1", TimeSpentDeltaSeconds: 30, LastPositionSeconds: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, 30, rec.TimeSpentSeconds)
	assert.Equal(t, "c1", rec.CourseID)
	assert.False(t, rec.Completed)

	rec, err = h.interact.Handle(ctx, command.RecordInteractionCommand{
		LearnerID: "u1", LessonID: "l1", TimeSpentDeltaSeconds: 45, LastPositionSeconds: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, 75, rec.TimeSpentSeconds)
	assert.Equal(t, 12, rec.LastPositionSeconds)
}

func TestRecordInteraction_Errors(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	h.seedCourse(t, 1)
	ctx := context.Background()

	tests := []struct {
		name  string
		cmd   command.RecordInteractionCommand
		check func(error) bool
	}{
		{"missing learner", command.RecordInteractionCommand{LessonID: "l1"}, shared.IsValidation},
		{"missing lesson id", command.RecordInteractionCommand{LearnerID: "u1"}, shared.IsValidation},
		{"negative delta", command.RecordInteractionCommand{LearnerID: "u1", LessonID: "l1", TimeSpentDeltaSeconds: -1}, shared.IsValidation},
		{"negative position", command.RecordInteractionCommand{LearnerID: "u1", LessonID: "l1", LastPositionSeconds: -5}, shared.IsValidation},
		{"unknown lesson", command.RecordInteractionCommand{LearnerID: "u1", LessonID: "nope"}, shared.IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.interact.Handle(ctx, tt.cmd)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MARK COMPLETE + AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

func TestMarkComplete_ProgressiveCompletion(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	lessons := h.seedCourse(t, 4)
	ctx := context.Background()

	want := []int{25, 50, 75, 100}
	for i, id := range lessons {
		h.clock.Advance(time.Minute)

		res, err := h.complete.Handle(ctx, command.MarkCompleteCommand{LearnerID: "u1", LessonID: id})
		require.NoError(t, err)

		assert.True(t, res.Transitioned)
		assert.True(t, res.Record.Completed)
		require.NotNil(t, res.Aggregate)
		assert.Equal(t, want[i], res.Aggregate.ProgressPercent)
		assert.Equal(t, want[i] == 100, res.Aggregate.Completed)
		assert.Equal(t, want[i] == 100, res.Aggregate.CompletedAt != nil)
	}

	assert.Equal(t, 4, h.events.count(shared.EventLessonCompleted))
	assert.Equal(t, 1, h.events.count(shared.EventCourseCompleted))
	assert.Equal(t, 40, h.store.XP("u1"))
}

func TestMarkComplete_RepeatCompletion(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	h.seedCourse(t, 2)
	ctx := context.Background()

	first, err := h.complete.Handle(ctx, command.MarkCompleteCommand{LearnerID: "u1", LessonID: "l1"})
	require.NoError(t, err)
	completedAt := *first.Record.CompletedAt

	h.clock.Advance(time.Hour)
	second, err := h.complete.Handle(ctx, command.MarkCompleteCommand{LearnerID: "u1", LessonID: "l1"})
	require.NoError(t, err)

	assert.False(t, second.Transitioned)
	assert.Equal(t, completedAt, *second.Record.CompletedAt)
	assert.Equal(t, 50, second.Aggregate.ProgressPercent)

	// every call is rewarded unless the transition-only flag is on
	assert.Equal(t, 20, h.store.XP("u1"))
	assert.Equal(t, 2, h.events.count(shared.EventLessonCompleted))
}

func TestMarkComplete_RepeatCompletionTransitionOnly(t *testing.T) {
	cfg := eventhandler.DefaultXPAwardConfig()
	cfg.TransitionOnly = func(string) bool { return true }

	h := newHarness(t, cfg)
	h.seedCourse(t, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.complete.Handle(ctx, command.MarkCompleteCommand{LearnerID: "u1", LessonID: "l1"})
		require.NoError(t, err)
	}

	assert.Equal(t, 10, h.store.XP("u1"))
}

func TestMarkComplete_NotEnrolled(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	h.store.AddLesson("l1", "c1")

	res, err := h.complete.Handle(context.Background(), command.MarkCompleteCommand{LearnerID: "u2", LessonID: "l1"})
	require.NoError(t, err)

	assert.True(t, res.Record.Completed)
	assert.Nil(t, res.Aggregate)
}

func TestMarkComplete_UnknownLesson(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())

	_, err := h.complete.Handle(context.Background(), command.MarkCompleteCommand{LearnerID: "u1", LessonID: "missing"})
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, 0, h.events.count(shared.EventLessonCompleted))
}

func TestMarkComplete_XPFailureDoesNotFail(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	h.seedCourse(t, 1)
	h.store.FailXP(errors.New("ledger down"))

	res, err := h.complete.Handle(context.Background(), command.MarkCompleteCommand{LearnerID: "u1", LessonID: "l1"})
	require.NoError(t, err)

	assert.True(t, res.Record.Completed)
	assert.Equal(t, 100, res.Aggregate.ProgressPercent)
	assert.Equal(t, 0, h.store.XP("u1"))
}

func TestRecompute_Idempotent(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	h.seedCourse(t, 3)
	ctx := context.Background()

	_, err := h.complete.Handle(ctx, command.MarkCompleteCommand{LearnerID: "u1", LessonID: "l1"})
	require.NoError(t, err)

	a, err := h.agg.Recompute(ctx, "u1", "c1")
	require.NoError(t, err)
	b, err := h.agg.Recompute(ctx, "u1", "c1")
	require.NoError(t, err)

	assert.Equal(t, 33, a.ProgressPercent)
	assert.Equal(t, a.ProgressPercent, b.ProgressPercent)
	assert.Equal(t, a.Completed, b.Completed)
	assert.Equal(t, a.CompletedAt, b.CompletedAt)
}

func TestRecompute_CompletedAtKeptAndCleared(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	h.seedCourse(t, 1)
	ctx := context.Background()

	res, err := h.complete.Handle(ctx, command.MarkCompleteCommand{LearnerID: "u1", LessonID: "l1"})
	require.NoError(t, err)
	require.NotNil(t, res.Aggregate.CompletedAt)
	completedAt := *res.Aggregate.CompletedAt

	h.clock.Advance(time.Hour)
	again, err := h.agg.Recompute(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NotNil(t, again.CompletedAt)
	assert.Equal(t, completedAt, *again.CompletedAt)
	assert.Equal(t, 1, h.events.count(shared.EventCourseCompleted))

	// the course grows: the aggregate drops below 100
	h.store.AddLesson("l9", "c1")
	down, err := h.agg.Recompute(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 50, down.ProgressPercent)
	assert.False(t, down.Completed)
	assert.Nil(t, down.CompletedAt)
}

func TestRecompute_EmptyCourse(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	_, err := h.store.Enrollments().Enroll(context.Background(), "u1", "empty", h.clock.Now())
	require.NoError(t, err)

	agg, err := h.agg.Recompute(context.Background(), "u1", "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, agg.ProgressPercent)
	assert.False(t, agg.Completed)
}

func TestRecompute_NotEnrolled(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())

	_, err := h.agg.Recompute(context.Background(), "u1", "c1")
	assert.True(t, shared.IsNotFound(err))
}

func TestMarkComplete_ConcurrentCompletionsReachHundred(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	lessons := h.seedCourse(t, 8)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range lessons {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.complete.Handle(ctx, command.MarkCompleteCommand{LearnerID: "u1", LessonID: id})
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	agg, err := h.store.Enrollments().Get(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, agg.ProgressPercent)
	assert.True(t, agg.Completed)
	assert.Equal(t, 1, h.events.count(shared.EventCourseCompleted))
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT QUIZ
// ══════════════════════════════════════════════════════════════════════════════

func seedQuiz(h *harness, attempts int) {
	h.store.AddQuiz(&quiz.Definition{
		ID:       "q1",
		CourseID: "c1",
		Questions: []quiz.Question{
			{Key: "a", CorrectAnswer: "paris"},
			{Key: "b", CorrectAnswer: float64(4)},
		},
		PassingScore: 70,
		Attempts:     attempts,
	})
}

func TestSubmitQuiz_Scoring(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	seedQuiz(h, 3)
	ctx := context.Background()

	half, err := h.submit.Handle(ctx, command.SubmitQuizCommand{
		LearnerID: "u1", QuizID: "q1", Answers: quiz.Answers{"a": "paris", "b": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 50, half.Submission.Score)
	assert.Equal(t, 1, half.CorrectCount)
	assert.Equal(t, 2, half.TotalQuestions)
	assert.False(t, half.Passed)
	assert.Equal(t, 1, half.Submission.AttemptNumber)
	assert.Equal(t, 2, half.AttemptsRemaining)

	full, err := h.submit.Handle(ctx, command.SubmitQuizCommand{
		LearnerID: "u1", QuizID: "q1", Answers: quiz.Answers{"a": "paris", "b": 4}, TimeSpentSeconds: 90,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, full.Submission.Score)
	assert.True(t, full.Passed)
	assert.Equal(t, 2, full.Submission.AttemptNumber)
	assert.Equal(t, 90, full.Submission.TimeSpentSeconds)

	assert.Equal(t, 1, h.events.count(shared.EventQuizPassed))
	assert.Equal(t, 50, h.store.XP("u1"))
}

func TestSubmitQuiz_AttemptsBound(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	seedQuiz(h, 2)
	ctx := context.Background()
	cmd := command.SubmitQuizCommand{LearnerID: "u1", QuizID: "q1", Answers: quiz.Answers{}}

	for i := 0; i < 2; i++ {
		_, err := h.submit.Handle(ctx, cmd)
		require.NoError(t, err)
	}

	_, err := h.submit.Handle(ctx, cmd)
	assert.True(t, shared.IsAttemptsExceeded(err))

	n, err := h.store.Submissions().Count(ctx, "u1", "q1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSubmitQuiz_ConcurrentBound(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	seedQuiz(h, 3)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		exceeded int
		attempts = map[int]bool{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.submit.Handle(ctx, command.SubmitQuizCommand{
				LearnerID: "u1", QuizID: "q1", Answers: quiz.Answers{"a": "paris"},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
				attempts[res.Submission.AttemptNumber] = true
			case shared.IsAttemptsExceeded(err):
				exceeded++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, 7, exceeded)
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, attempts)
}

func TestSubmitQuiz_Errors(t *testing.T) {
	h := newHarness(t, eventhandler.DefaultXPAwardConfig())
	seedQuiz(h, 1)
	h.store.AddQuiz(&quiz.Definition{ID: "broken", Attempts: 0, PassingScore: 50})
	ctx := context.Background()

	tests := []struct {
		name  string
		cmd   command.SubmitQuizCommand
		check func(error) bool
	}{
		{"nil answers", command.SubmitQuizCommand{LearnerID: "u1", QuizID: "q1"}, shared.IsValidation},
		{"negative time", command.SubmitQuizCommand{LearnerID: "u1", QuizID: "q1", Answers: quiz.Answers{}, TimeSpentSeconds: -1}, shared.IsValidation},
		{"missing learner", command.SubmitQuizCommand{QuizID: "q1", Answers: quiz.Answers{}}, shared.IsValidation},
		{"unknown quiz", command.SubmitQuizCommand{LearnerID: "u1", QuizID: "nope", Answers: quiz.Answers{}}, shared.IsNotFound},
		{"invalid definition", command.SubmitQuizCommand{LearnerID: "u1", QuizID: "broken", Answers: quiz.Answers{}}, shared.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.submit.Handle(ctx, tt.cmd)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFLICT RETRY
// ══════════════════════════════════════════════════════════════════════════════

// racer counts calls and reports a conflict for the first fails of them.
type racer struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (r *racer) lose() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.calls <= r.fails
}

type racingSubmissions struct {
	quiz.SubmissionRepository
	racer
}

func (r *racingSubmissions) Append(ctx context.Context, learnerID, quizID string, maxAttempts int, build quiz.BuildFunc) (*quiz.Submission, error) {
	if r.lose() {
		return nil, shared.ErrAttemptConflict
	}
	return r.SubmissionRepository.Append(ctx, learnerID, quizID, maxAttempts, build)
}

type racingEnrollments struct {
	enrollment.Repository
	racer
}

func (r *racingEnrollments) Recount(ctx context.Context, learnerID, courseID string, fn enrollment.RecountFunc) (*enrollment.Aggregate, error) {
	if r.lose() {
		return nil, shared.ErrAggregateConflict
	}
	return r.Repository.Recount(ctx, learnerID, courseID, fn)
}

type racingProgress struct {
	progress.Repository
	racer
}

func (r *racingProgress) MarkComplete(ctx context.Context, learnerID, lessonID, courseID string, now time.Time) (*progress.Record, bool, error) {
	if r.lose() {
		return nil, false, shared.NewDomainError("progress", "MarkComplete", shared.ErrConflict, "concurrent completion")
	}
	return r.Repository.MarkComplete(ctx, learnerID, lessonID, courseID, now)
}

var conflictCases = []struct {
	name    string
	fails   int
	wantErr bool
}{
	{"one conflict is retried", 1, false},
	{"second conflict is surfaced", 2, true},
}

func TestSubmitQuiz_ConflictRetriedOnce(t *testing.T) {
	for _, tt := range conflictCases {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, eventhandler.DefaultXPAwardConfig())
			seedQuiz(h, 3)
			ctx := context.Background()

			subs := &racingSubmissions{SubmissionRepository: h.store.Submissions(), racer: racer{fails: tt.fails}}
			submit := command.NewSubmitQuizHandler(h.store, subs, nil, h.clock.Now, nil)

			res, err := submit.Handle(ctx, command.SubmitQuizCommand{
				LearnerID: "u1",
				QuizID:    "q1",
				Answers:   quiz.Answers{"a": "paris", "b": float64(4)},
			})
			assert.Equal(t, 2, subs.calls)

			n, countErr := h.store.Submissions().Count(ctx, "u1", "q1")
			require.NoError(t, countErr)

			if tt.wantErr {
				assert.True(t, shared.IsConflict(err), "unexpected error: %v", err)
				assert.Zero(t, n)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, res.Submission.AttemptNumber)
			assert.Equal(t, 1, n)
		})
	}
}

func TestRecompute_ConflictRetriedOnce(t *testing.T) {
	for _, tt := range conflictCases {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, eventhandler.DefaultXPAwardConfig())
			h.seedCourse(t, 2)
			ctx := context.Background()

			_, _, err := h.store.Progress().MarkComplete(ctx, "u1", "l1", "c1", h.clock.Now())
			require.NoError(t, err)

			enrollments := &racingEnrollments{Repository: h.store.Enrollments(), racer: racer{fails: tt.fails}}
			agg := command.NewAggregator(h.store, enrollments, nil, h.clock.Now, nil)

			got, err := agg.Recompute(ctx, "u1", "c1")
			assert.Equal(t, 2, enrollments.calls)

			stored, getErr := h.store.Enrollments().Get(ctx, "u1", "c1")
			require.NoError(t, getErr)

			if tt.wantErr {
				assert.True(t, shared.IsConflict(err), "unexpected error: %v", err)
				assert.Zero(t, stored.ProgressPercent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 50, got.ProgressPercent)
			assert.Equal(t, 50, stored.ProgressPercent)
		})
	}
}

func TestMarkComplete_ConflictRetriedOnce(t *testing.T) {
	for _, tt := range conflictCases {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, eventhandler.DefaultXPAwardConfig())
			h.seedCourse(t, 1)
			ctx := context.Background()

			progressRepo := &racingProgress{Repository: h.store.Progress(), racer: racer{fails: tt.fails}}
			complete := command.NewMarkCompleteHandler(h.store, progressRepo, h.agg, nil, h.clock.Now, nil)

			res, err := complete.Handle(ctx, command.MarkCompleteCommand{LearnerID: "u1", LessonID: "l1"})
			assert.Equal(t, 2, progressRepo.calls)

			if tt.wantErr {
				assert.True(t, shared.IsConflict(err), "unexpected error: %v", err)
				_, getErr := h.store.Progress().Get(ctx, "u1", "l1")
				assert.True(t, shared.IsNotFound(getErr))
				return
			}
			require.NoError(t, err)
			assert.True(t, res.Transitioned)
			assert.Equal(t, 100, res.Aggregate.ProgressPercent)
		})
	}
}
