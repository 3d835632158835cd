package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/lms-core/internal/application/command"
	"github.com/learnhub/lms-core/internal/application/query"
	"github.com/learnhub/lms-core/internal/domain/quiz"
	"github.com/learnhub/lms-core/internal/domain/shared"
	"github.com/learnhub/lms-core/internal/infrastructure/persistence/memory"
	"github.com/learnhub/lms-core/pkg/timeutil"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	interact *command.RecordInteractionHandler
	complete *command.MarkCompleteHandler
	submit   *command.SubmitQuizHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := timeutil.FixedClock(now)
	agg := command.NewAggregator(store, store.Enrollments(), nil, clock, nil)

	return &fixture{
		store:    store,
		interact: command.NewRecordInteractionHandler(store, store.Progress(), clock, nil),
		complete: command.NewMarkCompleteHandler(store, store.Progress(), agg, nil, clock, nil),
		submit:   command.NewSubmitQuizHandler(store, store.Submissions(), nil, clock, nil),
	}
}

func (f *fixture) enroll(t *testing.T, learnerID, courseID string) {
	t.Helper()
	_, err := f.store.Enrollments().Enroll(context.Background(), learnerID, courseID, now)
	require.NoError(t, err)
}

func (f *fixture) interactWith(t *testing.T, lessonID string, delta, position int) {
	t.Helper()
	_, err := f.interact.Handle(context.Background(), command.RecordInteractionCommand{
		LearnerID: "u1", LessonID: lessonID, TimeSpentDeltaSeconds: delta, LastPositionSeconds: position,
	})
	require.NoError(t, err)
}

func (f *fixture) completeLesson(t *testing.T, lessonID string) {
	t.Helper()
	_, err := f.complete.Handle(context.Background(), command.MarkCompleteCommand{LearnerID: "u1", LessonID: lessonID})
	require.NoError(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET COURSE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetCourseProgress_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.store.AddLesson("l1", "c1")
	f.store.AddLesson("l2", "c1")
	f.store.AddLesson("l3", "c1")
	f.enroll(t, "u1", "c1")

	f.interactWith(t, "l2", 40, 40)
	f.interactWith(t, "l1", 10, 10)
	f.interactWith(t, "l2", 25, 15)
	f.completeLesson(t, "l2")
	f.interactWith(t, "l1", 5, 3)

	h := query.NewGetCourseProgressHandler(f.store.Enrollments(), f.store.Progress())
	dto, err := h.Handle(context.Background(), query.GetCourseProgressQuery{LearnerID: "u1", CourseID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, 33, dto.Enrollment.ProgressPercent)
	require.Len(t, dto.Lessons, 2)

	l1, l2 := dto.Lessons[0], dto.Lessons[1]
	assert.Equal(t, "l1", l1.LessonID)
	assert.Equal(t, 15, l1.TimeSpentSeconds)
	assert.Equal(t, 3, l1.LastPositionSeconds)
	assert.False(t, l1.Completed)

	assert.Equal(t, "l2", l2.LessonID)
	assert.Equal(t, 65, l2.TimeSpentSeconds)
	assert.Equal(t, 15, l2.LastPositionSeconds)
	assert.True(t, l2.Completed)
}

func TestGetCourseProgress_NotEnrolled(t *testing.T) {
	f := newFixture(t)
	h := query.NewGetCourseProgressHandler(f.store.Enrollments(), f.store.Progress())

	_, err := h.Handle(context.Background(), query.GetCourseProgressQuery{LearnerID: "u1", CourseID: "c1"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(context.Background(), query.GetCourseProgressQuery{LearnerID: "u1"})
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// GET QUIZ RESULTS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetQuizResults_NewestFirst(t *testing.T) {
	f := newFixture(t)
	f.store.AddQuiz(&quiz.Definition{
		ID:           "q1",
		Questions:    []quiz.Question{{CorrectAnswer: true}},
		PassingScore: 100,
		Attempts:     5,
	})
	ctx := context.Background()

	for _, answer := range []bool{false, true, false} {
		_, err := f.submit.Handle(ctx, command.SubmitQuizCommand{
			LearnerID: "u1", QuizID: "q1", Answers: quiz.Answers{"0": answer},
		})
		require.NoError(t, err)
	}

	h := query.NewGetQuizResultsHandler(f.store.Submissions())
	history, err := h.Handle(ctx, query.GetQuizResultsQuery{LearnerID: "u1", QuizID: "q1"})
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, []int{3, 2, 1}, []int{history[0].AttemptNumber, history[1].AttemptNumber, history[2].AttemptNumber})
	assert.Equal(t, []int{0, 100, 0}, []int{history[0].Score, history[1].Score, history[2].Score})

	empty, err := h.Handle(ctx, query.GetQuizResultsQuery{LearnerID: "u2", QuizID: "q1"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT OVERVIEW
// ══════════════════════════════════════════════════════════════════════════════

func TestGetStudentOverview(t *testing.T) {
	f := newFixture(t)
	for _, l := range []string{"l1", "l2", "l3"} {
		f.store.AddLesson(l, "c1")
	}
	f.store.AddLesson("l4", "c2")
	f.store.AddLesson("l5", "c2")
	f.enroll(t, "u1", "c1")
	f.enroll(t, "u1", "c2")
	f.enroll(t, "u1", "c3")

	f.interactWith(t, "l1", 5400, 0)
	f.interactWith(t, "l2", 3600, 0)
	for _, l := range []string{"l1", "l2", "l3", "l4"} {
		f.completeLesson(t, l)
	}

	// active today, yesterday, two days ago, then a gap
	progress := f.store.Progress()
	progress.Touch("u1", "l1", now)
	progress.Touch("u1", "l2", now.Add(-24*time.Hour))
	progress.Touch("u1", "l3", now.Add(-48*time.Hour))
	progress.Touch("u1", "l4", now.Add(-5*24*time.Hour))

	h := query.NewGetStudentOverviewHandler(f.store.Enrollments(), progress, timeutil.FixedClock(now), time.UTC, 0)
	snap, err := h.Handle(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 3, snap.TotalCourses)
	assert.Equal(t, 1, snap.CompletedCourses)
	assert.Equal(t, 1, snap.InProgressCourses)
	assert.Equal(t, 50, snap.AverageProgress)
	assert.Equal(t, 4, snap.CompletedLessonCount)
	assert.Equal(t, 3, snap.StreakDays)
	assert.Equal(t, 2, snap.TotalHours)
}

func TestGetStudentOverview_StreakNeedsToday(t *testing.T) {
	f := newFixture(t)
	f.store.AddLesson("l1", "c1")
	f.store.AddLesson("l2", "c1")
	f.interactWith(t, "l1", 60, 0)
	f.interactWith(t, "l2", 60, 0)

	progress := f.store.Progress()
	h := query.NewGetStudentOverviewHandler(f.store.Enrollments(), progress, timeutil.FixedClock(now), time.UTC, 30)

	progress.Touch("u1", "l1", now.Add(-time.Hour))
	progress.Touch("u1", "l2", now.Add(-72*time.Hour))
	snap, err := h.Handle(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.StreakDays)

	progress.Touch("u1", "l1", now.Add(-24*time.Hour))
	snap, err = h.Handle(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.StreakDays)
}

func TestGetStudentOverview_Empty(t *testing.T) {
	f := newFixture(t)
	h := query.NewGetStudentOverviewHandler(f.store.Enrollments(), f.store.Progress(), timeutil.FixedClock(now), nil, 0)

	snap, err := h.Handle(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TotalCourses)
	assert.Equal(t, 0, snap.AverageProgress)
	assert.Equal(t, 0, snap.StreakDays)

	_, err = h.Handle(context.Background(), "")
	assert.True(t, shared.IsValidation(err))
}
