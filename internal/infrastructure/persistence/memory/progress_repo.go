package memory

import (
	"context"
	"sort"
	"time"

	"github.com/learnhub/lms-core/internal/domain/progress"
	"github.com/learnhub/lms-core/internal/domain/shared"
)

// ProgressRepository implements progress.Repository on top of a Store.
type ProgressRepository struct {
	s *Store
}

// RecordInteraction creates or accumulates a record.
func (r *ProgressRepository) RecordInteraction(ctx context.Context, in progress.Interaction, now time.Time) (*progress.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pairKey{in.LearnerID, in.LessonID}
	rec, ok := r.s.progress[key]
	if !ok {
		rec = progress.NewRecord(in.LearnerID, in.LessonID, in.CourseID, now)
		r.s.progress[key] = rec
	}
	rec.Apply(in, now)
	return rec.Clone(), nil
}

// MarkComplete creates or updates a record with completed=true.
func (r *ProgressRepository) MarkComplete(ctx context.Context, learnerID, lessonID, courseID string, now time.Time) (*progress.Record, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pairKey{learnerID, lessonID}
	rec, ok := r.s.progress[key]
	if !ok {
		rec = progress.NewRecord(learnerID, lessonID, courseID, now)
		r.s.progress[key] = rec
	}
	transitioned := rec.MarkComplete(now)
	return rec.Clone(), transitioned, nil
}

// Get returns one record.
func (r *ProgressRepository) Get(ctx context.Context, learnerID, lessonID string) (*progress.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.progress[pairKey{learnerID, lessonID}]
	if !ok {
		return nil, shared.NewDomainError("progress", "Get", shared.ErrNotFound, "progress record not found")
	}
	return rec.Clone(), nil
}

// ListByCourse returns the learner's records for a course ordered by lesson id.
func (r *ProgressRepository) ListByCourse(ctx context.Context, learnerID, courseID string) ([]*progress.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*progress.Record, 0)
	for k, rec := range r.s.progress {
		if k.a == learnerID && rec.CourseID == courseID {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessonID < out[j].LessonID })
	return out, nil
}

// CountCompleted returns the number of completed lessons of a course.
func (r *ProgressRepository) CountCompleted(ctx context.Context, learnerID, courseID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.countCompletedLocked(learnerID, courseID), nil
}

func (s *Store) countCompletedLocked(learnerID, courseID string) int {
	n := 0
	for k, rec := range s.progress {
		if k.a == learnerID && rec.CourseID == courseID && rec.Completed {
			n++
		}
	}
	return n
}

// Totals sums completed lessons and time spent across all courses.
func (r *ProgressRepository) Totals(ctx context.Context, learnerID string) (progress.Totals, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var t progress.Totals
	for k, rec := range r.s.progress {
		if k.a != learnerID {
			continue
		}
		if rec.Completed {
			t.CompletedLessons++
		}
		t.TimeSpentSeconds += int64(rec.TimeSpentSeconds)
	}
	return t, nil
}

// RecentActivity returns up to limit UpdatedAt values, newest first.
func (r *ProgressRepository) RecentActivity(ctx context.Context, learnerID string, limit int) ([]time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]time.Time, 0)
	for k, rec := range r.s.progress {
		if k.a == learnerID {
			out = append(out, rec.UpdatedAt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Touch overrides UpdatedAt of a record. Used to build activity histories in tests.
func (r *ProgressRepository) Touch(learnerID, lessonID string, at time.Time) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec, ok := r.s.progress[pairKey{learnerID, lessonID}]; ok {
		rec.UpdatedAt = at
	}
}
