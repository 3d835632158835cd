package memory

import (
	"context"
	"sort"
	"time"

	"github.com/learnhub/lms-core/internal/domain/enrollment"
	"github.com/learnhub/lms-core/internal/domain/shared"
)

// EnrollmentRepository implements enrollment.Repository on top of a Store.
type EnrollmentRepository struct {
	s *Store
}

// Enroll creates the aggregate at 0% if it does not exist yet.
func (r *EnrollmentRepository) Enroll(ctx context.Context, learnerID, courseID string, now time.Time) (*enrollment.Aggregate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pairKey{learnerID, courseID}
	if agg, ok := r.s.enrollments[key]; ok {
		return agg.Clone(), nil
	}
	agg := enrollment.New(learnerID, courseID, now)
	r.s.enrollments[key] = agg
	return agg.Clone(), nil
}

// Get returns the aggregate for (learner, course).
func (r *EnrollmentRepository) Get(ctx context.Context, learnerID, courseID string) (*enrollment.Aggregate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	agg, ok := r.s.enrollments[pairKey{learnerID, courseID}]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	return agg.Clone(), nil
}

// ListByLearner returns every enrollment of a learner ordered by course id.
func (r *EnrollmentRepository) ListByLearner(ctx context.Context, learnerID string) ([]*enrollment.Aggregate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*enrollment.Aggregate, 0)
	for k, agg := range r.s.enrollments {
		if k.a == learnerID {
			out = append(out, agg.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

// Recount applies fn to a copy of the aggregate and stores it only if fn succeeds.
func (r *EnrollmentRepository) Recount(ctx context.Context, learnerID, courseID string, fn enrollment.RecountFunc) (*enrollment.Aggregate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pairKey{learnerID, courseID}
	current, ok := r.s.enrollments[key]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}

	working := current.Clone()
	if err := fn(working, r.s.countCompletedLocked(learnerID, courseID)); err != nil {
		return nil, err
	}
	r.s.enrollments[key] = working
	return working.Clone(), nil
}
