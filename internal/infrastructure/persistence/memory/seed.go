package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/learnhub/lms-core/internal/domain/catalog"
	"github.com/learnhub/lms-core/internal/domain/quiz"
)

// Seed is the catalog and enrollment data a memory store can start from.
type Seed struct {
	Lessons     []catalog.Lesson   `json:"lessons" yaml:"lessons"`
	Quizzes     []*quiz.Definition `json:"quizzes" yaml:"quizzes"`
	Enrollments []SeedEnrollment   `json:"enrollments" yaml:"enrollments"`
}

// SeedEnrollment enrolls one learner in one course.
type SeedEnrollment struct {
	LearnerID string `json:"learner_id" yaml:"learner_id"`
	CourseID  string `json:"course_id" yaml:"course_id"`
}

// Seed formats.
const (
	SeedJSON = "json"
	SeedYAML = "yaml"
)

// DecodeSeed reads a seed in the given format.
func DecodeSeed(r io.Reader, format string) (*Seed, error) {
	var seed Seed
	switch format {
	case SeedYAML:
		if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
			return nil, fmt.Errorf("memory: decode yaml seed: %w", err)
		}
	case SeedJSON, "":
		if err := json.NewDecoder(r).Decode(&seed); err != nil {
			return nil, fmt.Errorf("memory: decode json seed: %w", err)
		}
	default:
		return nil, fmt.Errorf("memory: unknown seed format %q", format)
	}
	return &seed, nil
}

// LoadSeed reads a JSON seed from r into the store.
func (s *Store) LoadSeed(ctx context.Context, r io.Reader, now time.Time) error {
	seed, err := DecodeSeed(r, SeedJSON)
	if err != nil {
		return err
	}
	return s.ApplySeed(ctx, seed, now)
}

// LoadSeedFile loads a seed file; .yaml and .yml are read as YAML, anything else as JSON.
func (s *Store) LoadSeedFile(ctx context.Context, path string, now time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("memory: open seed: %w", err)
	}
	defer f.Close()

	format := SeedJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = SeedYAML
	}

	seed, err := DecodeSeed(f, format)
	if err != nil {
		return err
	}
	return s.ApplySeed(ctx, seed, now)
}

// ApplySeed registers lessons and quizzes and creates the enrollments.
func (s *Store) ApplySeed(ctx context.Context, seed *Seed, now time.Time) error {
	for _, l := range seed.Lessons {
		if l.ID == "" || l.CourseID == "" {
			return fmt.Errorf("memory: lesson needs id and course_id")
		}
		s.AddLesson(l.ID, l.CourseID)
	}

	for _, q := range seed.Quizzes {
		if q == nil || q.ID == "" {
			return fmt.Errorf("memory: quiz needs an id")
		}
		if err := q.Validate(); err != nil {
			return fmt.Errorf("memory: quiz %s: %w", q.ID, err)
		}
		s.AddQuiz(q)
	}

	enrollments := s.Enrollments()
	for _, e := range seed.Enrollments {
		if e.LearnerID == "" || e.CourseID == "" {
			return fmt.Errorf("memory: enrollment needs learner_id and course_id")
		}
		if _, err := enrollments.Enroll(ctx, e.LearnerID, e.CourseID, now); err != nil {
			return fmt.Errorf("memory: enroll %s in %s: %w", e.LearnerID, e.CourseID, err)
		}
	}

	return nil
}
