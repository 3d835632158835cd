package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

const (
	// EventLessonCompleted fires on every markComplete call, repeat completions included.
	EventLessonCompleted EventType = "progress.lesson_completed"

	// EventCourseCompleted fires when an enrollment transitions to 100%.
	EventCourseCompleted EventType = "enrollment.course_completed"

	// EventQuizPassed fires when a submission reaches the passing score.
	EventQuizPassed EventType = "quiz.passed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]any
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// LessonCompletedEvent is emitted after a lesson is marked complete.
// FirstCompletion is false when the lesson had already been completed before the call.
type LessonCompletedEvent struct {
	BaseEvent
	LearnerID       string `json:"learner_id"`
	LessonID        string `json:"lesson_id"`
	CourseID        string `json:"course_id"`
	FirstCompletion bool   `json:"first_completion"`
}

// Payload implements Event interface.
func (e LessonCompletedEvent) Payload() map[string]any {
	return map[string]any{
		"learner_id":       e.LearnerID,
		"lesson_id":        e.LessonID,
		"course_id":        e.CourseID,
		"first_completion": e.FirstCompletion,
	}
}

// NewLessonCompletedEvent creates a new LessonCompletedEvent.
func NewLessonCompletedEvent(learnerID, lessonID, courseID string, first bool, at time.Time) LessonCompletedEvent {
	return LessonCompletedEvent{
		BaseEvent:       NewBaseEvent(EventLessonCompleted, learnerID, at),
		LearnerID:       learnerID,
		LessonID:        lessonID,
		CourseID:        courseID,
		FirstCompletion: first,
	}
}

// CourseCompletedEvent is emitted when an enrollment reaches 100%.
type CourseCompletedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id"`
}

// Payload implements Event interface.
func (e CourseCompletedEvent) Payload() map[string]any {
	return map[string]any{
		"learner_id": e.LearnerID,
		"course_id":  e.CourseID,
	}
}

// NewCourseCompletedEvent creates a new CourseCompletedEvent.
func NewCourseCompletedEvent(learnerID, courseID string, at time.Time) CourseCompletedEvent {
	return CourseCompletedEvent{
		BaseEvent: NewBaseEvent(EventCourseCompleted, learnerID, at),
		LearnerID: learnerID,
		CourseID:  courseID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Quiz Events
// ═══════════════════════════════════════════════════════════════════════════

// QuizPassedEvent is emitted when a submission passes.
type QuizPassedEvent struct {
	BaseEvent
	LearnerID     string `json:"learner_id"`
	QuizID        string `json:"quiz_id"`
	SubmissionID  string `json:"submission_id"`
	Score         int    `json:"score"`
	AttemptNumber int    `json:"attempt_number"`
}

// Payload implements Event interface.
func (e QuizPassedEvent) Payload() map[string]any {
	return map[string]any{
		"learner_id":     e.LearnerID,
		"quiz_id":        e.QuizID,
		"submission_id":  e.SubmissionID,
		"score":          e.Score,
		"attempt_number": e.AttemptNumber,
	}
}

// NewQuizPassedEvent creates a new QuizPassedEvent.
func NewQuizPassedEvent(learnerID, quizID, submissionID string, score, attempt int, at time.Time) QuizPassedEvent {
	return QuizPassedEvent{
		BaseEvent:     NewBaseEvent(EventQuizPassed, learnerID, at),
		LearnerID:     learnerID,
		QuizID:        quizID,
		SubmissionID:  submissionID,
		Score:         score,
		AttemptNumber: attempt,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(ctx context.Context, event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
