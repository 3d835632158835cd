package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/learnhub/lms-core/internal/application/command"
	"github.com/learnhub/lms-core/internal/application/query"
	"github.com/learnhub/lms-core/internal/domain/quiz"
	"github.com/learnhub/lms-core/internal/domain/shared"
	"github.com/learnhub/lms-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":    "lms-core",
		"version": s.deps.Version,
		"endpoints": map[string]string{
			"health":          "/health",
			"interactions":    "POST /api/v1/progress/interactions",
			"complete":        "POST /api/v1/progress/complete",
			"course_progress": "GET /api/v1/learners/{learnerID}/courses/{courseID}/progress",
			"overview":        "GET /api/v1/learners/{learnerID}/overview",
			"submit_quiz":     "POST /api/v1/quizzes/{quizID}/submissions",
			"quiz_results":    "GET /api/v1/learners/{learnerID}/quizzes/{quizID}/results",
		},
	}

	writeJSON(w, r, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, r, http.StatusOK, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": s.deps.Version,
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRecordInteraction handles POST /api/v1/progress/interactions
func (s *Server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordInteractionHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Interaction handler not configured")
		return
	}

	var cmd command.RecordInteractionCommand
	if !decodeBody(w, r, &cmd) {
		return
	}

	record, err := s.deps.RecordInteractionHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, "record_interaction", err)
		return
	}

	writeJSON(w, r, http.StatusOK, record)
}

// handleMarkComplete handles POST /api/v1/progress/complete
func (s *Server) handleMarkComplete(w http.ResponseWriter, r *http.Request) {
	if s.deps.MarkCompleteHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Completion handler not configured")
		return
	}

	var cmd command.MarkCompleteCommand
	if !decodeBody(w, r, &cmd) {
		return
	}

	result, err := s.deps.MarkCompleteHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, "mark_complete", err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleGetCourseProgress handles GET /api/v1/learners/{learnerID}/courses/{courseID}/progress
func (s *Server) handleGetCourseProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetCourseProgressHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Course progress handler not configured")
		return
	}

	q := query.GetCourseProgressQuery{
		LearnerID: r.PathValue("learnerID"),
		CourseID:  r.PathValue("courseID"),
	}

	dto, err := s.deps.GetCourseProgressHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, "get_course_progress", err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, dto, &ResponseMeta{TotalCount: len(dto.Lessons)})
}

// handleGetStudentOverview handles GET /api/v1/learners/{learnerID}/overview
func (s *Server) handleGetStudentOverview(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStudentOverviewHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Overview handler not configured")
		return
	}

	snapshot, err := s.deps.GetStudentOverviewHandler.Handle(r.Context(), r.PathValue("learnerID"))
	if err != nil {
		s.writeDomainError(w, r, "student_overview", err)
		return
	}

	writeJSON(w, r, http.StatusOK, snapshot)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// submitQuizRequest is the body of a submission. Answers may be an object
// keyed by question key or a JSON array in question order.
type submitQuizRequest struct {
	LearnerID        string          `json:"learner_id"`
	Answers          json.RawMessage `json:"answers"`
	TimeSpentSeconds int             `json:"time_spent_seconds"`
}

// handleSubmitQuiz handles POST /api/v1/quizzes/{quizID}/submissions
func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	if s.deps.SubmitQuizHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Quiz handler not configured")
		return
	}

	var req submitQuizRequest
	if !decodeBody(w, r, &req) {
		return
	}

	answers, err := parseAnswers(req.Answers)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_answers", "answers must be an object or an array")
		return
	}

	result, err := s.deps.SubmitQuizHandler.Handle(r.Context(), command.SubmitQuizCommand{
		LearnerID:        req.LearnerID,
		QuizID:           r.PathValue("quizID"),
		Answers:          answers,
		TimeSpentSeconds: req.TimeSpentSeconds,
	})
	if err != nil {
		s.writeDomainError(w, r, "submit_quiz", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, result)
}

// handleGetQuizResults handles GET /api/v1/learners/{learnerID}/quizzes/{quizID}/results
func (s *Server) handleGetQuizResults(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetQuizResultsHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Quiz results handler not configured")
		return
	}

	q := query.GetQuizResultsQuery{
		LearnerID: r.PathValue("learnerID"),
		QuizID:    r.PathValue("quizID"),
	}

	history, err := s.deps.GetQuizResultsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, "get_quiz_results", err)
		return
	}
	if history == nil {
		history = []*quiz.Submission{}
	}

	writeJSONWithMeta(w, r, http.StatusOK, history, &ResponseMeta{TotalCount: len(history)})
}

// ══════════════════════════════════════════════════════════════════════════════
// XP HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLearnerXP handles GET /api/v1/learners/{learnerID}/xp
func (s *Server) handleGetLearnerXP(w http.ResponseWriter, r *http.Request) {
	if s.deps.XPBoard == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "XP ledger not configured")
		return
	}

	learnerID := r.PathValue("learnerID")
	entry, err := s.deps.XPBoard.Rank(r.Context(), learnerID)
	if err != nil {
		s.writeDomainError(w, r, "get_learner_xp", err)
		return
	}

	history, err := s.deps.XPBoard.History(r.Context(), learnerID, getQueryParamInt(r, "history", 10))
	if err != nil {
		s.writeDomainError(w, r, "get_learner_xp", err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"entry":   entry,
		"history": history,
	})
}

// handleGetLeaderboard handles GET /api/v1/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.XPBoard == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "XP ledger not configured")
		return
	}

	limit := getQueryParamInt(r, "limit", 20)
	if limit <= 0 || limit > 100 {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "limit must be 1-100")
		return
	}

	entries, err := s.deps.XPBoard.Top(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, r, "get_leaderboard", err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, entries, &ResponseMeta{TotalCount: len(entries)})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON body and writes a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return false
	}
	return true
}

// parseAnswers accepts an object or an array. Array entries are keyed by
// their zero-based position.
func parseAnswers(raw json.RawMessage) (quiz.Answers, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '[' {
		var list []interface{}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		answers := make(quiz.Answers, len(list))
		for i, v := range list {
			answers[strconv.Itoa(i)] = v
		}
		return answers, nil
	}

	var answers quiz.Answers
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// writeDomainError maps an error kind to a status code. Unexpected errors
// are logged and answered without internals.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}

	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", message)
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", message)
	case shared.IsAttemptsExceeded(err):
		writeJSONError(w, r, http.StatusConflict, "attempts_exceeded", message)
	case shared.IsConflict(err):
		writeJSONError(w, r, http.StatusConflict, "conflict", message)
	default:
		logger.FromContext(r.Context()).Error("request failed",
			logger.Operation(op),
			logger.Err(err),
		)
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "An internal error occurred")
	}
}
