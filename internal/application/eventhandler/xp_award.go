// Package eventhandler contains domain event handlers.
package eventhandler

import (
	"context"
	"sync/atomic"

	"github.com/learnhub/lms-core/internal/domain/catalog"
	"github.com/learnhub/lms-core/internal/domain/shared"
	"github.com/learnhub/lms-core/pkg/circuitbreaker"
	"github.com/learnhub/lms-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP AWARD HANDLER
// Credits XP to the external ledger after a lesson completion or a passed quiz.
//
// Awards are fire-and-forget: the triggering operation has already committed,
// so ledger failures are logged and swallowed. A circuit breaker stops calling
// a ledger that keeps failing.
// ══════════════════════════════════════════════════════════════════════════════

// XPAwardConfig contains configuration for the handler.
type XPAwardConfig struct {
	// LessonXP is credited per LessonCompletedEvent.
	LessonXP int

	// QuizPassXP is credited per QuizPassedEvent.
	QuizPassXP int

	// TransitionOnly reports whether a learner only earns lesson XP on the
	// first completion. Nil means every completion is rewarded.
	TransitionOnly func(learnerID string) bool
}

// DefaultXPAwardConfig returns default configuration.
func DefaultXPAwardConfig() XPAwardConfig {
	return XPAwardConfig{
		LessonXP:   shared.LessonCompletionXP.Int(),
		QuizPassXP: shared.QuizPassXP.Int(),
	}
}

// XPAwardHandler handles LessonCompletedEvent and QuizPassedEvent.
type XPAwardHandler struct {
	ledger  catalog.XPLedger
	breaker *circuitbreaker.CircuitBreaker
	config  XPAwardConfig
	log     *logger.Logger

	// dropped counts awards skipped while the circuit was open.
	dropped atomic.Int64
}

// NewXPAwardHandler creates a new XPAwardHandler.
func NewXPAwardHandler(ledger catalog.XPLedger, config XPAwardConfig, log *logger.Logger) *XPAwardHandler {
	if log == nil {
		log = logger.Nop()
	}
	defaults := DefaultXPAwardConfig()
	if config.LessonXP <= 0 {
		config.LessonXP = defaults.LessonXP
	}
	if config.QuizPassXP <= 0 {
		config.QuizPassXP = defaults.QuizPassXP
	}

	log = log.With(logger.Component("xp_award"))
	breaker := circuitbreaker.XPLedgerBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("xp ledger circuit changed state",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})

	return &XPAwardHandler{
		ledger:  ledger,
		breaker: breaker,
		config:  config,
		log:     log,
	}
}

// Subscribe registers the handler on the bus.
func (h *XPAwardHandler) Subscribe(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventLessonCompleted, h.Handle); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventQuizPassed, h.Handle)
}

// Handle implements shared.EventHandler. It never returns an error.
func (h *XPAwardHandler) Handle(ctx context.Context, event shared.Event) error {
	switch e := event.(type) {
	case shared.LessonCompletedEvent:
		if !e.FirstCompletion && h.transitionOnly(e.LearnerID) {
			h.log.Debug("skipping xp for repeat completion",
				logger.LearnerID(e.LearnerID),
				logger.LessonID(e.LessonID),
			)
			return nil
		}
		h.award(ctx, e.LearnerID, h.config.LessonXP, logger.LessonID(e.LessonID))

	case shared.QuizPassedEvent:
		h.award(ctx, e.LearnerID, h.config.QuizPassXP, logger.QuizID(e.QuizID))

	default:
		h.log.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
	}
	return nil
}

func (h *XPAwardHandler) transitionOnly(learnerID string) bool {
	return h.config.TransitionOnly != nil && h.config.TransitionOnly(learnerID)
}

func (h *XPAwardHandler) award(ctx context.Context, learnerID string, amount int, source logger.Field) {
	err := h.breaker.ExecuteWithFallback(ctx, func(ctx context.Context) error {
		return h.ledger.IncrementXP(ctx, learnerID, amount)
	}, func(rejected error) error {
		h.dropped.Add(1)
		h.log.Warn("xp ledger unavailable, award dropped",
			logger.LearnerID(learnerID),
			logger.XPAmount(amount),
			source,
			logger.Err(rejected),
		)
		return nil
	})
	if err != nil {
		h.log.Error("failed to award xp",
			logger.LearnerID(learnerID),
			logger.XPAmount(amount),
			source,
			logger.Err(err),
		)
		return
	}

	h.log.Debug("xp awarded",
		logger.LearnerID(learnerID),
		logger.XPAmount(amount),
		source,
	)
}

// BreakerState exposes the ledger circuit state.
func (h *XPAwardHandler) BreakerState() circuitbreaker.State {
	return h.breaker.State()
}

// LedgerHealth reports the circuit and its counters for the health endpoint.
// It never fails: XP is best effort, so an open circuit does not make the service unready.
func (h *XPAwardHandler) LedgerHealth(context.Context) (map[string]any, error) {
	counts := h.breaker.Counts()
	return map[string]any{
		"circuit":              h.breaker.State().String(),
		"requests":             counts.Requests,
		"failures":             counts.TotalFailures,
		"consecutive_failures": counts.ConsecutiveFailures,
		"dropped":              h.dropped.Load(),
	}, nil
}
