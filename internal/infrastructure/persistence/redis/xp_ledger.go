package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/learnhub/lms-core/internal/domain/catalog"
	"github.com/learnhub/lms-core/internal/domain/shared"
	"github.com/learnhub/lms-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP LEDGER ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrLearnerNotRanked is returned when a learner has never been credited.
	ErrLearnerNotRanked = shared.NewDomainError("xp", "Rank", shared.ErrNotFound, "learner has no XP yet")

	// ErrInvalidPageParams is returned for a non-positive leaderboard size.
	ErrInvalidPageParams = errors.New("xp_ledger: invalid page parameters")
)

// historyLimit bounds the per-learner award history list.
const historyLimit = 100

// ══════════════════════════════════════════════════════════════════════════════
// XP LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardEntry is one row of the XP leaderboard.
type LeaderboardEntry struct {
	LearnerID string `json:"learner_id"`
	XP        int64  `json:"xp"`
	Level     int    `json:"level"`
	Rank      int64  `json:"rank"`
}

// Award is one credited amount, kept in the learner's history list.
type Award struct {
	Amount    int       `json:"amount"`
	Total     int64     `json:"total"`
	AwardedAt time.Time `json:"awarded_at"`
}

// XPLedger credits XP in Redis.
//
// Layout:
//   - String "xp:{learner}" holds the running total (INCRBY)
//   - Sorted Set "leaderboard:xp" maps learner -> total for O(log N) ranks
//   - List "xp_history:{learner}" keeps the latest awards, newest first
type XPLedger struct {
	cache *Cache
	now   func() time.Time
}

var _ catalog.XPLedger = (*XPLedger)(nil)

// NewXPLedger creates a new XPLedger.
func NewXPLedger(cache *Cache, now func() time.Time) *XPLedger {
	if now == nil {
		now = time.Now
	}
	return &XPLedger{cache: cache, now: now}
}

// IncrementXP credits amount to the learner. The counter and leaderboard are
// updated in one MULTI/EXEC so they never diverge.
func (l *XPLedger) IncrementXP(ctx context.Context, learnerID string, amount int) error {
	if learnerID == "" {
		return ErrCacheKeyEmpty
	}
	if _, err := shared.NewXP(amount); err != nil {
		return err
	}

	var total *redis.IntCmd
	_, err := l.cache.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		total = pipe.IncrBy(ctx, l.cache.XPKey(learnerID), int64(amount))
		pipe.ZIncrBy(ctx, l.cache.LeaderboardKey(), float64(amount), learnerID)
		return nil
	})
	if err != nil {
		return shared.WrapError("xp", "IncrementXP", shared.ErrServiceUnavailable, "failed to credit XP", err)
	}

	// The credit is committed; a lost history entry only shortens the feed.
	if err := l.recordHistory(ctx, learnerID, amount, total.Val()); err != nil {
		logger.FromContext(ctx).Warn("failed to record xp history",
			logger.LearnerID(learnerID),
			logger.XPAmount(amount),
			logger.Err(err),
		)
	}

	return nil
}

// recordHistory pushes one award onto the learner's capped history list.
func (l *XPLedger) recordHistory(ctx context.Context, learnerID string, amount int, total int64) error {
	entry, err := json.Marshal(Award{Amount: amount, Total: total, AwardedAt: l.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal award: %w", err)
	}

	historyKey := l.cache.XPHistoryKey(learnerID)
	pipe := l.cache.Client().Pipeline()
	pipe.LPush(ctx, historyKey, entry)
	pipe.LTrim(ctx, historyKey, 0, historyLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push xp history: %w", err)
	}
	return nil
}

// Balance returns the learner's XP total, 0 if never credited.
func (l *XPLedger) Balance(ctx context.Context, learnerID string) (int64, error) {
	val, err := l.cache.Client().Get(ctx, l.cache.XPKey(learnerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// History returns the latest awards, newest first.
func (l *XPLedger) History(ctx context.Context, learnerID string, limit int) ([]Award, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}

	raw, err := l.cache.Client().LRange(ctx, l.cache.XPHistoryKey(learnerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Award, 0, len(raw))
	for _, item := range raw {
		var a Award
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Rank returns the learner's leaderboard entry.
func (l *XPLedger) Rank(ctx context.Context, learnerID string) (*LeaderboardEntry, error) {
	key := l.cache.LeaderboardKey()

	// ZRevRank returns 0-based rank (0 = highest score)
	rank, err := l.cache.Client().ZRevRank(ctx, key, learnerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrLearnerNotRanked
		}
		return nil, err
	}

	score, err := l.cache.Client().ZScore(ctx, key, learnerID).Result()
	if err != nil {
		return nil, err
	}

	return newEntry(learnerID, score, rank+1), nil
}

// Top returns the top count learners by XP.
func (l *XPLedger) Top(ctx context.Context, count int) ([]LeaderboardEntry, error) {
	if count <= 0 {
		return nil, ErrInvalidPageParams
	}

	members, err := l.cache.Client().ZRevRangeWithScores(ctx, l.cache.LeaderboardKey(), 0, int64(count-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]LeaderboardEntry, 0, len(members))
	for i, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			continue
		}
		out = append(out, *newEntry(id, m.Score, int64(i+1)))
	}
	return out, nil
}

func newEntry(learnerID string, score float64, rank int64) *LeaderboardEntry {
	xp := int64(score)
	return &LeaderboardEntry{
		LearnerID: learnerID,
		XP:        xp,
		Level:     shared.XP(xp).Level(),
		Rank:      rank,
	}
}
