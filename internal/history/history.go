// Package history tracks per-card transaction context for scoring.
package history

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

const (
	lastSeenKeyPrefix = "card:last:"
	lastSeenTTL       = 24 * time.Hour
	velocityWindow    = time.Hour
)

// Service answers "when did this card last transact" and "how many
// times recently", feeding the time_since_last_transaction feature and
// the velocity_count rule variable. Cache first, store fallback.
type Service struct {
	store domain.Store
	cache domain.Cache
}

// NewService creates a new history service.
func NewService(store domain.Store, cache domain.Cache) *Service {
	return &Service{store: store, cache: cache}
}

// LastSeen returns the unix time of the card's most recent recorded
// transaction. A lookup failure reads as "no history": scoring degrades
// to the neutral default instead of failing the request.
func (s *Service) LastSeen(ctx context.Context, ccNum string) (int64, bool) {
	if ccNum == "" {
		return 0, false
	}

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, lastSeenKeyPrefix+ccNum); err == nil && data != nil {
			if ts, err := strconv.ParseInt(string(data), 10, 64); err == nil {
				return ts, true
			}
		}
	}

	if s.store != nil {
		ts, ok, err := s.store.LastCardTransaction(ctx, ccNum)
		if err != nil {
			slog.Warn("card history lookup failed", "cc_num", ccNum, "error", err)
			return 0, false
		}
		return ts, ok
	}

	return 0, false
}

// Touch records the card's latest transaction time after a successful
// insert so the next scoring call sees it without a store round trip.
func (s *Service) Touch(ctx context.Context, ccNum string, unixTime int64) {
	if s.cache == nil || ccNum == "" {
		return
	}

	value := []byte(strconv.FormatInt(unixTime, 10))
	if err := s.cache.Set(ctx, lastSeenKeyPrefix+ccNum, value, lastSeenTTL); err != nil {
		slog.Warn("failed to cache card history", "cc_num", ccNum, "error", err)
	}
}

// Velocity counts the card's transactions in the rolling window,
// including the current one.
func (s *Service) Velocity(ctx context.Context, ccNum string) int64 {
	if s.cache == nil || ccNum == "" {
		return 0
	}

	count, err := s.cache.IncrementCounter(ctx, "card:velocity:"+ccNum, velocityWindow)
	if err != nil {
		slog.Warn("velocity counter failed", "cc_num", ccNum, "error", err)
		return 0
	}
	return count
}
