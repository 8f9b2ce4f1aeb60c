package session

import (
	"time"

	"github.com/smallbiznis/matchhub/internal/cache"
	"github.com/smallbiznis/matchhub/internal/clock"
	"github.com/smallbiznis/matchhub/internal/config"
	"go.uber.org/zap"
)

// Store keeps one State per user. Entries not written for the policy's
// session TTL fall back to Idle.
type Store struct {
	entries cache.Cache[int64, State]
	ttl     func() time.Duration
	log     *zap.Logger
}

func NewStore(clk clock.Clock, ttl func() time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		entries: cache.NewTTLCache[int64, State](clk),
		ttl:     ttl,
		log:     log.Named("session.store"),
	}
}

func (s *Store) Get(userID int64) State {
	if st, ok := s.entries.Get(userID); ok {
		return st
	}
	return Idle{}
}

// Put replaces the user's state. Putting Idle clears it.
func (s *Store) Put(userID int64, st State) {
	if st == nil || st.Kind() == KindIdle {
		s.Clear(userID)
		return
	}
	s.entries.Set(userID, st, s.ttl())
	s.log.Debug("session state stored", zap.Int64("user_id", userID), zap.String("kind", string(st.Kind())))
}

func (s *Store) Clear(userID int64) {
	s.entries.Delete(userID)
}

func provideStore(clk clock.Clock, policy *config.PolicyHolder, log *zap.Logger) *Store {
	return NewStore(clk, func() time.Duration { return policy.Get().Session.TTL }, log)
}
