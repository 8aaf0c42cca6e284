package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"booking_feed/internal/adapters/observability"
	"booking_feed/internal/domain"
)

// Sweeper evicts buffered records older than the TTL.
type Sweeper struct {
	buffer domain.ChangeBuffer
	ttl    time.Duration
}

func NewSweeper(b domain.ChangeBuffer, ttl time.Duration) *Sweeper {
	return &Sweeper{buffer: b, ttl: ttl}
}

func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.buffer.Evict(ctx, s.ttl)
	if err != nil {
		return removed, fmt.Errorf("evict buffer: %w", err)
	}
	var remaining int64
	if st, err := s.buffer.Stats(ctx); err == nil {
		remaining = st.Count
	}
	observability.ObserveEviction(removed, remaining)
	if removed > 0 {
		log.Info().Int64("removed", removed).Dur("ttl", s.ttl).Msg("cleaned up old buffer entries")
	}
	return removed, nil
}
