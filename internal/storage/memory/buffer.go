// Package memory holds process-local implementations of the buffer and
// watermark ports, used by single-node deployments and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"booking_feed/internal/domain"
	"booking_feed/internal/shared"
)

type dedupKey struct {
	location int64
	booking  string
}

// Buffer keeps records ordered by detected_at. Appends only ever add to the
// tail because detected_at comes from a monotonic clock.
type Buffer struct {
	mu      sync.RWMutex
	clock   *shared.Clock
	window  time.Duration
	nextID  int64
	records []domain.ChangeRecord
	// last insert time per (location, booking), pruned on eviction
	lastSeen map[dedupKey]time.Time
}

func NewBuffer(clock *shared.Clock, dedupWindow time.Duration) *Buffer {
	if clock == nil {
		clock = shared.NewClock(nil)
	}
	return &Buffer{clock: clock, window: dedupWindow, lastSeen: map[dedupKey]time.Time{}}
}

func (b *Buffer) Append(ctx context.Context, c domain.NewChange) (domain.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.AppendResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Next()
	k := dedupKey{c.LocationID, c.BookingID}
	if prev, ok := b.lastSeen[k]; ok && prev.After(now.Add(-b.window)) {
		return domain.AppendResult{Reason: domain.ReasonDuplicate}, nil
	}

	b.nextID++
	b.records = append(b.records, domain.ChangeRecord{
		ID:            b.nextID,
		LocationID:    c.LocationID,
		BookingID:     c.BookingID,
		Payload:       append([]byte(nil), c.Payload...),
		ArrivalDate:   c.ArrivalDate,
		DepartureDate: c.DepartureDate,
		DetectedAt:    now,
	})
	b.lastSeen[k] = now
	return domain.AppendResult{Inserted: true, Reason: domain.ReasonInserted}, nil
}

func (b *Buffer) Query(ctx context.Context, q domain.ChangeQuery) ([]domain.ChangeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	// skip everything at or before the cursor
	start := sort.Search(len(b.records), func(i int) bool {
		return b.records[i].DetectedAt.After(q.Since)
	})
	var out []domain.ChangeRecord
	for _, r := range b.records[start:] {
		if !q.Until.IsZero() && r.DetectedAt.After(q.Until) {
			break
		}
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *Buffer) Evict(ctx context.Context, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	cutoff := now.Add(-ttl)
	n := sort.Search(len(b.records), func(i int) bool {
		return !b.records[i].DetectedAt.Before(cutoff)
	})
	if n > 0 {
		kept := make([]domain.ChangeRecord, len(b.records)-n)
		copy(kept, b.records[n:])
		b.records = kept
	}
	for k, t := range b.lastSeen {
		if !t.After(now.Add(-b.window)) {
			delete(b.lastSeen, k)
		}
	}
	return int64(n), nil
}

func (b *Buffer) Stats(ctx context.Context) (domain.BufferStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := domain.BufferStats{Count: int64(len(b.records))}
	if len(b.records) > 0 {
		oldest, newest := b.records[0].DetectedAt, b.records[len(b.records)-1].DetectedAt
		st.Oldest, st.Newest = &oldest, &newest
	}
	return st, nil
}

// Recent returns up to limit records, newest first.
func (b *Buffer) Recent(ctx context.Context, locationID *int64, limit int) ([]domain.ChangeRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []domain.ChangeRecord
	for i := len(b.records) - 1; i >= 0 && len(out) < limit; i-- {
		if locationID != nil && b.records[i].LocationID != *locationID {
			continue
		}
		out = append(out, b.records[i])
	}
	return out, nil
}
