package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"booking_feed/internal/adapters/observability"
	"booking_feed/internal/domain"
)

type FeedRequest struct {
	LocationID int64
	DateFrom   domain.Date
	DateTo     domain.Date
	Cursor     *time.Time // nil on a consumer's first call
}

type FeedResponse struct {
	Records   []json.RawMessage `json:"bookings"`
	NewCursor time.Time         `json:"timestamp"`
	Count     int               `json:"count"`
}

// UpdateFeed answers incremental queries. It never writes: the cursor lives
// with the consumer and is echoed back on its next call.
type UpdateFeed struct {
	buffer   domain.ChangeBuffer
	lookback time.Duration
	grace    time.Duration
	now      func() time.Time
}

// DefaultCursorGrace is used when NewUpdateFeed gets grace <= 0.
const DefaultCursorGrace = 5 * time.Second

// NewUpdateFeed builds a feed. The cursor handed back trails the read bound by
// grace: a change stamped before the read but committed after it still lands
// after the cursor. Consumers see such changes again; they must be idempotent.
func NewUpdateFeed(b domain.ChangeBuffer, lookback, grace time.Duration, now func() time.Time) *UpdateFeed {
	if now == nil {
		now = time.Now
	}
	if grace <= 0 {
		grace = DefaultCursorGrace
	}
	return &UpdateFeed{buffer: b, lookback: lookback, grace: grace, now: now}
}

func (f *UpdateFeed) Poll(ctx context.Context, req FeedRequest) (FeedResponse, error) {
	if err := req.validate(); err != nil {
		observability.ObserveFeed("invalid", 0)
		return FeedResponse{}, err
	}

	// upper bound of this read; anything detected later is left for the next poll
	until := f.now().UTC().Truncate(time.Microsecond)
	since := until.Add(-f.lookback)
	if req.Cursor != nil {
		since = req.Cursor.UTC()
	}

	recs, err := f.buffer.Query(ctx, domain.ChangeQuery{
		LocationID: req.LocationID,
		DateFrom:   req.DateFrom,
		DateTo:     req.DateTo,
		Since:      since,
		Until:      until,
	})
	if err != nil {
		observability.ObserveFeed("error", 0)
		return FeedResponse{}, fmt.Errorf("query buffer: %w", err)
	}

	out := FeedResponse{Records: make([]json.RawMessage, 0, len(recs)), NewCursor: until.Add(-f.grace)}
	for _, r := range recs {
		out.Records = append(out.Records, r.Payload)
	}
	out.Count = len(out.Records)
	observability.ObserveFeed("ok", out.Count)
	return out, nil
}

func (r FeedRequest) validate() error {
	switch {
	case r.LocationID <= 0:
		return fmt.Errorf("%w: location_id must be positive", domain.ErrInvalidRequest)
	case r.DateFrom.IsZero() || r.DateTo.IsZero():
		return fmt.Errorf("%w: date_from and date_to are required", domain.ErrInvalidRequest)
	case r.DateFrom.After(r.DateTo):
		return fmt.Errorf("%w: date_from is after date_to", domain.ErrInvalidRequest)
	}
	return nil
}
