package domain

import (
	"encoding/json"
	"time"
)

// ChangeRecord is one detected change to a reservation. Immutable once written.
type ChangeRecord struct {
	ID            int64           `json:"id"`
	LocationID    int64           `json:"location_id"`
	BookingID     string          `json:"booking_id"`
	Payload       json.RawMessage `json:"payload"` // snapshot of the booking at detection time
	ArrivalDate   Date            `json:"arrival_date"`
	DepartureDate Date            `json:"departure_date"`
	DetectedAt    time.Time       `json:"detected_at"`
}

// Overlaps reports whether the stay intersects or spans [from, to].
func (c ChangeRecord) Overlaps(from, to Date) bool {
	if !c.ArrivalDate.Before(from) && !c.ArrivalDate.After(to) {
		return true
	}
	if !c.DepartureDate.Before(from) && !c.DepartureDate.After(to) {
		return true
	}
	return !c.ArrivalDate.After(from) && !c.DepartureDate.Before(to)
}

// NewChange is a validated booking ready to be appended to the buffer.
type NewChange struct {
	LocationID    int64
	BookingID     string
	Payload       json.RawMessage
	ArrivalDate   Date
	DepartureDate Date
}

type AppendReason string

const (
	ReasonInserted  AppendReason = "inserted"
	ReasonDuplicate AppendReason = "duplicate"
)

type AppendResult struct {
	Inserted bool
	Reason   AppendReason
}

// ChangeQuery selects records for one location whose stay overlaps
// [DateFrom, DateTo] and whose detected_at is in (Since, Until].
// A zero Until means no upper bound.
type ChangeQuery struct {
	LocationID int64
	DateFrom   Date
	DateTo     Date
	Since      time.Time
	Until      time.Time
}

// Matches applies the query filter to a single record.
func (q ChangeQuery) Matches(c ChangeRecord) bool {
	if c.LocationID != q.LocationID || !c.DetectedAt.After(q.Since) {
		return false
	}
	if !q.Until.IsZero() && c.DetectedAt.After(q.Until) {
		return false
	}
	return c.Overlaps(q.DateFrom, q.DateTo)
}

type BufferStats struct {
	Count  int64      `json:"total_entries"`
	Oldest *time.Time `json:"oldest_entry,omitempty"`
	Newest *time.Time `json:"newest_entry,omitempty"`
}

// LocationWatermark marks the end of the last successfully polled window.
type LocationWatermark struct {
	LocationID          int64
	LastSuccessfulCheck time.Time
}
