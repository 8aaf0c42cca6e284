package domain

import (
	"context"
	"time"
)

type ChangeBuffer interface {
	// Write paths
	Append(ctx context.Context, c NewChange) (AppendResult, error)
	Evict(ctx context.Context, ttl time.Duration) (int64, error)

	// Read paths
	Query(ctx context.Context, q ChangeQuery) ([]ChangeRecord, error)
	Stats(ctx context.Context) (BufferStats, error)
	Recent(ctx context.Context, locationID *int64, limit int) ([]ChangeRecord, error)
}

type WatermarkStore interface {
	// Get returns found=false when the location has never been polled successfully.
	Get(ctx context.Context, locationID int64) (t time.Time, found bool, err error)
	Set(ctx context.Context, locationID int64, t time.Time) error
}

type LocationDirectory interface {
	ListLocations(ctx context.Context) ([]Location, error)
}

type IntegrationStore interface {
	GetIntegration(ctx context.Context, locationID int64) (Integration, bool, error)
}

type BookingSource interface {
	FetchBookings(ctx context.Context, creds Credentials, from, to time.Time) ([]Booking, error)
}

// Locker guards a poll cycle across processes. Release must be safe to call
// after the lease has already expired.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
