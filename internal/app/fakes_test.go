package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"booking_feed/internal/domain"
	"booking_feed/internal/shared"
	"booking_feed/internal/storage/memory"
)

// ---- fakes ----

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type fakeDirectory struct {
	locs []domain.Location
	err  error
}

func (f *fakeDirectory) ListLocations(ctx context.Context) ([]domain.Location, error) {
	return f.locs, f.err
}

type fakeIntegrations struct {
	m   map[int64]domain.Integration
	err error
}

func (f *fakeIntegrations) GetIntegration(ctx context.Context, id int64) (domain.Integration, bool, error) {
	if f.err != nil {
		return domain.Integration{}, false, f.err
	}
	in, ok := f.m[id]
	return in, ok, nil
}

type fetchCall struct {
	creds    domain.Credentials
	from, to time.Time
}

// fakeSource answers per location, keyed by the credentials' username.
type fakeSource struct {
	mu       sync.Mutex
	bookings map[string][]domain.Booking
	errs     map[string]error
	calls    map[string][]fetchCall
	block    chan struct{} // when set, every fetch waits on it
	started  chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		bookings: map[string][]domain.Booking{},
		errs:     map[string]error{},
		calls:    map[string][]fetchCall{},
	}
}

func (f *fakeSource) FetchBookings(ctx context.Context, c domain.Credentials, from, to time.Time) ([]domain.Booking, error) {
	f.mu.Lock()
	f.calls[c.Username] = append(f.calls[c.Username], fetchCall{c, from, to})
	bs, err := f.bookings[c.Username], f.errs[c.Username]
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return bs, err
}

func (f *fakeSource) Calls(user string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls[user]...)
}

type fakeLocker struct {
	ok       bool
	err      error
	released int
}

func (f *fakeLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if f.err != nil || !f.ok {
		return nil, false, f.err
	}
	return func() { f.released++ }, true, nil
}

// failingBuffer rejects appends for one booking id.
type failingBuffer struct {
	*memory.Buffer
	failID string
}

func (f *failingBuffer) Append(ctx context.Context, c domain.NewChange) (domain.AppendResult, error) {
	if c.BookingID == f.failID {
		return domain.AppendResult{}, errors.New("disk full")
	}
	return f.Buffer.Append(ctx, c)
}

type fakeCache struct {
	store map[string][]byte
	gets  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.gets++
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.store, key)
	return nil
}

// ---- helpers ----

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newClock() (*fakeNow, *shared.Clock) {
	fn := &fakeNow{t: t0}
	return fn, shared.NewClock(fn.Now)
}

func creds(user string) domain.Credentials { return domain.Credentials{Username: user} }

func booking(id, arrival, departure string) domain.Booking {
	b := domain.Booking{"booking_status": "confirmed"}
	if id != "" {
		b["booking_id"] = id
	}
	if arrival != "" {
		b["arrival_date"] = arrival
	}
	if departure != "" {
		b["departure_date"] = departure
	}
	return b
}

func date(s string) domain.Date {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
