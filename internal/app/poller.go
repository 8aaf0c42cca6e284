package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"booking_feed/internal/adapters/observability"
	"booking_feed/internal/domain"
)

const cycleLeaseKey = "bookingfeed:poll-cycle"

type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
	OutcomeStored  Outcome = "stored"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// LocationResult is the outcome of polling one location in one cycle.
type LocationResult struct {
	LocationID   int64     `json:"location_id"`
	Outcome      Outcome   `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	WindowStart  time.Time `json:"window_start,omitempty"`
	WindowEnd    time.Time `json:"window_end,omitempty"`
	Fetched      int       `json:"fetched"`
	Stored       int       `json:"stored"`
	Invalid      int       `json:"skipped_invalid"`
	Duplicate    int       `json:"skipped_duplicate"`
	FailedInsert int       `json:"failed_insert"`
	Error        string    `json:"error,omitempty"`
	Err          error     `json:"-"`
}

type CycleTotals struct {
	Locations    int `json:"locations"`
	Polled       int `json:"polled"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	Stored       int `json:"stored"`
	Invalid      int `json:"skipped_invalid"`
	Duplicate    int `json:"skipped_duplicate"`
	FailedInsert int `json:"failed_insert"`
}

type CycleReport struct {
	CycleID    string           `json:"cycle_id"`
	Trigger    string           `json:"trigger"`
	Disabled   bool             `json:"disabled,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Locations  []LocationResult `json:"locations"`
	Totals     CycleTotals      `json:"totals"`
}

type PollerConfig struct {
	Enabled           bool
	BootstrapLookback time.Duration
	Workers           int
	LeaseTTL          time.Duration
}

type PollerDeps struct {
	Buffer       domain.ChangeBuffer
	Watermarks   domain.WatermarkStore
	Directory    domain.LocationDirectory
	Integrations domain.IntegrationStore
	Source       domain.BookingSource
	Locker       domain.Locker // optional; guards cycles across processes
	Now          func() time.Time
}

// Poller drives change detection for every active location. The watermark of
// a location only moves after a fetch for it returned without error.
type Poller struct {
	d   PollerDeps
	cfg PollerConfig
	mu  sync.Mutex // held for the duration of a cycle
}

func NewPoller(d PollerDeps, cfg PollerConfig) *Poller {
	if d.Now == nil {
		d.Now = time.Now
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	return &Poller{d: d, cfg: cfg}
}

// RunCycle polls every active location once. It is what the scheduler calls on each tick.
func (p *Poller) RunCycle(ctx context.Context) (CycleReport, error) {
	return p.run(ctx, TriggerScheduled)
}

// TriggerNow runs an out-of-band cycle with the same semantics as a scheduled tick.
func (p *Poller) TriggerNow(ctx context.Context) (CycleReport, error) {
	return p.run(ctx, TriggerManual)
}

func (p *Poller) run(ctx context.Context, trigger string) (CycleReport, error) {
	rep := CycleReport{CycleID: uuid.NewString(), Trigger: trigger, StartedAt: p.now()}
	lg := log.With().Str("cycle_id", rep.CycleID).Str("trigger", trigger).Logger()

	if !p.cfg.Enabled {
		rep.Disabled = true
		rep.FinishedAt = rep.StartedAt
		observability.ObservePollCycle(trigger, "disabled", 0)
		return rep, nil
	}

	if !p.mu.TryLock() {
		observability.ObservePollCycle(trigger, "busy", 0)
		return rep, domain.ErrCycleInProgress
	}
	defer p.mu.Unlock()

	if p.d.Locker != nil {
		release, ok, err := p.d.Locker.TryAcquire(ctx, cycleLeaseKey, p.cfg.LeaseTTL)
		if err != nil {
			lg.Error().Err(err).Msg("poll cycle lease unavailable")
			observability.ObservePollCycle(trigger, "failed", 0)
			return rep, fmt.Errorf("acquire cycle lease: %w", err)
		}
		if !ok {
			observability.ObservePollCycle(trigger, "busy", 0)
			return rep, domain.ErrCycleInProgress
		}
		defer release()
	}

	locs, err := p.d.Directory.ListLocations(ctx)
	if err != nil {
		rep.FinishedAt = p.now()
		lg.Error().Err(err).Msg("poll cycle failed: list locations")
		observability.ObservePollCycle(trigger, "failed", rep.FinishedAt.Sub(rep.StartedAt))
		return rep, fmt.Errorf("list locations: %w", err)
	}

	rep.Locations = make([]LocationResult, len(locs))
	sem := semaphore.NewWeighted(int64(p.cfg.Workers))
	var wg sync.WaitGroup
	for i, loc := range locs {
		if err := sem.Acquire(ctx, 1); err != nil {
			// context cancelled: leave the rest for the next cycle
			for j := i; j < len(locs); j++ {
				rep.Locations[j] = LocationResult{LocationID: locs[j].ID, Outcome: OutcomeSkipped, Reason: "cycle cancelled"}
			}
			break
		}
		wg.Add(1)
		go func(i int, loc domain.Location) {
			defer wg.Done()
			defer sem.Release(1)
			rep.Locations[i] = p.pollLocation(ctx, loc)
		}(i, loc)
	}
	wg.Wait()

	rep.FinishedAt = p.now()
	rep.Totals = totals(rep.Locations)
	observability.ObservePollCycle(trigger, "ok", rep.FinishedAt.Sub(rep.StartedAt))

	lg.Info().
		Int("locations", rep.Totals.Locations).
		Int("polled", rep.Totals.Polled).
		Int("failed", rep.Totals.Failed).
		Int("stored", rep.Totals.Stored).
		Int("skipped_invalid", rep.Totals.Invalid).
		Int("skipped_duplicate", rep.Totals.Duplicate).
		Int("failed_insert", rep.Totals.FailedInsert).
		Dur("duration", rep.FinishedAt.Sub(rep.StartedAt)).
		Msg("poll cycle finished")
	return rep, nil
}

// pollLocation runs Idle -> Fetching -> {Stored, Failed} for one location.
func (p *Poller) pollLocation(ctx context.Context, loc domain.Location) (res LocationResult) {
	res.LocationID = loc.ID
	lg := log.With().Int64("location_id", loc.ID).Logger()
	defer func() { observability.ObserveLocationPoll(string(res.Outcome)) }()
	defer func() {
		if res.Err != nil {
			res.Error = res.Err.Error()
		}
	}()

	if !loc.IsActive {
		res.Outcome, res.Reason = OutcomeSkipped, "location inactive"
		return res
	}
	integ, found, err := p.d.Integrations.GetIntegration(ctx, loc.ID)
	if err != nil {
		res.Outcome, res.Reason, res.Err = OutcomeFailed, "integration lookup", err
		lg.Error().Err(err).Msg("integration lookup failed")
		return res
	}
	if !found || !integ.IsActive {
		res.Outcome, res.Reason = OutcomeSkipped, "no active integration"
		return res
	}

	now := p.now()
	start, found, err := p.d.Watermarks.Get(ctx, loc.ID)
	if err != nil {
		res.Outcome, res.Reason, res.Err = OutcomeFailed, "watermark read", err
		lg.Error().Err(err).Msg("watermark read failed")
		return res
	}
	if !found {
		start = now.Add(-p.cfg.BootstrapLookback)
	}
	if start.After(now) {
		start = now
	}
	res.WindowStart, res.WindowEnd = start, now

	bookings, err := p.d.Source.FetchBookings(ctx, integ.Credentials, start, now)
	if err != nil {
		fe := &domain.FetchError{LocationID: loc.ID, Err: err}
		res.Outcome, res.Reason, res.Err = OutcomeFailed, "fetch", fe
		lg.Warn().Err(err).Time("window_start", start).Msg("fetch bookings failed; watermark kept")
		return res
	}
	res.Fetched = len(bookings)

	for _, b := range bookings {
		c, err := toChange(loc.ID, b)
		if err != nil {
			res.Invalid++
			lg.Warn().Err(err).Interface("booking", describe(b)).Msg("skipped booking")
			continue
		}
		out, err := p.d.Buffer.Append(ctx, c)
		switch {
		case err != nil:
			res.FailedInsert++
			lg.Error().Err(fmt.Errorf("%w: %w", domain.ErrStorageWrite, err)).
				Str("booking_id", c.BookingID).Msg("buffer insert failed")
		case out.Inserted:
			res.Stored++
		default:
			res.Duplicate++
		}
	}

	res.Outcome = OutcomeStored
	if err := p.d.Watermarks.Set(ctx, loc.ID, now); err != nil {
		// next cycle re-covers the window; dedup absorbs the overlap
		res.Reason, res.Err = "watermark not saved", err
		lg.Error().Err(err).Msg("watermark update failed")
	}

	observability.ObserveRecords("stored", res.Stored)
	observability.ObserveRecords("invalid", res.Invalid)
	observability.ObserveRecords("duplicate", res.Duplicate)
	observability.ObserveRecords("failed", res.FailedInsert)

	if res.Fetched > 0 || res.FailedInsert > 0 {
		lg.Info().
			Int("found", res.Fetched).
			Int("stored", res.Stored).
			Int("skipped_invalid", res.Invalid).
			Int("skipped_duplicate", res.Duplicate).
			Int("failed_insert", res.FailedInsert).
			Msg("buffer summary")
	}
	return res
}

// Statuses lists every location with its integration state and watermark.
func (p *Poller) Statuses(ctx context.Context) ([]domain.LocationStatus, error) {
	locs, err := p.d.Directory.ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	out := make([]domain.LocationStatus, 0, len(locs))
	for _, l := range locs {
		st := domain.LocationStatus{LocationID: l.ID, Name: l.Name, IsActive: l.IsActive}
		integ, found, err := p.d.Integrations.GetIntegration(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("integration %d: %w", l.ID, err)
		}
		st.IntegrationActive = found && integ.IsActive
		t, ok, err := p.d.Watermarks.Get(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("watermark %d: %w", l.ID, err)
		}
		if ok {
			st.LastSuccessfulCheck = &t
		}
		out = append(out, st)
	}
	return out, nil
}

func (p *Poller) now() time.Time { return p.d.Now().UTC() }

func totals(rs []LocationResult) CycleTotals {
	t := CycleTotals{Locations: len(rs)}
	for _, r := range rs {
		switch r.Outcome {
		case OutcomeStored:
			t.Polled++
		case OutcomeFailed:
			t.Failed++
		default:
			t.Skipped++
		}
		t.Stored += r.Stored
		t.Invalid += r.Invalid
		t.Duplicate += r.Duplicate
		t.FailedInsert += r.FailedInsert
	}
	return t
}

// IsBusy reports whether err means another cycle holds the guard.
func IsBusy(err error) bool { return errors.Is(err, domain.ErrCycleInProgress) }
