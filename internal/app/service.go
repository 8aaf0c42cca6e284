package app

import (
	"time"

	"booking_feed/internal/domain"
	"booking_feed/internal/shared"
)

// Deps are the collaborators a Service is built from.
type Deps struct {
	Buffer       domain.ChangeBuffer
	Watermarks   domain.WatermarkStore
	Directory    domain.LocationDirectory
	Integrations domain.IntegrationStore
	Source       domain.BookingSource
	Locker       domain.Locker
	Now          func() time.Time
}

// Service wires the core once at process start. Whatever drives ticks or
// serves consumers holds a *Service; there is no package-level state.
type Service struct {
	Buffer    domain.ChangeBuffer
	Poller    *Poller
	Feed      *UpdateFeed
	Sweeper   *Sweeper
	Scheduler *Scheduler

	// DirectoryCache is set when the directory is served through a cache.
	DirectoryCache *CachedDirectory
}

func NewService(cfg shared.Config, d Deps) *Service {
	p := NewPoller(PollerDeps{
		Buffer:       d.Buffer,
		Watermarks:   d.Watermarks,
		Directory:    d.Directory,
		Integrations: d.Integrations,
		Source:       d.Source,
		Locker:       d.Locker,
		Now:          d.Now,
	}, PollerConfig{
		Enabled:           cfg.PollingEnabled,
		BootstrapLookback: cfg.BootstrapLookback,
		Workers:           cfg.PollWorkers,
		LeaseTTL:          cfg.CycleLease,
	})
	sw := NewSweeper(d.Buffer, cfg.BufferTTL)
	cached, _ := d.Directory.(*CachedDirectory)
	return &Service{
		Buffer:  d.Buffer,
		Poller:  p,
		Feed:    NewUpdateFeed(d.Buffer, cfg.BootstrapLookback, cfg.FeedCursorGrace, d.Now),
		Sweeper: sw,
		Scheduler: &Scheduler{
			Poller:        p,
			Sweeper:       sw,
			PollInterval:  cfg.PollInterval,
			SweepInterval: cfg.SweepInterval,
		},
		DirectoryCache: cached,
	}
}
