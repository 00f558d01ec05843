package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"spot-perp-alerts/internal/engine"
	"spot-perp-alerts/internal/feed"
	"spot-perp-alerts/internal/scheduler"
	"spot-perp-alerts/internal/storage"
	"spot-perp-alerts/internal/tracker"
)

// PerpStreamRunner feeds derivative-channel ticks into a handler until its
// context is cancelled.
type PerpStreamRunner interface {
	Run(ctx context.Context, handler feed.TickHandler) error
}

// Options wire the long-running monitor.
type Options struct {
	Tracker   *tracker.PriceTracker
	Engine    *engine.Engine
	Stream    PerpStreamRunner
	Spot      feed.SpotPriceFetcher
	Scheduler *scheduler.Scheduler

	// Locker is optional; when present, every evaluation pass is gated on a
	// postgres advisory lock so only one instance evaluates at a time.
	Locker  storage.AdvisoryLocker
	LockKey int64

	SpotPollInterval time.Duration
}

// Service runs the three loops of the monitor: the derivative stream, the
// spot poller, and the scheduled evaluation pass. The loops share the tracker
// and fail together.
type Service struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs the monitor service.
func New(opts Options, logger zerolog.Logger) *Service {
	if opts.SpotPollInterval <= 0 {
		opts.SpotPollInterval = 30 * time.Second
	}
	return &Service{
		opts:   opts,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Run blocks until the context is cancelled or one loop fails.
func (s *Service) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return s.opts.Stream.Run(ctx, func(symbol string, price decimal.Decimal, at time.Time) {
			s.opts.Tracker.Ingest(symbol, tracker.ChannelPerp, tracker.Sample{Time: at, Price: price})
		})
	})

	group.Go(func() error {
		return s.runSpotPoller(ctx)
	})

	group.Go(func() error {
		return s.opts.Scheduler.Run(ctx, s.evaluationTick)
	})

	err := group.Wait()
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Service) runSpotPoller(ctx context.Context) error {
	// Prime the reference channel immediately so spread rules have data
	// before the first full poll interval elapses.
	s.pollSpotOnce(ctx)

	ticker := time.NewTicker(s.opts.SpotPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pollSpotOnce(ctx)
		}
	}
}

func (s *Service) pollSpotOnce(ctx context.Context) {
	prices, err := s.opts.Spot.FetchSpotPrices(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("spot poll failed; keeping previous reference prices")
		}
		return
	}

	s.opts.Tracker.IngestBatch(tracker.ChannelSpot, prices, time.Now().UTC())
	s.logger.Debug().Int("symbols", len(prices)).Msg("spot prices refreshed")
}

func (s *Service) evaluationTick(ctx context.Context, at time.Time) error {
	if s.opts.Locker != nil {
		unlock, acquired, err := s.opts.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
		if err != nil {
			return err
		}
		if !acquired {
			s.logger.Debug().Time("tick", at).Msg("another instance holds the evaluation lock; skipping pass")
			return nil
		}
		defer unlock()
	}

	s.opts.Engine.CheckAll(ctx)
	return nil
}
