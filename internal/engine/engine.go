package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"spot-perp-alerts/internal/alerting"
	"spot-perp-alerts/internal/storage"
	"spot-perp-alerts/internal/tracker"
)

const defaultMaxDispatch = 4

// Engine runs one evaluation pass at a time: snapshot the tracker, evaluate
// rules, dispatch crossings, and record cooldowns for what was acknowledged.
type Engine struct {
	tracker    *tracker.PriceTracker
	evaluator  *Evaluator
	ledger     *Ledger
	notifier   alerting.Notifier
	alertStore storage.AlertStore
	logger     zerolog.Logger

	maxDispatch int
}

// Options wire an Engine.
type Options struct {
	Tracker    *tracker.PriceTracker
	Evaluator  *Evaluator
	Ledger     *Ledger
	Notifier   alerting.Notifier
	AlertStore storage.AlertStore

	// MaxDispatch bounds concurrent notifier calls per pass.
	MaxDispatch int
}

// New constructs an alert engine.
func New(opts Options, logger zerolog.Logger) *Engine {
	maxDispatch := opts.MaxDispatch
	if maxDispatch <= 0 {
		maxDispatch = defaultMaxDispatch
	}
	return &Engine{
		tracker:     opts.Tracker,
		evaluator:   opts.Evaluator,
		ledger:      opts.Ledger,
		notifier:    opts.Notifier,
		alertStore:  opts.AlertStore,
		logger:      logger.With().Str("component", "engine").Logger(),
		maxDispatch: maxDispatch,
	}
}

// CheckAll evaluates every configured rule against a consistent snapshot and
// dispatches the resulting crossings. Dispatches run with bounded
// concurrency and fail independently; the cooldown ledger is updated only
// for crossings the sink acknowledged, so a failed dispatch is re-offered on
// the next pass. Safe to invoke concurrently with ongoing ingestion.
func (g *Engine) CheckAll(ctx context.Context) int {
	snap := g.tracker.Snapshot()
	events := g.evaluator.Evaluate(snap)
	if len(events) == 0 {
		return 0
	}
	if g.notifier == nil {
		g.logger.Warn().Int("crossings", len(events)).Msg("no notifier configured; dropping crossings")
		return 0
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		dispatched int
	)
	sem := make(chan struct{}, g.maxDispatch)

	for _, event := range events {
		wg.Add(1)
		sem <- struct{}{}
		go func(event alerting.Event) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := g.notifier.Notify(ctx, event); err != nil {
				g.logger.Error().Err(err).
					Str("symbol", event.Symbol).
					Str("rule", event.RuleID).
					Msg("dispatch failed; pair stays eligible")
				return
			}

			g.ledger.MarkFired(event.Symbol, event.RuleID, event.At)
			g.audit(ctx, event)

			mu.Lock()
			dispatched++
			mu.Unlock()
		}(event)
	}
	wg.Wait()

	g.logger.Info().
		Int("crossings", len(events)).
		Int("dispatched", dispatched).
		Time("snapshot", snap.At).
		Msg("evaluation pass complete")
	return dispatched
}

func (g *Engine) audit(ctx context.Context, event alerting.Event) {
	if g.alertStore == nil {
		return
	}
	record := storage.AlertRecord{
		Symbol:       event.Symbol,
		Kind:         event.Kind.String(),
		RuleID:       event.RuleID,
		MetricPct:    event.MetricPct,
		ThresholdPct: event.ThresholdPct,
		Direction:    event.Direction(),
		Notable:      event.Notable,
		FiredAt:      event.At,
	}
	if _, err := g.alertStore.InsertAlert(ctx, record); err != nil {
		g.logger.Error().Err(err).
			Str("symbol", event.Symbol).
			Str("rule", event.RuleID).
			Msg("failed to persist alert record")
	}
}
