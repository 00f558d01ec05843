package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"spot-perp-alerts/internal/tracker"
)

// SimulateAlert seeds a throwaway tracker with the given spot and perp
// prices and runs a single evaluation pass against the configured rules,
// delivering whatever crosses through the real notifier. Useful to verify
// Telegram credentials and rule wiring end to end.
func (a *App) SimulateAlert(ctx context.Context, symbol string, spotPrice, perpPrice decimal.Decimal) error {
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("alerting is not enabled; nothing to simulate")
	}

	tr, eng, err := a.buildEngine(notifier, nil)
	if err != nil {
		return err
	}

	// Give price-change rules a baseline older than the widest window, so a
	// simulated move from spot to perp price is visible to every rule kind.
	window := a.widestWindow()
	now := time.Now().UTC()

	tr.Ingest(symbol, tracker.ChannelPerp, tracker.Sample{Time: now.Add(-window - time.Second), Price: spotPrice})
	tr.Ingest(symbol, tracker.ChannelPerp, tracker.Sample{Time: now, Price: perpPrice})
	tr.Ingest(symbol, tracker.ChannelSpot, tracker.Sample{Time: now, Price: spotPrice})

	dispatched := eng.CheckAll(ctx)
	if dispatched == 0 {
		a.Logger.Info().
			Str("symbol", symbol).
			Msg("simulated prices crossed no configured threshold")
		return nil
	}

	a.Logger.Info().
		Str("symbol", symbol).
		Int("dispatched", dispatched).
		Msg("simulated alerts delivered")
	return nil
}

func (a *App) widestWindow() time.Duration {
	widest := time.Minute
	for _, rule := range a.Config.Rules {
		if rule.Window > widest {
			widest = rule.Window
		}
	}
	return widest
}
