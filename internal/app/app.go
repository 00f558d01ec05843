package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"spot-perp-alerts/internal/alerting"
	"spot-perp-alerts/internal/config"
	"spot-perp-alerts/internal/engine"
	"spot-perp-alerts/internal/feed"
	"spot-perp-alerts/internal/logging"
	"spot-perp-alerts/internal/scheduler"
	"spot-perp-alerts/internal/service"
	"spot-perp-alerts/internal/storage"
	"spot-perp-alerts/internal/tracker"
)

// App bundles configuration and the root logger for every command.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// New loads configuration and constructs the application container.
func New(cfgPath, logLevel string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	return &App{
		Config: cfg,
		Logger: logging.NewLogger(cfg.Logging),
	}, nil
}

// openStore opens the alert audit store when a database is configured.
// Returns nil when auditing is not set up; the monitor runs without it.
func (a *App) openStore(ctx context.Context) (*storage.Store, error) {
	if a.Config.Database.DSN == "" {
		return nil, nil
	}
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	return storage.NewStore(pool), nil
}

// requireStore is openStore for commands that cannot work without the audit
// trail.
func (a *App) requireStore(ctx context.Context) (*storage.Store, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("database.dsn is required for this command")
	}
	return store, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	tg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, a.Config.Binance.RequestTimeout, a.Logger)
}

// buildEngine assembles the tracker and the alert engine from configuration.
func (a *App) buildEngine(notifier alerting.Notifier, alertStore storage.AlertStore) (*tracker.PriceTracker, *engine.Engine, error) {
	rules, err := engine.ParseRules(a.Config.Rules)
	if err != nil {
		return nil, nil, err
	}

	ledger := engine.NewLedger()
	evaluator, err := engine.NewEvaluator(rules, ledger, a.Logger)
	if err != nil {
		return nil, nil, err
	}

	tr := tracker.New(tracker.Options{
		Capacity:  a.Config.Tracker.Capacity,
		Staleness: a.Config.Tracker.Staleness(a.Config.Binance.SpotPollInterval),
	})

	eng := engine.New(engine.Options{
		Tracker:     tr,
		Evaluator:   evaluator,
		Ledger:      ledger,
		Notifier:    notifier,
		AlertStore:  alertStore,
		MaxDispatch: a.Config.Evaluator.MaxConcurrentDispatch,
	}, a.Logger)

	return tr, eng, nil
}

// Run starts the long-running monitor and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("alert delivery disabled; crossings will be evaluated and dropped")
	}

	var alertStore storage.AlertStore
	var locker storage.AdvisoryLocker
	if store != nil {
		alertStore = store
		locker = store
	}

	tr, eng, err := a.buildEngine(notifier, alertStore)
	if err != nil {
		return err
	}

	stream := feed.NewPerpStream(feed.StreamOptions{
		URL:              a.Config.Binance.FuturesWSURL,
		HandshakeTimeout: a.Config.Binance.RequestTimeout,
		ReconnectDelay:   a.Config.Binance.ReconnectDelay,
	}, a.Logger)

	spot := feed.NewSpot(feed.SpotOptions{
		BaseURL:    a.Config.Binance.SpotBaseURL,
		QuoteAsset: a.Config.Binance.QuoteAsset,
		Timeout:    a.Config.Binance.RequestTimeout,
		UserAgent:  a.Config.Binance.UserAgent,
	}, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:        a.Config.Evaluator.Interval,
		AlignToInterval: a.Config.Evaluator.AlignToInterval,
		StartupDelay:    a.Config.Evaluator.StartupDelay,
	}, a.Logger)

	svc := service.New(service.Options{
		Tracker:          tr,
		Engine:           eng,
		Stream:           stream,
		Spot:             spot,
		Scheduler:        sched,
		Locker:           locker,
		LockKey:          a.Config.Evaluator.AdvisoryLockKey,
		SpotPollInterval: a.Config.Binance.SpotPollInterval,
	}, a.Logger)

	a.Logger.Info().
		Str("environment", a.Config.App.Environment).
		Int("rules", len(a.Config.Rules)).
		Dur("evaluator_interval", a.Config.Evaluator.Interval).
		Dur("spot_poll_interval", a.Config.Binance.SpotPollInterval).
		Bool("audit", store != nil).
		Msg("starting monitor")

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.Logger.Info().Msg("monitor stopped")
	return nil
}
