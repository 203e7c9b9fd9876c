package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"feed-sentinel/internal/alerting"
	"feed-sentinel/internal/config"
	"feed-sentinel/internal/feed"
	"feed-sentinel/internal/scheduler"
	"feed-sentinel/internal/sentinel"
	"feed-sentinel/internal/service"
	"feed-sentinel/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() (feed.Source, error) {
	switch a.Config.Feed.Kind {
	case "chainlink":
		return feed.NewChainlink(feed.ChainlinkOptions{
			RPCURL:            a.Config.Feed.RPCURL,
			AggregatorAddress: a.Config.Feed.AggregatorAddress,
			Timeout:           a.Config.Feed.RequestTimeout,
		}, a.Logger), nil
	case "http":
		return feed.NewHTTP(feed.HTTPOptions{
			BaseURL:   a.Config.Feed.BaseURL,
			Timeout:   a.Config.Feed.RequestTimeout,
			UserAgent: a.Config.Feed.UserAgent,
		}, a.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported feed.kind %q", a.Config.Feed.Kind)
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// buildSentinel assembles a Sentinel from configuration and optional
// persisted history. Construction performs the initial feed ingest, so the
// returned instance always holds at least one observation.
func (a *App) buildSentinel(ctx context.Context, source feed.Source, history []sentinel.Observation) (*sentinel.Sentinel, error) {
	lambda, err := a.Config.Sentinel.LambdaFixedPoint()
	if err != nil {
		return nil, err
	}

	cfg := sentinel.Config{
		BaseToken:     a.Config.Sentinel.BaseToken,
		QuoteToken:    a.Config.Sentinel.QuoteToken,
		BaseDecimals:  a.Config.Sentinel.BaseDecimals,
		QuoteDecimals: a.Config.Sentinel.QuoteDecimals,
		MaxDropBps:    a.Config.Sentinel.MaxDropBps,
		MaxRiseBps:    a.Config.Sentinel.MaxRiseBps,
		Lambda:        lambda,
		History:       history,
	}

	return sentinel.New(ctx, cfg, source, a.Logger)
}

// loadHistory re-seeds the in-memory ring from the journal, oldest first.
func (a *App) loadHistory(ctx context.Context, store storage.ObservationStore) []sentinel.Observation {
	if store == nil {
		return nil
	}

	records, err := store.ListRecentObservations(ctx, a.Config.Sentinel.Pair(), sentinel.Capacity)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("failed to load persisted history; starting cold")
		return nil
	}

	// Records arrive newest first; the ring wants chronological order.
	history := make([]sentinel.Observation, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		price := sdkmath.NewIntFromBigInt(rec.Price.BigInt())
		if !price.IsPositive() {
			continue
		}
		history = append(history, sentinel.Observation{
			Price:     price,
			Timestamp: uint64(rec.ObservedAt.Unix()),
		})
	}
	if len(history) > 0 {
		a.Logger.Info().Int("observations", len(history)).Msg("re-seeded history from journal")
	}
	return history
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	source, err := a.newSource()
	if err != nil {
		return err
	}
	notifier := a.newNotifier()

	var observationStore storage.ObservationStore
	var rejectionStore storage.RejectionStore
	if store != nil {
		observationStore = store
		rejectionStore = store
	}

	sent, err := a.buildSentinel(ctx, source, a.loadHistory(ctx, observationStore))
	if err != nil {
		return err
	}

	svc := service.New(a.Config, sched, sent, observationStore, rejectionStore, notifier, a.Logger)

	a.Logger.Info().Str("pair", a.Config.Sentinel.Pair()).Msg("starting sentinel service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("sentinel service stopped")
	return nil
}

// QuoteOptions configure a one-shot conversion.
type QuoteOptions struct {
	Amount decimal.Decimal
	From   string
	To     string
}

// ExportOptions hold parameters for exporting historical observations.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	FromRound uint64
	ToRound   uint64
	DryRun    bool
}
