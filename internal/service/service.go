package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"feed-sentinel/internal/alerting"
	"feed-sentinel/internal/config"
	"feed-sentinel/internal/scheduler"
	"feed-sentinel/internal/sentinel"
	"feed-sentinel/internal/storage"
)

// Service orchestrates scheduled ingestion, persistence, and rejection
// alerting around a single Sentinel instance.
type Service struct {
	scheduler    *scheduler.Scheduler
	sent         *sentinel.Sentinel
	observations storage.ObservationStore
	rejections   storage.RejectionStore
	notifier     alerting.Notifier
	logger       zerolog.Logger

	pair        string
	base        string
	quote       string
	probeAmount sdkmath.Int
	channels    []string
	alertsOn    bool
	cooldown    time.Duration
	lastAlert   time.Time

	locker  storage.AdvisoryLocker
	lockKey int64

	ingestAttempts uint
	ingestWait     time.Duration
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, sent *sentinel.Sentinel, observations storage.ObservationStore, rejections storage.RejectionStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	base, quote := sent.Pair()

	var locker storage.AdvisoryLocker
	if l, ok := observations.(storage.AdvisoryLocker); ok {
		locker = l
	}

	attempts := cfg.Scheduler.IngestAttempts
	if attempts == 0 {
		attempts = 1
	}

	return &Service{
		scheduler:      sched,
		sent:           sent,
		observations:   observations,
		rejections:     rejections,
		notifier:       notifier,
		logger:         logger.With().Str("component", "service").Logger(),
		pair:           cfg.Sentinel.Pair(),
		base:           base,
		quote:          quote,
		probeAmount:    sent.BaseUnit(),
		channels:       cfg.Alerting.Channels,
		alertsOn:       cfg.Alerting.Enabled,
		cooldown:       cfg.Alerting.Cooldown,
		locker:         locker,
		lockKey:        cfg.Scheduler.AdvisoryLockKey,
		ingestAttempts: attempts,
		ingestWait:     cfg.Scheduler.IngestRetryWait,
	}
}

// Run begins the aligned ingestion loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick performs one ingest-then-probe cycle.
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeTick(ctx, tick)
}

func (s *Service) executeTick(ctx context.Context, tick time.Time) error {
	ingested, err := s.ingest(ctx)
	if err != nil {
		return err
	}
	if ingested {
		s.persistNewestObservation(ctx)
	}

	s.probeQuote(ctx, tick)
	return nil
}

// ingest pulls a fresh reading, retrying transient feed failures. Throttle
// rejections are expected between closely spaced ticks and are never
// retried; they resolve on a later tick.
func (s *Service) ingest(ctx context.Context) (bool, error) {
	err := retry.Do(
		func() error {
			return s.sent.Ingest(ctx)
		},
		retry.Attempts(s.ingestAttempts),
		retry.Delay(s.ingestWait),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var tooSoon *sentinel.UpdateTooFrequentError
			if errors.As(err, &tooSoon) {
				return false
			}
			return !errors.Is(err, sentinel.ErrInvalidFeedPrice)
		}),
	)

	var tooSoon *sentinel.UpdateTooFrequentError
	if errors.As(err, &tooSoon) {
		s.logger.Debug().
			Dur("elapsed", tooSoon.Elapsed).
			Dur("min_interval", tooSoon.MinInterval).
			Msg("ingest throttled")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ingest: %w", err)
	}
	return true, nil
}

func (s *Service) persistNewestObservation(ctx context.Context) {
	if s.observations == nil {
		return
	}

	obs, err := s.sent.ObservationAt(s.sent.ObservationCount() - 1)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read newest observation")
		return
	}

	record := storage.ObservationRecord{
		Pair:       s.pair,
		Price:      decimal.NewFromBigInt(obs.Price.BigInt(), 0),
		ObservedAt: time.Unix(int64(obs.Timestamp), 0).UTC(),
	}
	if err := s.observations.InsertObservation(ctx, record); err != nil {
		s.logger.Error().Err(err).Msg("failed to journal observation")
	}
}

// probeQuote runs a one-base-unit conversion through the circuit breaker so
// rejections surface in monitoring even when no consumer is quoting.
func (s *Service) probeQuote(ctx context.Context, tick time.Time) {
	out, err := s.sent.Quote(ctx, s.probeAmount, s.base, s.quote)
	if err == nil {
		s.logger.Info().Time("tick", tick).Str("quote", out.String()).Msg("probe quote accepted")
		return
	}

	var exceeded *sentinel.DeviationExceededError
	if errors.As(err, &exceeded) {
		s.handleRejection(ctx, tick, exceeded)
		return
	}

	if errors.Is(err, sentinel.ErrInsufficientObservations) {
		s.logger.Debug().Time("tick", tick).Msg("probe quote skipped: not enough usable history")
		return
	}

	s.logger.Warn().Err(err).Time("tick", tick).Msg("probe quote failed")
}

func (s *Service) handleRejection(ctx context.Context, tick time.Time, exceeded *sentinel.DeviationExceededError) {
	s.logger.Warn().
		Time("tick", tick).
		Str("deviation_bps", exceeded.DeviationBps.String()).
		Uint64("bound_bps", exceeded.MaxBps).
		Bool("is_drop", exceeded.IsDrop).
		Msg("probe quote rejected by circuit breaker")

	record := storage.RejectionRecord{
		Pair:         s.pair,
		Spot:         decimal.NewFromBigInt(exceeded.Spot.BigInt(), 0),
		Average:      decimal.NewFromBigInt(exceeded.Average.BigInt(), 0),
		DeviationBps: bpsInt64(exceeded.DeviationBps),
		MaxBps:       int64(exceeded.MaxBps),
		IsDrop:       exceeded.IsDrop,
	}

	if s.rejections != nil {
		if _, err := s.rejections.InsertRejection(ctx, record); err != nil {
			s.logger.Error().Err(err).Time("tick", tick).Msg("failed to persist rejection record")
		}
	}

	if !s.alertsOn || s.notifier == nil {
		return
	}
	if s.cooldown > 0 && !s.lastAlert.IsZero() && tick.Sub(s.lastAlert) < s.cooldown {
		s.logger.Debug().Time("tick", tick).Msg("rejection alert suppressed by cooldown")
		return
	}

	note := alerting.Notification{
		Pair:         s.pair,
		Spot:         record.Spot,
		Average:      record.Average,
		DeviationBps: record.DeviationBps,
		MaxBps:       record.MaxBps,
		IsDrop:       record.IsDrop,
		OccurredAt:   tick,
		Channels:     s.channels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("tick", tick).Msg("failed to dispatch rejection alert")
		return
	}
	s.lastAlert = tick
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func bpsInt64(v sdkmath.Int) int64 {
	if !v.IsInt64() {
		return math.MaxInt64
	}
	return v.Int64()
}
