// Package sentinel wraps an upstream spot-price feed behind a deviation
// circuit breaker: readings are smoothed into a decay-weighted historical
// average, and a conversion is only quoted while the live spot price stays
// within configured asymmetric bounds of that average.
package sentinel

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"feed-sentinel/internal/feed"
)

// MinIngestInterval is the minimum wall-clock gap between successful
// ingests.
const MinIngestInterval = 30 * time.Second

// acceptAtExactInterval pins the throttle boundary: an ingest arriving
// exactly MinIngestInterval after the previous one is accepted, only
// strictly shorter gaps are rejected. Covered by explicit boundary tests;
// flip deliberately, not in passing.
const acceptAtExactInterval = true

// maxDeviationBps caps the configurable drop bound: a drop of more than
// 100% is not expressible.
const maxDeviationBps = 10_000

// Config carries the immutable construction parameters of a Sentinel.
type Config struct {
	// BaseToken and QuoteToken identify the only convertible pair.
	BaseToken  string
	QuoteToken string

	// BaseDecimals and QuoteDecimals give the token precisions; the feed's
	// own precision is queried from the source at construction.
	BaseDecimals  uint8
	QuoteDecimals uint8

	// MaxDropBps and MaxRiseBps bound how far the live spot price may sit
	// below or above the historical average, in basis points.
	MaxDropBps uint64
	MaxRiseBps uint64

	// Lambda is the per-minute decay rate for the historical average,
	// fixed-point scaled by 1e18.
	Lambda sdkmath.Int

	// History optionally pre-seeds the observation ring (oldest first),
	// e.g. from a persisted journal. It does not replace the construction
	// ingest.
	History []Observation
}

func (c Config) validate() error {
	if c.BaseToken == "" || c.QuoteToken == "" {
		return fmt.Errorf("%w: base and quote tokens are required", ErrInvalidConfig)
	}
	if c.BaseToken == c.QuoteToken {
		return fmt.Errorf("%w: base and quote tokens must differ", ErrInvalidConfig)
	}
	if c.MaxDropBps > maxDeviationBps {
		return fmt.Errorf("%w: max drop %d bps exceeds %d", ErrInvalidConfig, c.MaxDropBps, maxDeviationBps)
	}
	if c.Lambda.IsNil() || c.Lambda.IsNegative() {
		return fmt.Errorf("%w: lambda must be a non-negative fixed-point rate", ErrInvalidConfig)
	}
	return nil
}

// Sentinel owns one observation ring, its throttle state, and its
// configuration. Operations are serialized by an internal mutex so each one
// runs to completion atomically, matching the single-writer model the
// breaker's invariants assume.
type Sentinel struct {
	mu sync.Mutex

	cfg    Config
	source feed.Source
	scale  scaleFactors
	ring   observationRing

	lastUpdate uint64

	logger  zerolog.Logger
	nowFunc func() time.Time
}

// New validates cfg, queries the feed's precision, and performs one
// unthrottled ingest so the ring is never empty. The feed must be reachable
// at construction time.
func New(ctx context.Context, cfg Config, source feed.Source, logger zerolog.Logger) (*Sentinel, error) {
	return newSentinel(ctx, cfg, source, logger, time.Now)
}

func newSentinel(ctx context.Context, cfg Config, source feed.Source, logger zerolog.Logger, nowFunc func() time.Time) (*Sentinel, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: feed source is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	feedDecimals, err := source.Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("query feed decimals: %w", err)
	}

	s := &Sentinel{
		cfg:     cfg,
		source:  source,
		scale:   newScaleFactors(cfg.BaseDecimals, cfg.QuoteDecimals, feedDecimals),
		logger:  logger.With().Str("component", "sentinel").Str("pair", cfg.BaseToken+"/"+cfg.QuoteToken).Logger(),
		nowFunc: nowFunc,
	}

	for _, obs := range cfg.History {
		s.ring.append(obs)
	}

	if err := s.ingest(ctx, false); err != nil {
		return nil, err
	}
	return s, nil
}

// Ingest pulls a fresh reading from the feed and appends it to the
// observation ring, subject to the minimum-interval throttle.
func (s *Sentinel) Ingest(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingest(ctx, true)
}

func (s *Sentinel) ingest(ctx context.Context, throttled bool) error {
	now := s.now()
	if throttled {
		elapsed := time.Duration(int64(now)-int64(s.lastUpdate)) * time.Second
		// A rewound clock reads as a zero gap, not a negative one.
		if elapsed < 0 {
			elapsed = 0
		}
		tooSoon := elapsed < MinIngestInterval
		if !acceptAtExactInterval && elapsed == MinIngestInterval {
			tooSoon = true
		}
		if tooSoon {
			return &UpdateTooFrequentError{Elapsed: elapsed, MinInterval: MinIngestInterval}
		}
	}

	reading, err := s.source.Latest(ctx)
	if err != nil {
		return fmt.Errorf("latest reading: %w", err)
	}
	if reading.Price.IsNil() || !reading.Price.IsPositive() {
		return ErrInvalidFeedPrice
	}

	s.ring.append(Observation{Price: reading.Price, Timestamp: reading.UpdatedAt})
	s.lastUpdate = now

	s.logger.Debug().
		Str("price", reading.Price.String()).
		Uint64("updated_at", reading.UpdatedAt).
		Int("observations", s.ring.size()).
		Msg("observation ingested")
	return nil
}

// Quote converts amount from fromToken into toToken at the live spot price,
// provided the spot price has not deviated from the historical average by
// more than the configured bounds. A sustained genuine move is absorbed into
// the average over time; a single-tick spike is rejected.
func (s *Sentinel) Quote(ctx context.Context, amount sdkmath.Int, fromToken, toToken string) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reverse bool
	switch {
	case fromToken == s.cfg.BaseToken && toToken == s.cfg.QuoteToken:
	case fromToken == s.cfg.QuoteToken && toToken == s.cfg.BaseToken:
		reverse = true
	default:
		return sdkmath.Int{}, &NotSupportedError{From: fromToken, To: toToken}
	}

	reading, err := s.source.Latest(ctx)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("latest reading: %w", err)
	}
	if reading.Price.IsNil() || !reading.Price.IsPositive() {
		return sdkmath.Int{}, ErrInvalidFeedPrice
	}

	average, err := ComputeEWTWAP(s.ring.snapshot(), s.cfg.Lambda, s.now())
	if err != nil {
		return sdkmath.Int{}, err
	}

	if err := checkDeviation(reading.Price, average, s.cfg.MaxDropBps, s.cfg.MaxRiseBps); err != nil {
		s.logger.Warn().
			Str("spot", reading.Price.String()).
			Str("average", average.String()).
			Err(err).
			Msg("quote rejected")
		return sdkmath.Int{}, err
	}

	return s.scale.convert(amount, reading.Price, reverse)
}

// checkDeviation measures how far spot sits from the average in basis
// points, rounding down, and applies the asymmetric bounds.
func checkDeviation(spot, average sdkmath.Int, maxDropBps, maxRiseBps uint64) error {
	if spot.GTE(average) {
		deviation := spot.Sub(average).MulRaw(maxDeviationBps).Quo(average)
		if deviation.GT(sdkmath.NewIntFromUint64(maxRiseBps)) {
			return &DeviationExceededError{Spot: spot, Average: average, DeviationBps: deviation, MaxBps: maxRiseBps, IsDrop: false}
		}
		return nil
	}
	deviation := average.Sub(spot).MulRaw(maxDeviationBps).Quo(average)
	if deviation.GT(sdkmath.NewIntFromUint64(maxDropBps)) {
		return &DeviationExceededError{Spot: spot, Average: average, DeviationBps: deviation, MaxBps: maxDropBps, IsDrop: true}
	}
	return nil
}

// CurrentEWTWAP evaluates the historical average at the current time.
func (s *Sentinel) CurrentEWTWAP() (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ComputeEWTWAP(s.ring.snapshot(), s.cfg.Lambda, s.now())
}

// ObservationCount reports how many observations the ring currently holds.
func (s *Sentinel) ObservationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.size()
}

// ObservationAt returns the observation at logical index i, 0 being the
// oldest.
func (s *Sentinel) ObservationAt(i int) (Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.get(i)
}

// Pair returns the configured base and quote token identifiers.
func (s *Sentinel) Pair() (base, quote string) {
	return s.cfg.BaseToken, s.cfg.QuoteToken
}

// BaseUnit returns one whole base token in base units, the conventional
// probe amount.
func (s *Sentinel) BaseUnit() sdkmath.Int {
	return sdkmath.NewIntWithDecimal(1, int(s.cfg.BaseDecimals))
}

func (s *Sentinel) now() uint64 {
	return uint64(s.nowFunc().Unix())
}
