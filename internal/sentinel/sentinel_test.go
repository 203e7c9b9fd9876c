package sentinel

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"feed-sentinel/internal/feed"
)

type stubSource struct {
	decimals  uint8
	price     sdkmath.Int
	updatedAt uint64
	latestErr error
}

func (s *stubSource) Decimals(ctx context.Context) (uint8, error) {
	return s.decimals, nil
}

func (s *stubSource) Latest(ctx context.Context) (feed.Reading, error) {
	if s.latestErr != nil {
		return feed.Reading{}, s.latestErr
	}
	return feed.Reading{Price: s.price, UpdatedAt: s.updatedAt}, nil
}

func (s *stubSource) AtRound(ctx context.Context, round uint64) (feed.Reading, error) {
	return s.Latest(ctx)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

var epoch = time.Unix(1_700_000_000, 0)

func testConfig() Config {
	return Config{
		BaseToken:     "ETH",
		QuoteToken:    "USDC",
		BaseDecimals:  18,
		QuoteDecimals: 6,
		MaxDropBps:    300,
		MaxRiseBps:    500,
		Lambda:        tenPercentLambda(),
	}
}

func feedPrice(units int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(units, 8)
}

func newTestSentinel(t *testing.T, cfg Config, src *stubSource, clk *fakeClock) *Sentinel {
	t.Helper()
	s, err := newSentinel(context.Background(), cfg, src, zerolog.Nop(), clk.Now)
	if err != nil {
		t.Fatalf("construct sentinel: %v", err)
	}
	return s
}

func TestNewPerformsInitialIngest(t *testing.T) {
	clk := &fakeClock{now: epoch}
	src := &stubSource{decimals: 8, price: feedPrice(2000), updatedAt: uint64(epoch.Unix())}

	s := newTestSentinel(t, testConfig(), src, clk)

	if got := s.ObservationCount(); got != 1 {
		t.Fatalf("observation count after construction = %d, want 1", got)
	}

	obs, err := s.ObservationAt(0)
	if err != nil {
		t.Fatalf("ObservationAt(0): %v", err)
	}
	if !obs.Price.Equal(feedPrice(2000)) || obs.Timestamp != uint64(epoch.Unix()) {
		t.Fatalf("unexpected observation: %+v", obs)
	}

	if _, err := s.ObservationAt(1); err == nil {
		t.Fatal("ObservationAt(1) should fail with one observation stored")
	}
}

func TestNewValidation(t *testing.T) {
	clk := &fakeClock{now: epoch}
	src := &stubSource{decimals: 8, price: feedPrice(2000), updatedAt: uint64(epoch.Unix())}

	cases := map[string]Config{
		"missing base token":  {QuoteToken: "USDC", Lambda: tenPercentLambda()},
		"missing quote token": {BaseToken: "ETH", Lambda: tenPercentLambda()},
		"identical tokens":    {BaseToken: "ETH", QuoteToken: "ETH", Lambda: tenPercentLambda()},
		"drop above 100%":     {BaseToken: "ETH", QuoteToken: "USDC", MaxDropBps: 10_001, Lambda: tenPercentLambda()},
		"nil lambda":          {BaseToken: "ETH", QuoteToken: "USDC"},
		"negative lambda":     {BaseToken: "ETH", QuoteToken: "USDC", Lambda: sdkmath.NewInt(-1)},
	}

	for name, cfg := range cases {
		if _, err := newSentinel(context.Background(), cfg, src, zerolog.Nop(), clk.Now); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: got %v, want ErrInvalidConfig", name, err)
		}
	}

	if _, err := newSentinel(context.Background(), testConfig(), nil, zerolog.Nop(), clk.Now); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil source: got %v, want ErrInvalidConfig", err)
	}
}

func TestNewRejectsNonPositiveFeedPrice(t *testing.T) {
	clk := &fakeClock{now: epoch}
	src := &stubSource{decimals: 8, price: sdkmath.ZeroInt(), updatedAt: uint64(epoch.Unix())}

	if _, err := newSentinel(context.Background(), testConfig(), src, zerolog.Nop(), clk.Now); !errors.Is(err, ErrInvalidFeedPrice) {
		t.Fatalf("zero price at construction: got %v", err)
	}
}

func TestIngestThrottleBoundary(t *testing.T) {
	clk := &fakeClock{now: epoch}
	src := &stubSource{decimals: 8, price: feedPrice(2000), updatedAt: uint64(epoch.Unix())}
	s := newTestSentinel(t, testConfig(), src, clk)

	clk.advance(29 * time.Second)
	err := s.Ingest(context.Background())
	var tooSoon *UpdateTooFrequentError
	if !errors.As(err, &tooSoon) {
		t.Fatalf("29s gap: got %v, want UpdateTooFrequentError", err)
	}
	if tooSoon.Elapsed != 29*time.Second || tooSoon.MinInterval != MinIngestInterval {
		t.Fatalf("unexpected throttle payload: %+v", tooSoon)
	}
	if got := s.ObservationCount(); got != 1 {
		t.Fatalf("rejected ingest mutated the ring: count %d", got)
	}

	// Boundary pin: a gap of exactly the minimum interval is accepted.
	clk.advance(1 * time.Second)
	src.updatedAt = uint64(clk.now.Unix())
	if err := s.Ingest(context.Background()); err != nil {
		t.Fatalf("30s gap should be accepted, got %v", err)
	}
	if got := s.ObservationCount(); got != 2 {
		t.Fatalf("observation count = %d, want 2", got)
	}

	// The throttle resets from the accepted ingest.
	clk.advance(29 * time.Second)
	if err := s.Ingest(context.Background()); !errors.As(err, &tooSoon) {
		t.Fatalf("29s after accepted ingest: got %v", err)
	}
}

func TestIngestClockRewindClampsElapsed(t *testing.T) {
	clk := &fakeClock{now: epoch}
	src := &stubSource{decimals: 8, price: feedPrice(2000), updatedAt: uint64(epoch.Unix())}
	s := newTestSentinel(t, testConfig(), src, clk)

	clk.advance(-10 * time.Second)
	err := s.Ingest(context.Background())
	var tooSoon *UpdateTooFrequentError
	if !errors.As(err, &tooSoon) {
		t.Fatalf("rewound clock: got %v, want UpdateTooFrequentError", err)
	}
	if tooSoon.Elapsed != 0 {
		t.Fatalf("elapsed = %v, want 0 when the clock moves backwards", tooSoon.Elapsed)
	}
	if got := s.ObservationCount(); got != 1 {
		t.Fatalf("rejected ingest mutated the ring: count %d", got)
	}
}

func TestIngestRejectsNonPositivePrice(t *testing.T) {
	clk := &fakeClock{now: epoch}
	src := &stubSource{decimals: 8, price: feedPrice(2000), updatedAt: uint64(epoch.Unix())}
	s := newTestSentinel(t, testConfig(), src, clk)

	clk.advance(MinIngestInterval)
	src.price = sdkmath.NewInt(-5)
	if err := s.Ingest(context.Background()); !errors.Is(err, ErrInvalidFeedPrice) {
		t.Fatalf("negative price: got %v", err)
	}
	if got := s.ObservationCount(); got != 1 {
		t.Fatalf("failed ingest mutated the ring: count %d", got)
	}

	// lastUpdate must be untouched by the failure: a valid reading at the
	// same instant is still accepted.
	src.price = feedPrice(2000)
	if err := s.Ingest(context.Background()); err != nil {
		t.Fatalf("valid ingest after failed one: %v", err)
	}
}

func TestIngestPropagatesFeedError(t *testing.T) {
	clk := &fakeClock{now: epoch}
	src := &stubSource{decimals: 8, price: feedPrice(2000), updatedAt: uint64(epoch.Unix())}
	s := newTestSentinel(t, testConfig(), src, clk)

	clk.advance(MinIngestInterval)
	src.latestErr = errors.New("rpc down")
	if err := s.Ingest(context.Background()); err == nil {
		t.Fatal("feed failure should surface")
	}
	if got := s.ObservationCount(); got != 1 {
		t.Fatalf("failed ingest mutated the ring: count %d", got)
	}
}

// seeds a sentinel with two observations at the same price so the average
// equals that price exactly.
func newSteadySentinel(t *testing.T, cfg Config, priceUnits int64) (*Sentinel, *stubSource, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: epoch}
	src := &stubSource{decimals: 8, price: feedPrice(priceUnits), updatedAt: uint64(epoch.Unix())}
	s := newTestSentinel(t, cfg, src, clk)

	clk.advance(MinIngestInterval)
	src.updatedAt = uint64(clk.now.Unix())
	if err := s.Ingest(context.Background()); err != nil {
		t.Fatalf("seed ingest: %v", err)
	}
	return s, src, clk
}

func TestQuoteNotSupported(t *testing.T) {
	s, _, _ := newSteadySentinel(t, testConfig(), 2000)
	amount := sdkmath.NewIntWithDecimal(1, 18)

	pairs := [][2]string{
		{"ETH", "DAI"},
		{"DAI", "USDC"},
		{"DAI", "WBTC"},
		{"ETH", "ETH"},
		{"USDC", "USDC"},
	}
	for _, pair := range pairs {
		_, err := s.Quote(context.Background(), amount, pair[0], pair[1])
		var notSupported *NotSupportedError
		if !errors.As(err, &notSupported) {
			t.Fatalf("%s -> %s: got %v, want NotSupportedError", pair[0], pair[1], err)
		}
	}
}

func TestQuoteInsufficientObservations(t *testing.T) {
	clk := &fakeClock{now: epoch}
	src := &stubSource{decimals: 8, price: feedPrice(2000), updatedAt: uint64(epoch.Unix())}
	s := newTestSentinel(t, testConfig(), src, clk)

	_, err := s.Quote(context.Background(), sdkmath.NewIntWithDecimal(1, 18), "ETH", "USDC")
	if !errors.Is(err, ErrInsufficientObservations) {
		t.Fatalf("single observation: got %v", err)
	}
}

func TestQuoteWithinBounds(t *testing.T) {
	s, src, _ := newSteadySentinel(t, testConfig(), 2000)

	// 400 bps rise against a 500 bps bound.
	src.price = feedPrice(2080)

	out, err := s.Quote(context.Background(), sdkmath.NewIntWithDecimal(1, 18), "ETH", "USDC")
	if err != nil {
		t.Fatalf("forward quote: %v", err)
	}
	if want := sdkmath.NewIntWithDecimal(2080, 6); !out.Equal(want) {
		t.Fatalf("forward quote = %s, want %s", out, want)
	}

	back, err := s.Quote(context.Background(), sdkmath.NewIntWithDecimal(2080, 6), "USDC", "ETH")
	if err != nil {
		t.Fatalf("reverse quote: %v", err)
	}
	if want := sdkmath.NewIntWithDecimal(1, 18); !back.Equal(want) {
		t.Fatalf("reverse quote = %s, want %s", back, want)
	}
	if !back.IsPositive() {
		t.Fatalf("reverse quote should be strictly positive, got %s", back)
	}
}

func TestQuoteRejectsExcessiveRise(t *testing.T) {
	s, src, _ := newSteadySentinel(t, testConfig(), 2000)

	// 1000 bps rise against a 500 bps bound.
	src.price = feedPrice(2200)

	_, err := s.Quote(context.Background(), sdkmath.NewIntWithDecimal(1, 18), "ETH", "USDC")
	var exceeded *DeviationExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("got %v, want DeviationExceededError", err)
	}
	if exceeded.IsDrop {
		t.Fatal("rise rejection flagged as drop")
	}
	if exceeded.MaxBps != 500 {
		t.Fatalf("threshold = %d, want 500", exceeded.MaxBps)
	}
	if !exceeded.DeviationBps.Equal(sdkmath.NewInt(1000)) {
		t.Fatalf("deviation = %s bps, want 1000", exceeded.DeviationBps)
	}
}

func TestQuoteRejectsExcessiveDrop(t *testing.T) {
	s, src, _ := newSteadySentinel(t, testConfig(), 2000)

	// 500 bps drop against a 300 bps bound.
	src.price = feedPrice(1900)

	_, err := s.Quote(context.Background(), sdkmath.NewIntWithDecimal(2000, 6), "USDC", "ETH")
	var exceeded *DeviationExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("got %v, want DeviationExceededError", err)
	}
	if !exceeded.IsDrop {
		t.Fatal("drop rejection not flagged as drop")
	}
	if exceeded.MaxBps != 300 {
		t.Fatalf("threshold = %d, want 300", exceeded.MaxBps)
	}
	if !exceeded.DeviationBps.Equal(sdkmath.NewInt(500)) {
		t.Fatalf("deviation = %s bps, want 500", exceeded.DeviationBps)
	}
}

func TestQuoteFailsClosedWhenHistoryStale(t *testing.T) {
	s, src, clk := newSteadySentinel(t, testConfig(), 2000)

	clk.advance(2 * time.Hour)
	src.price = feedPrice(2000)

	_, err := s.Quote(context.Background(), sdkmath.NewIntWithDecimal(1, 18), "ETH", "USDC")
	if !errors.Is(err, ErrInsufficientObservations) {
		t.Fatalf("stale history: got %v, want ErrInsufficientObservations", err)
	}
	if got := s.ObservationCount(); got < 2 {
		t.Fatalf("precondition broken: count %d", got)
	}
}

func TestCurrentEWTWAPFutureTimestamp(t *testing.T) {
	clk := &fakeClock{now: epoch}
	cfg := testConfig()
	cfg.History = []Observation{{Price: feedPrice(2000), Timestamp: uint64(epoch.Add(-time.Minute).Unix())}}
	src := &stubSource{decimals: 8, price: feedPrice(2000), updatedAt: uint64(epoch.Add(time.Hour).Unix())}

	s := newTestSentinel(t, cfg, src, clk)

	_, err := s.CurrentEWTWAP()
	var invalid *InvalidTimestampError
	if !errors.As(err, &invalid) {
		t.Fatalf("future observation timestamp: got %v", err)
	}
}

func TestHistorySeedPrecedesInitialIngest(t *testing.T) {
	clk := &fakeClock{now: epoch}
	cfg := testConfig()
	cfg.History = []Observation{
		{Price: feedPrice(1990), Timestamp: uint64(epoch.Add(-2 * time.Minute).Unix())},
		{Price: feedPrice(1995), Timestamp: uint64(epoch.Add(-time.Minute).Unix())},
	}
	src := &stubSource{decimals: 8, price: feedPrice(2000), updatedAt: uint64(epoch.Unix())}

	s := newTestSentinel(t, cfg, src, clk)

	if got := s.ObservationCount(); got != 3 {
		t.Fatalf("observation count = %d, want 3", got)
	}
	newest, err := s.ObservationAt(2)
	if err != nil {
		t.Fatalf("ObservationAt(2): %v", err)
	}
	if !newest.Price.Equal(feedPrice(2000)) {
		t.Fatalf("newest observation should be the construction ingest, got %s", newest.Price)
	}

	if _, err := s.CurrentEWTWAP(); err != nil {
		t.Fatalf("seeded sentinel should produce an average immediately: %v", err)
	}
}
