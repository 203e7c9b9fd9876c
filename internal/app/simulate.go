package app

import (
	"context"
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"feed-sentinel/internal/feed"
	"feed-sentinel/internal/sentinel"
	"feed-sentinel/internal/service"
)

const simulatedFeedDecimals = 8

// SimulateRejection 通过给定的均价/现价走一遍完整的拒绝与告警流程。
func (a *App) SimulateRejection(ctx context.Context, average, spot decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	source := &staticSource{price: toFeedUnits(average)}

	// The average needs at least two ring entries: one seeded a minute in
	// the past plus the construction ingest, both at the average price.
	// Switching the source afterwards makes the next reading the deviating
	// spot.
	history := []sentinel.Observation{
		{Price: toFeedUnits(average), Timestamp: uint64(time.Now().Add(-time.Minute).Unix())},
	}
	sent, err := a.buildSentinel(ctx, source, history)
	if err != nil {
		return err
	}
	source.price = toFeedUnits(spot)

	svc := service.New(a.Config, nil, sent, nil, nil, notifier, a.Logger)
	return svc.ProcessTick(ctx, time.Now().UTC())
}

func toFeedUnits(d decimal.Decimal) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(d.Shift(simulatedFeedDecimals).BigInt())
}

type staticSource struct {
	price sdkmath.Int
	round uint64
}

func (s *staticSource) Decimals(ctx context.Context) (uint8, error) {
	return simulatedFeedDecimals, nil
}

func (s *staticSource) Latest(ctx context.Context) (feed.Reading, error) {
	s.round++
	return feed.Reading{
		Price:     s.price,
		UpdatedAt: uint64(time.Now().Unix()),
		Round:     s.round,
	}, nil
}

func (s *staticSource) AtRound(ctx context.Context, round uint64) (feed.Reading, error) {
	return feed.Reading{}, errors.New("simulated source has no history")
}

var _ feed.Source = (*staticSource)(nil)
