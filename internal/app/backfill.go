package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"feed-sentinel/internal/storage"
)

// Backfill replays historical feed rounds into the journal。
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.FromRound == 0 || opts.ToRound == 0 {
		return errors.New("--from-round 与 --to-round 必须大于 0")
	}
	if opts.FromRound > opts.ToRound {
		return errors.New("回填范围为空，请检查 --from-round/--to-round")
	}

	var store *storage.Store
	var closeStore func()
	var err error

	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置，无法回填")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	source, err := a.newSource()
	if err != nil {
		return err
	}

	pair := a.Config.Sentinel.Pair()
	processed := 0
	failed := 0
	skipped := 0

	for round := opts.FromRound; round <= opts.ToRound; round++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		reading, err := source.AtRound(ctx, round)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Uint64("round", round).Msg("回填失败")
			continue
		}
		if reading.Price.IsNil() || !reading.Price.IsPositive() {
			skipped++
			a.Logger.Warn().Uint64("round", round).Msg("跳过非正价格的历史轮次")
			continue
		}

		if store != nil {
			record := storage.ObservationRecord{
				Pair:       pair,
				Price:      decimal.NewFromBigInt(reading.Price.BigInt(), 0),
				ObservedAt: time.Unix(int64(reading.UpdatedAt), 0).UTC(),
			}
			if err := store.InsertObservation(ctx, record); err != nil {
				failed++
				a.Logger.Error().Err(err).Uint64("round", round).Msg("回填写入失败")
				continue
			}
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Int("skipped", skipped).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分轮次回填失败，请检查日志")
	}
	return nil
}
