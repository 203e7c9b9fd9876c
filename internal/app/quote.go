package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"feed-sentinel/internal/sentinel"
)

// QuoteOnce performs a single guarded conversion and prints the result.
func (a *App) QuoteOnce(ctx context.Context, opts QuoteOptions) error {
	if !opts.Amount.IsPositive() {
		return errors.New("amount must be greater than zero")
	}

	fromDecimals, err := a.tokenDecimals(opts.From)
	if err != nil {
		return err
	}
	toDecimals, err := a.tokenDecimals(opts.To)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	source, err := a.newSource()
	if err != nil {
		return err
	}

	var history []sentinel.Observation
	if store != nil {
		history = a.loadHistory(ctx, store)
	}

	sent, err := a.buildSentinel(ctx, source, history)
	if err != nil {
		return err
	}

	amount := sdkmath.NewIntFromBigInt(opts.Amount.Shift(int32(fromDecimals)).BigInt())

	out, err := sent.Quote(ctx, amount, opts.From, opts.To)
	if err != nil {
		var exceeded *sentinel.DeviationExceededError
		if errors.As(err, &exceeded) {
			direction := "rise"
			if exceeded.IsDrop {
				direction = "drop"
			}
			fmt.Fprintf(os.Stdout, "quote rejected: %s of %s bps exceeds bound of %d bps\n",
				direction, exceeded.DeviationBps, exceeded.MaxBps)
		}
		return err
	}

	human := decimal.NewFromBigInt(out.BigInt(), 0).Shift(-int32(toDecimals))
	fmt.Fprintf(os.Stdout, "%s %s -> %s %s\n", opts.Amount, opts.From, human, opts.To)
	return nil
}

func (a *App) tokenDecimals(token string) (uint8, error) {
	switch token {
	case a.Config.Sentinel.BaseToken:
		return a.Config.Sentinel.BaseDecimals, nil
	case a.Config.Sentinel.QuoteToken:
		return a.Config.Sentinel.QuoteDecimals, nil
	default:
		return 0, fmt.Errorf("token %q is not part of the configured pair %s", token, a.Config.Sentinel.Pair())
	}
}
