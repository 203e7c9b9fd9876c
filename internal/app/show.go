package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent observations and circuit-breaker rejections.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	pair := a.Config.Sentinel.Pair()

	observations, err := store.ListRecentObservations(ctx, pair, opts.Limit)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Fprintln(os.Stdout, "no observations found")
	} else {
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Observed (UTC)\tPair\tPrice")
		for _, obs := range observations {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\n",
				obs.ObservedAt.UTC().Format(time.RFC3339),
				obs.Pair,
				obs.Price.String(),
			)
		}
		writer.Flush()
	}

	rejections, err := store.ListRecentRejections(ctx, pair, opts.Limit)
	if err != nil {
		return err
	}
	if len(rejections) == 0 {
		fmt.Fprintln(os.Stdout, "no rejections found")
		return nil
	}

	fmt.Fprintln(os.Stdout)
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Rejected (UTC)\tPair\tSpot\tAverage\tDeviation (bps)\tBound (bps)\tDirection")
	for _, rej := range rejections {
		direction := "rise"
		if rej.IsDrop {
			direction = "drop"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			rej.CreatedAt.UTC().Format(time.RFC3339),
			rej.Pair,
			rej.Spot.String(),
			rej.Average.String(),
			rej.DeviationBps,
			rej.MaxBps,
			direction,
		)
	}
	writer.Flush()
	return nil
}
