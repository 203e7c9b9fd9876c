package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"feed-sentinel/internal/storage"
)

// IngestOnce pulls a single reading through the sentinel and journals it.
func (a *App) IngestOnce(ctx context.Context) error {
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

	// Construction performs the first ingest against the live feed.
	sent, err := a.buildSentinel(ctx, source, nil)
	if err != nil {
		return err
	}

	obs, err := sent.ObservationAt(sent.ObservationCount() - 1)
	if err != nil {
		return err
	}

	pair := a.Config.Sentinel.Pair()
	fmt.Fprintf(os.Stdout, "ingested %s price=%s observed_at=%s\n",
		pair, obs.Price, time.Unix(int64(obs.Timestamp), 0).UTC().Format(time.RFC3339))

	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; observation not journaled")
		return nil
	}

	record := storage.ObservationRecord{
		Pair:       pair,
		Price:      decimal.NewFromBigInt(obs.Price.BigInt(), 0),
		ObservedAt: time.Unix(int64(obs.Timestamp), 0).UTC(),
	}
	return store.InsertObservation(ctx, record)
}
