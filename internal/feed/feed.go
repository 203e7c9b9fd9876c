package feed

import (
	"context"

	sdkmath "cosmossdk.io/math"
)

// Reading is a single price tick as reported by an upstream feed. Price is an
// integer magnitude expressed with the feed's native decimals; it is signed
// because adversarial or broken feeds may report zero or negative values.
type Reading struct {
	Price     sdkmath.Int
	UpdatedAt uint64
	Round     uint64
}

// Source exposes an upstream spot-price feed.
type Source interface {
	// Decimals reports the precision of the feed's price magnitudes.
	Decimals(ctx context.Context) (uint8, error)
	// Latest returns the most recent reading published by the feed.
	Latest(ctx context.Context) (Reading, error)
	// AtRound returns the historical reading published at the given round.
	AtRound(ctx context.Context, round uint64) (Reading, error)
}
