package sentinel

import (
	sdkmath "cosmossdk.io/math"
)

// StalenessWindow bounds how old an observation may be and still contribute
// to the average. Older observations are skipped, not errored.
const StalenessWindow = 3600

// weightUnit is the fixed-point scale (1e18) used for decay weights.
var weightUnit = sdkmath.NewIntWithDecimal(1, 18)

// ComputeEWTWAP returns the exponentially-weighted average of the given
// observations at time now (seconds since epoch). Observations must be in
// insertion order, oldest first. The walk runs newest to oldest; a future
// timestamp fails with InvalidTimestampError, an observation older than
// StalenessWindow is silently excluded. When every observation has been
// excluded the computation fails closed with ErrInsufficientObservations
// rather than serving a price derived from stale data.
func ComputeEWTWAP(observations []Observation, lambda sdkmath.Int, now uint64) (sdkmath.Int, error) {
	if len(observations) < 2 {
		return sdkmath.Int{}, ErrInsufficientObservations
	}

	weightedSum := sdkmath.ZeroInt()
	totalWeight := sdkmath.ZeroInt()

	for i := len(observations) - 1; i >= 0; i-- {
		obs := observations[i]
		if obs.Timestamp > now {
			return sdkmath.Int{}, &InvalidTimestampError{Timestamp: obs.Timestamp, Now: now}
		}
		age := now - obs.Timestamp
		if age > StalenessWindow {
			continue
		}
		weight := decayWeight(lambda, age)
		weightedSum = weightedSum.Add(obs.Price.Mul(weight))
		totalWeight = totalWeight.Add(weight)
	}

	if totalWeight.IsZero() {
		return sdkmath.Int{}, ErrInsufficientObservations
	}

	return weightedSum.Quo(totalWeight), nil
}

// decayWeight maps an observation age to a fixed-point weight via a
// piecewise-linear approximation of e^(-lambda*age). Below one unit the
// weight is 1-exponent; above it the coarse 1/(floor(exponent)+1) fallback
// deliberately under-weights observations that only just survived the
// staleness cutoff.
func decayWeight(lambda sdkmath.Int, ageSeconds uint64) sdkmath.Int {
	ageMinutes := int64(ageSeconds / 60)
	// TODO(risk review): lambda is configured as a per-minute rate but the
	// second division by 60 coarsens the effective decay to roughly
	// per-hour. Confirm the intended unit before changing the formula.
	exponent := lambda.MulRaw(ageMinutes).QuoRaw(60)
	if exponent.LT(weightUnit) {
		return weightUnit.Sub(exponent)
	}
	return weightUnit.Quo(exponent.Quo(weightUnit).AddRaw(1))
}
