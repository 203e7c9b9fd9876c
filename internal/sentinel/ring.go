package sentinel

import (
	sdkmath "cosmossdk.io/math"
)

// Capacity is the fixed number of observation slots. Once full, the oldest
// observation is silently overwritten on each append.
const Capacity = 60

// Observation is a single accepted price reading. Price carries the feed's
// native decimals; Timestamp is seconds since epoch. Observations are
// immutable once written and only replaced by ring wraparound.
type Observation struct {
	Price     sdkmath.Int
	Timestamp uint64
}

// observationRing is a fixed-capacity circular buffer of observations.
// cursor always points at the next slot to overwrite. While the ring is not
// yet full, logical index i maps to physical slot i; once full, logical
// index i (0 = oldest) maps to slot (cursor + i) mod Capacity.
type observationRing struct {
	slots  [Capacity]Observation
	cursor int
	count  int
}

// append writes obs into the next slot. It never fails.
func (r *observationRing) append(obs Observation) {
	r.slots[r.cursor] = obs
	r.cursor = (r.cursor + 1) % Capacity
	if r.count < Capacity {
		r.count++
	}
}

// get returns the observation at logical index i, 0 being the oldest.
func (r *observationRing) get(i int) (Observation, error) {
	if i < 0 || i >= r.count {
		return Observation{}, &IndexOutOfRangeError{Index: i, Count: r.count}
	}
	if r.count < Capacity {
		return r.slots[i], nil
	}
	return r.slots[(r.cursor+i)%Capacity], nil
}

func (r *observationRing) size() int {
	return r.count
}

// snapshot copies the ring contents in logical order, oldest first.
func (r *observationRing) snapshot() []Observation {
	out := make([]Observation, r.count)
	for i := 0; i < r.count; i++ {
		obs, _ := r.get(i)
		out[i] = obs
	}
	return out
}
