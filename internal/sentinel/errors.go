package sentinel

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

var (
	// ErrInvalidConfig marks construction parameters the sentinel refuses.
	ErrInvalidConfig = errors.New("sentinel: invalid configuration")
	// ErrInvalidFeedPrice is returned when the upstream feed reports a
	// zero or negative price.
	ErrInvalidFeedPrice = errors.New("sentinel: feed returned non-positive price")
	// ErrInsufficientObservations is returned when fewer than two usable
	// observations are available for averaging.
	ErrInsufficientObservations = errors.New("sentinel: fewer than two usable observations")
)

// UpdateTooFrequentError rejects an ingest attempted before the minimum
// interval has elapsed. Recoverable by retrying after the remainder.
type UpdateTooFrequentError struct {
	Elapsed     time.Duration
	MinInterval time.Duration
}

func (e *UpdateTooFrequentError) Error() string {
	return fmt.Sprintf("sentinel: update too frequent: %s elapsed, minimum %s", e.Elapsed, e.MinInterval)
}

// InvalidTimestampError indicates an observation timestamp lies in the
// future relative to the local clock.
type InvalidTimestampError struct {
	Timestamp uint64
	Now       uint64
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("sentinel: observation timestamp %d is ahead of now %d", e.Timestamp, e.Now)
}

// IndexOutOfRangeError rejects access to an observation slot that does not
// exist yet.
type IndexOutOfRangeError struct {
	Index int
	Count int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("sentinel: observation index %d out of range [0,%d)", e.Index, e.Count)
}

// NotSupportedError rejects a quote for a token pair other than the
// configured one.
type NotSupportedError struct {
	From string
	To   string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("sentinel: conversion %s -> %s not supported", e.From, e.To)
}

// DeviationExceededError is the circuit breaker's safety rejection: the live
// spot price moved too far from the decay-weighted average.
type DeviationExceededError struct {
	Spot         sdkmath.Int
	Average      sdkmath.Int
	DeviationBps sdkmath.Int
	MaxBps       uint64
	IsDrop       bool
}

func (e *DeviationExceededError) Error() string {
	direction := "rise"
	if e.IsDrop {
		direction = "drop"
	}
	return fmt.Sprintf("sentinel: price %s of %s bps exceeds bound of %d bps", direction, e.DeviationBps, e.MaxBps)
}
