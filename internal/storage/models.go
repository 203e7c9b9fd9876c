package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// ObservationRecord is one accepted feed reading journaled for audit and for
// re-seeding a restarted sentinel's history.
type ObservationRecord struct {
	ID         int64
	Pair       string
	Price      decimal.Decimal
	ObservedAt time.Time
	CreatedAt  time.Time
}

// RejectionRecord captures a circuit-breaker rejection for auditing.
type RejectionRecord struct {
	ID           int64
	Pair         string
	Spot         decimal.Decimal
	Average      decimal.Decimal
	DeviationBps int64
	MaxBps       int64
	IsDrop       bool
	CreatedAt    time.Time
}
