package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertObservationSQL = `INSERT INTO observations (
        pair,
        price,
        observed_at
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (pair, observed_at) DO NOTHING;`

	listRecentObservationsSQL = `SELECT
        id,
        pair,
        price,
        observed_at,
        created_at
    FROM observations
    WHERE pair = $1
    ORDER BY observed_at DESC
    LIMIT $2;`

	listObservationsBetweenSQL = `SELECT
        id,
        pair,
        price,
        observed_at,
        created_at
    FROM observations
    WHERE pair = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	countObservationsSQL = `SELECT COUNT(*) FROM observations WHERE pair = $1;`

	deleteObservationsBeforeSQL = `DELETE FROM observations WHERE observed_at < $1;`

	insertRejectionSQL = `INSERT INTO rejections (
        pair,
        spot,
        average,
        deviation_bps,
        max_bps,
        is_drop
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, created_at;`

	listRecentRejectionsSQL = `SELECT
        id,
        pair,
        spot,
        average,
        deviation_bps,
        max_bps,
        is_drop,
        created_at
    FROM rejections
    WHERE pair = $1
    ORDER BY created_at DESC
    LIMIT $2;`

	deleteRejectionsBeforeSQL = `DELETE FROM rejections WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ObservationStore defines persistence for the observation journal.
type ObservationStore interface {
	InsertObservation(ctx context.Context, record ObservationRecord) error
	ListRecentObservations(ctx context.Context, pair string, limit int) ([]ObservationRecord, error)
	ListObservationsBetween(ctx context.Context, pair string, from, to time.Time) ([]ObservationRecord, error)
	CountObservations(ctx context.Context, pair string) (int64, error)
	DeleteObservationsBefore(ctx context.Context, olderThan time.Time) error
}

// RejectionStore defines persistence for circuit-breaker rejections.
type RejectionStore interface {
	InsertRejection(ctx context.Context, record RejectionRecord) (RejectionRecord, error)
	ListRecentRejections(ctx context.Context, pair string, limit int) ([]RejectionRecord, error)
	DeleteRejectionsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to observations and rejections.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertObservation journals an accepted observation. Re-inserting the same
// feed tick is a no-op.
func (s *Store) InsertObservation(ctx context.Context, record ObservationRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	if _, execErr := pool.Exec(ctx, insertObservationSQL,
		record.Pair,
		record.Price.String(),
		record.ObservedAt,
	); execErr != nil {
		return fmt.Errorf("insert observation: %w", execErr)
	}
	return nil
}

// ListRecentObservations lists the newest observations for a pair, newest first.
func (s *Store) ListRecentObservations(ctx context.Context, pair string, limit int) ([]ObservationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentObservationsSQL, pair, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent observations: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, limit)
}

// ListObservationsBetween lists observations within a time window, oldest first.
func (s *Store) ListObservationsBetween(ctx context.Context, pair string, from, to time.Time) ([]ObservationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, pair, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations between: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, 0)
}

// CountObservations counts journaled observations for a pair.
func (s *Store) CountObservations(ctx context.Context, pair string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL, pair).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

// DeleteObservationsBefore prunes the observation journal.
func (s *Store) DeleteObservationsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteObservationsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete observations before: %w", execErr)
	}
	return nil
}

// InsertRejection persists a circuit-breaker rejection.
func (s *Store) InsertRejection(ctx context.Context, record RejectionRecord) (RejectionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return RejectionRecord{}, err
	}

	row := pool.QueryRow(ctx, insertRejectionSQL,
		record.Pair,
		record.Spot.String(),
		record.Average.String(),
		record.DeviationBps,
		record.MaxBps,
		record.IsDrop,
	)

	rec := record
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return RejectionRecord{}, fmt.Errorf("insert rejection: %w", scanErr)
	}
	return rec, nil
}

// ListRecentRejections lists the most recent rejections for a pair.
func (s *Store) ListRecentRejections(ctx context.Context, pair string, limit int) ([]RejectionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRejectionsSQL, pair, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent rejections: %w", queryErr)
	}
	defer rows.Close()

	rejections := make([]RejectionRecord, 0, limit)
	for rows.Next() {
		var (
			rec        RejectionRecord
			spotStr    string
			averageStr string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Pair,
			&spotStr,
			&averageStr,
			&rec.DeviationBps,
			&rec.MaxBps,
			&rec.IsDrop,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.Spot, convErr = decimal.NewFromString(spotStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse spot: %w", convErr)
		}
		rec.Average, convErr = decimal.NewFromString(averageStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse average: %w", convErr)
		}

		rejections = append(rejections, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rejections, nil
}

// DeleteRejectionsBefore prunes historical rejections.
func (s *Store) DeleteRejectionsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteRejectionsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete rejections before: %w", execErr)
	}
	return nil
}

func collectObservations(rows pgx.Rows, hint int) ([]ObservationRecord, error) {
	observations := make([]ObservationRecord, 0, hint)
	for rows.Next() {
		var (
			rec      ObservationRecord
			priceStr string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Pair,
			&priceStr,
			&rec.ObservedAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse price: %w", convErr)
		}
		rec.Price = price

		observations = append(observations, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}
