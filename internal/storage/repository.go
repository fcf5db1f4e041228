package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Stripstone/OfflineEbayMonitor/internal/benchmark"
	"github.com/Stripstone/OfflineEbayMonitor/internal/seen"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertBenchmarkSQL = `INSERT INTO benchmarks (
        identity_key,
        ema_price,
        samples,
        last_price,
        last_updated,
        observers
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (identity_key) DO UPDATE
    SET
        ema_price    = EXCLUDED.ema_price,
        samples      = EXCLUDED.samples,
        last_price   = EXCLUDED.last_price,
        last_updated = EXCLUDED.last_updated,
        observers    = EXCLUDED.observers,
        updated_at   = NOW()
    WHERE benchmarks.last_updated <= EXCLUDED.last_updated;`

	listBenchmarksSQL = `SELECT
        identity_key,
        ema_price::text,
        samples,
        last_price::text,
        last_updated,
        observers
    FROM benchmarks
    ORDER BY identity_key;`

	deleteBenchmarksSQL = `DELETE FROM benchmarks;`

	insertScanRunSQL = `INSERT INTO scan_runs (id, started_at, status) VALUES ($1,$2,$3);`

	finishScanRunSQL = `UPDATE scan_runs
    SET finished_at = $2,
        files       = $3,
        seen        = $4,
        ineligible  = $5,
        hits        = $6,
        pros        = $7,
        misses      = $8,
        captured    = $9,
        notified    = $10,
        status      = $11,
        error       = $12
    WHERE id = $1;`

	listRecentScanRunsSQL = `SELECT
        id,
        started_at,
        finished_at,
        files,
        seen,
        ineligible,
        hits,
        pros,
        misses,
        captured,
        notified,
        status,
        error
    FROM scan_runs
    ORDER BY started_at DESC
    LIMIT $1;`

	insertAlertSQL = `INSERT INTO alerts (
        dedupe_key,
        scan_run_id,
        outcome,
        title,
        total_price,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        dedupe_key,
        scan_run_id,
        outcome,
        title,
        total_price::text,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	listNotifiedSQL = `SELECT dedupe_key
    FROM notified_listings
    WHERE dedupe_key = ANY($1)
      AND notified_at > $2;`

	markNotifiedSQL = `INSERT INTO notified_listings (dedupe_key, notified_at)
    VALUES ($1, $2)
    ON CONFLICT (dedupe_key) DO UPDATE SET notified_at = EXCLUDED.notified_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// BenchmarkStore persists benchmark snapshots.
type BenchmarkStore interface {
	LoadBenchmarks(ctx context.Context) (benchmark.Snapshot, error)
	SaveBenchmarks(ctx context.Context, snap benchmark.Snapshot) error
}

// BenchmarkReplacer swaps the whole benchmark table, ignoring row timestamps.
type BenchmarkReplacer interface {
	ReplaceBenchmarks(ctx context.Context, snap benchmark.Snapshot) error
}

// ScanRunStore defines operations for scan-cycle auditing.
type ScanRunStore interface {
	StartScanRun(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	FinishScanRun(ctx context.Context, run ScanRun) error
	ListRecentScanRuns(ctx context.Context, limit int) ([]ScanRun, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to benchmarks, scan runs, alerts and notified listings.
type Store struct {
	pool *pgxpool.Pool
	// seenTTL bounds how long a notified listing suppresses re-notification.
	seenTTL time.Duration
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool, seenTTL time.Duration) *Store {
	return &Store{pool: pool, seenTTL: seenTTL}
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
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
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

// LoadBenchmarks reads every benchmark row. Rows that fail validation are skipped.
func (s *Store) LoadBenchmarks(ctx context.Context) (benchmark.Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listBenchmarksSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list benchmarks: %w", queryErr)
	}
	defer rows.Close()

	snap := make(benchmark.Snapshot)
	for rows.Next() {
		var (
			key              string
			emaStr, lastStr  string
			samples, observe int
			updated          time.Time
		)
		if err := rows.Scan(&key, &emaStr, &samples, &lastStr, &updated, &observe); err != nil {
			return nil, err
		}
		ema, err := decimal.NewFromString(emaStr)
		if err != nil {
			return nil, fmt.Errorf("parse ema for %s: %w", key, err)
		}
		last, err := decimal.NewFromString(lastStr)
		if err != nil {
			return nil, fmt.Errorf("parse last price for %s: %w", key, err)
		}
		snap[key] = benchmark.Entry{
			EMA:         ema,
			Samples:     samples,
			LastPrice:   last,
			LastUpdated: updated.UTC(),
			Observers:   observe,
		}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snap, nil
}

// SaveBenchmarks upserts every entry in one transaction. Older rows never overwrite newer ones.
func (s *Store) SaveBenchmarks(ctx context.Context, snap benchmark.Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(snap) == 0 {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin benchmark save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for key, e := range snap {
		batch.Queue(upsertBenchmarkSQL, key, e.EMA.String(), e.Samples, e.LastPrice.String(), e.LastUpdated, e.Observers)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert benchmarks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit benchmarks: %w", err)
	}
	return nil
}

// ReplaceBenchmarks deletes every row and inserts snap in one transaction.
func (s *Store) ReplaceBenchmarks(ctx context.Context, snap benchmark.Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin benchmark replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteBenchmarksSQL); err != nil {
		return fmt.Errorf("clear benchmarks: %w", err)
	}
	if len(snap) > 0 {
		batch := &pgx.Batch{}
		for key, e := range snap {
			batch.Queue(upsertBenchmarkSQL, key, e.EMA.String(), e.Samples, e.LastPrice.String(), e.LastUpdated, e.Observers)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert benchmarks: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit benchmark replace: %w", err)
	}
	return nil
}

// StartScanRun records a running scan cycle.
func (s *Store) StartScanRun(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, insertScanRunSQL, id, startedAt, RunRunning); err != nil {
		return fmt.Errorf("insert scan run: %w", err)
	}
	return nil
}

// FinishScanRun stores the final counters of a scan cycle.
func (s *Store) FinishScanRun(ctx context.Context, run ScanRun) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if run.Error != nil {
		errMsg = *run.Error
	}

	cmdTag, execErr := pool.Exec(ctx, finishScanRunSQL,
		run.ID,
		run.FinishedAt,
		run.Files,
		run.Seen,
		run.Ineligible,
		run.Hits,
		run.Pros,
		run.Misses,
		run.Captured,
		run.Notified,
		run.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("finish scan run: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListRecentScanRuns lists the most recent scan runs.
func (s *Store) ListRecentScanRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentScanRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent scan runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]ScanRun, 0, limit)
	for rows.Next() {
		var (
			run      ScanRun
			finished sql.NullTime
			errMsg   sql.NullString
		)
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&finished,
			&run.Files,
			&run.Seen,
			&run.Ineligible,
			&run.Hits,
			&run.Pros,
			&run.Misses,
			&run.Captured,
			&run.Notified,
			&run.Status,
			&errMsg,
		); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		if errMsg.Valid {
			msg := errMsg.String
			run.Error = &msg
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var total interface{}
	if alert.TotalPrice.Valid {
		total = alert.TotalPrice.Decimal.String()
	}
	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	rec := alert
	if scanErr := pool.QueryRow(ctx, insertAlertSQL,
		alert.DedupeKey,
		alert.ScanRunID,
		alert.Outcome,
		alert.Title,
		total,
		channels,
	).Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec      AlertRecord
			runID    *uuid.UUID
			totalStr sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.DedupeKey,
			&runID,
			&rec.Outcome,
			&rec.Title,
			&totalStr,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.ScanRunID = runID
		if totalStr.Valid {
			total, convErr := decimal.NewFromString(totalStr.String)
			if convErr != nil {
				return nil, fmt.Errorf("parse total price: %w", convErr)
			}
			rec.TotalPrice = decimal.NewNullDecimal(total)
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// FilterNew implements seen.Store against the notified_listings table.
func (s *Store) FilterNew(ctx context.Context, keys []string) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	rows, queryErr := pool.Query(ctx, listNotifiedSQL, keys, seenCutoff(time.Now().UTC(), s.seenTTL))
	if queryErr != nil {
		return nil, fmt.Errorf("list notified listings: %w", queryErr)
	}
	known, collectErr := pgx.CollectRows(rows, pgx.RowTo[string])
	if collectErr != nil {
		return nil, fmt.Errorf("scan notified listings: %w", collectErr)
	}

	return unknownKeys(keys, known), nil
}

// seenCutoff is the oldest notified_at still counted as seen. ttl <= 0 never expires.
func seenCutoff(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Unix(0, 0).UTC()
	}
	return now.Add(-ttl)
}

// unknownKeys returns keys absent from known, in input order, each once.
func unknownKeys(keys, known []string) []string {
	skip := make(map[string]struct{}, len(known)+len(keys))
	for _, k := range known {
		skip[k] = struct{}{}
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := skip[k]; ok {
			continue
		}
		skip[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// MarkSeen implements seen.Store.
func (s *Store) MarkSeen(ctx context.Context, keys []string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(markNotifiedSQL, k, now)
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("mark notified listings: %w", err)
	}
	return nil
}

var (
	_ BenchmarkStore    = (*Store)(nil)
	_ BenchmarkReplacer = (*Store)(nil)
	_ ScanRunStore      = (*Store)(nil)
	_ AlertStore        = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
	_ seen.Store        = (*Store)(nil)
)
