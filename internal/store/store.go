// Package store persists account snapshots and scoring runs in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/refset/account-health/internal/account"
	"github.com/refset/account-health/internal/snapshot"
)

// ErrNotFound is returned when no scoring run has been saved yet.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_id               TEXT PRIMARY KEY,
	name                     TEXT NOT NULL DEFAULT '',
	tier                     TEXT NOT NULL DEFAULT '',
	owner                    TEXT NOT NULL DEFAULT '',
	industry                 TEXT NOT NULL DEFAULT '',
	arr                      DOUBLE PRECISION,
	product_engagement_score DOUBLE PRECISION,
	sentiment_score          DOUBLE PRECISION,
	support_volume_score     DOUBLE PRECISION,
	days_since_last_contact  INTEGER,
	renewal_date             DATE,
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scoring_runs (
	run_id       TEXT PRIMARY KEY,
	as_of        DATE NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	accounts     INTEGER NOT NULL,
	skipped      INTEGER NOT NULL,
	snapshot     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS account_health (
	run_id       TEXT NOT NULL REFERENCES scoring_runs (run_id) ON DELETE CASCADE,
	account_id   TEXT NOT NULL,
	health_score DOUBLE PRECISION NOT NULL,
	health_band  TEXT NOT NULL,
	playbook     TEXT NOT NULL,
	rule         TEXT NOT NULL,
	PRIMARY KEY (run_id, account_id)
);
`

const listAccountsSQL = `
SELECT account_id, name, tier, owner, industry, arr, product_engagement_score,
	sentiment_score, support_volume_score, days_since_last_contact, renewal_date
FROM accounts
ORDER BY account_id`

const upsertAccountSQL = `
INSERT INTO accounts (account_id, name, tier, owner, industry, arr, product_engagement_score,
	sentiment_score, support_volume_score, days_since_last_contact, renewal_date, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (account_id) DO UPDATE SET
	name = EXCLUDED.name,
	tier = EXCLUDED.tier,
	owner = EXCLUDED.owner,
	industry = EXCLUDED.industry,
	arr = EXCLUDED.arr,
	product_engagement_score = EXCLUDED.product_engagement_score,
	sentiment_score = EXCLUDED.sentiment_score,
	support_volume_score = EXCLUDED.support_volume_score,
	days_since_last_contact = EXCLUDED.days_since_last_contact,
	renewal_date = EXCLUDED.renewal_date,
	updated_at = now()`

const insertRunSQL = `
INSERT INTO scoring_runs (run_id, as_of, generated_at, accounts, skipped, snapshot)
VALUES ($1, $2, $3, $4, $5, $6)`

const insertResultSQL = `
INSERT INTO account_health (run_id, account_id, health_score, health_band, playbook, rule)
VALUES ($1, $2, $3, $4, $5, $6)`

const latestSnapshotSQL = `
SELECT snapshot FROM scoring_runs ORDER BY generated_at DESC LIMIT 1`

// Store reads accounts and records scoring runs.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects a pgx pool to Postgres and exposes it through database/sql.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// ListAccounts returns every stored account ordered by account ID. NULL
// columns come back as absent fields.
func (s *Store) ListAccounts(ctx context.Context) ([]account.Record, error) {
	rows, err := s.db.QueryContext(ctx, listAccountsSQL)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var records []account.Record
	for rows.Next() {
		var (
			rec                            account.Record
			arr, engagement, sentiment, sv sql.NullFloat64
			days                           sql.NullInt64
			renewal                        sql.NullTime
		)
		if err := rows.Scan(&rec.AccountID, &rec.Name, &rec.Tier, &rec.Owner, &rec.Industry,
			&arr, &engagement, &sentiment, &sv, &days, &renewal); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		rec.ARR = floatPtr(arr)
		rec.ProductEngagement = floatPtr(engagement)
		rec.Sentiment = floatPtr(sentiment)
		rec.SupportVolume = floatPtr(sv)
		if days.Valid {
			d := int(days.Int64)
			rec.DaysSinceLastContact = &d
		}
		if renewal.Valid {
			t := renewal.Time.UTC()
			rec.RenewalDate = &t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return records, nil
}

// UpsertAccounts inserts or replaces accounts in one transaction and returns
// how many were written.
func (s *Store) UpsertAccounts(ctx context.Context, records []account.Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertAccountSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.AccountID == "" {
			return 0, fmt.Errorf("upsert account: %s required", account.FieldAccountID)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.AccountID, rec.Name, rec.Tier, rec.Owner, rec.Industry,
			nullable(rec.ARR), nullable(rec.ProductEngagement), nullable(rec.Sentiment), nullable(rec.SupportVolume),
			nullable(rec.DaysSinceLastContact), nullable(rec.RenewalDate),
		); err != nil {
			return 0, fmt.Errorf("upsert account %s: %w", rec.AccountID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(records), nil
}

// SaveRun stores a snapshot and its per-account results atomically.
func (s *Store) SaveRun(ctx context.Context, snap snapshot.Snapshot) error {
	if snap.RunID == "" {
		return fmt.Errorf("save run: run ID required")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertRunSQL,
		snap.RunID, snap.AsOf, snap.GeneratedAt,
		snap.Report.Summary.Accounts, snap.Report.Summary.Skipped, data,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", snap.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertResultSQL)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range snap.Results {
		if _, err := stmt.ExecContext(ctx, snap.RunID, r.AccountID, r.Score, string(r.Band), string(r.Playbook), r.Rule); err != nil {
			return fmt.Errorf("insert result %s: %w", r.AccountID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently generated run.
func (s *Store) LatestSnapshot(ctx context.Context) (snapshot.Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, latestSnapshotSQL).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullable[T float64 | int | time.Time](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
