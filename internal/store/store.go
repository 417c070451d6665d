// Package store persists positions, fills, markouts, and session
// bookkeeping (spec §6) to an embedded SQLite database, grounded on the
// reference bot's internal/controlplane/server/migrate.go: plain
// database/sql, WAL mode, an idempotent list of CREATE TABLE IF NOT EXISTS
// statements executed on Open.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/betbot/aquoter/internal/analytics"
	"github.com/betbot/aquoter/internal/domain"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS positions (
			asset_id TEXT PRIMARY KEY,
			size TEXT NOT NULL,
			avg_price TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS fills (
			fill_id TEXT PRIMARY KEY,
			asset_id TEXT NOT NULL,
			side TEXT NOT NULL,
			price TEXT NOT NULL,
			size TEXT NOT NULL,
			fee TEXT NOT NULL,
			mid_at_fill TEXT NOT NULL,
			ts TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fills_asset_ts ON fills(asset_id, ts);`,
		`CREATE TABLE IF NOT EXISTS markouts (
			fill_id TEXT NOT NULL REFERENCES fills(fill_id) ON DELETE CASCADE,
			horizon_s INTEGER NOT NULL,
			mid TEXT NOT NULL,
			markout_bps TEXT NOT NULL,
			captured_at TEXT NOT NULL,
			PRIMARY KEY (fill_id, horizon_s)
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			start TEXT NOT NULL,
			end TEXT,
			config_snapshot TEXT NOT NULL,
			status TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			asset_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			ts TEXT NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrapf(err, "store: migrate %q", q)
		}
	}
	return nil
}

// UpsertPosition persists the authoritative confirmed size and average
// entry price for an asset, called after every ForceReconcile.
func (s *Store) UpsertPosition(ctx context.Context, pos domain.TrackedPosition, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions(asset_id, size, avg_price, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET size=excluded.size, avg_price=excluded.avg_price, updated_at=excluded.updated_at`,
		pos.AssetID, pos.ConfirmedSize.Decimal().String(), pos.AvgPrice.String(), now.Format(time.RFC3339Nano))
	return errors.Wrap(err, "store: upsert position")
}

// InsertFill records one fill with its mid-at-fill snapshot for later
// markout attribution.
func (s *Store) InsertFill(ctx context.Context, f domain.Fill, midAtFill domain.Price) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO fills(fill_id, asset_id, side, price, size, fee, mid_at_fill, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Key(), f.AssetID, string(f.Side), f.Price.String(), f.Size.Decimal().String(),
		f.Fee.String(), midAtFill.String(), f.Timestamp.Format(time.RFC3339Nano))
	return errors.Wrap(err, "store: insert fill")
}

// InsertMarkouts persists a batch of captured markout samples.
func (s *Store) InsertMarkouts(ctx context.Context, markouts []analytics.Markout) error {
	if len(markouts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "store: begin markout tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO markouts(fill_id, horizon_s, mid, markout_bps, captured_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "store: prepare markout insert")
	}
	defer stmt.Close()

	for _, m := range markouts {
		if _, err := stmt.ExecContext(ctx, m.FillKey, m.HorizonS, m.Mid.String(), m.MarkoutBps.String(), m.CapturedAt.Format(time.RFC3339Nano)); err != nil {
			return errors.Wrap(err, "store: insert markout")
		}
	}
	return tx.Commit()
}

// RestorePositions loads every persisted position, used at Orchestrator
// startup before the first REST reconcile.
func (s *Store) RestorePositions(ctx context.Context) (map[string]domain.Size, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT asset_id, size FROM positions`)
	if err != nil {
		return nil, errors.Wrap(err, "store: restore positions")
	}
	defer rows.Close()

	out := make(map[string]domain.Size)
	for rows.Next() {
		var assetID, sizeStr string
		if err := rows.Scan(&assetID, &sizeStr); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(sizeStr)
		if err != nil {
			return nil, errors.Wrapf(err, "store: parse persisted size for %s", assetID)
		}
		out[assetID] = domain.NewSize(d)
	}
	return out, rows.Err()
}

// StartSession writes the session row's start half, storing the resolved
// config as JSON for post-hoc audit.
func (s *Store) StartSession(ctx context.Context, sessionID string, config any, now time.Time) error {
	snap, err := json.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "store: marshal config snapshot")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions(session_id, start, config_snapshot, status) VALUES (?, ?, ?, 'running')`,
		sessionID, now.Format(time.RFC3339Nano), string(snap))
	return errors.Wrap(err, "store: start session")
}

// EndSession closes a session row at shutdown.
func (s *Store) EndSession(ctx context.Context, sessionID string, status string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET "end"=?, status=? WHERE session_id=?`,
		now.Format(time.RFC3339Nano), status, sessionID)
	return errors.Wrap(err, "store: end session")
}

// AppendEvent writes one row of the append-only event ledger, used for
// gap detection and post-hoc analysis (spec §6).
func (s *Store) AppendEvent(ctx context.Context, assetID, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "store: marshal event payload")
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO events(asset_id, kind, payload_json, ts) VALUES (?, ?, ?, ?)`,
		assetID, kind, string(body), time.Now().Format(time.RFC3339Nano))
	return errors.Wrap(err, "store: append event")
}

// FillMarkoutRow is one per-fill line of cmd/aqreport's --csv export,
// pivoting the analytics tracker's five sampling horizons into columns
// the way the Python log analyzer this tool replaces laid out its CSV.
type FillMarkoutRow struct {
	FillID     string
	AssetID    string
	Side       string
	Price      string
	Size       string
	Fee        string
	MidAtFill  string
	Timestamp  string
	Markout1s  *float64
	Markout5s  *float64
	Markout15s *float64
	Markout30s *float64
	Markout60s *float64
}

// FillMarkoutRows returns one row per fill with its markout at every
// sampled horizon, optionally filtered to a single asset. assetID empty
// means every asset.
func (s *Store) FillMarkoutRows(ctx context.Context, assetID string) ([]FillMarkoutRow, error) {
	query := `
		SELECT f.fill_id, f.asset_id, f.side, f.price, f.size, f.fee, f.mid_at_fill, f.ts,
			MAX(CASE WHEN m.horizon_s = 1 THEN CAST(m.markout_bps AS REAL) END),
			MAX(CASE WHEN m.horizon_s = 5 THEN CAST(m.markout_bps AS REAL) END),
			MAX(CASE WHEN m.horizon_s = 15 THEN CAST(m.markout_bps AS REAL) END),
			MAX(CASE WHEN m.horizon_s = 30 THEN CAST(m.markout_bps AS REAL) END),
			MAX(CASE WHEN m.horizon_s = 60 THEN CAST(m.markout_bps AS REAL) END)
		FROM fills f
		LEFT JOIN markouts m ON m.fill_id = f.fill_id`
	args := []any{}
	if assetID != "" {
		query += ` WHERE f.asset_id = ?`
		args = append(args, assetID)
	}
	query += ` GROUP BY f.fill_id ORDER BY f.ts`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "store: fill markout rows")
	}
	defer rows.Close()

	var out []FillMarkoutRow
	for rows.Next() {
		var row FillMarkoutRow
		var h1, h5, h15, h30, h60 sql.NullFloat64
		if err := rows.Scan(&row.FillID, &row.AssetID, &row.Side, &row.Price, &row.Size, &row.Fee,
			&row.MidAtFill, &row.Timestamp, &h1, &h5, &h15, &h30, &h60); err != nil {
			return nil, err
		}
		row.Markout1s = nullFloatPtr(h1)
		row.Markout5s = nullFloatPtr(h5)
		row.Markout15s = nullFloatPtr(h15)
		row.Markout30s = nullFloatPtr(h30)
		row.Markout60s = nullFloatPtr(h60)
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullFloatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// AssetMarkoutSummary is one row of cmd/aqreport's offline output.
type AssetMarkoutSummary struct {
	AssetID       string
	FillCount     int
	MeanMarkout5s float64
}

// MarkoutSummaryByAsset powers cmd/aqreport: per-asset fill count and mean
// 5s markout, read back from the durable store rather than log files.
func (s *Store) MarkoutSummaryByAsset(ctx context.Context) ([]AssetMarkoutSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.asset_id, COUNT(DISTINCT f.fill_id), AVG(CAST(m.markout_bps AS REAL))
		FROM fills f
		LEFT JOIN markouts m ON m.fill_id = f.fill_id AND m.horizon_s = 5
		GROUP BY f.asset_id
		ORDER BY f.asset_id`)
	if err != nil {
		return nil, errors.Wrap(err, "store: markout summary")
	}
	defer rows.Close()

	var out []AssetMarkoutSummary
	for rows.Next() {
		var row AssetMarkoutSummary
		var mean sql.NullFloat64
		if err := rows.Scan(&row.AssetID, &row.FillCount, &mean); err != nil {
			return nil, err
		}
		row.MeanMarkout5s = mean.Float64
		out = append(out, row)
	}
	return out, rows.Err()
}
