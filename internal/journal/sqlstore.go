package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/oddsmith/kalshi-mm/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fills (
	id TEXT PRIMARY KEY,
	ticker TEXT NOT NULL,
	side TEXT NOT NULL,
	action TEXT NOT NULL,
	price INTEGER NOT NULL,
	count INTEGER NOT NULL,
	is_taker BOOLEAN,
	fee_cost INTEGER,
	created_time TEXT NOT NULL,
	match_id TEXT,
	synced_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_ticker ON fills(ticker);
CREATE INDEX IF NOT EXISTS idx_fills_match_id ON fills(match_id);
CREATE INDEX IF NOT EXISTS idx_fills_created_time ON fills(created_time);

CREATE TABLE IF NOT EXISTS hedges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	match_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	side TEXT NOT NULL,
	amount_usd REAL NOT NULL,
	odds REAL NOT NULL,
	outcome TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hedges_match_id ON hedges(match_id);

CREATE TABLE IF NOT EXISTS pnl_matches (
	id TEXT PRIMARY KEY,
	ticker_a TEXT NOT NULL,
	ticker_b TEXT NOT NULL,
	theo_a INTEGER,
	theo_b INTEGER,
	event_time TEXT,
	settled_at TEXT,
	result_a TEXT,
	category TEXT
);
CREATE INDEX IF NOT EXISTS idx_pnl_matches_ticker_a ON pnl_matches(ticker_a);
CREATE INDEX IF NOT EXISTS idx_pnl_matches_ticker_b ON pnl_matches(ticker_b);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS fills (
	id TEXT PRIMARY KEY,
	ticker TEXT NOT NULL,
	side TEXT NOT NULL,
	action TEXT NOT NULL,
	price INTEGER NOT NULL,
	count INTEGER NOT NULL,
	is_taker BOOLEAN,
	fee_cost INTEGER,
	created_time TEXT NOT NULL,
	match_id TEXT,
	synced_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_ticker ON fills(ticker);
CREATE INDEX IF NOT EXISTS idx_fills_match_id ON fills(match_id);
CREATE INDEX IF NOT EXISTS idx_fills_created_time ON fills(created_time);

CREATE TABLE IF NOT EXISTS hedges (
	id BIGSERIAL PRIMARY KEY,
	match_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	side TEXT NOT NULL,
	amount_usd DOUBLE PRECISION NOT NULL,
	odds DOUBLE PRECISION NOT NULL,
	outcome TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hedges_match_id ON hedges(match_id);

CREATE TABLE IF NOT EXISTS pnl_matches (
	id TEXT PRIMARY KEY,
	ticker_a TEXT NOT NULL,
	ticker_b TEXT NOT NULL,
	theo_a INTEGER,
	theo_b INTEGER,
	event_time TEXT,
	settled_at TEXT,
	result_a TEXT,
	category TEXT
);
CREATE INDEX IF NOT EXISTS idx_pnl_matches_ticker_a ON pnl_matches(ticker_a);
CREATE INDEX IF NOT EXISTS idx_pnl_matches_ticker_b ON pnl_matches(ticker_b);
`

// SQLStore implements Store over database/sql for both supported drivers.
// Queries are written with ? placeholders and rebound for postgres.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	logger   *zap.Logger
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewSQLite opens (creating if needed) a SQLite journal in WAL mode.
func NewSQLite(path string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Info("journal-sqlite-opened", zap.String("path", path))

	return &SQLStore{db: db, logger: logger}, nil
}

// NewPostgres connects to PostgreSQL and ensures the schema exists.
func NewPostgres(cfg *PostgresConfig) (*SQLStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	cfg.Logger.Info("journal-postgres-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &SQLStore{db: db, postgres: true, logger: cfg.Logger}, nil
}

// rebind converts ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UpsertMatch inserts or refreshes a match's metadata. Settlement columns
// are preserved on conflict.
func (s *SQLStore) UpsertMatch(ctx context.Context, m *MatchRecord) error {
	query := s.rebind(`
		INSERT INTO pnl_matches (id, ticker_a, ticker_b, theo_a, theo_b, event_time, category)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			theo_a = excluded.theo_a,
			theo_b = excluded.theo_b,
			event_time = excluded.event_time,
			category = excluded.category
	`)

	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.TickerA, m.TickerB, m.TheoA, m.TheoB,
		m.EventTime.UTC().Format(time.RFC3339), m.Category,
	)
	if err != nil {
		JournalErrorsTotal.WithLabelValues("upsert_match").Inc()
		return fmt.Errorf("upsert match: %w", err)
	}

	JournalWritesTotal.WithLabelValues("upsert_match").Inc()
	return nil
}

// GetMatch loads one match record, sql.ErrNoRows when unknown.
func (s *SQLStore) GetMatch(ctx context.Context, id string) (*MatchRecord, error) {
	query := s.rebind(`
		SELECT id, ticker_a, ticker_b, theo_a, theo_b, event_time, settled_at, result_a, category
		FROM pnl_matches WHERE id = ?
	`)

	m, err := scanMatch(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

// ListMatches returns every match ever journaled.
func (s *SQLStore) ListMatches(ctx context.Context) ([]*MatchRecord, error) {
	query := `
		SELECT id, ticker_a, ticker_b, theo_a, theo_b, event_time, settled_at, result_a, category
		FROM pnl_matches ORDER BY event_time
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []*MatchRecord
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// SettleMatch records the outcome of a match.
func (s *SQLStore) SettleMatch(ctx context.Context, id, result string, settledAt time.Time) error {
	query := s.rebind(`UPDATE pnl_matches SET result_a = ?, settled_at = ? WHERE id = ?`)

	_, err := s.db.ExecContext(ctx, query, result, settledAt.UTC().Format(time.RFC3339), id)
	if err != nil {
		JournalErrorsTotal.WithLabelValues("settle_match").Inc()
		return fmt.Errorf("settle match: %w", err)
	}

	JournalWritesTotal.WithLabelValues("settle_match").Inc()
	return nil
}

// InsertFill stores a fill, idempotent by id: a duplicate insert only
// refreshes the match association.
func (s *SQLStore) InsertFill(ctx context.Context, f *Fill) error {
	query := s.rebind(`
		INSERT INTO fills (id, ticker, side, action, price, count, is_taker, fee_cost, created_time, match_id, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET match_id = excluded.match_id
	`)

	matchID := sql.NullString{String: f.MatchID, Valid: f.MatchID != ""}

	_, err := s.db.ExecContext(ctx, query,
		f.ID, f.Ticker, string(f.Side), f.Action, f.Price, f.Count,
		f.IsTaker, f.FeeCost,
		f.CreatedTime.UTC().Format(time.RFC3339),
		matchID,
		f.SyncedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		JournalErrorsTotal.WithLabelValues("insert_fill").Inc()
		return fmt.Errorf("insert fill: %w", err)
	}

	JournalWritesTotal.WithLabelValues("insert_fill").Inc()
	return nil
}

// LinkFillsToMatch associates previously orphan fills on either ticker with
// the match.
func (s *SQLStore) LinkFillsToMatch(ctx context.Context, matchID, tickerA, tickerB string) error {
	query := s.rebind(`
		UPDATE fills SET match_id = ?
		WHERE match_id IS NULL AND ticker IN (?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query, matchID, tickerA, tickerB)
	if err != nil {
		JournalErrorsTotal.WithLabelValues("link_fills").Inc()
		return fmt.Errorf("link fills to match: %w", err)
	}

	JournalWritesTotal.WithLabelValues("link_fills").Inc()
	return nil
}

// FillsForMatch returns the match's fills in fill-time order.
func (s *SQLStore) FillsForMatch(ctx context.Context, matchID string) ([]*Fill, error) {
	query := s.rebind(`
		SELECT id, ticker, side, action, price, count, is_taker, fee_cost, created_time, match_id, synced_at
		FROM fills WHERE match_id = ? ORDER BY created_time
	`)

	return s.queryFills(ctx, query, matchID)
}

// AllFills returns every journaled fill in fill-time order.
func (s *SQLStore) AllFills(ctx context.Context) ([]*Fill, error) {
	query := `
		SELECT id, ticker, side, action, price, count, is_taker, fee_cost, created_time, match_id, synced_at
		FROM fills ORDER BY created_time
	`

	return s.queryFills(ctx, query)
}

func (s *SQLStore) queryFills(ctx context.Context, query string, args ...any) ([]*Fill, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	defer rows.Close()

	var fills []*Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		fills = append(fills, f)
	}

	return fills, rows.Err()
}

// InsertHedge stores a hedge and returns its assigned id.
func (s *SQLStore) InsertHedge(ctx context.Context, h *Hedge) (int64, error) {
	createdAt := h.CreatedAt.UTC().Format(time.RFC3339)

	if s.postgres {
		query := s.rebind(`
			INSERT INTO hedges (match_id, platform, side, amount_usd, odds, outcome, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id
		`)
		var id int64
		err := s.db.QueryRowContext(ctx, query,
			h.MatchID, h.Platform, h.Side, h.AmountUSD, h.Odds, h.Outcome, createdAt,
		).Scan(&id)
		if err != nil {
			JournalErrorsTotal.WithLabelValues("insert_hedge").Inc()
			return 0, fmt.Errorf("insert hedge: %w", err)
		}
		JournalWritesTotal.WithLabelValues("insert_hedge").Inc()
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO hedges (match_id, platform, side, amount_usd, odds, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, h.MatchID, h.Platform, h.Side, h.AmountUSD, h.Odds, h.Outcome, createdAt)
	if err != nil {
		JournalErrorsTotal.WithLabelValues("insert_hedge").Inc()
		return 0, fmt.Errorf("insert hedge: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("hedge id: %w", err)
	}

	JournalWritesTotal.WithLabelValues("insert_hedge").Inc()
	return id, nil
}

// ListHedges returns all hedges in creation order.
func (s *SQLStore) ListHedges(ctx context.Context) ([]*Hedge, error) {
	return s.queryHedges(ctx, `
		SELECT id, match_id, platform, side, amount_usd, odds, outcome, created_at
		FROM hedges ORDER BY created_at
	`)
}

// HedgesForMatch returns the hedges recorded against one match.
func (s *SQLStore) HedgesForMatch(ctx context.Context, matchID string) ([]*Hedge, error) {
	query := s.rebind(`
		SELECT id, match_id, platform, side, amount_usd, odds, outcome, created_at
		FROM hedges WHERE match_id = ? ORDER BY created_at
	`)

	return s.queryHedges(ctx, query, matchID)
}

func (s *SQLStore) queryHedges(ctx context.Context, query string, args ...any) ([]*Hedge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query hedges: %w", err)
	}
	defer rows.Close()

	var hedges []*Hedge
	for rows.Next() {
		h, err := scanHedge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hedge: %w", err)
		}
		hedges = append(hedges, h)
	}

	return hedges, rows.Err()
}

// UpdateHedge rewrites a hedge's mutable fields.
func (s *SQLStore) UpdateHedge(ctx context.Context, h *Hedge) error {
	query := s.rebind(`
		UPDATE hedges SET platform = ?, side = ?, amount_usd = ?, odds = ?, outcome = ?
		WHERE id = ?
	`)

	_, err := s.db.ExecContext(ctx, query, h.Platform, h.Side, h.AmountUSD, h.Odds, h.Outcome, h.ID)
	if err != nil {
		JournalErrorsTotal.WithLabelValues("update_hedge").Inc()
		return fmt.Errorf("update hedge: %w", err)
	}

	JournalWritesTotal.WithLabelValues("update_hedge").Inc()
	return nil
}

// DeleteHedge removes a hedge by id.
func (s *SQLStore) DeleteHedge(ctx context.Context, id int64) error {
	query := s.rebind(`DELETE FROM hedges WHERE id = ?`)

	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		JournalErrorsTotal.WithLabelValues("delete_hedge").Inc()
		return fmt.Errorf("delete hedge: %w", err)
	}

	JournalWritesTotal.WithLabelValues("delete_hedge").Inc()
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	s.logger.Info("closing-journal-store")
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*MatchRecord, error) {
	var m MatchRecord
	var eventTime, settledAt, result, category sql.NullString

	err := row.Scan(&m.ID, &m.TickerA, &m.TickerB, &m.TheoA, &m.TheoB, &eventTime, &settledAt, &result, &category)
	if err != nil {
		return nil, err
	}

	if eventTime.Valid {
		m.EventTime, err = time.Parse(time.RFC3339, eventTime.String)
		if err != nil {
			return nil, fmt.Errorf("parse event_time: %w", err)
		}
	}
	if settledAt.Valid && settledAt.String != "" {
		t, err := time.Parse(time.RFC3339, settledAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse settled_at: %w", err)
		}
		m.SettledAt = &t
	}
	m.Result = result.String
	m.Category = category.String

	return &m, nil
}

func scanFill(row rowScanner) (*Fill, error) {
	var f Fill
	var side string
	var isTaker sql.NullBool
	var feeCost sql.NullInt64
	var createdTime, syncedAt string
	var matchID sql.NullString

	err := row.Scan(&f.ID, &f.Ticker, &side, &f.Action, &f.Price, &f.Count,
		&isTaker, &feeCost, &createdTime, &matchID, &syncedAt)
	if err != nil {
		return nil, err
	}

	f.Side = types.Side(side)
	f.IsTaker = isTaker.Bool
	f.FeeCost = int(feeCost.Int64)
	f.MatchID = matchID.String

	f.CreatedTime, err = time.Parse(time.RFC3339, createdTime)
	if err != nil {
		return nil, fmt.Errorf("parse created_time: %w", err)
	}
	f.SyncedAt, err = time.Parse(time.RFC3339, syncedAt)
	if err != nil {
		return nil, fmt.Errorf("parse synced_at: %w", err)
	}

	return &f, nil
}

func scanHedge(row rowScanner) (*Hedge, error) {
	var h Hedge
	var outcome sql.NullString
	var createdAt string

	err := row.Scan(&h.ID, &h.MatchID, &h.Platform, &h.Side, &h.AmountUSD, &h.Odds, &outcome, &createdAt)
	if err != nil {
		return nil, err
	}

	h.Outcome = outcome.String
	h.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &h, nil
}
