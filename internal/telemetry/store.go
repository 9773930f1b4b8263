package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// MetricsFileName is the telemetry database inside a storage directory.
const MetricsFileName = "metrics.db"

// maxZeroResultQueries bounds the persisted zero-result buffer.
const maxZeroResultQueries = 100

// SQLiteMetricsStore persists telemetry in its own SQLite file so that
// metrics never contend with the record store.
type SQLiteMetricsStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteMetricsStore)(nil)

// OpenSQLiteMetricsStore opens or creates the metrics database at path.
// An empty path opens an in-memory database.
func OpenSQLiteMetricsStore(path string) (*SQLiteMetricsStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create metrics directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metrics database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteMetricsStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS search_type_stats (
		date TEXT NOT NULL,
		search_type TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, search_type)
	);

	CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// AddTypeCounts adds to the daily per-type counts.
func (s *SQLiteMetricsStore) AddTypeCounts(ctx context.Context, date string, counts map[SearchType]int64) error {
	return s.upsert(ctx, `
		INSERT INTO search_type_stats (date, search_type, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, search_type) DO UPDATE SET count = count + excluded.count
	`, func(stmt *sql.Stmt) error {
		for st, count := range counts {
			if _, err := stmt.ExecContext(ctx, date, string(st), count); err != nil {
				return fmt.Errorf("insert search type count: %w", err)
			}
		}
		return nil
	})
}

// UpsertTermCounts adds to the term frequencies.
func (s *SQLiteMetricsStore) UpsertTermCounts(ctx context.Context, terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	return s.upsert(ctx, `
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`, func(stmt *sql.Stmt) error {
		for term, count := range terms {
			if _, err := stmt.ExecContext(ctx, term, count); err != nil {
				return fmt.Errorf("upsert term count: %w", err)
			}
		}
		return nil
	})
}

// AddZeroResultQueries appends queries and trims the table to the newest 100.
func (s *SQLiteMetricsStore) AddZeroResultQueries(ctx context.Context, queries []ZeroResultQuery) error {
	if len(queries) == 0 {
		return nil
	}
	err := s.upsert(ctx, `INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, q := range queries {
				if _, err := stmt.ExecContext(ctx, q.Query, q.Timestamp.UTC()); err != nil {
					return fmt.Errorf("insert zero-result query: %w", err)
				}
			}
			return nil
		})
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM zero_result_queries
		WHERE id NOT IN (SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)
	`, maxZeroResultQueries)
	if err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// AddLatencyCounts adds to the daily latency histogram.
func (s *SQLiteMetricsStore) AddLatencyCounts(ctx context.Context, date string, counts map[LatencyBucket]int64) error {
	return s.upsert(ctx, `
		INSERT INTO query_latency_stats (date, bucket, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
	`, func(stmt *sql.Stmt) error {
		for bucket, count := range counts {
			if _, err := stmt.ExecContext(ctx, date, string(bucket), count); err != nil {
				return fmt.Errorf("insert latency count: %w", err)
			}
		}
		return nil
	})
}

// upsert runs fn against one prepared statement inside a transaction.
func (s *SQLiteMetricsStore) upsert(ctx context.Context, query string, fn func(*sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Summary loads all-time totals for status output.
func (s *SQLiteMetricsStore) Summary(ctx context.Context, topTerms, zeroResults int) (*Snapshot, error) {
	snap := &Snapshot{
		TypeCounts:          make(map[SearchType]int64),
		LatencyDistribution: make(map[LatencyBucket]int64),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT search_type, SUM(count) FROM search_type_stats GROUP BY search_type`)
	if err != nil {
		return nil, fmt.Errorf("query search types: %w", err)
	}
	for rows.Next() {
		var st string
		var count int64
		if err := rows.Scan(&st, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan row: %w", err)
		}
		snap.TypeCounts[SearchType(st)] = count
		snap.TotalQueries += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT bucket, SUM(count) FROM query_latency_stats GROUP BY bucket`)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan row: %w", err)
		}
		snap.LatencyDistribution[LatencyBucket(bucket)] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if snap.TopTerms, err = s.TopTerms(ctx, topTerms); err != nil {
		return nil, err
	}
	if snap.ZeroResultQueries, err = s.ZeroResultQueries(ctx, zeroResults); err != nil {
		return nil, err
	}

	var zeroCount sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM zero_result_queries`).Scan(&zeroCount); err != nil {
		return nil, fmt.Errorf("count zero-result queries: %w", err)
	}
	snap.ZeroResultCount = zeroCount.Int64
	return snap, nil
}

// TopTerms returns the most frequent terms, count descending then term.
func (s *SQLiteMetricsStore) TopTerms(ctx context.Context, limit int) ([]TermCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT term, count FROM query_terms ORDER BY count DESC, term LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	terms := []TermCount{}
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// ZeroResultQueries returns the newest zero-result queries first.
func (s *SQLiteMetricsStore) ZeroResultQueries(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer rows.Close()

	queries := []string{}
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// Close closes the database.
func (s *SQLiteMetricsStore) Close() error {
	return s.db.Close()
}
