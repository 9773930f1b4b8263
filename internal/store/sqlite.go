package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
)

func init() {
	sqlite.MustRegisterDeterministicScalarFunction("fold_case", 1, foldCaseFunc)
}

// foldCaseFunc is the SQL fold_case(text) function. SQLite's own lower()
// and LIKE only fold ASCII.
func foldCaseFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return foldCase(v), nil
	case []byte:
		return foldCase(string(v)), nil
	default:
		return v, nil
	}
}

func foldCase(s string) string {
	return strings.ToLower(s)
}

// RecordsFileName is the SQLite database inside a storage directory.
const RecordsFileName = "docmemory.db"

// SQLiteRecordStore implements RecordStore on SQLite.
// Records and embeddings live in separate tables joined by id.
type SQLiteRecordStore struct {
	db   *sql.DB
	path string
}

var _ RecordStore = (*SQLiteRecordStore)(nil)

// recordColumns is the projection every read uses.
const recordColumns = `d.id, d.title, d.content, d.source_file, d.document_type, d.timestamp,
	d.tags, d.relationships, d.metadata, d.summary, d.page_numbers, e.embedding`

const recordFrom = `FROM documents d LEFT JOIN document_embeddings e ON e.id = d.id`

// NewSQLiteRecordStore opens (or creates) the database at path.
// An empty path opens a private in-memory database limited to one connection.
// maxConns bounds the pool; non-positive means runtime.NumCPU().
func NewSQLiteRecordStore(path string, maxConns int) (*SQLiteRecordStore, error) {
	if maxConns <= 0 {
		maxConns = runtime.NumCPU()
	}

	var dsn string
	if path == "" {
		dsn = ":memory:"
		maxConns = 1
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, docerrors.StorageError("create storage directory", err)
		}
		// Pragmas in the DSN apply to every pooled connection.
		dsn = path +
			"?_pragma=journal_mode(WAL)" +
			"&_pragma=busy_timeout(5000)" +
			"&_pragma=synchronous(NORMAL)" +
			"&_pragma=foreign_keys(ON)" +
			"&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, docerrors.StorageError("open database", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(0)

	s := &SQLiteRecordStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, docerrors.StorageError("initialize schema", err)
	}

	slog.Debug("record_store_opened",
		slog.String("path", path),
		slog.Int("max_connections", maxConns))

	return s, nil
}

// initSchema creates the record and embedding tables.
func (s *SQLiteRecordStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		source_file TEXT NOT NULL DEFAULT '',
		document_type TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		relationships TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}',
		summary TEXT NOT NULL DEFAULT '',
		page_numbers TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source_file);

	CREATE TABLE IF NOT EXISTS document_embeddings (
		id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
		embedding BLOB NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces a record and its embedding in one transaction.
func (s *SQLiteRecordStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return docerrors.ValidationError("record id is required", nil)
	}

	tags, err := encodeJSON(rec.Tags, "[]")
	if err != nil {
		return docerrors.StorageError("encode tags", err)
	}
	rels, err := encodeJSON(rec.Relationships, "{}")
	if err != nil {
		return docerrors.StorageError("encode relationships", err)
	}
	meta, err := encodeJSON(rec.Metadata, "{}")
	if err != nil {
		return docerrors.StorageError("encode metadata", err)
	}
	pages, err := encodeJSON(rec.PageNumbers, "[]")
	if err != nil {
		return docerrors.StorageError("encode page numbers", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return docerrors.StorageError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, source_file, document_type, timestamp,
			tags, relationships, metadata, summary, page_numbers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			source_file = excluded.source_file,
			document_type = excluded.document_type,
			timestamp = excluded.timestamp,
			tags = excluded.tags,
			relationships = excluded.relationships,
			metadata = excluded.metadata,
			summary = excluded.summary,
			page_numbers = excluded.page_numbers`,
		rec.ID, rec.Title, rec.Content, rec.SourceFile, rec.DocumentType,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		tags, rels, meta, rec.Summary, pages)
	if err != nil {
		return docerrors.StorageError("put record "+rec.ID, err)
	}

	if rec.Embedding != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO document_embeddings (id, embedding) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding`,
			rec.ID, EncodeVector(rec.Embedding))
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM document_embeddings WHERE id = ?`, rec.ID)
	}
	if err != nil {
		return docerrors.StorageError("put embedding "+rec.ID, err)
	}

	return docerrors.StorageError("commit record "+rec.ID, tx.Commit())
}

// Get returns the record with id, or (nil, nil) if there is none.
func (s *SQLiteRecordStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` `+recordFrom+` WHERE d.id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, docerrors.StorageError("get record "+id, err)
	}
	return rec, nil
}

// Delete removes a record; its embedding row cascades.
func (s *SQLiteRecordStore) Delete(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, docerrors.StorageError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_embeddings WHERE id = ?`, id); err != nil {
		return false, docerrors.StorageError("delete embedding "+id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, docerrors.StorageError("delete record "+id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, docerrors.StorageError("delete record "+id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, docerrors.StorageError("commit delete "+id, err)
	}
	return n > 0, nil
}

// List returns a page of records ordered by id.
func (s *SQLiteRecordStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	if offset < 0 {
		offset = 0
	}
	return s.queryRecords(ctx, "list records",
		`SELECT `+recordColumns+` `+recordFrom+` ORDER BY d.id LIMIT ? OFFSET ?`, limit, offset)
}

// Count returns the number of records.
func (s *SQLiteRecordStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, docerrors.StorageError("count records", err)
	}
	return n, nil
}

// IDs returns every record id in ascending order.
func (s *SQLiteRecordStore) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, docerrors.StorageError("list ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, docerrors.StorageError("scan id", err)
		}
		ids = append(ids, id)
	}
	return ids, docerrors.StorageError("list ids", rows.Err())
}

// Embeddings streams every stored embedding in insertion order.
func (s *SQLiteRecordStore) Embeddings(ctx context.Context, fn func(id string, vec []float32) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM document_embeddings ORDER BY rowid`)
	if err != nil {
		return docerrors.StorageError("load embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return docerrors.StorageError("scan embedding", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return docerrors.New(docerrors.ErrCodeCorruptStore, "corrupt embedding for "+id, err)
		}
		if err := fn(id, vec); err != nil {
			return err
		}
	}
	return docerrors.StorageError("load embeddings", rows.Err())
}

// SearchContent runs a Unicode case-insensitive substring match over content
// and title.
func (s *SQLiteRecordStore) SearchContent(ctx context.Context, query string, limit int) ([]*Record, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []*Record{}, nil
	}
	needle := foldCase(query)
	return s.queryRecords(ctx, "search content",
		`SELECT `+recordColumns+` `+recordFrom+`
		WHERE instr(fold_case(d.content), ?) > 0 OR instr(fold_case(d.title), ?) > 0
		ORDER BY LENGTH(d.content), d.id
		LIMIT ?`, needle, needle, limit)
}

// FindByTags returns records carrying any of tags, ordered by id.
func (s *SQLiteRecordStore) FindByTags(ctx context.Context, tags []string, limit int) ([]*Record, error) {
	if len(tags) == 0 {
		return []*Record{}, nil
	}
	if limit <= 0 {
		limit = -1
	}

	placeholders := make([]string, len(tags))
	args := make([]any, 0, len(tags)+1)
	for i, tag := range tags {
		placeholders[i] = "?"
		args = append(args, tag)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT `+recordColumns+` `+recordFrom+`
		WHERE EXISTS (SELECT 1 FROM json_each(d.tags) t WHERE t.value IN (%s))
		ORDER BY d.id
		LIMIT ?`, strings.Join(placeholders, ","))

	return s.queryRecords(ctx, "find by tags", query, args...)
}

// FindBySource returns records whose source_file equals source.
func (s *SQLiteRecordStore) FindBySource(ctx context.Context, source string) ([]*Record, error) {
	return s.queryRecords(ctx, "find by source",
		`SELECT `+recordColumns+` `+recordFrom+` WHERE d.source_file = ? ORDER BY d.id`, source)
}

// Path returns the database path ("" for in-memory).
func (s *SQLiteRecordStore) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the pool.
func (s *SQLiteRecordStore) Close() error {
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

func (s *SQLiteRecordStore) queryRecords(ctx context.Context, op, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, docerrors.StorageError(op, err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, docerrors.StorageError(op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, docerrors.StorageError(op, err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                         Record
		ts, tags, rels, meta, pages string
		blob                        []byte
	)
	err := row.Scan(&rec.ID, &rec.Title, &rec.Content, &rec.SourceFile, &rec.DocumentType, &ts,
		&tags, &rels, &meta, &rec.Summary, &pages, &blob)
	if err != nil {
		return nil, err
	}

	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("record %s: bad timestamp %q: %w", rec.ID, ts, err)
	}
	if err := decodeJSON(tags, &rec.Tags); err != nil {
		return nil, fmt.Errorf("record %s: tags: %w", rec.ID, err)
	}
	if err := decodeJSON(rels, &rec.Relationships); err != nil {
		return nil, fmt.Errorf("record %s: relationships: %w", rec.ID, err)
	}
	if err := decodeJSON(meta, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("record %s: metadata: %w", rec.ID, err)
	}
	if err := decodeJSON(pages, &rec.PageNumbers); err != nil {
		return nil, fmt.Errorf("record %s: page numbers: %w", rec.ID, err)
	}
	if rec.Embedding, err = DecodeVector(blob); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	return &rec, nil
}

