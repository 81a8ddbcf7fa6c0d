// Package store owns the SQLite data store behind the tool server: query
// execution with a hard result-size cap, schema introspection, and
// idempotent seeding of the transactions table.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// MaxRows is the hard cap on rows returned by a single query, regardless of
// the underlying match count. It bounds what flows back into model context.
const MaxRows = 100

// Store wraps a single SQLite connection. The tool server opens exactly one
// Store per process lifetime and closes it on exit.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path with read-write
// intent. Used by the seeding path only.
func Open(path string) (*Store, error) {
	return open(fmt.Sprintf("file:%s", path))
}

// OpenReadOnly opens the database at path with read-only intent. The serving
// path never needs a write-capable connection; combined with the textual
// safety gate above it, this is the second line of defense.
func OpenReadOnly(path string) (*Store, error) {
	return open(fmt.Sprintf("file:%s?mode=ro", path))
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Result is a bounded query result: at most MaxRows rows, each a mapping
// from column name to a transport-safe scalar. TotalRows is the true match
// count even when Truncated.
type Result struct {
	Rows      []map[string]any
	TotalRows int
	Truncated bool
}

// Query executes sql and collects up to MaxRows rows, continuing past the
// cap only to count the true total. Values are coerced to scalar forms that
// survive JSON transport.
func (s *Store) Query(ctx context.Context, query string) (*Result, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		res.TotalRows++
		if res.TotalRows > MaxRows {
			res.Truncated = true
			continue
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = coerce(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// coerce maps driver values to transport-safe scalars: byte slices become
// strings, timestamps become their canonical SQLite text form, and numeric
// and string scalars pass through unchanged.
func coerce(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	default:
		return v
	}
}

// Schema returns the concatenated data-definition statements for all user
// tables, the context the model plans against.
func (s *Store) Schema(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type='table' AND sql IS NOT NULL ORDER BY name")
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var ddl string
		if err := rows.Scan(&ddl); err != nil {
			return "", fmt.Errorf("read schema: %w", err)
		}
		stmts = append(stmts, ddl)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	return strings.Join(stmts, "\n\n"), nil
}
