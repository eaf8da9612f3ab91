// Package source loads the tabular inputs of both pipelines through an
// in-memory DuckDB engine, which reads CSV, Parquet and JSON files directly.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/go-playground/validator/v10"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"
)

var (
	// ErrFileNotFound indicates an input path does not exist.
	ErrFileNotFound = errors.New("source: file not found")
	// ErrUnsupportedFormat indicates the file extension is not recognised.
	ErrUnsupportedFormat = errors.New("source: unsupported file format")
)

// SchemaError reports a required column missing from an input file.
type SchemaError struct {
	File   string
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("source: %s: missing required column %q", e.File, e.Column)
}

// RowError reports a row that violates the expected schema.
type RowError struct {
	File string
	Row  int64
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("source: %s: row %d: %v", e.File, e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Engine wraps an in-memory DuckDB database.
type Engine struct {
	db       *sql.DB
	sq       squirrel.StatementBuilderType
	validate *validator.Validate
	logger   zerolog.Logger
}

// engineDSN opens an in-memory database. Loaders number rows with
// row_number() OVER () and rely on it following file order, which DuckDB only
// guarantees for parallel scans while preserve_insertion_order is on.
const engineDSN = "?preserve_insertion_order=true"

// Open starts an in-memory DuckDB engine.
func Open(ctx context.Context, logger zerolog.Logger) (*Engine, error) {
	db, err := sql.Open("duckdb", engineDSN)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	return &Engine{
		db:       db,
		sq:       squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		validate: validator.New(),
		logger:   logger.With().Str("component", "source").Logger(),
	}, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Columns lists the column names of a file in declaration order.
func (e *Engine) Columns(ctx context.Context, path string) ([]string, error) {
	rel, err := relation(path)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, "SELECT column_name FROM (DESCRIBE SELECT * FROM "+rel+")")
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", path, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("describe %s: %w", path, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe %s: %w", path, err)
	}
	return cols, nil
}

// requireColumns checks that every non-empty name in required exists and
// returns the set of available columns.
func (e *Engine) requireColumns(ctx context.Context, path string, required ...string) (map[string]bool, error) {
	cols, err := e.Columns(ctx, path)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	for _, c := range required {
		if c != "" && !have[c] {
			return nil, &SchemaError{File: path, Column: c}
		}
	}
	return have, nil
}

// relation returns the DuckDB table function reading path.
func relation(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	lower := strings.ToLower(path)
	switch {
	case hasAnySuffix(lower, ".csv", ".csv.gz", ".tsv"):
		return "read_csv_auto(" + quoteLiteral(path) + ", header=true)", nil
	case isParquet(lower):
		return "read_parquet(" + quoteLiteral(path) + ")", nil
	case hasAnySuffix(lower, ".json", ".ndjson", ".jsonl"):
		return "read_json_auto(" + quoteLiteral(path) + ")", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// IsParquetPath reports whether path names a Parquet file.
func IsParquetPath(path string) bool {
	return isParquet(strings.ToLower(path))
}

func isParquet(lower string) bool {
	return hasAnySuffix(lower, ".parquet", ".parq", ".pq", ".parq.gzip", ".parquet.gzip", ".parquet.gz")
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func quoteIdent(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
