package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// CopyCSVToParquet rewrites a CSV file as a gzip-compressed Parquet file.
// Every column is read as text and only the columns named in types are cast,
// so decimal strings and ids are stored exactly as written.
func (e *Engine) CopyCSVToParquet(ctx context.Context, csvPath, parquetPath string, types map[string]string) error {
	stmt := fmt.Sprintf("COPY (SELECT %s FROM read_csv(%s, header=true, all_varchar=true)) TO %s (FORMAT PARQUET, COMPRESSION GZIP)",
		projection(types), quoteLiteral(csvPath), quoteLiteral(parquetPath))
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("copy %s to parquet: %w", csvPath, err)
	}
	e.logger.Debug().Str("from", csvPath).Str("to", parquetPath).Msg("wrote parquet")
	return nil
}

func projection(types map[string]string) string {
	if len(types) == 0 {
		return "*"
	}
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	casts := make([]string, len(names))
	for i, name := range names {
		casts[i] = fmt.Sprintf("CAST(%s AS %s) AS %s", quoteIdent(name), types[name], quoteIdent(name))
	}
	return "* REPLACE (" + strings.Join(casts, ", ") + ")"
}
