package db

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Row is one result row keyed by column name. Missing columns
// and SQL NULLs read back as zero values through the accessors,
// so callers never branch on absence.
type Row map[string]any

// Int returns the named column as an int64, treating NULL,
// absent, and non-numeric values as 0.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case []byte:
		return parseInt(string(v))
	case string:
		return parseInt(v)
	}
	return 0
}

// parseInt reads a driver-reported numeric string, 0 on any
// non-integer value.
func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// String returns the named column as a string, with NULL and
// absent reading as "". Driver-level date values normalize to
// YYYY-MM-DD so both backends report calendar dates identically.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02")
	}
	return ""
}

// NullInt returns the named column as *int64, nil for NULL or
// absent.
func (r Row) NullInt(col string) *int64 {
	if v, ok := r[col]; !ok || v == nil {
		return nil
	}
	n := r.Int(col)
	return &n
}

// Query runs one read-only round trip and returns every row as
// a column-name map. No retries, no transaction.
func (s *Store) Query(
	ctx context.Context, query string, args ...any,
) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query execution failed: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	return out, nil
}

// QueryOne runs a query expected to yield at most one row.
// Zero matches return an empty Row, not an error; callers read
// absent columns as zero through the Row accessors.
func (s *Store) QueryOne(
	ctx context.Context, query string, args ...any,
) (Row, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return Row{}, nil
	}
	return rows[0], nil
}
