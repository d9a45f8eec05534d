package store

import (
	"context"
	"reflect"
)

// QueryJSON runs an arbitrary read-only SQL statement and returns up to
// maxRows rows as generic column->value maps, for C9's execute_sql tool.
// The caller is responsible for rejecting non-SELECT statements before
// calling this.
func (s *Store) QueryJSON(ctx context.Context, sqlText string, maxRows int) ([]map[string]any, error) {
	rows, err := s.Execute(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := rows.Columns()
	types := rows.ColumnTypes()

	out := make([]map[string]any, 0, maxRows)
	for rows.Next() {
		if len(out) >= maxRows {
			break
		}
		values := make([]any, len(cols))
		for i, ct := range types {
			values[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(values...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = reflect.ValueOf(values[i]).Elem().Interface()
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
