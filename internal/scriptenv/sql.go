package scriptenv

import (
	"context"
	"database/sql"

	"go.starlark.net/starlark"
)

// NewSQLGlobals builds the globals for Postgres scripts: query(sql) returns
// the result rows as a list of dicts, execute(sql) runs a statement and
// returns {"rowCount": n}.
func NewSQLGlobals(ctx context.Context, db *sql.DB) starlark.StringDict {
	return starlark.StringDict{
		"query": starlark.NewBuiltin("query", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var text string
			if err := starlark.UnpackPositionalArgs("query", args, kwargs, 1, &text); err != nil {
				return nil, err
			}
			rows, err := db.QueryContext(ctx, text)
			if err != nil {
				return nil, err
			}
			defer rows.Close()

			result, err := ScanRows(rows)
			if err != nil {
				return nil, err
			}
			items := make([]interface{}, 0, len(result))
			for _, row := range result {
				items = append(items, row)
			}
			return ToStarlark(items)
		}),
		"execute": starlark.NewBuiltin("execute", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var text string
			if err := starlark.UnpackPositionalArgs("execute", args, kwargs, 1, &text); err != nil {
				return nil, err
			}
			res, err := db.ExecContext(ctx, text)
			if err != nil {
				return nil, err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				affected = 0
			}
			return ToStarlark(map[string]interface{}{"rowCount": affected})
		}),
	}
}

// ScanRows materializes *sql.Rows into a slice of column-name-keyed maps.
// Byte slices are converted to strings for JSON serialization.
func ScanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = vals[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
