package database

import "github.com/koustreak/autorest/internal/errs"

// ScanRows reads all rows from the result set and returns them as a slice
// of maps keyed by result column name (the alias, when the query set one).
//
// The returned slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows, so callers do not need to call Close().
func ScanRows(rows Rows) ([]map[string]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	result := make([]map[string]any, 0)

	for rows.Next() {
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, wrap("failed to scan row", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = dest[i]
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("error during row iteration", err)
	}

	return result, nil
}

// ScanStrings reads a single text column from every row.
// ScanStrings always closes the Rows.
func ScanStrings(rows Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, wrap("failed to scan text column", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("error during row iteration", err)
	}
	return out, nil
}

// wrap keeps the kind a driver already assigned, so a bad literal stays
// invalid_input instead of becoming query_failed.
func wrap(msg string, err error) error {
	kind := errs.KindOf(err)
	if kind == errs.ErrKindUnknown {
		kind = errs.ErrKindQueryFailed
	}
	return errs.Wrap(kind, msg, err)
}
