package database

import (
	"fmt"
	"strings"
	"time"
)

// Rows is a fully materialized result set.
type Rows struct {
	Columns []string
	Values  [][]interface{}
}

// Len returns the number of rows.
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// Empty reports whether the result has no rows.
func (r *Rows) Empty() bool {
	return r.Len() == 0
}

// String renders the rows as a pipe separated table with a header line.
func (r *Rows) String() string {
	if r.Empty() {
		return "(no rows)"
	}

	lines := make([]string, 0, len(r.Values)+1)
	lines = append(lines, strings.Join(r.Columns, " | "))
	for _, row := range r.Values {
		lines = append(lines, joinValues(row, " | "))
	}
	return strings.Join(lines, "\n")
}

// Maps returns one column-keyed map per row.
func (r *Rows) Maps() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, r.Len())
	if r == nil {
		return out
	}
	for _, row := range r.Values {
		m := make(map[string]interface{}, len(r.Columns))
		for i, col := range r.Columns {
			m[col] = row[i]
		}
		out = append(out, m)
	}
	return out
}

func joinValues(row []interface{}, sep string) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, sep)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}
