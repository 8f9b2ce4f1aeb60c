package db

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// rowSource is implemented once per backend: the client/server engine yields
// name-addressable rows, the embedded engine yields positional values that are
// wrapped with a shared column index.
type rowSource interface {
	lookup(column string) (any, bool)
	columns() []string
}

// Row is a single fetched row addressable by column name. Accessors return
// the zero value for NULL or missing columns and tolerate the representation
// differences between backends (int vs bool, text vs timestamp).
type Row struct {
	src rowSource
}

type mapRow map[string]any

func (m mapRow) lookup(column string) (any, bool) {
	v, ok := m[column]
	return v, ok
}

func (m mapRow) columns() []string {
	cols := make([]string, 0, len(m))
	for k := range m {
		cols = append(cols, k)
	}
	return cols
}

type positionalRow struct {
	values []any
	index  map[string]int
	names  []string
}

func (p positionalRow) lookup(column string) (any, bool) {
	i, ok := p.index[column]
	if !ok || i >= len(p.values) {
		return nil, false
	}
	return p.values[i], true
}

func (p positionalRow) columns() []string { return p.names }

func newPositionalIndex(names []string) map[string]int {
	index := make(map[string]int, len(names))
	for i, name := range names {
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	return index
}

func (r Row) Columns() []string {
	if r.src == nil {
		return nil
	}
	return r.src.columns()
}

func (r Row) Has(column string) bool {
	if r.src == nil {
		return false
	}
	_, ok := r.src.lookup(column)
	return ok
}

func (r Row) Value(column string) any {
	if r.src == nil {
		return nil
	}
	v, _ := r.src.lookup(column)
	return v
}

func (r Row) IsNull(column string) bool {
	return r.Value(column) == nil
}

func (r Row) Int64(column string) int64 {
	switch v := r.Value(column).(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case int16:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func (r Row) Int(column string) int {
	return int(r.Int64(column))
}

func (r Row) Float64(column string) float64 {
	switch v := r.Value(column).(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func (r Row) String(column string) string {
	switch v := r.Value(column).(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) Bool(column string) bool {
	switch v := r.Value(column).(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int32:
		return v != 0
	case float64:
		return v != 0
	case []byte:
		return parseBool(string(v))
	case string:
		return parseBool(v)
	default:
		return false
	}
}

func (r Row) Time(column string) time.Time {
	t, _ := toTime(r.Value(column))
	return t
}

func (r Row) NullTime(column string) sql.NullTime {
	t, ok := toTime(r.Value(column))
	return sql.NullTime{Time: t, Valid: ok}
}

func (r Row) NullInt64(column string) sql.NullInt64 {
	if r.IsNull(column) {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: r.Int64(column), Valid: true}
}

func (r Row) NullString(column string) sql.NullString {
	if r.IsNull(column) {
		return sql.NullString{}
	}
	return sql.NullString{String: r.String(column), Valid: true}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes":
		return true
	default:
		return false
	}
}

// timeLayouts covers what the embedded engine hands back for text-stored
// timestamps, starting with the fixed-width layout written by this package.
var timeLayouts = []string{
	sqliteTimeLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t.UTC(), true
	case int64:
		return time.Unix(t, 0).UTC(), true
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	default:
		return time.Time{}, false
	}
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
