package db

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dialect selects the relational engine a canonical statement is compiled for.
//
// Canonical statements use `?` placeholders and SQLite-style DDL types, so the
// embedded engine runs them unchanged and the client/server engine gets them
// rewritten by Translate.
type Dialect int

const (
	DialectSQLite Dialect = iota + 1
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

func ParseDialect(raw string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqlite", "sqlite3", "":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	default:
		return 0, fmt.Errorf("unsupported %s type", raw)
	}
}

var (
	reIdentityColumn = regexp.MustCompile(`(?i)\bINTEGER\s+PRIMARY\s+KEY\s+AUTOINCREMENT\b`)
	reDatetime       = regexp.MustCompile(`(?i)\bDATETIME\b`)
	reReal           = regexp.MustCompile(`(?i)\bREAL\b`)
	reInteger        = regexp.MustCompile(`(?i)\bINTEGER\b`)
	reBlob           = regexp.MustCompile(`(?i)\bBLOB\b`)
	reReturning      = regexp.MustCompile(`(?i)\bRETURNING\b`)
	reOnConflict     = regexp.MustCompile(`(?i)\bON\s+CONFLICT\b`)
)

// Translate compiles a canonical statement for the target dialect. It is a
// pure function of its arguments.
//
// For DialectPostgres it numbers placeholders ($1, $2, ...), rewrites DDL
// types and appends "RETURNING id" to plain INSERT statements, since that
// engine has no implicit last-inserted id. Statements that already carry
// RETURNING or ON CONFLICT are left alone.
func Translate(d Dialect, stmt string) string {
	if d != DialectPostgres {
		return stmt
	}

	out := stmt
	if isDDL(out) {
		out = reIdentityColumn.ReplaceAllString(out, "BIGSERIAL PRIMARY KEY")
		out = reDatetime.ReplaceAllString(out, "TIMESTAMPTZ")
		out = reReal.ReplaceAllString(out, "DOUBLE PRECISION")
		out = reInteger.ReplaceAllString(out, "BIGINT")
		out = reBlob.ReplaceAllString(out, "BYTEA")
	}

	out = numberPlaceholders(out)

	if isPlainInsert(out) {
		out = strings.TrimRight(out, "; \t\r\n") + " RETURNING id"
	}
	return out
}

func isDDL(stmt string) bool {
	head := leadingKeyword(stmt)
	return head == "CREATE" || head == "ALTER"
}

func isPlainInsert(stmt string) bool {
	if leadingKeyword(stmt) != "INSERT" {
		return false
	}
	return !reReturning.MatchString(stmt) && !reOnConflict.MatchString(stmt)
}

func leadingKeyword(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// numberPlaceholders replaces every `?` outside quotes and comments with $n.
func numberPlaceholders(stmt string) string {
	var b strings.Builder
	b.Grow(len(stmt) + 8)

	n := 0
	inSingle, inDouble, inComment := false, false, false
	for i := 0; i < len(stmt); i++ {
		ch := stmt[i]
		switch {
		case inComment:
			if ch == '\n' {
				inComment = false
			}
		case inSingle:
			if ch == '\'' {
				inSingle = false
			}
		case inDouble:
			if ch == '"' {
				inDouble = false
			}
		case ch == '\'':
			inSingle = true
		case ch == '"':
			inDouble = true
		case ch == '-' && i+1 < len(stmt) && stmt[i+1] == '-':
			inComment = true
		case ch == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// Placeholders returns "?, ?, ?" for n arguments, for use inside IN (...).
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
