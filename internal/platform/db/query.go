package db

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Query builds a filtered, paged SELECT with numbered placeholders. It is
// shared by every repository's List/Search.
type Query struct {
	table   string
	cols    string
	where   []string
	args    []interface{}
	orderBy string
}

func NewQuery(table, cols string) *Query {
	return &Query{table: table, cols: cols}
}

// Where appends an AND condition. Each "?" in clause is replaced by the next
// positional parameter.
func (q *Query) Where(clause string, args ...interface{}) *Query {
	var b strings.Builder
	n := 0
	for _, r := range clause {
		if r == '?' && n < len(args) {
			b.WriteString("$" + strconv.Itoa(len(q.args)+n+1))
			n++
			continue
		}
		b.WriteRune(r)
	}
	q.where = append(q.where, b.String())
	q.args = append(q.args, args[:n]...)
	return q
}

// Eq adds column = value.
func (q *Query) Eq(column string, value interface{}) *Query {
	return q.Where(column+" = ?", value)
}

// Contains matches a case-insensitive substring against any of columns.
func (q *Query) Contains(term string, columns ...string) *Query {
	if term == "" || len(columns) == 0 {
		return q
	}
	parts := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, c := range columns {
		parts[i] = c + " ILIKE ?"
		args[i] = "%" + escapeLike(term) + "%"
	}
	return q.Where("("+strings.Join(parts, " OR ")+")", args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// OrderBy sets the ORDER BY clause (without the keyword).
func (q *Query) OrderBy(orderBy string) *Query {
	q.orderBy = orderBy
	return q
}

func (q *Query) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.table, q.whereSQL())
}

func (q *Query) Args() []interface{} {
	return q.args
}

// SelectSQL returns the unpaged SELECT; its arguments are Args.
func (q *Query) SelectSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.whereSQL())
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql
}

// ListSQL returns the paged SELECT; use ListArgs for its arguments.
func (q *Query) ListSQL() string {
	n := len(q.args)
	return q.SelectSQL() + fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
}

func (q *Query) ListArgs(limit, offset int) []interface{} {
	out := make([]interface{}, 0, len(q.args)+2)
	out = append(out, q.args...)
	return append(out, limit, offset)
}

// SearchParams copies the named query params that are present and non-empty.
func SearchParams(c echo.Context, names ...string) map[string]string {
	params := make(map[string]string, len(names))
	for _, n := range names {
		if v := strings.TrimSpace(c.QueryParam(n)); v != "" {
			params[n] = v
		}
	}
	return params
}
