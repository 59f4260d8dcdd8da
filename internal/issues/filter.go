package issues

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
)

// Field is a filterable column.
type Field string

const (
	FieldCategory Field = "category"
	FieldStatus   Field = "status"
	FieldUrgency  Field = "urgency"
)

// filterFields fixes the fold order so the same filters always produce the
// same SQL text and argument order.
var filterFields = []Field{FieldCategory, FieldStatus, FieldUrgency}

// Filters maps a field to the raw value it must equal. Absent or empty
// entries contribute no predicate.
type Filters map[Field]string

// FiltersFromQuery picks the known filter keys out of a query string.
// Unknown keys are ignored.
func FiltersFromQuery(q url.Values) Filters {
	f := Filters{}
	for _, field := range filterFields {
		if v := q.Get(string(field)); v != "" {
			f[field] = v
		}
	}
	return f
}

// Dialect controls placeholder syntax for the two SQL engines we run on.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// Placeholder returns the n-th (1-based) positional parameter marker.
func (d Dialect) Placeholder(n int) string {
	if d == DialectSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// anyOf renders "expr matches one of values" starting at parameter index
// next. Postgres binds a single array parameter; SQLite expands an IN list.
func (d Dialect) anyOf(expr string, values []string, next int) (string, []any) {
	if d == DialectPostgres {
		return fmt.Sprintf("%s = ANY(%s)", expr, d.Placeholder(next)), []any{pq.Array(values)}
	}
	marks := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		marks[i] = d.Placeholder(next + i)
		args[i] = v
	}
	return fmt.Sprintf("%s IN (%s)", expr, strings.Join(marks, ", ")), args
}

// Query is a SQL statement with its positional arguments.
type Query struct {
	SQL  string
	Args []any
}

const summaryColumns = `id, username, category, description, latitude, longitude, status, urgency,
	image IS NOT NULL AS has_before, after_image IS NOT NULL AS has_after, created_at`

// BuildListQuery composes the listing SELECT. Each present filter adds one
// equality predicate; the n-th predicate binds the n-th argument.
func BuildListQuery(f Filters, d Dialect) Query {
	var conditions []string
	var args []any

	for _, field := range filterFields {
		v, ok := f[field]
		if !ok || v == "" {
			continue
		}
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf("%s = %s", field, d.Placeholder(len(args))))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(summaryColumns)
	b.WriteString(" FROM issues")
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	b.WriteString(" ORDER BY id DESC")

	return Query{SQL: b.String(), Args: args}
}
