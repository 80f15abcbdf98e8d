package persist

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// wrap returns q as-is for Postgres. For SQLite it rewrites $N placeholders
// into positional ? placeholders, repeating arguments as needed.
func wrap(q querier, driver string) querier {
	if driver != DriverSQLite {
		return q
	}
	return rebinder{q: q}
}

type rebinder struct {
	q querier
}

func (r rebinder) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query, args = rebind(query, args)
	return r.q.ExecContext(ctx, query, args...)
}

func (r rebinder) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query, args = rebind(query, args)
	return r.q.QueryContext(ctx, query, args...)
}

func (r rebinder) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	query, args = rebind(query, args)
	return r.q.QueryRowContext(ctx, query, args...)
}

// rebind assumes no '$' appears inside string literals, which holds for every
// statement in this package.
func rebind(query string, args []any) (string, []any) {
	if len(args) == 0 || !strings.Contains(query, "$") {
		return query, args
	}

	var b strings.Builder
	b.Grow(len(query))
	out := make([]any, 0, len(args))

	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		n, err := strconv.Atoi(query[i+1 : j])
		if err != nil || n < 1 || n > len(args) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('?')
		out = append(out, args[n-1])
		i = j - 1
	}
	return b.String(), out
}
