package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/grcplatform/grc/internal/domain"
	"github.com/grcplatform/grc/internal/tenantctx"
)

// tenantBoundTables are the tables whose rows are owned by one tenant.
var tenantBoundTables = map[string]bool{
	"users":                  true,
	"frameworks":             true,
	"vendors":                true,
	"slas":                   true,
	"consent_configurations": true,
	"consent_acceptances":    true,
	"consent_withdrawals":    true,
	"grc_logs":               true,
}

// IsTenantBound reports whether table holds tenant-owned rows.
func IsTenantBound(table string) bool { return tenantBoundTables[table] }

// Query is a minimal SELECT builder. Conditions use "?" placeholders which
// are numbered in the order they are added.
type Query struct {
	table   string
	columns string
	conds   []string
	args    []any
	scoped  bool
	global  bool
	orderBy string
	limit   int
}

// Select starts a query over table returning columns.
func Select(table, columns string) *Query {
	return &Query{table: table, columns: columns}
}

// Where adds an AND-ed condition.
func (q *Query) Where(cond string, args ...any) *Query {
	var b strings.Builder
	n := len(q.args)
	for _, r := range cond {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	q.conds = append(q.conds, b.String())
	q.args = append(q.args, args...)
	return q
}

// ForTenant adds the tenant predicate.
func ForTenant(q *Query, tenantID int64) *Query {
	q.scoped = true
	return q.Where("tenant_id = ?", tenantID)
}

// Global marks a query over a tenant-bound table as deliberately
// cross-tenant. Used for principal lookups that precede tenant resolution.
func (q *Query) Global() *Query {
	q.global = true
	return q
}

// OrderBy sets the ORDER BY expression.
func (q *Query) OrderBy(expr string) *Query {
	q.orderBy = expr
	return q
}

// Limit caps the result size; zero means no limit.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Scoped reports whether the tenant predicate has been added.
func (q *Query) Scoped() bool { return q.scoped }

// Build renders the SQL and its arguments. Under a strict-scope context a
// tenant-bound table without a tenant predicate is refused.
func (q *Query) Build(ctx context.Context) (string, []any, error) {
	if tenantBoundTables[q.table] && !q.scoped && !q.global && tenantctx.StrictScope(ctx) {
		return "", nil, fmt.Errorf("unscoped query on %s: %w", q.table, domain.ErrTenantRequired)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(q.columns)
	b.WriteString(" FROM ")
	b.WriteString(q.table)
	if len(q.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	if q.orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.orderBy)
	}
	args := q.args
	if q.limit > 0 {
		args = append(args[:len(args):len(args)], q.limit)
		b.WriteString(" LIMIT $")
		b.WriteString(strconv.Itoa(len(args)))
	}
	return b.String(), args, nil
}

// scopedSelect starts a query over a tenant-bound table already scoped to
// the tenant in ctx.
func scopedSelect(ctx context.Context, table, columns string) (*Query, error) {
	tid, err := tenantFromCtx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", table, err)
	}
	return ForTenant(Select(table, columns), tid), nil
}
