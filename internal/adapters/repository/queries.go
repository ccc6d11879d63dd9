package repository

import (
	"strconv"
	"strings"

	"github.com/okian/usagedash/internal/domain/bucket"
	"github.com/okian/usagedash/internal/domain/ledger"
	"github.com/okian/usagedash/internal/domain/model"
)

// Request table columns.
const (
	colKeyID     = "key_id"
	colCreatedAt = "created_at"
	colCost      = "cost"
	colTokens    = "total_tokens"
)

// tokensExpr estimates tokens from cost where the row did not record them.
var tokensExpr = "coalesce(" + colTokens + ", floor(coalesce(" + colCost + ", 0) / " + //nolint:gochecknoglobals // derived SQL fragment
	strconv.FormatFloat(model.CostPerToken, 'f', -1, 64) + ")::bigint)"

// statement is SQL with positional arguments.
type statement struct {
	sql  string
	args []any
}

type builder struct {
	sb   strings.Builder
	args []any
}

func (b *builder) write(s ...string) *builder {
	for _, p := range s {
		b.sb.WriteString(p)
	}
	return b
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) build() statement {
	return statement{sql: b.sb.String(), args: b.args}
}

// where renders the predicate for q, or nothing when q selects every row.
func (b *builder) where(q ledger.Query) *builder {
	var conds []string
	if !q.Window.AllTime {
		conds = append(conds,
			colCreatedAt+" >= "+b.arg(q.Window.From),
			colCreatedAt+" < "+b.arg(q.Window.To))
	}

	var keyConds []string
	if len(q.KeyIDs) > 0 {
		keyConds = append(keyConds, colKeyID+" = ANY("+b.arg(q.KeyIDs)+")")
	}
	for _, p := range q.KeyPrefixes {
		keyConds = append(keyConds, colKeyID+" LIKE "+b.arg(escapeLike(p)+"%")+` ESCAPE '\'`)
	}
	switch len(keyConds) {
	case 0:
	case 1:
		conds = append(conds, keyConds[0])
	default:
		conds = append(conds, "("+strings.Join(keyConds, " OR ")+")")
	}

	if len(q.ExcludeKeyIDs) > 0 {
		conds = append(conds, "NOT ("+colKeyID+" = ANY("+b.arg(q.ExcludeKeyIDs)+"))")
	}

	if len(conds) > 0 {
		b.write(" WHERE ", strings.Join(conds, " AND "))
	}
	return b
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func countStatement(table string, q ledger.Query) statement {
	b := &builder{}
	b.write("SELECT count(*) FROM ", table).where(q)
	return b.build()
}

func scanStatement(table string, q ledger.Query, limit int) statement {
	b := &builder{}
	b.write("SELECT ", colKeyID, ", ", colCreatedAt, ", coalesce(", colCost, ", 0)::text, ", colTokens,
		" FROM ", table).where(q)
	b.write(" ORDER BY ", colCreatedAt, " DESC")
	if limit > 0 {
		b.write(" LIMIT ", b.arg(limit))
	}
	return b.build()
}

func registryStatement(table string) statement {
	return statement{sql: "SELECT key_id, org_id, coalesce(label, '') FROM " + table +
		" WHERE key_id IS NOT NULL AND org_id IS NOT NULL ORDER BY key_id"}
}

func orgNamesStatement(table string) statement {
	return statement{sql: "SELECT id::text, coalesce(name, '') FROM " + table}
}

func seriesStatement(table string, q ledger.Query, g bucket.Granularity) statement {
	b := &builder{}
	trunc := "date_trunc('" + g.String() + "', " + colCreatedAt + " AT TIME ZONE 'UTC')"
	b.write("SELECT ", trunc, " AS bucket, count(*), coalesce(sum(", colCost, "), 0)::text, coalesce(sum(",
		tokensExpr, "), 0)::bigint FROM ", table).where(q)
	b.write(" GROUP BY 1 ORDER BY 1")
	return b.build()
}
