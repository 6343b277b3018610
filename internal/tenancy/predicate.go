package tenancy

import (
	"strconv"
	"strings"
)

const tenantColumn = "tenant_id"

// Predicate builds a positional-parameter WHERE clause whose first term is
// always `tenant_id = $1`. Caller filters are appended with AND; a filter on
// the tenant column itself is dropped.
type Predicate struct {
	prefix  string
	clauses []string
	args    []any
}

// For starts a predicate scoped to tenantID.
func For(tenantID string) *Predicate {
	return Qualified("", tenantID)
}

// Qualified is For with a table alias, e.g. Qualified("u", t) yields u.tenant_id = $1.
func Qualified(alias, tenantID string) *Predicate {
	p := &Predicate{}
	if alias != "" {
		p.prefix = alias + "."
	}
	p.clauses = append(p.clauses, p.prefix+tenantColumn+" = "+p.Arg(tenantID))
	return p
}

// Arg registers a value and returns its placeholder.
func (p *Predicate) Arg(v any) string {
	p.args = append(p.args, v)
	return "$" + strconv.Itoa(len(p.args))
}

// Eq adds column = value. Empty strings are treated as "no filter".
func (p *Predicate) Eq(column string, v any) *Predicate {
	if isTenantColumn(column) {
		return p
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return p
	}
	p.clauses = append(p.clauses, p.prefix+column+" = "+p.Arg(v))
	return p
}

// In adds column IN (...). An empty list adds nothing.
func (p *Predicate) In(column string, values []string) *Predicate {
	if isTenantColumn(column) || len(values) == 0 {
		return p
	}
	holders := make([]string, 0, len(values))
	for _, v := range values {
		holders = append(holders, p.Arg(v))
	}
	p.clauses = append(p.clauses, p.prefix+column+" in ("+strings.Join(holders, ", ")+")")
	return p
}

// NotDeleted adds deleted_at is null.
func (p *Predicate) NotDeleted() *Predicate {
	p.clauses = append(p.clauses, p.prefix+"deleted_at is null")
	return p
}

// SQL renders the predicate without the leading WHERE keyword.
func (p *Predicate) SQL() string {
	return strings.Join(p.clauses, " and ")
}

// Args returns the positional arguments in placeholder order.
func (p *Predicate) Args() []any {
	out := make([]any, len(p.args))
	copy(out, p.args)
	return out
}

func isTenantColumn(column string) bool {
	column = strings.ToLower(strings.TrimSpace(column))
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		column = column[i+1:]
	}
	return column == tenantColumn
}
