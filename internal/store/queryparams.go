package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dialect distinguishes the two supported SQL backends purely for
// placeholder rendering and FOR UPDATE support — query text itself is
// shared except where noted in queries_postgres.go / queries_sqlite.go.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// Placeholder renders the backend's bind-parameter syntax for the 1-based
// index: "$N" for PostgreSQL, "?N" for the SQLite driver dialect used here
// (modernc.org/sqlite accepts named/numbered "?NNN" placeholders).
func (d Dialect) Placeholder(index int64) string {
	switch d {
	case DialectPostgres:
		return "$" + strconv.FormatInt(index, 10)
	default:
		return "?" + strconv.FormatInt(index, 10)
	}
}

// QueryParams is an append-only, typed bind-parameter list.
type QueryParams struct {
	dialect Dialect
	args    []any
}

// NewQueryParams builds an empty QueryParams for dialect.
func NewQueryParams(dialect Dialect) *QueryParams {
	return &QueryParams{dialect: dialect}
}

// Push appends v and returns its 1-based position.
func (p *QueryParams) Push(v any) int64 {
	p.args = append(p.args, v)
	return int64(len(p.args))
}

// Len reports the current parameter count.
func (p *QueryParams) Len() int64 { return int64(len(p.args)) }

// Args returns the accumulated bind values in order.
func (p *QueryParams) Args() []any { return p.args }

// placeholderToken matches an abstract placeholder: "$$" (a fresh slot to
// number sequentially) or "$" followed by digits (an already-numbered
// slot, relative to 1, that needs shifting to sit after `start`'s base).
var placeholderToken = regexp.MustCompile(`\$(\$|[0-9]+)`)

// ReplaceArgPlaceholders walks query substituting every abstract
// placeholder token with the dialect's native bind-parameter syntax,
// starting the running sequence at `start`. Two token shapes are
// recognized, matching the source's replace_arg_placeholders contract:
//
//   - "$$" takes the next value in the running sequence (start, start+1, ...).
//   - "$N" (already relative-numbered, e.g. from a sub-query built assuming
//     it starts at 1) is shifted to N+start-1, so it lands correctly once
//     spliced after `start`'s preceding parameters.
//
// Every token encountered — of either shape — advances the running
// sequence by one, which is what keeps a later "$$" numbered correctly
// relative to numbered tokens that appeared before it.
func ReplaceArgPlaceholders(dialect Dialect, query string, start int64) string {
	seq := start
	return placeholderToken.ReplaceAllStringFunc(query, func(tok string) string {
		defer func() { seq++ }()
		if tok == "$$" {
			return dialect.Placeholder(seq)
		}
		n, err := strconv.ParseInt(tok[1:], 10, 64)
		if err != nil {
			panic(fmt.Sprintf("store: malformed placeholder token %q", tok))
		}
		return dialect.Placeholder(n + start - 1)
	})
}

// mustNoDollarDollar panics if query still contains an unsubstituted
// token — a defensive assertion matching the source's "strict
// substitution" contract, never expected to fire on our own templates.
func mustNoDollarDollar(query string) {
	if strings.Contains(query, "$$") {
		panic(fmt.Sprintf("store: unsubstituted placeholder token in query: %s", query))
	}
}
